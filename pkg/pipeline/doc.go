/*
Package pipeline implements the guided session state machine.

A Machine owns one user's session and moves it through the fixed stage
catalog (prepare, activate, perform, analyze, advance). Plan generation is
gated by a Coordinator so that reloads and concurrent callers do not trigger
duplicate remote generations; analysis goes through a ports.Analyzer, which
always returns a complete result or an error.

Stage changes are written through to a ports.SessionStateStore in the
background. Failures there are logged and never block the user.

	m := pipeline.New(userID,
		pipeline.WithGenerator(gen),
		pipeline.WithAnalyzer(svc),
		pipeline.WithStateStore(store),
	)
	_ = m.SetInputs(ctx, inputs)
	plan, err := m.GeneratePlan(ctx)
*/
package pipeline
