package stride_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/stride"
	"github.com/aretw0/stride/pkg/domain"
	"github.com/aretw0/stride/pkg/ports"
)

type staticGenerator struct{}

func (staticGenerator) Generate(ctx context.Context, req ports.GenerationRequest) (*domain.Prescription, error) {
	return &domain.Prescription{
		Type:      "functional",
		Exercises: []domain.Exercise{{ID: "burpee", Name: "Burpee", Sets: 5, Reps: 10}},
	}, nil
}

// ExampleNew shows a pipeline driven with an injected generator and the
// default in-memory stores.
func ExampleNew() {
	eng, err := stride.New(stride.WithGenerator(staticGenerator{}))
	if err != nil {
		log.Fatal(err)
	}
	defer eng.Close()

	ctx := context.Background()
	p := eng.NewPipeline("athlete-1")

	if err := p.SetInputs(ctx, domain.PreparerData{AvailableTime: 30, LocationID: "home", EnergyLevel: 8}); err != nil {
		log.Fatal(err)
	}
	p.Advance(ctx)

	plan, err := p.GeneratePlan(ctx)
	if err != nil {
		log.Fatal(err)
	}
	st := p.Stage()
	fmt.Printf("%s (%d%%): %s with %d exercise(s)\n", st.Title, p.Session().Progress, plan.Type, len(plan.Exercises))
	// Output: Activate (21%): functional with 1 exercise(s)
}
