/*
Package stride is an engine for guided workout sessions.

A session moves through five fixed stages:

	prepare → activate → perform → analyze → advance

The user describes their context in prepare, receives a generated plan in
activate, executes it in perform, reports feedback and receives an analysis
in analyze, and gets a recommendation for what comes next in advance.

# Concept

The expensive parts, plan generation and session analysis, live behind
remote HTTP endpoints. stride owns everything around them: the stage machine,
deduplication of generation triggers across reloads and replicas, the
timeout and retry policy of the remote calls, and the guarantee that every
analysis is structurally complete even when the remote payload is not.

# Key Features

  - Instantiable pipelines: one pipeline.Machine per user, no globals.
  - Generation coordination: a local time-boxed lock, a persisted check and
    in-process collapsing of concurrent triggers.
  - Resilient remote calls with bounded retries, linear backoff and a
    longer budget for heavy sessions.
  - Complete analyses: missing sections are computed locally and reported
    as warnings.
  - Pluggable persistence: memory, Redis or the filesystem.

# Usage

	package main

	import (
		"context"
		"log"

		"github.com/aretw0/stride"
	)

	func main() {
		eng, err := stride.New()
		if err != nil {
			log.Fatal(err)
		}
		defer eng.Close()

		ctx := context.Background()
		err = eng.Sessions().WithPipeline(ctx, "user-1", func(ctx context.Context, p *pipeline.Machine) error {
			if err := p.SetInputs(ctx, inputs); err != nil {
				return err
			}
			p.Advance(ctx)
			_, err := p.GeneratePlan(ctx)
			return err
		})
		if err != nil {
			log.Fatal(err)
		}
	}
*/
package stride
