/*
Package domain contains the core domain models of the stride pipeline.

It defines the stage catalog, the mutable pipeline session, the workout payloads
exchanged between stages and the structurally complete analysis contract. This
package is kept pure and free of external dependencies like I/O or persistence,
following Hexagonal Architecture principles.

# Key Entities

  - Stage: An immutable catalog entry with a progress range (see Stages).
  - PipelineSession: The unit of work owned by one pipeline instance.
  - SessionStateRecord: The persisted mirror used for cross-reload generation coordination.
  - AnalysisResult: The stage-4 output; every section is always present after enrichment.
  - LifecycleHooks: Callbacks for observability (stage transitions, remote attempts, fallbacks).
*/
package domain
