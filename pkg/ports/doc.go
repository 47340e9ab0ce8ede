/*
Package ports defines the driven ports (interfaces) for the stride pipeline.

These interfaces decouple the pipeline from external implementations, allowing
it to work with various storage backends and remote services.

# Key Interfaces

  - SessionStateStore: Persists the generation-coordination mirror of a session.
  - ArchiveStore: Keeps abandoned-session snapshots and completed analyses.
  - DraftStore: Keeps one expiring stage-1 draft per user.
  - PlanGenerator / Analyzer: The remote black-box services.
  - RecoveryProvider: Optional wearable recovery metrics.
  - DistributedLocker: Provides distributed locking for concurrent session access.
*/
package ports
