/*
Package observability exposes pipeline activity as Prometheus metrics.

Metrics registers its collectors on a prometheus.Registerer and returns
domain.LifecycleHooks that feed them, so it plugs into the engine like any
other hook consumer.
*/
package observability
