/*
Package metrics defines and registers the scheduler's Prometheus
metrics: fleet composition (fleetsched_resources_total), drain and
equivalence-class bookkeeping, placement and reservation timings, and
refresh-loop health.

Call Handler to mount the collector on an HTTP mux, and RegisterComponent/
UpdateComponent to feed the readiness and liveness endpoints.
*/
package metrics
