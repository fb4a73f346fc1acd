/*
Package api is the admin HTTP surface for a single schedulerd node:
liveness, readiness, a job listing, and the Prometheus metrics handler.

It deliberately does not expose any way to submit or mutate jobs — job
admission goes through the leader's engine (Engine.RegisterJob), which
persists each job through pkg/leader.Lifecycle.Apply so the write is
replicated via Raft; this package is read-only.
*/
package api
