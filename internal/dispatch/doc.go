// Package dispatch executes a validated plan's dependency graph against
// registered worker agents.
//
// Execution proceeds in waves: nodes whose prerequisites have all completed
// are dispatched concurrently under a semaphore, the wave is joined, and the
// next ready set is computed. An empty ready set with work still pending is
// reported as a dependency deadlock rather than stalling. Per-task
// delegation failures are recorded in the result set and cascade to
// dependent nodes.
package dispatch
