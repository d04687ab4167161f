// Package balancer implements the load-distribution core: a registry of
// backend servers with a selection algorithm that respects server health,
// per-server circuit breakers, and dynamic per-server connection ceilings.
//
// Servers live in a fixed-capacity slot table keyed by consistent hash of
// the server id. Selection first polls a bounded cache of recently-good
// servers, then scans the table starting from the total-requests counter
// modulo capacity, wrapping around, and returns the first server that is
// healthy, whose breaker allows a request, and whose active connections sit
// below its dynamic ceiling.
//
// GetServer never blocks the caller: selections execute on a worker pool
// and the outcome is delivered on a channel. A dedicated goroutine samples
// random slots on a fixed period, invokes the injected health prober, and
// feeds the results into the server nodes and their circuit breakers.
//
// All shared state is coordinated through atomics and channel operations;
// no global lock is taken, and only the circuit breakers use a per-breaker
// mutex for their critical sections.
package balancer
