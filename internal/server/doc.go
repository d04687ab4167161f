// Package server defines the Node entity: one backend instance with its
// immutable identity (id, host, port, weight) and its continuously updated
// runtime metrics (health, active connections, request count, latency).
// All mutable state is held behind atomics so the request path and the
// health-check loop never contend on a lock.
package server
