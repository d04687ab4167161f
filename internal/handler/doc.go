// Package handler implements the HTTP entry point of the load balancer.
// Each request awaits an asynchronous server selection from the balancer,
// tracks the node's connection count around proxying, records the observed
// latency, and emits metric events.
package handler
