// Package circuitbreaker implements the circuit breaker pattern for
// isolating failing servers.
//
// A circuit breaker prevents cascading failures by temporarily blocking
// requests to servers experiencing a failure burst. Each breaker has two
// states:
//
//   - CLOSED: Normal operation, requests pass through, failures are counted
//   - OPEN: Requests blocked until the reset timeout elapses
//
// An open breaker closes itself lazily: the first Allow call after the reset
// timeout allows the request and resets the failure counter. If the server
// is still bad, the next recorded failure burst reopens it.
//
// Usage:
//
//	registry := circuitbreaker.NewRegistry(5, 30*time.Second)
//	cb := registry.GetBreaker(node.ID())
//	if cb.Allow() {
//	    // Make request...
//	    if err != nil {
//	        cb.RecordFailure()
//	    } else {
//	        cb.RecordSuccess()
//	    }
//	}
package circuitbreaker
