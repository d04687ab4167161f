package circuitbreaker

import (
	"sync"
	"time"
)

// Registry owns one circuit breaker per server, keyed by server id.
// Breakers are created when a server is registered and removed with it.
type Registry struct {
	mutex     sync.RWMutex
	breakers  map[string]*CircuitBreaker
	threshold int
	timeout   time.Duration
}

// NewRegistry creates an empty registry whose breakers use the given
// threshold and reset timeout.
func NewRegistry(threshold int, timeout time.Duration) *Registry {
	return &Registry{
		breakers:  make(map[string]*CircuitBreaker),
		threshold: threshold,
		timeout:   timeout,
	}
}

// GetBreaker returns the breaker for the given server id, creating a closed
// one on first use.
func (r *Registry) GetBreaker(serverID string) *CircuitBreaker {
	r.mutex.RLock()
	cb, exists := r.breakers[serverID]
	r.mutex.RUnlock()

	if exists {
		return cb
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// Double-check: another goroutine may have created it
	if cb, exists = r.breakers[serverID]; exists {
		return cb
	}

	cb = New(r.threshold, r.timeout)
	r.breakers[serverID] = cb
	return cb
}

// Lookup returns the breaker for the given server id without creating one.
func (r *Registry) Lookup(serverID string) (*CircuitBreaker, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	cb, exists := r.breakers[serverID]
	return cb, exists
}

// Remove drops the breaker for the given server id, if any. Called when the
// server is deregistered.
func (r *Registry) Remove(serverID string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.breakers, serverID)
}

// Reset discards every breaker in the registry.
func (r *Registry) Reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.breakers = make(map[string]*CircuitBreaker)
}

// Stats returns a snapshot of the open/closed state of every breaker.
func (r *Registry) Stats() map[string]bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	stats := make(map[string]bool, len(r.breakers))
	for id, cb := range r.breakers {
		stats[id] = cb.IsOpen()
	}
	return stats
}
