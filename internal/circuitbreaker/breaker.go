package circuitbreaker

import (
	"sync"
	"time"
)

const (
	// DefaultFailureThreshold is the number of consecutive failures that
	// trips a breaker open.
	DefaultFailureThreshold = 5

	// DefaultResetTimeout is the cool-down after which an open breaker
	// re-closes on the next Allow call.
	DefaultResetTimeout = 30 * time.Second
)

// CircuitBreaker tracks consecutive failures for a single server and blocks
// requests once the failure threshold is reached. An open breaker re-closes
// lazily: the first Allow call observed after the reset timeout has elapsed
// resets the counter and closes the breaker. There is no half-open probing
// state; the very next recorded outcome reopens the breaker if the server
// is still failing.
type CircuitBreaker struct {
	mutex            sync.Mutex
	open             bool
	failures         int
	lastFailure      time.Time
	failureThreshold int
	resetTimeout     time.Duration
}

// New creates a closed circuit breaker with the given failure threshold and
// reset timeout. Non-positive values fall back to the defaults.
func New(threshold int, timeout time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if timeout <= 0 {
		timeout = DefaultResetTimeout
	}

	return &CircuitBreaker{
		failureThreshold: threshold,
		resetTimeout:     timeout,
	}
}

// Allow reports whether a request to the server may be attempted. An open
// breaker whose reset timeout has elapsed is closed and its failure counter
// reset before allowing; the whole check-reset-allow sequence is a single
// critical section.
func (cb *CircuitBreaker) Allow() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if !cb.open {
		return true
	}

	if time.Since(cb.lastFailure) > cb.resetTimeout {
		cb.failures = 0
		cb.open = false
		return true
	}

	return false
}

// RecordSuccess resets the failure counter and closes the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures = 0
	cb.open = false
}

// RecordFailure increments the failure counter. Reaching the threshold
// opens the breaker and stamps the failure time the cool-down is measured
// from.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures++

	if cb.failures >= cb.failureThreshold {
		cb.open = true
		cb.lastFailure = time.Now()
	}
}

// IsOpen returns a snapshot of the breaker state for observability. It does
// not perform the lazy timeout reset; only Allow does.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.open
}
