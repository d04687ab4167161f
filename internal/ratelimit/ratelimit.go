package ratelimit

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter applies a token-bucket rate limit per client IP. Buckets are
// created lazily on first sight of a client and kept for the process
// lifetime.
type Limiter struct {
	mutex    sync.Mutex
	clients  map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
	clientIP func(*http.Request) string
}

// New creates a limiter allowing rps requests per second with the given
// burst per client. clientIP extracts the client key from a request.
func New(rps float64, burst int, clientIP func(*http.Request) string) *Limiter {
	return &Limiter{
		clients:  make(map[string]*rate.Limiter),
		rate:     rate.Limit(rps),
		burst:    burst,
		clientIP: clientIP,
	}
}

// Allow reports whether the client may proceed, consuming one token.
func (l *Limiter) Allow(clientIP string) bool {
	l.mutex.Lock()
	lim, ok := l.clients[clientIP]
	if !ok {
		lim = rate.NewLimiter(l.rate, l.burst)
		l.clients[clientIP] = lim
	}
	l.mutex.Unlock()

	return lim.Allow()
}

// Middleware wraps an HTTP handler, answering 429 for clients over their
// budget.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(l.clientIP(r)) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
