package balancer

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/albertbeaupre/full-stack-infrastructure-sub001/internal/server"
)

// Prober checks whether a server is reachable and serving. Implementations
// may block on network I/O; the balancer only ever calls Probe from its
// dedicated health-check goroutine, so probe latency cannot stall the
// request path.
type Prober interface {
	Probe(ctx context.Context, node *server.Node) (bool, error)
}

// ProberFunc adapts a plain function to the Prober interface.
type ProberFunc func(ctx context.Context, node *server.Node) (bool, error)

// Probe implements Prober.
func (f ProberFunc) Probe(ctx context.Context, node *server.Node) (bool, error) {
	return f(ctx, node)
}

func alwaysHealthy(context.Context, *server.Node) (bool, error) {
	return true, nil
}

// healthLoop runs strictly periodic health cycles on a dedicated goroutine
// until Shutdown. Cycles never overlap: the next tick fires only after the
// previous cycle returned.
func (b *Balancer) healthLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			b.logger.Info("Health check loop stopped")
			return
		case <-ticker.C:
			b.runHealthCycle()
		}
	}
}

// runHealthCycle samples max(1, capacity/10) uniformly random slots and
// probes every occupied one.
func (b *Balancer) runHealthCycle() {
	ctx, cancel := context.WithTimeout(context.Background(), b.healthInterval)
	defer cancel()

	samples := b.capacity / healthSampleDivisor
	if samples < 1 {
		samples = 1
	}

	for i := 0; i < samples; i++ {
		n := b.slots[rand.Intn(b.capacity)].Load()
		if n == nil {
			continue
		}
		b.probeNode(ctx, n)
	}
}

// probeNode invokes the external prober for one node and applies the
// outcome: health flag, last-check stamp, failure-rate EWMA, circuit
// breaker, and availability cache.
func (b *Balancer) probeNode(ctx context.Context, n *server.Node) {
	healthy := b.safeProbe(ctx, n)

	n.ObserveProbe(!healthy)
	n.SetLastHealthCheck(time.Now())
	changed := n.SetHealthy(healthy)

	cb, ok := b.breakers.Lookup(n.ID())
	if !ok {
		// Deregistered while the cycle was running.
		return
	}

	if healthy {
		cb.RecordSuccess()
		b.cacheNode(n)
	} else {
		cb.RecordFailure()
		b.purgeCache(n.ID())
	}

	if changed {
		if healthy {
			b.logger.Info("Server is back up", slog.String("server", n.Addr()))
		} else {
			b.logger.Warn("Server is down", slog.String("server", n.Addr()))
		}

		if b.onHealthChange != nil {
			b.onHealthChange(n.ID(), healthy)
		}
	}
}

// safeProbe confines prober errors and panics to the health-check boundary;
// both count as a failed probe and never reach request-handling callers.
func (b *Balancer) safeProbe(ctx context.Context, n *server.Node) (healthy bool) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Health probe panicked",
				slog.String("server", n.Addr()),
				slog.Any("panic", r))
			healthy = false
		}
	}()

	ok, err := b.prober.Probe(ctx, n)
	if err != nil {
		b.logger.Debug("Health probe failed",
			slog.String("server", n.Addr()),
			slog.Any("err", err))
		return false
	}

	return ok
}
