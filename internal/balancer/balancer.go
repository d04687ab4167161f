package balancer

import (
	"errors"
	"fmt"
	"hash/crc32"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/albertbeaupre/full-stack-infrastructure-sub001/internal/circuitbreaker"
	"github.com/albertbeaupre/full-stack-infrastructure-sub001/internal/server"
)

var (
	// ErrInvalidConfiguration is returned by New for out-of-range sizing
	// parameters.
	ErrInvalidConfiguration = errors.New("invalid balancer configuration")

	// ErrServiceUnavailable is returned by GetServer after Shutdown.
	ErrServiceUnavailable = errors.New("load balancer is shut down")

	// ErrNoHealthyServers is returned when a full slot scan finds no
	// eligible server. Transient: callers should retry with backoff.
	ErrNoHealthyServers = errors.New("no healthy servers available")
)

const (
	// DefaultHealthInterval is the period of the background health-check
	// loop.
	DefaultHealthInterval = 10 * time.Second

	// healthSampleDivisor controls how many slots each health cycle
	// samples: max(1, capacity/healthSampleDivisor).
	healthSampleDivisor = 10

	// minLatencyFactor floors the latency factor so a slow server with
	// weight > 0 never loses all capacity.
	minLatencyFactor = 0.1

	taskQueueFactor = 16
)

// Config carries the construction parameters for a Balancer. Capacity,
// BaseMaxConns, Workers, and VirtualNodes are required and must be positive;
// the remaining fields default when zero.
type Config struct {
	// Capacity is the fixed number of slots in the server table.
	Capacity int

	// BaseMaxConns is the per-server connection ceiling before the latency
	// and weight factors are applied.
	BaseMaxConns int

	// Workers is the number of goroutines executing selections.
	Workers int

	// VirtualNodes multiplies the server id hash to spread servers across
	// slots.
	VirtualNodes int

	// HealthInterval is the health-check loop period.
	HealthInterval time.Duration

	// FailureThreshold and ResetTimeout configure the per-server circuit
	// breakers.
	FailureThreshold int
	ResetTimeout     time.Duration

	// Prober checks whether a server is serving. Runs only on the
	// health-check goroutine, never on the request path.
	Prober Prober

	// OnHealthChange, when set, is called from the health-check goroutine
	// each time a probe flips a server's health status. Implementations
	// must not block.
	OnHealthChange func(serverID string, healthy bool)

	Logger *slog.Logger
}

func (cfg Config) validate() error {
	return validation.Errors{
		"capacity":       validation.Validate(cfg.Capacity, validation.Required, validation.Min(1)),
		"base_max_conns": validation.Validate(cfg.BaseMaxConns, validation.Required, validation.Min(1)),
		"workers":        validation.Validate(cfg.Workers, validation.Required, validation.Min(1)),
		"virtual_nodes":  validation.Validate(cfg.VirtualNodes, validation.Required, validation.Min(1)),
	}.Filter()
}

// Selection is the outcome of one GetServer call, delivered on the returned
// channel.
type Selection struct {
	Node *server.Node
	Err  error
}

type selectTask struct {
	result chan Selection
}

// Balancer owns a fixed slot table of server nodes keyed by consistent
// hash, one circuit breaker per server, a bounded cache of recently-good
// servers, a selection worker pool, and a background health-check loop.
type Balancer struct {
	capacity     int
	baseMaxConns int
	virtualNodes int

	slots    []atomic.Pointer[server.Node]
	breakers *circuitbreaker.Registry
	cache    chan *server.Node

	tasks chan selectTask
	stop  chan struct{}
	wg    sync.WaitGroup
	enqWg sync.WaitGroup

	totalRequests atomic.Uint64
	closed        atomic.Bool

	healthInterval time.Duration
	prober         Prober
	onHealthChange func(serverID string, healthy bool)
	logger         *slog.Logger
}

// New validates the configuration, builds the slot table, and starts the
// selection workers and the health-check loop. The returned balancer must
// be stopped with Shutdown.
func New(cfg Config) (*Balancer, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = DefaultHealthInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Prober == nil {
		cfg.Prober = ProberFunc(alwaysHealthy)
	}

	b := &Balancer{
		capacity:       cfg.Capacity,
		baseMaxConns:   cfg.BaseMaxConns,
		virtualNodes:   cfg.VirtualNodes,
		slots:          make([]atomic.Pointer[server.Node], cfg.Capacity),
		breakers:       circuitbreaker.NewRegistry(cfg.FailureThreshold, cfg.ResetTimeout),
		cache:          make(chan *server.Node, cfg.Capacity),
		tasks:          make(chan selectTask, cfg.Workers*taskQueueFactor),
		stop:           make(chan struct{}),
		healthInterval: cfg.HealthInterval,
		prober:         cfg.Prober,
		onHealthChange: cfg.OnHealthChange,
		logger:         cfg.Logger,
	}

	for i := 0; i < cfg.Workers; i++ {
		b.wg.Add(1)
		go b.worker()
	}

	b.wg.Add(1)
	go b.healthLoop()

	return b, nil
}

// AddServer registers a backend and returns its generated id. The node is
// placed at hash(id)*virtualNodes mod capacity; a second server hashing to
// an occupied slot silently replaces the occupant, and the replaced
// server's breaker and cache entries are dropped with it.
func (b *Balancer) AddServer(host string, port, weight int) (string, error) {
	n, err := server.New(host, port, weight)
	if err != nil {
		return "", err
	}

	slot := b.slotFor(n.ID())
	prev := b.slots[slot].Swap(n)
	if prev != nil {
		b.breakers.Remove(prev.ID())
		b.purgeCache(prev.ID())
	}

	b.breakers.GetBreaker(n.ID())

	if n.IsHealthy() {
		b.cacheNode(n)
	}

	b.logger.Info("Server registered",
		slog.String("id", n.ID()),
		slog.String("addr", n.Addr()),
		slog.Int("weight", n.Weight()),
		slog.Int("slot", slot))

	return n.ID(), nil
}

// RemoveServer deregisters a server by id. The slot is cleared only if its
// occupant still carries the same id, so a stale remove cannot evict a
// newer registration that landed in the same slot. No-op for unknown ids.
func (b *Balancer) RemoveServer(id string) {
	slot := b.slotFor(id)

	if occupant := b.slots[slot].Load(); occupant != nil && occupant.ID() == id {
		b.slots[slot].CompareAndSwap(occupant, nil)
	}

	b.breakers.Remove(id)
	b.purgeCache(id)

	b.logger.Info("Server deregistered", slog.String("id", id))
}

// GetServer schedules a selection on the worker pool and returns a handle
// the caller can receive the outcome from. The call never blocks: after
// Shutdown the handle carries ErrServiceUnavailable immediately, and a full
// task queue is handed off to a goroutine rather than stalling the caller.
func (b *Balancer) GetServer() <-chan Selection {
	result := make(chan Selection, 1)

	if b.closed.Load() {
		result <- Selection{Err: ErrServiceUnavailable}
		return result
	}

	t := selectTask{result: result}

	select {
	case b.tasks <- t:
	case <-b.stop:
		result <- Selection{Err: ErrServiceUnavailable}
	default:
		b.enqWg.Add(1)
		go b.enqueue(t)
	}

	return result
}

// enqueue parks an overflow selection until a worker frees queue space.
// Once stop is closed the selection always fails rather than landing in a
// queue nobody serves: the stop check runs before the blocking send, and
// Shutdown waits for in-flight enqueues and drains the queue once more
// behind them.
func (b *Balancer) enqueue(t selectTask) {
	defer b.enqWg.Done()

	select {
	case <-b.stop:
		t.result <- Selection{Err: ErrServiceUnavailable}
		return
	default:
	}

	select {
	case b.tasks <- t:
	case <-b.stop:
		t.result <- Selection{Err: ErrServiceUnavailable}
	}
}

// Shutdown flips the running flag so new GetServer calls fail immediately,
// then stops the worker pool and the health-check loop, waiting up to grace
// for in-flight work to finish. Returns an error if the drain timed out.
// Safe to call more than once.
func (b *Balancer) Shutdown(grace time.Duration) error {
	if b.closed.Swap(true) {
		return nil
	}

	close(b.stop)

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		// A racing GetServer may still have slipped a task into the queue
		// after the workers drained it. Wait for in-flight overflow
		// enqueues, then fail whatever they left behind so no caller is
		// left waiting. Enqueues starting after this wait observe the
		// closed stop channel and fail their task themselves.
		b.enqWg.Wait()
		b.drainTasks()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("Load balancer stopped")
		return nil
	case <-time.After(grace):
		return fmt.Errorf("shutdown: workers did not drain within %v", grace)
	}
}

// DynamicMaxConns returns the node's current connection ceiling:
// base * latencyFactor * weight/100, where the latency factor is
// max(0.1, 1 - avgLatencyMs/100) once requests have been recorded and 1.0
// before. Slow or low-weight servers are capped harder. A fractional cap
// rounds up, so a server with weight > 0 always keeps at least one
// connection of capacity.
func (b *Balancer) DynamicMaxConns(n *server.Node) int64 {
	factor := 1.0
	if n.RequestCount() > 0 {
		avgMs := float64(n.AverageLatency()) / float64(time.Millisecond)
		factor = math.Max(minLatencyFactor, 1-avgMs/100)
	}

	return int64(math.Ceil(float64(b.baseMaxConns) * factor * float64(n.Weight()) / 100))
}

// eligible is the combined test a server must pass to be returned by
// selection: healthy, breaker allows, and below its dynamic connection cap.
// A node whose breaker is gone was deregistered and never passes.
func (b *Balancer) eligible(n *server.Node) bool {
	if !n.IsHealthy() {
		return false
	}

	cb, ok := b.breakers.Lookup(n.ID())
	if !ok || !cb.Allow() {
		return false
	}

	return n.ActiveConnections() < b.DynamicMaxConns(n)
}

func (b *Balancer) slotFor(id string) int {
	h := crc32.ChecksumIEEE([]byte(id))
	return int((uint64(h) * uint64(b.virtualNodes)) % uint64(b.capacity))
}

// cacheNode appends a node to the availability cache, dropping it if the
// cache is full.
func (b *Balancer) cacheNode(n *server.Node) {
	select {
	case b.cache <- n:
	default:
	}
}

// purgeCache drains the availability cache once, re-queueing every entry
// except those matching the given id.
func (b *Balancer) purgeCache(id string) {
	for i := len(b.cache); i > 0; i-- {
		select {
		case n := <-b.cache:
			if n.ID() != id {
				b.cacheNode(n)
			}
		default:
			return
		}
	}
}

// Capacity returns the fixed slot-table capacity.
func (b *Balancer) Capacity() int {
	return b.capacity
}

// OccupiedSlots returns the number of slots currently holding a server.
func (b *Balancer) OccupiedSlots() int {
	occupied := 0
	for i := range b.slots {
		if b.slots[i].Load() != nil {
			occupied++
		}
	}
	return occupied
}

// Servers returns a snapshot of every registered node in slot order.
func (b *Balancer) Servers() []*server.Node {
	nodes := make([]*server.Node, 0, len(b.slots))
	for i := range b.slots {
		if n := b.slots[i].Load(); n != nil {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// TotalRequests returns the number of selections executed so far.
func (b *Balancer) TotalRequests() uint64 {
	return b.totalRequests.Load()
}

// BreakerStats returns the open/closed state of every registered breaker,
// keyed by server id.
func (b *Balancer) BreakerStats() map[string]bool {
	return b.breakers.Stats()
}
