package server

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
)

var (
	// ErrInvalidConfiguration is returned when a node is constructed with an
	// out-of-range host, port, or weight.
	ErrInvalidConfiguration = errors.New("invalid server configuration")

	// ErrInvalidArgument is returned when a caller passes an out-of-range
	// value to a metrics mutator.
	ErrInvalidArgument = errors.New("invalid argument")
)

const failureRateAlpha = 0.2

// Node represents a backend server with health status, connection tracking,
// and latency monitoring. Identity and weight are fixed at construction;
// everything else is mutated concurrently through atomic operations.
type Node struct {
	id     string
	host   string
	port   int
	weight int

	healthy         atomic.Bool
	activeConns     atomic.Int64
	requestCount    atomic.Int64
	totalLatency    atomic.Int64 // nanoseconds
	lastHealthCheck atomic.Int64 // unix nanoseconds, 0 until first check
	failureRate     atomic.Uint64
}

// New creates a Node with a freshly generated id. The node starts healthy
// with zero metrics. Returns ErrInvalidConfiguration unless the host is
// non-empty, the port is in 1-65535, and the weight is in 0-100.
func New(host string, port, weight int) (*Node, error) {
	if err := validateNode(host, port, weight); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	n := &Node{
		id:     uuid.NewString(),
		host:   host,
		port:   port,
		weight: weight,
	}
	n.healthy.Store(true)

	return n, nil
}

func validateNode(host string, port, weight int) error {
	return validation.Errors{
		"host":   validation.Validate(host, validation.Required),
		"port":   validation.Validate(port, validation.Required, validation.Min(1), validation.Max(65535)),
		"weight": validation.Validate(weight, validation.Min(0), validation.Max(100)),
	}.Filter()
}

// ID returns the node's generated unique id.
func (n *Node) ID() string {
	return n.id
}

// Host returns the backend host.
func (n *Node) Host() string {
	return n.host
}

// Port returns the backend port.
func (n *Node) Port() int {
	return n.port
}

// Weight returns the node's relative traffic share (0-100).
func (n *Node) Weight() int {
	return n.weight
}

// Addr returns the backend address in host:port form.
func (n *Node) Addr() string {
	return fmt.Sprintf("%s:%d", n.host, n.port)
}

// IncrementConnections adds one active connection and returns the new count.
func (n *Node) IncrementConnections() int64 {
	return n.activeConns.Add(1)
}

// DecrementConnections removes one active connection and returns the new
// count. The node does not clamp at zero; callers must pair every decrement
// with a prior increment.
func (n *Node) DecrementConnections() int64 {
	return n.activeConns.Add(-1)
}

// ActiveConnections returns the current number of active connections.
func (n *Node) ActiveConnections() int64 {
	return n.activeConns.Load()
}

// RecordRequest adds one completed request and its latency to the node's
// cumulative counters. Returns ErrInvalidArgument for a negative latency,
// leaving both counters untouched.
func (n *Node) RecordRequest(latency time.Duration) error {
	if latency < 0 {
		return fmt.Errorf("%w: negative latency %v", ErrInvalidArgument, latency)
	}

	n.requestCount.Add(1)
	n.totalLatency.Add(int64(latency))
	return nil
}

// RequestCount returns the cumulative number of recorded requests.
func (n *Node) RequestCount() int64 {
	return n.requestCount.Load()
}

// AverageLatency returns the mean latency over all recorded requests, or 0
// when none have been recorded. The value is derived from the two cumulative
// counters at read time; both only grow, so no lock is needed.
func (n *Node) AverageLatency() time.Duration {
	count := n.requestCount.Load()
	if count == 0 {
		return 0
	}

	return time.Duration(n.totalLatency.Load() / count)
}

// IsHealthy returns true if the node is currently healthy.
func (n *Node) IsHealthy() bool {
	return n.healthy.Load()
}

// SetHealthy updates the node's health status. Written only by the
// health-check loop. Returns true if the status changed.
func (n *Node) SetHealthy(healthy bool) (changed bool) {
	return n.healthy.Swap(healthy) != healthy
}

// SetLastHealthCheck stamps the time of the most recent health probe.
func (n *Node) SetLastHealthCheck(t time.Time) {
	n.lastHealthCheck.Store(t.UnixNano())
}

// LastHealthCheck returns the time of the most recent health probe, or the
// zero time if the node has never been probed.
func (n *Node) LastHealthCheck() time.Time {
	nanos := n.lastHealthCheck.Load()
	if nanos == 0 {
		return time.Time{}
	}

	return time.Unix(0, nanos)
}

// ObserveProbe folds one probe outcome into the node's failure-rate EWMA.
// Written only by the health-check loop.
func (n *Node) ObserveProbe(failed bool) {
	sample := 0.0
	if failed {
		sample = 1.0
	}

	prev := math.Float64frombits(n.failureRate.Load())
	//ewma = (1 - α) * ewma + α * latest
	next := (1-failureRateAlpha)*prev + failureRateAlpha*sample
	n.failureRate.Store(math.Float64bits(next))
}

// FailureRate returns the exponentially weighted moving average of probe
// failures, in [0, 1]. Returns 0 until the first probe is observed.
func (n *Node) FailureRate() float64 {
	return math.Float64frombits(n.failureRate.Load())
}
