package metrics

import (
	"sort"
	"sync"
	"time"
)

type Metrics struct {
	mutex             sync.RWMutex
	requests          map[string]int64
	selections        map[string]int64
	responseTimes     map[string][]time.Duration
	statusCodes       map[string]map[int]int64
	healthStatus      map[string]bool
	selectionFailures int64
	startTime         time.Time
}

type Snapshot struct {
	TotalRequests     int64                    `json:"total_requests"`
	SelectionFailures int64                    `json:"selection_failures"`
	Uptime            time.Duration            `json:"uptime"`
	Servers           map[string]ServerMetrics `json:"servers"`
}

type ServerMetrics struct {
	Requests    int64         `json:"requests"`
	Selections  int64         `json:"selections"`
	Healthy     bool          `json:"healthy"`
	AvgResponse time.Duration `json:"avg_response"`
	P50Response time.Duration `json:"p50_response"`
	P95Response time.Duration `json:"p95_response"`
	P99Response time.Duration `json:"p99_response"`
	StatusCodes map[int]int64 `json:"status_codes"`
}

func (m *Metrics) IncrementRequests(serverID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.requests[serverID]++
}

func (m *Metrics) RecordSelection(serverID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.selections[serverID]++
}

func (m *Metrics) RecordSelectionFailure() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.selectionFailures++
}

func (m *Metrics) RecordResponse(serverID string, duration time.Duration, statusCode int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.responseTimes[serverID] = append(m.responseTimes[serverID], duration)

	if len(m.responseTimes[serverID]) > 1000 {
		m.responseTimes[serverID] = m.responseTimes[serverID][1:]
	}

	if m.statusCodes[serverID] == nil {
		m.statusCodes[serverID] = make(map[int]int64)
	}
	m.statusCodes[serverID][statusCode]++
}

func (m *Metrics) UpdateHealthStatus(serverID string, healthy bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.healthStatus[serverID] = healthy
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		SelectionFailures: m.selectionFailures,
		Uptime:            time.Since(m.startTime),
		Servers:           make(map[string]ServerMetrics),
	}

	allServers := make(map[string]struct{})
	for id := range m.requests {
		allServers[id] = struct{}{}
	}
	for id := range m.selections {
		allServers[id] = struct{}{}
	}
	for id := range m.healthStatus {
		allServers[id] = struct{}{}
	}

	for id := range allServers {
		snap.TotalRequests += m.requests[id]

		sm := ServerMetrics{
			Requests:    m.requests[id],
			Selections:  m.selections[id],
			Healthy:     m.healthStatus[id],
			StatusCodes: m.statusCodes[id],
		}

		durations := m.responseTimes[id]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			sm.AvgResponse = average(sorted)
			sm.P50Response = percentile(sorted, 0.50)
			sm.P95Response = percentile(sorted, 0.95)
			sm.P99Response = percentile(sorted, 0.99)
		}

		snap.Servers[id] = sm
	}

	return snap
}

func NewMetrics() *Metrics {
	return &Metrics{
		requests:      make(map[string]int64),
		selections:    make(map[string]int64),
		responseTimes: make(map[string][]time.Duration),
		statusCodes:   make(map[string]map[int]int64),
		healthStatus:  make(map[string]bool),
		startTime:     time.Now(),
	}
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
