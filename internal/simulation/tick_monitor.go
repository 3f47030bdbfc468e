package simulation

import (
	"sort"
	"sync"
	"time"
)

// recentWindow is the number of recent turns kept for percentile estimates.
const recentWindow = 256

// TickMetricsSnapshot summarises observed turn durations.
type TickMetricsSnapshot struct {
	Samples int           `json:"samples"`
	Average time.Duration `json:"average"`
	Max     time.Duration `json:"max"`
	Last    time.Duration `json:"last"`
	P95     time.Duration `json:"p95"`
}

// TurnsPerSecond derives the sustainable turn rate from the average turn duration.
func (s TickMetricsSnapshot) TurnsPerSecond() float64 {
	if s.Average <= 0 {
		return 0
	}
	return float64(time.Second) / float64(s.Average)
}

// TickMonitor accumulates timing statistics for resolved turns.
type TickMonitor struct {
	mu      sync.Mutex
	samples int
	total   time.Duration
	max     time.Duration
	last    time.Duration
	recent  []time.Duration
	next    int
}

// NewTickMonitor constructs an empty monitor ready to collect samples.
func NewTickMonitor() *TickMonitor {
	return &TickMonitor{recent: make([]time.Duration, 0, recentWindow)}
}

// Observe records the duration of a resolved turn.
func (m *TickMonitor) Observe(duration time.Duration) {
	if m == nil || duration <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples++
	m.total += duration
	if duration > m.max {
		m.max = duration
	}
	m.last = duration
	//1.- Overwrite the oldest sample once the window is full.
	if len(m.recent) < recentWindow {
		m.recent = append(m.recent, duration)
		return
	}
	m.recent[m.next] = duration
	m.next = (m.next + 1) % recentWindow
}

// Snapshot returns a copy of the aggregated statistics.
func (m *TickMonitor) Snapshot() TickMetricsSnapshot {
	if m == nil {
		return TickMetricsSnapshot{}
	}
	m.mu.Lock()
	snapshot := TickMetricsSnapshot{Samples: m.samples, Max: m.max, Last: m.last}
	if m.samples > 0 {
		snapshot.Average = m.total / time.Duration(m.samples)
	}
	recent := append([]time.Duration(nil), m.recent...)
	m.mu.Unlock()

	if len(recent) > 0 {
		sort.Slice(recent, func(i, j int) bool { return recent[i] < recent[j] })
		snapshot.P95 = recent[(len(recent)*95+99)/100-1]
	}
	return snapshot
}

// Reset clears the accumulated statistics so a fresh battle starts from scratch.
func (m *TickMonitor) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.samples = 0
	m.total = 0
	m.max = 0
	m.last = 0
	m.recent = m.recent[:0]
	m.next = 0
	m.mu.Unlock()
}
