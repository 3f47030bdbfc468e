package networking

import (
	"sync"
)

// DropReason explains why a snapshot was not delivered to a spectator.
type DropReason string

const (
	// DropBandwidth marks snapshots refused by the spectator bandwidth budget.
	DropBandwidth DropReason = "bandwidth"
	// DropBackpressure marks snapshots discarded because the spectator queue was full.
	DropBackpressure DropReason = "backpressure"
)

// SnapshotMetrics tracks payload sizes and drop counters for spectator deliveries.
type SnapshotMetrics struct {
	mu        sync.RWMutex
	bytes     map[string]int64
	delivered int64
	drops     map[DropReason]int64
}

// NewSnapshotMetrics constructs an empty metrics tracker.
func NewSnapshotMetrics() *SnapshotMetrics {
	return &SnapshotMetrics{
		bytes: make(map[string]int64),
		drops: make(map[DropReason]int64),
	}
}

// ObserveDelivery records the size of the latest payload sent to a spectator.
func (m *SnapshotMetrics) ObserveDelivery(spectatorID string, payloadBytes int) {
	if m == nil {
		return
	}
	size := int64(payloadBytes)
	if size < 0 {
		size = 0
	}
	m.mu.Lock()
	if spectatorID != "" {
		m.bytes[spectatorID] = size
	}
	m.delivered++
	m.mu.Unlock()
}

// ObserveDrop counts a snapshot that never reached a spectator.
func (m *SnapshotMetrics) ObserveDrop(reason DropReason) {
	if m == nil || reason == "" {
		return
	}
	m.mu.Lock()
	m.drops[reason]++
	m.mu.Unlock()
}

// ForgetSpectator removes the tracked gauge for a disconnected spectator.
func (m *SnapshotMetrics) ForgetSpectator(spectatorID string) {
	if m == nil || spectatorID == "" {
		return
	}
	m.mu.Lock()
	delete(m.bytes, spectatorID)
	m.mu.Unlock()
}

// Delivered returns the number of snapshots handed to spectators.
func (m *SnapshotMetrics) Delivered() int64 {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.delivered
}

// BytesPerSpectator returns a copy of the latest payload size per spectator.
func (m *SnapshotMetrics) BytesPerSpectator() map[string]int64 {
	if m == nil {
		return nil
	}
	//1.- Copy the gauge map to shield callers from concurrent mutation.
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.bytes) == 0 {
		return nil
	}
	out := make(map[string]int64, len(m.bytes))
	for id, size := range m.bytes {
		out[id] = size
	}
	return out
}

// DropCounts returns the cumulative number of dropped snapshots per reason.
func (m *SnapshotMetrics) DropCounts() map[DropReason]int64 {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.drops) == 0 {
		return nil
	}
	out := make(map[DropReason]int64, len(m.drops))
	for reason, count := range m.drops {
		out[reason] = count
	}
	return out
}
