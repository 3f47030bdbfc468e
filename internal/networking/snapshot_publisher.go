package networking

import (
	"encoding/json"
	"fmt"

	"robotarena/server/internal/arena"
)

// Format selects the payload encoding a spectator receives.
type Format string

const (
	// FormatJSON delivers snapshots as JSON documents.
	FormatJSON Format = "json"
	// FormatBinary delivers snapshots as protobuf wire frames.
	FormatBinary Format = "binary"
)

// ParseFormat maps a query or metadata value to a Format, defaulting to JSON.
func ParseFormat(value string) Format {
	if Format(value) == FormatBinary {
		return FormatBinary
	}
	return FormatJSON
}

// EncodedSnapshot carries one turn encoded once for every spectator format.
type EncodedSnapshot struct {
	Round  int
	Turn   int
	JSON   []byte
	Binary []byte
}

// Payload returns the encoding for format.
func (e EncodedSnapshot) Payload(format Format) []byte {
	if format == FormatBinary {
		return e.Binary
	}
	return e.JSON
}

// SnapshotPublisher encodes turn snapshots and admits them per spectator under the
// bandwidth budget.
type SnapshotPublisher struct {
	regulator *BandwidthRegulator
	metrics   *SnapshotMetrics
}

// NewSnapshotPublisher constructs a publisher. A nil regulator admits every payload.
func NewSnapshotPublisher(regulator *BandwidthRegulator, metrics *SnapshotMetrics) *SnapshotPublisher {
	if metrics == nil {
		metrics = NewSnapshotMetrics()
	}
	return &SnapshotPublisher{regulator: regulator, metrics: metrics}
}

// Encode prepares both spectator encodings of a snapshot.
func (p *SnapshotPublisher) Encode(snapshot arena.Snapshot) (EncodedSnapshot, error) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return EncodedSnapshot{}, fmt.Errorf("encode snapshot turn %d: %w", snapshot.Turn, err)
	}
	return EncodedSnapshot{
		Round:  snapshot.Round,
		Turn:   snapshot.Turn,
		JSON:   payload,
		Binary: EncodeFrame(snapshot),
	}, nil
}

// Admit charges payload to the spectator budget and records the outcome.
func (p *SnapshotPublisher) Admit(spectatorID string, payload []byte) bool {
	if p == nil {
		return true
	}
	if !p.regulator.Allow(spectatorID, len(payload)) {
		p.metrics.ObserveDrop(DropBandwidth)
		return false
	}
	p.metrics.ObserveDelivery(spectatorID, len(payload))
	return true
}

// Backpressure records a payload discarded because the spectator could not keep up.
func (p *SnapshotPublisher) Backpressure() {
	if p == nil {
		return
	}
	p.metrics.ObserveDrop(DropBackpressure)
}

// Forget releases the budget and gauges of a departed spectator.
func (p *SnapshotPublisher) Forget(spectatorID string) {
	if p == nil {
		return
	}
	p.regulator.Forget(spectatorID)
	p.metrics.ForgetSpectator(spectatorID)
}

// Metrics exposes the delivery counters.
func (p *SnapshotPublisher) Metrics() *SnapshotMetrics {
	if p == nil {
		return nil
	}
	return p.metrics
}

// Usage exposes the bandwidth state per spectator.
func (p *SnapshotPublisher) Usage() map[string]BandwidthUsage {
	if p == nil {
		return nil
	}
	return p.regulator.SnapshotUsage()
}
