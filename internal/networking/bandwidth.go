package networking

import (
	"math"
	"sync"
	"time"
)

const (
	// DefaultBandwidthLimitBytesPerSecond caps per-spectator throughput at 2 Mbps (decimal),
	// enough for a full arena at 30 turns per second.
	DefaultBandwidthLimitBytesPerSecond = 2000000.0 / 8.0
)

// BandwidthUsage captures the throttling state for a single spectator.
type BandwidthUsage struct {
	SpectatorID          string
	AvailableBytes       float64
	BytesPerSecond       float64
	ObservedSeconds      float64
	DeniedDeliveries     int64
	LastUpdatedTimestamp time.Time
}

type bandwidthBucket struct {
	tokens float64
	last   time.Time
	window time.Time
	sent   int64
	denied int64
}

// BandwidthRegulator enforces a token-bucket budget per spectator. Slow spectators miss
// turns instead of stalling the battle.
type BandwidthRegulator struct {
	mu       sync.Mutex
	buckets  map[string]*bandwidthBucket
	capacity float64
	refill   float64
	now      func() time.Time
}

// NewBandwidthRegulator constructs a regulator refilling targetBytesPerSecond and holding
// at most burstBytes. A non-positive burst allows one second worth of traffic.
func NewBandwidthRegulator(targetBytesPerSecond, burstBytes float64, clock func() time.Time) *BandwidthRegulator {
	if targetBytesPerSecond <= 0 {
		targetBytesPerSecond = DefaultBandwidthLimitBytesPerSecond
	}
	if burstBytes <= 0 {
		burstBytes = targetBytesPerSecond
	}
	if clock == nil {
		clock = time.Now
	}
	return &BandwidthRegulator{
		buckets:  make(map[string]*bandwidthBucket),
		capacity: burstBytes,
		refill:   targetBytesPerSecond,
		now:      clock,
	}
}

func (r *BandwidthRegulator) replenish(bucket *bandwidthBucket, now time.Time) {
	if bucket == nil {
		return
	}
	//1.- Skip negative intervals to protect against clock skew.
	if now.Before(bucket.last) {
		return
	}
	elapsed := now.Sub(bucket.last).Seconds()
	if elapsed <= 0 {
		bucket.last = now
		return
	}
	//2.- Accumulate fresh tokens using the configured refill rate.
	bucket.tokens += elapsed * r.refill
	if bucket.tokens > r.capacity {
		bucket.tokens = r.capacity
	}
	bucket.last = now
}

// Allow charges the payload size against the spectator's budget.
func (r *BandwidthRegulator) Allow(spectatorID string, payloadBytes int) bool {
	if r == nil || spectatorID == "" || payloadBytes <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket := r.buckets[spectatorID]
	now := r.now()
	if bucket == nil {
		//1.- New spectators start with a full bucket so the first frames arrive at once.
		bucket = &bandwidthBucket{tokens: r.capacity, last: now, window: now}
		r.buckets[spectatorID] = bucket
	}
	r.replenish(bucket, now)

	request := float64(payloadBytes)
	if request > bucket.tokens {
		bucket.denied++
		return false
	}

	//2.- Deduct the approved payload and track throughput statistics.
	bucket.tokens -= request
	bucket.sent += int64(payloadBytes)
	return true
}

// Forget removes the token bucket of a disconnected spectator.
func (r *BandwidthRegulator) Forget(spectatorID string) {
	if r == nil || spectatorID == "" {
		return
	}
	r.mu.Lock()
	delete(r.buckets, spectatorID)
	r.mu.Unlock()
}

// SnapshotUsage reports the most recent throttling statistics per spectator.
func (r *BandwidthRegulator) SnapshotUsage() map[string]BandwidthUsage {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.buckets) == 0 {
		return nil
	}

	//1.- Refill every bucket with the same instant so the view is consistent.
	now := r.now()
	snapshot := make(map[string]BandwidthUsage, len(r.buckets))
	for spectatorID, bucket := range r.buckets {
		if bucket == nil {
			continue
		}
		r.replenish(bucket, now)

		observed := math.Max(now.Sub(bucket.window).Seconds(), 0)
		rate := 0.0
		if observed > 0 {
			rate = float64(bucket.sent) / observed
		}

		snapshot[spectatorID] = BandwidthUsage{
			SpectatorID:          spectatorID,
			AvailableBytes:       math.Max(bucket.tokens, 0),
			BytesPerSecond:       rate,
			ObservedSeconds:      observed,
			DeniedDeliveries:     bucket.denied,
			LastUpdatedTimestamp: bucket.last,
		}
	}
	if len(snapshot) == 0 {
		return nil
	}
	return snapshot
}
