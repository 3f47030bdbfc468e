package events

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Envelope carries a telemetry record together with its stream sequence number.
type Envelope struct {
	Sequence uint64
	Record   *Record
}

// Clone duplicates the envelope and its record so subscribers can mutate their copy safely.
func (e *Envelope) Clone() *Envelope {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Record = e.Record.Clone()
	return &clone
}

// Config controls the retention policy for the stream log and subscriber buffers.
type Config struct {
	Retain int
}

// Default retention keeps the last 512 events if no explicit value is provided.
const defaultRetention = 512

// Stream coordinates ordered event delivery with at-least-once semantics per subscriber.
type Stream struct {
	mu          sync.Mutex
	nextSeq     uint64
	retention   int
	logOrder    []uint64
	logPayloads map[uint64]*Envelope
	subscribers map[string]*subscriberState
}

// subscriberState persists acknowledgement state between transient connections.
type subscriberState struct {
	id      string
	pending []uint64
	lastAck uint64
	ch      chan *Envelope
	active  bool
}

// Subscription exposes the event channel and acknowledgement helpers for a subscriber.
type Subscription struct {
	id     string
	stream *Stream
	events <-chan *Envelope
	once   sync.Once
}

// ErrOutOfOrderAck signals that a subscriber attempted to acknowledge future sequences.
var ErrOutOfOrderAck = errors.New("ack sequence must match the next pending event")

// NewStream constructs a stream using the provided configuration.
func NewStream(cfg Config) *Stream {
	retention := cfg.Retain
	if retention <= 0 {
		retention = defaultRetention
	}
	return &Stream{
		retention:   retention,
		logPayloads: make(map[uint64]*Envelope),
		subscribers: make(map[string]*subscriberState),
	}
}

// Subscribe attaches the logical subscriber to the stream and queues every retained record
// it has not acknowledged yet. A second subscription under the same id takes over the first.
func (s *Stream) Subscribe(ctx context.Context, subscriberID string, buffer int) (*Subscription, error) {
	if s == nil {
		return nil, errors.New("nil stream")
	}
	if subscriberID == "" {
		return nil, errors.New("subscriber id must be provided")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if buffer <= 0 {
		buffer = 32
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.ensureSubscriberLocked(subscriberID)
	if state.ch != nil {
		close(state.ch)
	}
	replay := s.collectReplayLocked(state)
	deliveries := s.prepareDeliveriesLocked(state, replay)
	//1.- The channel holds the whole replay so reconnecting never blocks the publisher.
	ch := make(chan *Envelope, buffer+len(deliveries))
	for _, env := range deliveries {
		ch <- env
	}
	state.ch = ch
	state.active = true
	state.pending = replay
	return &Subscription{id: subscriberID, stream: s, events: ch}, nil
}

// Events exposes the ordered delivery channel for the subscriber.
func (s *Subscription) Events() <-chan *Envelope {
	if s == nil {
		return nil
	}
	return s.events
}

// Ack informs the stream that the subscriber processed the given sequence.
func (s *Subscription) Ack(sequence uint64) error {
	if s == nil || s.stream == nil {
		return errors.New("subscription closed")
	}
	return s.stream.ack(s.id, sequence)
}

// Close marks the subscription as inactive while preserving acknowledgement state.
func (s *Subscription) Close() {
	if s == nil || s.stream == nil {
		return
	}
	s.once.Do(func() {
		s.stream.deactivateSubscriber(s.id, s.events)
	})
}

func (s *Stream) ensureSubscriberLocked(subscriberID string) *subscriberState {
	state, ok := s.subscribers[subscriberID]
	if !ok {
		state = &subscriberState{id: subscriberID}
		s.subscribers[subscriberID] = state
	}
	return state
}

func (s *Stream) collectReplayLocked(state *subscriberState) []uint64 {
	// 1.- When a subscriber reconnects we must replay any sequence greater than lastAck.
	replay := state.pending[:0]
	for _, seq := range s.logOrder {
		if seq <= state.lastAck {
			continue
		}
		replay = append(replay, seq)
	}
	return append([]uint64(nil), replay...)
}

func (s *Stream) prepareDeliveriesLocked(state *subscriberState, sequences []uint64) []*Envelope {
	deliveries := make([]*Envelope, 0, len(sequences))
	for _, seq := range sequences {
		if payload, ok := s.logPayloads[seq]; ok {
			deliveries = append(deliveries, payload.Clone())
		}
	}
	return deliveries
}

// Publish assigns the next sequence number to the record and delivers it to subscribers.
func (s *Stream) Publish(record Record) (uint64, error) {
	if s == nil {
		return 0, errors.New("nil stream")
	}
	if record.Kind == "" {
		return 0, errors.New("record kind required")
	}
	clone := record.Clone()
	seq, err := s.publishEnvelope(&Envelope{Record: clone})
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// PublishAll publishes the records in order and returns the last sequence assigned.
func (s *Stream) PublishAll(records []Record) (uint64, error) {
	var last uint64
	for _, record := range records {
		seq, err := s.Publish(record)
		if err != nil {
			return last, fmt.Errorf("publish %s: %w", record.Kind, err)
		}
		last = seq
	}
	return last, nil
}

// Since returns clones of the retained records with a sequence greater than after.
func (s *Stream) Since(after uint64) []*Envelope {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Envelope, 0, len(s.logOrder))
	for _, seq := range s.logOrder {
		if seq <= after {
			continue
		}
		if payload, ok := s.logPayloads[seq]; ok {
			out = append(out, payload.Clone())
		}
	}
	return out
}

func (s *Stream) publishEnvelope(envelope *Envelope) (uint64, error) {
	if envelope == nil {
		return 0, errors.New("envelope required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSeq++
	seq := s.nextSeq
	envelope.Sequence = seq
	envelope.Record.Sequence = seq
	s.logPayloads[seq] = envelope
	s.logOrder = append(s.logOrder, seq)

	for _, state := range s.subscribers {
		state.pending = append(state.pending, seq)
		if !state.active || state.ch == nil {
			continue
		}
		//1.- A full buffer skips the record; the subscriber gets it again when it resubscribes.
		select {
		case state.ch <- envelope.Clone():
		default:
		}
	}
	s.enforceRetentionLocked()
	return seq, nil
}

func (s *Stream) enforceRetentionLocked() {
	// 1.- Determine the lowest acknowledgement across subscribers to retain necessary history.
	if len(s.logOrder) <= s.retention {
		return
	}
	minAck := s.nextSeq
	for _, state := range s.subscribers {
		if state.lastAck < minAck {
			minAck = state.lastAck
		}
	}
	//2.- The cutoff is the newest sequence that falls outside the retention window.
	cutoff := s.logOrder[len(s.logOrder)-s.retention-1]
	pruneBefore := minAck
	if cutoff < pruneBefore {
		pruneBefore = cutoff
	}
	if pruneBefore == 0 {
		return
	}
	idx := sort.Search(len(s.logOrder), func(i int) bool { return s.logOrder[i] > pruneBefore })
	for _, seq := range s.logOrder[:idx] {
		delete(s.logPayloads, seq)
	}
	s.logOrder = append([]uint64(nil), s.logOrder[idx:]...)
}

func (s *Stream) ack(subscriberID string, sequence uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.subscribers[subscriberID]
	if !ok {
		return fmt.Errorf("unknown subscriber %q", subscriberID)
	}
	if len(state.pending) == 0 {
		if sequence <= state.lastAck {
			return nil
		}
		return ErrOutOfOrderAck
	}
	expected := state.pending[0]
	if sequence != expected {
		return ErrOutOfOrderAck
	}
	state.pending = state.pending[1:]
	state.lastAck = sequence
	s.enforceRetentionLocked()
	return nil
}

func (s *Stream) deactivateSubscriber(subscriberID string, events <-chan *Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.subscribers[subscriberID]
	//1.- A subscription that was taken over leaves the newer channel alone.
	if !ok || state.ch == nil || state.ch != events {
		return
	}
	state.active = false
	close(state.ch)
	state.ch = nil
}
