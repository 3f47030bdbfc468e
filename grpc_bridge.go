package main

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"robotarena/server/internal/arena"
	"robotarena/server/internal/events"
	grpcstream "robotarena/server/internal/grpc"
	"robotarena/server/internal/logging"
	"robotarena/server/internal/networking"
)

const frameSubscriberBuffer = 16

// frameBridge fans every resolved turn out to the gRPC spectator streams as binary frames.
type frameBridge struct {
	logger *logging.Logger
	nextID uint64

	mu          sync.Mutex
	subscribers map[uint64]chan grpcstream.Frame
	closed      bool
	dropped     int64
}

func newFrameBridge(logger *logging.Logger) *frameBridge {
	if logger == nil {
		logger = logging.L()
	}
	return &frameBridge{
		logger:      logger.With(logging.String("component", "grpc_frames")),
		subscribers: make(map[uint64]chan grpcstream.Frame),
	}
}

// SubscribeFrames allows gRPC services to observe turns via fan-out channels.
func (b *frameBridge) SubscribeFrames(ctx context.Context) (<-chan grpcstream.Frame, func(), error) {
	if b == nil {
		return nil, func() {}, errors.New("frame bridge is nil")
	}
	//1.- Allocate a buffered channel so slow consumers drop gracefully.
	ch := make(chan grpcstream.Frame, frameSubscriberBuffer)
	id := atomic.AddUint64(&b.nextID, 1)

	//2.- A finished battle hands out closed channels so streams end at once.
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}, nil
	}
	b.subscribers[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		//3.- Ensure unsubscribe and close only happens once.
		once.Do(func() {
			b.mu.Lock()
			if sub, ok := b.subscribers[id]; ok {
				delete(b.subscribers, id)
				close(sub)
			}
			b.mu.Unlock()
		})
	}

	if ctx != nil {
		//4.- Propagate context cancellation to the subscription lifecycle.
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}

	return ch, cancel, nil
}

// ObserveTurn encodes the turn once and offers it to every subscriber.
func (b *frameBridge) ObserveTurn(snapshot arena.Snapshot, _ []events.Record) {
	if b == nil {
		return
	}
	frame := grpcstream.Frame{Round: snapshot.Round, Turn: snapshot.Turn, Payload: networking.EncodeFrame(snapshot)}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- frame:
		default:
			b.dropped++
		}
	}
}

// Subscribers reports how many gRPC streams are attached.
func (b *frameBridge) Subscribers() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Dropped reports how many frames were skipped for full subscriber buffers.
func (b *frameBridge) Dropped() int64 {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Close ends every subscription once the battle has nothing more to show.
func (b *frameBridge) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
	if b.dropped > 0 {
		b.logger.Info("frame bridge closed", logging.Int64("dropped_frames", b.dropped))
	}
}

var _ grpcstream.FrameSource = (*frameBridge)(nil)
