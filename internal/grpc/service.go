package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	ggrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"robotarena/server/internal/events"
	"robotarena/server/internal/logging"
	"robotarena/server/internal/scoring"
)

const (
	// AcceptEncodingKey is the request metadata key naming the codec a spectator wants.
	AcceptEncodingKey = "arena-accept-encoding"
	// EncodingKey is the response header naming the codec applied to every frame.
	EncodingKey = "arena-encoding"
	// FormatKey is the response header naming the frame layout.
	FormatKey = "arena-format"
	// SubscriberKey is the request metadata key naming a telemetry subscriber. Reconnecting
	// under the same name resumes after the last acknowledged record.
	SubscriberKey = "arena-subscriber"

	frameStreamRateHz = 60
	// DefaultMaxPending bounds the frames buffered for one slow spectator.
	DefaultMaxPending = 64

	telemetryBuffer = 64
)

// Frame is one resolved turn encoded as a binary snapshot frame.
type Frame struct {
	Round   int
	Turn    int
	Payload []byte
}

// FrameSource fans encoded turns out to stream subscribers. The channel closes when the
// subscription is cancelled or the battle has nothing more to show.
type FrameSource interface {
	SubscribeFrames(ctx context.Context) (<-chan Frame, func(), error)
}

// ResultsSource reports the ranked standings of the battle.
type ResultsSource interface {
	Results() []scoring.Results
}

// TelemetrySource hands out acknowledged subscriptions to the battle telemetry.
type TelemetrySource interface {
	Subscribe(ctx context.Context, subscriberID string, buffer int) (*events.Subscription, error)
}

// Option customises the behaviour of the spectator service.
type Option func(*Service)

// tickerFactory constructs cancellable tick channels for throttled streaming.
type tickerFactory func(time.Duration) (<-chan time.Time, func())

// WithCompressor overrides the codec used when a spectator does not ask for one.
func WithCompressor(compressor Compressor) Option {
	return func(s *Service) {
		if compressor != nil {
			s.compressor = compressor
		}
	}
}

// WithTickerFactory overrides the throttling ticker factory (used in tests).
func WithTickerFactory(factory tickerFactory) Option {
	return func(s *Service) {
		if factory != nil {
			s.newTicker = factory
		}
	}
}

// WithMaxPending sets how many frames a spectator may fall behind before the oldest are
// dropped.
func WithMaxPending(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.maxPending = limit
		}
	}
}

// WithResults exposes the battle standings through the Results call.
func WithResults(results ResultsSource) Option {
	return func(s *Service) {
		s.results = results
	}
}

// WithTelemetry serves the battle telemetry through StreamTelemetry.
func WithTelemetry(telemetry TelemetrySource) Option {
	return func(s *Service) {
		s.telemetry = telemetry
	}
}

// WithLogger routes stream diagnostics through logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Service implements the arena.v1.Spectator gRPC service.
type Service struct {
	frames     FrameSource
	results    ResultsSource
	telemetry  TelemetrySource
	compressor Compressor
	newTicker  tickerFactory
	maxPending int
	logger     *logging.Logger
}

// NewService wires the spectator service to a frame source and optional settings.
func NewService(frames FrameSource, opts ...Option) *Service {
	service := &Service{
		frames:     frames,
		compressor: NewGZIPCompressor(),
		newTicker:  defaultTickerFactory,
		maxPending: DefaultMaxPending,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(service)
		}
	}
	if service.logger == nil {
		service.logger = logging.L()
	}
	return service
}

func defaultTickerFactory(interval time.Duration) (<-chan time.Time, func()) {
	ticker := time.NewTicker(interval)
	stop := func() {
		ticker.Stop()
	}
	return ticker.C, stop
}

// negotiate picks the codec named in the request metadata or the service default.
func (s *Service) negotiate(ctx context.Context) (Compressor, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	values := md.Get(AcceptEncodingKey)
	if len(values) == 0 || values[0] == "" {
		return s.compressor, nil
	}
	compressor, ok := CompressorFor(values[0])
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "unsupported encoding %q", values[0])
	}
	return compressor, nil
}

// StreamFrames relays binary turn frames to a spectator at a throttled cadence.
func (s *Service) StreamFrames(_ *emptypb.Empty, stream ggrpc.ServerStreamingServer[wrapperspb.BytesValue]) error {
	if s == nil || s.frames == nil {
		return status.Error(codes.FailedPrecondition, "streaming unavailable")
	}
	ctx := stream.Context()
	compressor, err := s.negotiate(ctx)
	if err != nil {
		return err
	}
	//1.- Announce the codec before the first frame so the client can decode every message.
	if err := stream.SendHeader(metadata.Pairs(EncodingKey, compressor.Name(), FormatKey, "binary")); err != nil {
		return err
	}
	frameCh, cancel, err := s.frames.SubscribeFrames(ctx)
	if err != nil {
		return status.Errorf(codes.Internal, "subscribe frames: %v", err)
	}
	defer cancel()

	tickCh, stop := s.newTicker(time.Second / frameStreamRateHz)
	defer stop()

	var (
		pending     []Frame
		frameClosed bool
		dropped     int
	)

	for {
		select {
		case <-ctx.Done():
			//2.- Surface context cancellation so clients can retry.
			if errors.Is(ctx.Err(), context.Canceled) {
				return status.Error(codes.Canceled, "stream cancelled")
			}
			return status.Error(codes.DeadlineExceeded, "stream deadline exceeded")
		case frame, ok := <-frameCh:
			if !ok {
				//3.- Note the closed channel so the loop terminates after draining.
				frameClosed = true
				frameCh = nil
				if len(pending) == 0 {
					return nil
				}
				continue
			}
			//4.- A spectator that falls too far behind loses its oldest turns.
			pending = append(pending, frame)
			if len(pending) > s.maxPending {
				pending = pending[len(pending)-s.maxPending:]
				dropped++
				if dropped == 1 {
					s.logger.Debug("spectator stream lagging", logging.Int("turn", frame.Turn), logging.Int("pending", s.maxPending))
				}
			}
		case <-tickCh:
			if len(pending) == 0 {
				if frameClosed {
					return nil
				}
				continue
			}
			//5.- Pop the oldest buffered frame to preserve turn order.
			frame := pending[0]
			pending = pending[1:]
			compressed, err := compressor.Compress(frame.Payload)
			if err != nil {
				return status.Errorf(codes.Internal, "compress frame: %v", err)
			}
			if err := stream.Send(&wrapperspb.BytesValue{Value: compressed}); err != nil {
				return err
			}
		}
	}
}

// StreamTelemetry sends battle telemetry as JSON records and takes acknowledgements of their
// sequence numbers in order. Records not acknowledged are sent again when the subscriber
// reconnects under the same name. After the battle ended record the stream waits for the
// client to finish acknowledging.
func (s *Service) StreamTelemetry(stream ggrpc.BidiStreamingServer[wrapperspb.UInt64Value, wrapperspb.StringValue]) error {
	if s == nil || s.telemetry == nil {
		return status.Error(codes.FailedPrecondition, "telemetry unavailable")
	}
	ctx := stream.Context()
	md, _ := metadata.FromIncomingContext(ctx)
	values := md.Get(SubscriberKey)
	if len(values) == 0 || values[0] == "" {
		return status.Error(codes.InvalidArgument, "subscriber name required")
	}
	subscriber := values[0]
	sub, err := s.telemetry.Subscribe(ctx, subscriber, telemetryBuffer)
	if err != nil {
		return status.Errorf(codes.Internal, "subscribe telemetry: %v", err)
	}
	defer sub.Close()
	logger := s.logger.With(logging.String("subscriber", subscriber))
	logger.Info("telemetry subscriber attached")

	//1.- Acknowledgements are read on their own goroutine; the first failure ends the stream.
	acks := make(chan error, 1)
	go func() {
		for {
			ack, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					err = nil
				}
				acks <- err
				return
			}
			if err := sub.Ack(ack.GetValue()); err != nil {
				acks <- status.Errorf(codes.Aborted, "ack %d: %v", ack.GetValue(), err)
				return
			}
		}
	}()

	records := sub.Events()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return status.Error(codes.Canceled, "stream cancelled")
			}
			return status.Error(codes.DeadlineExceeded, "stream deadline exceeded")
		case err := <-acks:
			if err != nil {
				logger.Warn("telemetry subscriber dropped", logging.Error(err))
			}
			return err
		case env, ok := <-records:
			if !ok {
				return status.Error(codes.Aborted, "subscriber reconnected elsewhere")
			}
			payload, err := json.Marshal(env.Record)
			if err != nil {
				return status.Errorf(codes.Internal, "encode record: %v", err)
			}
			if err := stream.Send(wrapperspb.String(string(payload))); err != nil {
				return err
			}
			//2.- Nothing follows the end of the battle.
			if env.Record.Kind == events.RecordBattleEnded {
				records = nil
			}
		}
	}
}

// Results returns the ranked standings encoded as JSON.
func (s *Service) Results(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error) {
	if s == nil || s.results == nil {
		return nil, status.Error(codes.FailedPrecondition, "results unavailable")
	}
	payload, err := json.Marshal(s.results.Results())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode results: %v", err)
	}
	return wrapperspb.String(string(payload)), nil
}

var _ SpectatorServer = (*Service)(nil)
