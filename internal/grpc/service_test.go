package grpc

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	ggrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"robotarena/server/internal/arena"
	"robotarena/server/internal/events"
	"robotarena/server/internal/logging"
	"robotarena/server/internal/networking"
	"robotarena/server/internal/scoring"
)

type frameStreamStub struct {
	ctx    context.Context
	header metadata.MD
	frames []*wrapperspb.BytesValue
}

func (s *frameStreamStub) Send(frame *wrapperspb.BytesValue) error {
	s.frames = append(s.frames, frame)
	return nil
}

func (s *frameStreamStub) SendHeader(md metadata.MD) error {
	s.header = md
	return nil
}

func (s *frameStreamStub) SetHeader(metadata.MD) error { return nil }
func (s *frameStreamStub) SetTrailer(metadata.MD)      {}
func (s *frameStreamStub) Context() context.Context    { return s.ctx }
func (s *frameStreamStub) SendMsg(interface{}) error   { return nil }
func (s *frameStreamStub) RecvMsg(interface{}) error   { return nil }

var _ ggrpc.ServerStreamingServer[wrapperspb.BytesValue] = (*frameStreamStub)(nil)

type manualFrameSource struct {
	ch  <-chan Frame
	err error
}

func (m *manualFrameSource) SubscribeFrames(context.Context) (<-chan Frame, func(), error) {
	if m.err != nil {
		return nil, func() {}, m.err
	}
	return m.ch, func() {}, nil
}

type resultsStub []scoring.Results

func (r resultsStub) Results() []scoring.Results { return r }

func frameFor(turn int) Frame {
	snapshot := arena.Snapshot{Round: 1, Turn: turn, Width: 800, Height: 600}
	return Frame{Round: 1, Turn: turn, Payload: networking.EncodeFrame(snapshot)}
}

func manualTicker(tickCh chan time.Time) Option {
	return WithTickerFactory(func(time.Duration) (<-chan time.Time, func()) {
		return tickCh, func() {}
	})
}

// tickUntil feeds tickCh until stop closes.
func tickUntil(tickCh chan time.Time, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case tickCh <- time.Now():
			time.Sleep(time.Millisecond)
		}
	}
}

func TestStreamFramesKeepsTurnOrder(t *testing.T) {
	frameCh := make(chan Frame, 3)
	turns := []int{1, 2, 3}
	tickCh := make(chan time.Time)
	service := NewService(&manualFrameSource{ch: frameCh}, manualTicker(tickCh), WithLogger(logging.NewTestLogger()))

	stream := &frameStreamStub{ctx: context.Background()}
	done := make(chan error, 1)
	go func() {
		done <- service.StreamFrames(&emptypb.Empty{}, stream)
	}()

	for _, turn := range turns {
		frameCh <- frameFor(turn)
	}
	close(frameCh)
	stop := make(chan struct{})
	defer close(stop)
	go tickUntil(tickCh, stop)

	if err := <-done; err != nil {
		t.Fatalf("stream frames: %v", err)
	}
	if got := stream.header.Get(EncodingKey); len(got) != 1 || got[0] != "gzip" {
		t.Fatalf("expected the gzip encoding header, got %v", stream.header)
	}
	if len(stream.frames) != len(turns) {
		t.Fatalf("expected %d frames, got %d", len(turns), len(stream.frames))
	}
	compressor := NewGZIPCompressor()
	for i, frame := range stream.frames {
		payload, err := compressor.Decompress(frame.GetValue())
		if err != nil {
			t.Fatalf("frame %d decompress: %v", i, err)
		}
		snapshot, err := networking.DecodeFrame(payload)
		if err != nil {
			t.Fatalf("frame %d decode: %v", i, err)
		}
		if snapshot.Turn != turns[i] {
			t.Fatalf("frame %d turn mismatch: got %d want %d", i, snapshot.Turn, turns[i])
		}
	}
}

func TestStreamFramesDropsOldestWhenLagging(t *testing.T) {
	frameCh := make(chan Frame, 5)
	for turn := 1; turn <= 5; turn++ {
		frameCh <- frameFor(turn)
	}
	close(frameCh)
	tickCh := make(chan time.Time)
	service := NewService(&manualFrameSource{ch: frameCh}, manualTicker(tickCh), WithMaxPending(2),
		WithCompressor(NewSnappyCompressor()), WithLogger(logging.NewTestLogger()))

	stream := &frameStreamStub{ctx: context.Background()}
	done := make(chan error, 1)
	go func() {
		done <- service.StreamFrames(&emptypb.Empty{}, stream)
	}()
	//1.- Ticks only start once every frame is buffered, so only the newest two survive.
	time.Sleep(10 * time.Millisecond)
	stop := make(chan struct{})
	defer close(stop)
	go tickUntil(tickCh, stop)

	if err := <-done; err != nil {
		t.Fatalf("stream frames: %v", err)
	}
	if len(stream.frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(stream.frames))
	}
	payload, err := NewSnappyCompressor().Decompress(stream.frames[0].GetValue())
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	snapshot, err := networking.DecodeFrame(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snapshot.Turn != 4 {
		t.Fatalf("expected the oldest kept turn to be 4, got %d", snapshot.Turn)
	}
}

func TestStreamFramesSubscribeError(t *testing.T) {
	service := NewService(&manualFrameSource{err: errors.New("subscribe failed")})
	stream := &frameStreamStub{ctx: context.Background()}
	err := service.StreamFrames(&emptypb.Empty{}, stream)
	if status.Code(err) != codes.Internal {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestStreamFramesRejectsUnknownEncoding(t *testing.T) {
	service := NewService(&manualFrameSource{ch: make(chan Frame)})
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(AcceptEncodingKey, "brotli"))
	err := service.StreamFrames(&emptypb.Empty{}, &frameStreamStub{ctx: ctx})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestStreamFramesWithoutSource(t *testing.T) {
	err := NewService(nil).StreamFrames(&emptypb.Empty{}, &frameStreamStub{ctx: context.Background()})
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected failed precondition, got %v", err)
	}
}

func TestSpectatorOverBufconn(t *testing.T) {
	listener := bufconn.Listen(1 << 20)
	frameCh := make(chan Frame, 2)
	frameCh <- frameFor(7)
	frameCh <- frameFor(8)
	close(frameCh)

	standings := resultsStub{{Name: "tracker", Rank: 1, Score: 360, Firsts: 2}, {Name: "duck", Rank: 2, Seconds: 2}}
	server := ggrpc.NewServer()
	RegisterSpectatorServer(server, NewService(&manualFrameSource{ch: frameCh}, WithResults(standings), WithLogger(logging.NewTestLogger())))
	go server.Serve(listener)
	defer server.Stop()

	conn, err := ggrpc.NewClient("passthrough:///bufnet",
		ggrpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return listener.DialContext(ctx) }),
		ggrpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client := NewClient(conn)

	receiver, err := client.StreamFrames(ctx, "zstd")
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	if receiver.Encoding() != "zstd" {
		t.Fatalf("expected the requested codec, got %q", receiver.Encoding())
	}
	var turns []int
	for {
		snapshot, err := receiver.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		turns = append(turns, snapshot.Turn)
	}
	if len(turns) != 2 || turns[0] != 7 || turns[1] != 8 {
		t.Fatalf("unexpected turns %v", turns)
	}

	results, err := client.Results(ctx)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if len(results) != 2 || results[0].Name != "tracker" || results[0].Score != 360 || results[1].Seconds != 2 {
		t.Fatalf("unexpected results %+v", results)
	}
}

func TestResultsUnavailable(t *testing.T) {
	if _, err := NewService(nil).Results(context.Background(), &emptypb.Empty{}); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected failed precondition, got %v", err)
	}
}

type telemetryStreamStub struct {
	ggrpc.ServerStream
	ctx context.Context
}

func (s *telemetryStreamStub) Context() context.Context               { return s.ctx }
func (s *telemetryStreamStub) Send(*wrapperspb.StringValue) error     { return nil }
func (s *telemetryStreamStub) Recv() (*wrapperspb.UInt64Value, error) { return nil, io.EOF }

var _ ggrpc.BidiStreamingServer[wrapperspb.UInt64Value, wrapperspb.StringValue] = (*telemetryStreamStub)(nil)

func dialBufconn(t *testing.T, service *Service) *Client {
	t.Helper()
	listener := bufconn.Listen(1 << 20)
	server := ggrpc.NewServer()
	RegisterSpectatorServer(server, service)
	go server.Serve(listener)
	t.Cleanup(server.Stop)

	conn, err := ggrpc.NewClient("passthrough:///bufnet",
		ggrpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return listener.DialContext(ctx) }),
		ggrpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewClient(conn)
}

func drainTelemetry(t *testing.T, receiver *TelemetryReceiver) {
	t.Helper()
	for {
		_, err := receiver.Recv()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			t.Fatalf("expected a clean end of stream, got %v", err)
		}
	}
}

func TestStreamTelemetryResumesAfterLastAck(t *testing.T) {
	telemetry := events.NewStream(events.Config{})
	if _, err := telemetry.PublishAll([]events.Record{
		{Kind: events.RecordFire, Round: 1, Turn: 3, Robot: "tracker", Value: 3},
		{Kind: events.RecordBulletHit, Round: 1, Turn: 5, Robot: "tracker", Other: "duck", Value: 16},
	}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	client := dialBufconn(t, NewService(nil, WithTelemetry(telemetry), WithLogger(logging.NewTestLogger())))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	//1.- Receive both records but acknowledge only the fire.
	receiver, err := client.StreamTelemetry(ctx, "ops")
	if err != nil {
		t.Fatalf("open telemetry: %v", err)
	}
	fire, err := receiver.Recv()
	if err != nil || fire.Kind != events.RecordFire || fire.Sequence != 1 {
		t.Fatalf("unexpected first record %+v %v", fire, err)
	}
	if hit, err := receiver.Recv(); err != nil || hit.Kind != events.RecordBulletHit {
		t.Fatalf("unexpected second record %+v %v", hit, err)
	}
	if err := receiver.Ack(fire.Sequence); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if err := receiver.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	drainTelemetry(t, receiver)

	//2.- Reconnecting replays the hit, then the battle end closes the feed.
	receiver, err = client.StreamTelemetry(ctx, "ops")
	if err != nil {
		t.Fatalf("reopen telemetry: %v", err)
	}
	hit, err := receiver.Recv()
	if err != nil || hit.Kind != events.RecordBulletHit || hit.Sequence != 2 || hit.Other != "duck" {
		t.Fatalf("expected the unacknowledged hit again, got %+v %v", hit, err)
	}
	if _, err := telemetry.Publish(events.Record{Kind: events.RecordBattleEnded, Round: 1}); err != nil {
		t.Fatalf("publish battle end: %v", err)
	}
	end, err := receiver.Recv()
	if err != nil || end.Kind != events.RecordBattleEnded || end.Sequence != 3 {
		t.Fatalf("unexpected final record %+v %v", end, err)
	}
	for _, seq := range []uint64{hit.Sequence, end.Sequence} {
		if err := receiver.Ack(seq); err != nil {
			t.Fatalf("ack %d: %v", seq, err)
		}
	}
	if err := receiver.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	drainTelemetry(t, receiver)
}

func TestStreamTelemetryRejectsOutOfOrderAck(t *testing.T) {
	telemetry := events.NewStream(events.Config{})
	if _, err := telemetry.PublishAll([]events.Record{{Kind: events.RecordRam, Robot: "a", Other: "b"}, {Kind: events.RecordWallHit, Robot: "a"}}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	client := dialBufconn(t, NewService(nil, WithTelemetry(telemetry), WithLogger(logging.NewTestLogger())))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	receiver, err := client.StreamTelemetry(ctx, "skipper")
	if err != nil {
		t.Fatalf("open telemetry: %v", err)
	}
	if _, err := receiver.Recv(); err != nil {
		t.Fatalf("recv: %v", err)
	}
	second, err := receiver.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if err := receiver.Ack(second.Sequence); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if _, err := receiver.Recv(); status.Code(err) != codes.Aborted {
		t.Fatalf("expected an aborted stream, got %v", err)
	}
}

func TestStreamTelemetryPreconditions(t *testing.T) {
	stub := &telemetryStreamStub{ctx: context.Background()}
	if err := NewService(nil).StreamTelemetry(stub); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected failed precondition, got %v", err)
	}
	service := NewService(nil, WithTelemetry(events.NewStream(events.Config{})), WithLogger(logging.NewTestLogger()))
	if err := service.StreamTelemetry(stub); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected a missing subscriber to be refused, got %v", err)
	}
	if _, err := NewClient(nil).StreamTelemetry(context.Background(), ""); err == nil {
		t.Fatalf("expected an empty subscriber id to fail")
	}
}
