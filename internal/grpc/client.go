package grpc

import (
	"context"
	"encoding/json"
	"fmt"

	ggrpc "google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"robotarena/server/internal/arena"
	"robotarena/server/internal/events"
	"robotarena/server/internal/networking"
	"robotarena/server/internal/scoring"
)

// Client consumes the arena.v1.Spectator service.
type Client struct {
	conn ggrpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(conn ggrpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// FrameReceiver yields decoded turn snapshots from a spectator stream.
type FrameReceiver struct {
	stream     ggrpc.ServerStreamingClient[wrapperspb.BytesValue]
	compressor Compressor
}

// StreamFrames opens a spectator stream asking the server for encoding.
func (c *Client) StreamFrames(ctx context.Context, encoding string) (*FrameReceiver, error) {
	if encoding != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, AcceptEncodingKey, encoding)
	}
	stream, err := c.conn.NewStream(ctx, &spectatorServiceDesc.Streams[0], streamFramesMethod)
	if err != nil {
		return nil, err
	}
	typed := &ggrpc.GenericClientStream[emptypb.Empty, wrapperspb.BytesValue]{ClientStream: stream}
	if err := typed.ClientStream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := typed.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	//1.- The header names the codec used for every frame that follows.
	header, err := stream.Header()
	if err != nil {
		return nil, err
	}
	name := ""
	if values := header.Get(EncodingKey); len(values) > 0 {
		name = values[0]
	}
	compressor, ok := CompressorFor(name)
	if !ok {
		return nil, fmt.Errorf("spectator stream: unsupported encoding %q", name)
	}
	return &FrameReceiver{stream: typed, compressor: compressor}, nil
}

// Encoding reports the codec the server applied.
func (r *FrameReceiver) Encoding() string {
	return r.compressor.Name()
}

// Recv blocks for the next turn. It returns io.EOF once the battle stream ends.
func (r *FrameReceiver) Recv() (arena.Snapshot, error) {
	msg, err := r.stream.Recv()
	if err != nil {
		return arena.Snapshot{}, err
	}
	payload, err := r.compressor.Decompress(msg.GetValue())
	if err != nil {
		return arena.Snapshot{}, err
	}
	return networking.DecodeFrame(payload)
}

// Results fetches the ranked standings.
func (c *Client) Results(ctx context.Context) ([]scoring.Results, error) {
	out := new(wrapperspb.StringValue)
	if err := c.conn.Invoke(ctx, resultsMethod, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	var results []scoring.Results
	if err := json.Unmarshal([]byte(out.GetValue()), &results); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	return results, nil
}

// TelemetryReceiver yields battle telemetry and acknowledges it back to the server.
type TelemetryReceiver struct {
	stream ggrpc.BidiStreamingClient[wrapperspb.UInt64Value, wrapperspb.StringValue]
}

// StreamTelemetry opens the telemetry stream as subscriberID. Records that a previous
// stream under the same name did not acknowledge are delivered first.
func (c *Client) StreamTelemetry(ctx context.Context, subscriberID string) (*TelemetryReceiver, error) {
	if subscriberID == "" {
		return nil, fmt.Errorf("subscriber id is required")
	}
	ctx = metadata.AppendToOutgoingContext(ctx, SubscriberKey, subscriberID)
	stream, err := c.conn.NewStream(ctx, &spectatorServiceDesc.Streams[1], streamTelemetryMethod)
	if err != nil {
		return nil, err
	}
	return &TelemetryReceiver{stream: &ggrpc.GenericClientStream[wrapperspb.UInt64Value, wrapperspb.StringValue]{ClientStream: stream}}, nil
}

// Recv blocks for the next record. It returns io.EOF once the server ends the stream.
func (r *TelemetryReceiver) Recv() (events.Record, error) {
	msg, err := r.stream.Recv()
	if err != nil {
		return events.Record{}, err
	}
	var record events.Record
	if err := json.Unmarshal([]byte(msg.GetValue()), &record); err != nil {
		return events.Record{}, fmt.Errorf("decode record: %w", err)
	}
	return record, nil
}

// Ack confirms the record with sequence. Acknowledgements must follow delivery order.
func (r *TelemetryReceiver) Ack(sequence uint64) error {
	return r.stream.Send(wrapperspb.UInt64(sequence))
}

// Close stops acknowledging. The server ends the stream once it has applied every ack.
func (r *TelemetryReceiver) Close() error {
	return r.stream.CloseSend()
}
