package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gdamore/tcell/v2"
	"github.com/ttacon/chalk"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"robotarena/server/internal/arena"
	"robotarena/server/internal/events"
	grpcstream "robotarena/server/internal/grpc"
	"robotarena/server/internal/render"
)

const sharedSecretMetadataKey = "x-arena-shared-secret"

func main() {
	addr := flag.String("addr", "localhost:43128", "gRPC address of the arena server")
	encoding := flag.String("encoding", "zstd", "frame encoding to request (identity, gzip, zstd, snappy)")
	secret := flag.String("secret", "", "shared secret when the server requires one")
	terminal := flag.Bool("terminal", false, "draw the battle in the terminal instead of printing turns")
	subscriber := flag.String("telemetry", "", "follow the telemetry records as this subscriber instead of the frames")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if *secret != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, sharedSecretMetadataKey, *secret)
	}

	var err error
	if *subscriber != "" {
		err = follow(ctx, *addr, *subscriber)
	} else {
		err = watch(ctx, cancel, *addr, *encoding, *terminal)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%serror: %v%s\n", chalk.Red, err, chalk.Reset)
		os.Exit(1)
	}
}

func dial(addr string) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn, nil
}

// follow prints telemetry records and acknowledges each one, so a restarted watcher with the
// same subscriber name picks up where this one stopped.
func follow(ctx context.Context, addr, subscriber string) error {
	conn, err := dial(addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	telemetry, err := grpcstream.NewClient(conn).StreamTelemetry(ctx, subscriber)
	if err != nil {
		return fmt.Errorf("open telemetry: %w", err)
	}
	for {
		record, err := telemetry.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive record: %w", err)
		}
		fmt.Printf("%6d round %d turn %d %s %s %s %.2f\n", record.Sequence, record.Round, record.Turn, record.Kind, record.Robot, record.Other, record.Value)
		if err := telemetry.Ack(record.Sequence); err != nil {
			return fmt.Errorf("ack %d: %w", record.Sequence, err)
		}
		if record.Kind == events.RecordBattleEnded {
			return telemetry.Close()
		}
	}
}

func watch(ctx context.Context, cancel context.CancelFunc, addr, encoding string, terminal bool) error {
	conn, err := dial(addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	client := grpcstream.NewClient(conn)

	frames, err := client.StreamFrames(ctx, encoding)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}

	observe := printTurn
	if terminal {
		screen, err := tcell.NewScreen()
		if err != nil {
			return fmt.Errorf("open terminal: %w", err)
		}
		if err := screen.Init(); err != nil {
			return fmt.Errorf("init terminal: %w", err)
		}
		defer screen.Fini()
		view := render.NewView(screen)
		go view.Run(ctx, cancel)
		observe = func(snapshot arena.Snapshot) { view.ObserveTurn(snapshot, nil) }
	}

	//1.- Follow the battle until the server ends the stream or the viewer quits.
	for {
		snapshot, err := frames.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive frame: %w", err)
		}
		observe(snapshot)
	}

	results, err := client.Results(ctx)
	if err != nil {
		return fmt.Errorf("fetch results: %w", err)
	}
	for _, result := range results {
		fmt.Printf("%s%d%s %-20s %7d\n", chalk.Yellow, result.Rank, chalk.Reset, result.Name, result.Score)
	}
	return nil
}

func printTurn(snapshot arena.Snapshot) {
	alive := 0
	for _, robot := range snapshot.Robots {
		if robot.State != arena.StateDead.String() {
			alive++
		}
	}
	fmt.Printf("round %d turn %d: %d robots alive, %d bullets\n", snapshot.Round, snapshot.Turn, alive, len(snapshot.Bullets))
}
