package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ttacon/chalk"

	"robotarena/server/internal/arena"
	"robotarena/server/internal/bots"
	"robotarena/server/internal/config"
	"robotarena/server/internal/events"
	grpcstream "robotarena/server/internal/grpc"
	"robotarena/server/internal/logging"
	"robotarena/server/internal/match"
	"robotarena/server/internal/networking"
	"robotarena/server/internal/replay"
	"robotarena/server/internal/scoring"
)

// syncBuffer guards a buffer shared with the progress bar refresher.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testSession(t *testing.T) *match.Session {
	t.Helper()
	session, err := match.NewSession(match.WithSessionBattleID("duel"), match.WithSessionEnvLookup(nil))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return session
}

func duelSetup() config.Battle {
	setup := config.DefaultBattle()
	setup.Rounds = 1
	setup.Seed = 11
	setup.Robots = []config.RobotSpec{
		{Name: "Alpha", Bot: "spin", Color: "#ff0000"},
		{Name: "Beta", Bot: "static", Params: map[string]float64{"power": 1}},
	}
	return setup
}

func TestAssembleRosterKeepsJoinOrder(t *testing.T) {
	roster, err := assembleRoster(duelSetup(), testSession(t), bots.Default(), logging.NewTestLogger())
	if err != nil {
		t.Fatalf("assemble roster: %v", err)
	}
	if len(roster) != 2 || roster[0].robot.Name() != "Alpha" || roster[1].robot.Name() != "Beta" {
		t.Fatalf("unexpected roster order %+v", roster)
	}
	if roster[0].entry.Color != "#ff0000" || roster[1].entry.Bot != "static" {
		t.Fatalf("unexpected roster entries %+v %+v", roster[0].entry, roster[1].entry)
	}
}

func TestAssembleRosterRejectsBadRosters(t *testing.T) {
	setup := duelSetup()
	setup.Robots[1].Bot = "teleporter"
	if _, err := assembleRoster(setup, testSession(t), bots.Default(), logging.NewTestLogger()); !errors.Is(err, bots.ErrUnknownBot) {
		t.Fatalf("expected unknown bot error, got %v", err)
	}

	setup = duelSetup()
	setup.Robots = setup.Robots[:1]
	if _, err := assembleRoster(setup, testSession(t), bots.Default(), logging.NewTestLogger()); !errors.Is(err, match.ErrNotReady) {
		t.Fatalf("expected not ready error, got %v", err)
	}

	setup = duelSetup()
	setup.Robots[1].Params = map[string]float64{"warp": 9}
	if _, err := assembleRoster(setup, testSession(t), bots.Default(), logging.NewTestLogger()); !errors.Is(err, bots.ErrUnknownParam) {
		t.Fatalf("expected unknown param error, got %v", err)
	}
}

func newTestServer(t *testing.T, recorder *replay.Recorder) *battleServer {
	t.Helper()
	setup := duelSetup()
	roster, err := assembleRoster(setup, testSession(t), bots.Default(), logging.NewTestLogger())
	if err != nil {
		t.Fatalf("assemble roster: %v", err)
	}
	robots := []*arena.Robot{roster[0].robot, roster[1].robot}
	world := arena.NewWorld(setup.Width, setup.Height, arena.WithLogger(logging.NewTestLogger()))
	opts := []match.BattleOption{match.WithSeed(setup.Seed), match.WithRounds(setup.Rounds), match.WithLogger(logging.NewTestLogger())}
	if recorder != nil {
		opts = append(opts, match.WithObserver(recorder))
	}
	battle, err := match.NewBattle(world, robots, opts...)
	if err != nil {
		t.Fatalf("new battle: %v", err)
	}
	return newBattleServer("duel", setup, battle, roster, recorder, logging.NewTestLogger())
}

func TestBattleServerReportsStatus(t *testing.T) {
	server := newTestServer(t, nil)
	status := server.Status()
	if status.Phase != match.PhaseWaitingRoundStart.String() || status.Robots != 0 || status.Rounds != 1 {
		t.Fatalf("unexpected initial status %+v", status)
	}
	if !server.turn() {
		t.Fatalf("expected the battle to continue after one turn")
	}
	status = server.Status()
	if status.BattleID != "duel" || status.Round != 1 || status.Turn != 1 || status.Robots != 2 || status.Ended {
		t.Fatalf("unexpected status after one turn %+v", status)
	}
	if err := server.StartupError(); err != nil {
		t.Fatalf("unexpected startup error %v", err)
	}
	server.setStartupError(errors.New("port in use"))
	if server.StartupError() == nil {
		t.Fatalf("expected the startup error to stick")
	}
	if _, err := server.FlushReplay(context.Background()); !errors.Is(err, errReplayDisabled) {
		t.Fatalf("expected replay disabled, got %v", err)
	}
}

func TestBattleServerRecordsReplay(t *testing.T) {
	root := t.TempDir()
	writer, _, err := replay.NewWriter(root, "duel", nil)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	recorder := replay.NewRecorder(writer, logging.NewTestLogger(), nil)
	server := newTestServer(t, recorder)

	for turns := 0; server.turn(); turns++ {
		if turns > 20000 {
			t.Fatalf("battle did not end")
		}
	}
	dir, err := server.FlushReplay(context.Background())
	if err != nil || dir != writer.Directory() {
		t.Fatalf("flush replay: %q %v", dir, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := server.FlushReplay(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled flush, got %v", err)
	}

	if err := server.finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if err := server.finish(); err != nil {
		t.Fatalf("second finish: %v", err)
	}
	loader, err := replay.Load(dir)
	if err != nil {
		t.Fatalf("load replay: %v", err)
	}
	header := loader.Header()
	if header.BattleID != "duel" || header.Seed != 11 || len(header.Roster) != 2 || len(header.Results) != 2 {
		t.Fatalf("unexpected replay header %+v", header)
	}
	if frames, _ := loader.Counts(); frames == 0 {
		t.Fatalf("expected recorded frames")
	}
}

func TestFrameBridgeFansOutTurns(t *testing.T) {
	bridge := newFrameBridge(logging.NewTestLogger())
	first, cancelFirst, err := bridge.SubscribeFrames(context.Background())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	ctx, cancelCtx := context.WithCancel(context.Background())
	second, _, err := bridge.SubscribeFrames(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if bridge.Subscribers() != 2 {
		t.Fatalf("expected two subscribers, got %d", bridge.Subscribers())
	}

	bridge.ObserveTurn(arena.Snapshot{Round: 1, Turn: 4, Width: 800, Height: 600}, nil)
	for _, ch := range []<-chan grpcstream.Frame{first, second} {
		frame := <-ch
		decoded, err := networking.DecodeFrame(frame.Payload)
		if err != nil || frame.Turn != 4 || decoded.Turn != 4 {
			t.Fatalf("unexpected frame %+v: %v", frame, err)
		}
	}

	cancelFirst()
	cancelFirst()
	if _, ok := <-first; ok {
		t.Fatalf("expected the cancelled subscription to close")
	}
	cancelCtx()
	select {
	case _, ok := <-second:
		if ok {
			t.Fatalf("expected no more frames after the context ended")
		}
	case <-time.After(time.Second):
		t.Fatalf("context cancellation did not close the subscription")
	}

	bridge.Close()
	late, _, err := bridge.SubscribeFrames(context.Background())
	if err != nil {
		t.Fatalf("subscribe after close: %v", err)
	}
	if _, ok := <-late; ok {
		t.Fatalf("expected a closed channel after the battle ended")
	}
}

func TestFrameBridgeDropsForSlowSubscribers(t *testing.T) {
	bridge := newFrameBridge(logging.NewTestLogger())
	if _, _, err := bridge.SubscribeFrames(context.Background()); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	for turn := 1; turn <= frameSubscriberBuffer+3; turn++ {
		bridge.ObserveTurn(arena.Snapshot{Round: 1, Turn: turn}, nil)
	}
	if bridge.Dropped() != 3 {
		t.Fatalf("expected three dropped frames, got %d", bridge.Dropped())
	}
	bridge.Close()
	if bridge.Subscribers() != 0 {
		t.Fatalf("expected close to drop every subscriber")
	}
}

func TestPrintResultsHighlightsWinner(t *testing.T) {
	var out bytes.Buffer
	printResults(&out, "b1", []scoring.Results{
		{Name: "Alpha", Rank: 1, Score: 360, Firsts: 2},
		{Name: "Beta", Rank: 2, Seconds: 2},
	})
	text := out.String()
	if !strings.Contains(text, "Results for battle b1") || !strings.Contains(text, "Alpha") || !strings.Contains(text, "Beta") {
		t.Fatalf("unexpected results table %q", text)
	}
	if !strings.Contains(text, fmt.Sprint(chalk.Yellow)+"1    Alpha") {
		t.Fatalf("expected the winner row to be highlighted, got %q", text)
	}
}

func TestRoundProgressCountsRoundEnds(t *testing.T) {
	out := &syncBuffer{}
	progress := newRoundProgress(out, 2)
	progress.ObserveTurn(arena.Snapshot{}, []events.Record{{Kind: events.RecordRoundEnded}})
	progress.ObserveTurn(arena.Snapshot{}, []events.Record{{Kind: events.RecordDeath}, {Kind: events.RecordRoundEnded}})
	progress.Finish()
	if !strings.Contains(out.String(), "2 / 2") {
		t.Fatalf("expected both rounds on the bar, got %q", out.String())
	}
}
