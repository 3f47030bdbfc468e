package replayplayer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"robotarena/server/internal/arena"
	"robotarena/server/internal/events"
	"robotarena/server/internal/logging"
	"robotarena/server/internal/replay"
)

type collector struct {
	turns   []int
	records int
}

func (c *collector) ObserveTurn(snapshot arena.Snapshot, records []events.Record) {
	c.turns = append(c.turns, snapshot.Turn)
	c.records += len(records)
}

func writeBundle(t *testing.T) string {
	t.Helper()
	writer, _, err := replay.NewWriter(t.TempDir(), "Integration", nil)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	recorder := replay.NewRecorder(writer, logging.NewTestLogger(), nil)
	recorder.ObserveTurn(arena.Snapshot{Round: 1, Turn: 0}, []events.Record{{Kind: events.RecordRoundStarted, Round: 1, Turn: 0, Value: 2}})
	for turn := 1; turn <= 3; turn++ {
		snapshot := arena.Snapshot{Round: 1, Turn: turn, Width: 800, Height: 600,
			Robots: []arena.RobotView{{Name: "alpha", X: 100 * float64(turn), Y: 300, Energy: 100}}}
		var records []events.Record
		switch turn {
		case 2:
			records = []events.Record{{Kind: events.RecordFire, Round: 1, Turn: 2, Robot: "alpha", Value: 3}}
		case 3:
			records = []events.Record{{Kind: events.RecordRoundEnded, Round: 1, Turn: 3, Robot: "alpha"}}
		}
		recorder.ObserveTurn(snapshot, records)
	}
	header := replay.Header{BattleID: "Integration", Seed: 4, Rounds: 1, Width: 800, Height: 600,
		Roster: []replay.RosterEntry{{Name: "alpha", Bot: "spin"}}}
	if err := recorder.Close(header); err != nil {
		t.Fatalf("close: %v", err)
	}
	return writer.Directory()
}

func TestTurnsGroupFramesWithTheirTelemetry(t *testing.T) {
	dir := writeBundle(t)
	loader, err := Open(filepath.Join(dir, replay.ManifestFile))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	turns, err := Turns(loader)
	if err != nil {
		t.Fatalf("turns: %v", err)
	}
	//1.- The zero turn frame and its round start, then one turn per recorded frame.
	if len(turns) != 4 {
		t.Fatalf("expected four turns, got %d", len(turns))
	}
	if turns[2].Snapshot.Turn != 2 || len(turns[2].Records) != 1 || turns[2].Records[0].Kind != events.RecordFire {
		t.Fatalf("unexpected second turn %+v", turns[2])
	}
	if turns[3].Snapshot.Robots[0].X != 300 || turns[3].Records[0].Kind != events.RecordRoundEnded {
		t.Fatalf("unexpected last turn %+v", turns[3])
	}

	summary := Summarise(loader, turns)
	if summary.BattleID != "Integration" || summary.Seed != 4 || summary.Frames != 4 || summary.Records != 3 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if names := summary.KindNames(); len(names) != 3 || names[0] != string(events.RecordFire) {
		t.Fatalf("unexpected kinds %v", names)
	}
}

func TestPlayFeedsEveryTurn(t *testing.T) {
	loader, err := Open(writeBundle(t))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	turns, err := Turns(loader)
	if err != nil {
		t.Fatalf("turns: %v", err)
	}
	observer := &collector{}
	shown, err := Play(context.Background(), turns, observer, time.Millisecond)
	if err != nil || shown != len(turns) {
		t.Fatalf("play: %d %v", shown, err)
	}
	if len(observer.turns) != 4 || observer.turns[3] != 3 || observer.records != 3 {
		t.Fatalf("unexpected observation %+v", observer)
	}
}

func TestPlayStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	shown, err := Play(ctx, []Turn{{}, {}}, &collector{}, 0)
	if !errors.Is(err, context.Canceled) || shown != 0 {
		t.Fatalf("expected a cancelled replay, got %d %v", shown, err)
	}
	if _, err := Play(context.Background(), nil, nil, 0); err == nil {
		t.Fatalf("expected a missing observer to fail")
	}
}

func TestOpenRejectsMissingBundle(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatalf("expected an empty path to fail")
	}
	if _, err := Open(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatalf("expected a missing bundle to fail")
	}
}
