package replayplayer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"robotarena/server/internal/arena"
	"robotarena/server/internal/events"
	"robotarena/server/internal/replay"
	"robotarena/server/internal/scoring"
)

// Turn is one replayed turn: the picture and the telemetry it produced.
type Turn struct {
	Snapshot arena.Snapshot
	Records  []events.Record
}

// Observer receives replayed turns, matching the live battle observer contract.
type Observer interface {
	ObserveTurn(snapshot arena.Snapshot, records []events.Record)
}

// Summary describes a replay bundle for the command line.
type Summary struct {
	BattleID string               `json:"battle_id"`
	Seed     int64                `json:"seed"`
	Rounds   int                  `json:"rounds"`
	Turns    int                  `json:"turns"`
	Frames   int                  `json:"frames"`
	Records  int                  `json:"records"`
	Kinds    map[string]int       `json:"kinds"`
	Results  []scoring.Results    `json:"results"`
	Roster   []replay.RosterEntry `json:"roster"`
}

// Open loads the bundle at path, accepting either the bundle directory or its manifest.
func Open(path string) (*replay.Loader, error) {
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	//1.- Resolve a manifest path to its directory so relative artefacts still resolve.
	if !info.IsDir() {
		path = filepath.Dir(path)
	}
	return replay.Load(path)
}

// Turns groups the timeline of loader into turns. Telemetry recorded without a frame
// gets a turn whose snapshot only names the round and turn.
func Turns(loader *replay.Loader) ([]Turn, error) {
	var turns []Turn
	err := loader.Replay(func(entry replay.TimelineEntry) error {
		switch entry.Kind {
		case replay.EntryFrame:
			turns = append(turns, Turn{Snapshot: *entry.Frame})
		case replay.EntryRecord:
			last := len(turns) - 1
			if last < 0 || turns[last].Snapshot.Round != entry.Round || turns[last].Snapshot.Turn != entry.Turn {
				turns = append(turns, Turn{Snapshot: arena.Snapshot{Round: entry.Round, Turn: entry.Turn}})
				last++
			}
			turns[last].Records = append(turns[last].Records, *entry.Record)
		default:
			return fmt.Errorf("unknown timeline entry %q", entry.Kind)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return turns, nil
}

// Play feeds turns to observer, waiting delay between them. It stops early when ctx ends
// and returns how many turns were shown.
func Play(ctx context.Context, turns []Turn, observer Observer, delay time.Duration) (int, error) {
	if observer == nil {
		return 0, fmt.Errorf("observer is required")
	}
	var ticker *time.Ticker
	if delay > 0 {
		ticker = time.NewTicker(delay)
		defer ticker.Stop()
	}
	for i, turn := range turns {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		observer.ObserveTurn(turn.Snapshot, turn.Records)
		if ticker == nil || i == len(turns)-1 {
			continue
		}
		select {
		case <-ctx.Done():
			return i + 1, ctx.Err()
		case <-ticker.C:
		}
	}
	return len(turns), nil
}

// Summarise counts what the bundle holds.
func Summarise(loader *replay.Loader, turns []Turn) Summary {
	header := loader.Header()
	frames, records := loader.Counts()
	summary := Summary{
		BattleID: header.BattleID,
		Seed:     header.Seed,
		Rounds:   header.Rounds,
		Turns:    len(turns),
		Frames:   frames,
		Records:  records,
		Kinds:    make(map[string]int),
		Results:  header.Results,
		Roster:   header.Roster,
	}
	for _, turn := range turns {
		for _, record := range turn.Records {
			summary.Kinds[string(record.Kind)]++
		}
	}
	return summary
}

// KindNames lists the telemetry kinds of summary alphabetically.
func (s Summary) KindNames() []string {
	names := make([]string, 0, len(s.Kinds))
	for kind := range s.Kinds {
		names = append(names, kind)
	}
	sort.Strings(names)
	return names
}
