package replay

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"robotarena/server/internal/arena"
	"robotarena/server/internal/events"
	"robotarena/server/internal/networking"
)

// EntryKind distinguishes frames from telemetry in a replay timeline.
type EntryKind string

const (
	EntryFrame  EntryKind = "frame"
	EntryRecord EntryKind = "record"
)

// TimelineEntry is a single replay datum ready for deterministic iteration. Exactly one of
// Frame and Record is set, matching Kind.
type TimelineEntry struct {
	Round  int
	Turn   int
	Kind   EntryKind
	Frame  *arena.Snapshot
	Record *events.Record
}

// Loader rehydrates a replay bundle.
type Loader struct {
	manifest Manifest
	header   Header
	entries  []TimelineEntry
	frames   int
	records  int
}

// Load reads the manifest, header, telemetry and frames of the bundle in dir.
func Load(dir string) (*Loader, error) {
	if dir == "" {
		return nil, fmt.Errorf("replay path must be provided")
	}
	manifest, err := readManifest(dir)
	if err != nil {
		return nil, err
	}
	header, err := ReadHeader(filepath.Join(dir, HeaderFile))
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	loader := &Loader{manifest: manifest, header: header}
	//1.- Frames first: a frame precedes the telemetry of its turn in the timeline.
	if err := loader.loadFrames(filepath.Join(dir, manifest.FramesPath)); err != nil {
		return nil, err
	}
	if err := loader.loadRecords(filepath.Join(dir, manifest.EventsPath)); err != nil {
		return nil, err
	}
	sort.SliceStable(loader.entries, func(i, j int) bool {
		a, b := loader.entries[i], loader.entries[j]
		if a.Round != b.Round {
			return a.Round < b.Round
		}
		if a.Turn != b.Turn {
			return a.Turn < b.Turn
		}
		return a.Kind == EntryFrame && b.Kind != EntryFrame
	})
	return loader, nil
}

func readManifest(dir string) (Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return Manifest{}, err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	return manifest, nil
}

func (l *Loader) loadFrames(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	decoder, err := zstd.NewReader(file)
	if err != nil {
		return err
	}
	defer decoder.Close()

	reader := bufio.NewReader(decoder)
	header := make([]byte, frameHeaderSize)
	for {
		if _, err := io.ReadFull(reader, header); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read frame header: %w", err)
		}
		round := int(binary.LittleEndian.Uint32(header[0:4]))
		turn := int(binary.LittleEndian.Uint32(header[4:8]))
		payload := make([]byte, binary.LittleEndian.Uint32(header[8:12]))
		if _, err := io.ReadFull(reader, payload); err != nil {
			return fmt.Errorf("read frame %d/%d: %w", round, turn, err)
		}
		snapshot, err := networking.DecodeFrame(payload)
		if err != nil {
			return fmt.Errorf("decode frame %d/%d: %w", round, turn, err)
		}
		l.entries = append(l.entries, TimelineEntry{Round: round, Turn: turn, Kind: EntryFrame, Frame: &snapshot})
		l.frames++
	}
}

func (l *Loader) loadRecords(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(snappy.NewReader(file))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var record events.Record
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			return fmt.Errorf("decode record: %w", err)
		}
		l.entries = append(l.entries, TimelineEntry{Round: record.Round, Turn: record.Turn, Kind: EntryRecord, Record: &record})
		l.records++
	}
	return scanner.Err()
}

// Manifest returns the bundle manifest.
func (l *Loader) Manifest() Manifest {
	if l == nil {
		return Manifest{}
	}
	return l.manifest
}

// Header returns the bundle header.
func (l *Loader) Header() Header {
	if l == nil {
		return Header{}
	}
	return l.header.Clone()
}

// Counts reports how many frames and records the bundle holds.
func (l *Loader) Counts() (frames, records int) {
	if l == nil {
		return 0, 0
	}
	return l.frames, l.records
}

// Replay iterates over the loaded entries in turn order.
func (l *Loader) Replay(apply func(TimelineEntry) error) error {
	if l == nil {
		return fmt.Errorf("loader not initialised")
	}
	if apply == nil {
		return fmt.Errorf("replay callback must be provided")
	}
	for _, entry := range l.entries {
		if err := apply(entry); err != nil {
			return err
		}
	}
	return nil
}

// Entries exposes a copy of the timeline for external assertions.
func (l *Loader) Entries() []TimelineEntry {
	if l == nil {
		return nil
	}
	out := make([]TimelineEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
