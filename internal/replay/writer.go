package replay

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"robotarena/server/internal/events"
)

var battleIDCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

const (
	// ManifestFile is the name of the manifest inside a bundle.
	ManifestFile = "manifest.json"
	// EventsFile holds the snappy compressed JSONL telemetry log.
	EventsFile = "events.jsonl.sz"
	// FramesFile holds the zstd compressed length-prefixed frame log.
	FramesFile = "frames.bin.zst"

	// DefaultFlushFrames is how many frames are buffered before they reach the frame log.
	DefaultFlushFrames = 64

	frameHeaderSize = 4 + 4 + 4
)

// frameBlob stores a frame before it is persisted to disk.
type frameBlob struct {
	Round   int
	Turn    int
	Payload []byte
}

// Manifest describes the replay bundle layout so tooling can locate artefacts.
type Manifest struct {
	Version     int    `json:"version"`
	BattleID    string `json:"battle_id"`
	CreatedAt   string `json:"created_at"`
	FrameFormat string `json:"frame_format"`
	EventsPath  string `json:"events_path"`
	FramesPath  string `json:"frames_path"`
}

// Writer streams a battle to a bundle directory: telemetry records as compressed JSON
// lines and one binary snapshot frame per turn.
type Writer struct {
	mu          sync.Mutex
	dir         string
	eventFile   *os.File
	eventStream *snappy.Writer
	frameFile   *os.File
	frameStream *zstd.Encoder
	pending     []frameBlob
	flushFrames int
	header      Header
	frames      int64
	records     int64
	bytes       int64
	closed      bool
}

// NewWriter prepares the bundle directory under root and opens compressed sinks.
func NewWriter(root, battleID string, clock func() time.Time) (*Writer, Manifest, error) {
	if root == "" {
		return nil, Manifest{}, fmt.Errorf("replay root must be provided")
	}
	if clock == nil {
		clock = time.Now
	}

	cleaned := battleIDCleaner.ReplaceAllString(battleID, "")
	if cleaned == "" {
		cleaned = "battle"
	}
	created := clock().UTC()
	path := filepath.Join(root, fmt.Sprintf("%s-%s", cleaned, created.Format("20060102T150405Z")))
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, Manifest{}, err
	}

	eventFile, err := os.Create(filepath.Join(path, EventsFile))
	if err != nil {
		return nil, Manifest{}, err
	}
	eventStream := snappy.NewBufferedWriter(eventFile)

	frameFile, err := os.Create(filepath.Join(path, FramesFile))
	if err != nil {
		eventFile.Close()
		return nil, Manifest{}, err
	}
	frameStream, err := zstd.NewWriter(frameFile)
	if err != nil {
		eventStream.Close()
		eventFile.Close()
		frameFile.Close()
		return nil, Manifest{}, err
	}
	closeAll := func() {
		frameStream.Close()
		frameFile.Close()
		eventStream.Close()
		eventFile.Close()
	}

	manifest := Manifest{
		Version:     1,
		BattleID:    battleID,
		CreatedAt:   created.Format(time.RFC3339Nano),
		FrameFormat: "protowire",
		EventsPath:  EventsFile,
		FramesPath:  FramesFile,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		closeAll()
		return nil, Manifest{}, err
	}
	if err := os.WriteFile(filepath.Join(path, ManifestFile), data, 0o644); err != nil {
		closeAll()
		return nil, Manifest{}, err
	}

	writer := &Writer{
		dir:         path,
		eventFile:   eventFile,
		eventStream: eventStream,
		frameFile:   frameFile,
		frameStream: frameStream,
		flushFrames: DefaultFlushFrames,
		header:      Header{SchemaVersion: HeaderSchemaVersion, BattleID: battleID, FilePointer: ManifestFile},
	}
	return writer, manifest, nil
}

// Directory exposes the directory backing the replay bundle.
func (w *Writer) Directory() string {
	if w == nil {
		return ""
	}
	return w.dir
}

// SetHeader configures the header persisted when the writer closes. The schema version
// and manifest pointer are always filled in by the writer.
func (w *Writer) SetHeader(header Header) {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	header = header.Clone()
	header.SchemaVersion = HeaderSchemaVersion
	header.FilePointer = ManifestFile
	if header.BattleID == "" {
		header.BattleID = w.header.BattleID
	}
	w.header = header
}

// AppendRecord writes a single telemetry record as a JSON line to the event log.
func (w *Writer) AppendRecord(record events.Record) error {
	if w == nil {
		return fmt.Errorf("writer not initialised")
	}
	line, err := json.Marshal(record)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("writer closed")
	}
	if _, err := w.eventStream.Write(append(line, '\n')); err != nil {
		return err
	}
	w.records++
	w.bytes += int64(len(line) + 1)
	return nil
}

// AppendFrame buffers the binary frame of a turn and writes the buffer to the frame log
// once it is full.
func (w *Writer) AppendFrame(round, turn int, payload []byte) error {
	if w == nil {
		return fmt.Errorf("writer not initialised")
	}
	clone := append([]byte(nil), payload...)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("writer closed")
	}
	w.pending = append(w.pending, frameBlob{Round: round, Turn: turn, Payload: clone})
	w.frames++
	w.bytes += int64(frameHeaderSize + len(clone))
	if len(w.pending) >= w.flushFrames {
		return w.flushLocked()
	}
	return nil
}

// Flush forces buffered frames and events through the compressors.
func (w *Writer) Flush() error {
	if w == nil {
		return fmt.Errorf("writer not initialised")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	if err := w.flushLocked(); err != nil {
		return err
	}
	if err := w.frameStream.Flush(); err != nil {
		return err
	}
	return w.eventStream.Flush()
}

// Counts reports how many frames and records were appended and their raw size.
func (w *Writer) Counts() (frames, records, bytes int64) {
	if w == nil {
		return 0, 0, 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames, w.records, w.bytes
}

// Close synchronously flushes all buffers, writes the header and releases file handles.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	//1.- Attempt every flush/close and surface the first failure for callers to inspect.
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	keep(w.flushLocked())
	keep(w.eventStream.Close())
	keep(w.eventFile.Close())
	keep(w.frameStream.Close())
	keep(w.frameFile.Close())
	//2.- The header goes last so its presence marks a complete bundle.
	keep(WriteHeader(filepath.Join(w.dir, HeaderFile), w.header))
	return firstErr
}

// flushLocked writes buffered frames to the zstd stream; callers must hold the mutex.
func (w *Writer) flushLocked() error {
	if len(w.pending) == 0 {
		return nil
	}
	//1.- Write length-prefixed frames so replayers can step turn by turn.
	header := make([]byte, frameHeaderSize)
	for _, frame := range w.pending {
		binary.LittleEndian.PutUint32(header[0:4], uint32(frame.Round))
		binary.LittleEndian.PutUint32(header[4:8], uint32(frame.Turn))
		binary.LittleEndian.PutUint32(header[8:12], uint32(len(frame.Payload)))
		if _, err := w.frameStream.Write(header); err != nil {
			return err
		}
		if _, err := w.frameStream.Write(frame.Payload); err != nil {
			return err
		}
	}
	w.pending = w.pending[:0]
	return nil
}
