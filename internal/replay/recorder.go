package replay

import (
	"sync"
	"time"

	"robotarena/server/internal/arena"
	"robotarena/server/internal/events"
	"robotarena/server/internal/logging"
	"robotarena/server/internal/networking"
)

// Stats summarises recorder health for monitoring endpoints.
type Stats struct {
	Frames    int64
	Records   int64
	Bytes     int64
	Failures  int64
	Directory string
	LastFlush time.Time
	Closed    bool
}

// Recorder observes battle turns and streams them into a replay Writer.
type Recorder struct {
	mu        sync.Mutex
	writer    *Writer
	logger    *logging.Logger
	now       func() time.Time
	failures  int64
	lastFlush time.Time
	closed    bool
}

// NewRecorder wraps writer. A nil logger falls back to the global logger.
func NewRecorder(writer *Writer, logger *logging.Logger, clock func() time.Time) *Recorder {
	if logger == nil {
		logger = logging.L()
	}
	if clock == nil {
		clock = time.Now
	}
	return &Recorder{writer: writer, logger: logger.With(logging.String("component", "replay")), now: clock}
}

// ObserveTurn appends the frame of a resolved turn and its telemetry. Failures are logged
// and counted; recording never stops the battle.
func (r *Recorder) ObserveTurn(snapshot arena.Snapshot, records []events.Record) {
	if r == nil || r.writer == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if err := r.writer.AppendFrame(snapshot.Round, snapshot.Turn, networking.EncodeFrame(snapshot)); err != nil {
		r.failures++
		r.logger.Warn("replay frame not written", logging.Int("round", snapshot.Round), logging.Int("turn", snapshot.Turn), logging.Error(err))
	}
	for _, record := range records {
		if err := r.writer.AppendRecord(record); err != nil {
			r.failures++
			r.logger.Warn("replay record not written", logging.String("kind", string(record.Kind)), logging.Error(err))
		}
	}
}

// Flush pushes buffered data to disk and returns the bundle directory.
func (r *Recorder) Flush() (string, error) {
	if r == nil || r.writer == nil {
		return "", nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.writer.Flush(); err != nil {
		r.failures++
		return "", err
	}
	r.lastFlush = r.now().UTC()
	return r.writer.Directory(), nil
}

// Close finalises the bundle with header. Later turns are ignored.
func (r *Recorder) Close(header Header) error {
	if r == nil || r.writer == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.writer.SetHeader(header)
	if err := r.writer.Close(); err != nil {
		r.failures++
		return err
	}
	r.lastFlush = r.now().UTC()
	frames, records, _ := r.writer.Counts()
	r.logger.Info("replay bundle written", logging.String("directory", r.writer.Directory()),
		logging.Int64("frames", frames), logging.Int64("records", records))
	return nil
}

// Snapshot returns statistics describing the recorder state.
func (r *Recorder) Snapshot() Stats {
	if r == nil || r.writer == nil {
		return Stats{}
	}
	frames, records, bytes := r.writer.Counts()
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Frames:    frames,
		Records:   records,
		Bytes:     bytes,
		Failures:  r.failures,
		Directory: r.writer.Directory(),
		LastFlush: r.lastFlush,
		Closed:    r.closed,
	}
}
