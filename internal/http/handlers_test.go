package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"robotarena/server/internal/events"
	"robotarena/server/internal/logging"
	"robotarena/server/internal/networking"
	"robotarena/server/internal/replay"
	"robotarena/server/internal/scoring"
	"robotarena/server/internal/simulation"
)

type stubBattle struct {
	status  BattleStatus
	results []scoring.Results
	err     error
}

func (s *stubBattle) Status() BattleStatus       { return s.status }
func (s *stubBattle) Results() []scoring.Results { return s.results }
func (s *stubBattle) StartupError() error        { return s.err }

type stubSpectators struct {
	connected int
	limit     int
}

func (s *stubSpectators) SpectatorCounts() (int, int) { return s.connected, s.limit }

type stubLimiter struct {
	remaining int
	keys      []string
}

func (s *stubLimiter) Allow(key string) bool {
	s.keys = append(s.keys, key)
	if s.remaining <= 0 {
		return false
	}
	s.remaining--
	return true
}

type stubFlusher struct {
	location string
	err      error
	calls    int
}

func (s *stubFlusher) FlushReplay(ctx context.Context) (string, error) {
	s.calls++
	return s.location, s.err
}

func runningBattle() *stubBattle {
	return &stubBattle{
		status: BattleStatus{BattleID: "alpha", Phase: "round_active", Round: 2, Rounds: 3, Turn: 41, Robots: 2},
		results: []scoring.Results{
			{Name: "tracker", Rank: 1, Score: 220, Firsts: 1},
			{Name: "spin", Rank: 2, Score: 80, Seconds: 1},
		},
	}
}

func TestLivenessHandlerReturnsJSON(t *testing.T) {
	fixed := time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger(), TimeSource: func() time.Time { return fixed }})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/livez", nil)

	handlers.NewRouter().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var payload struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Status != "alive" || payload.Timestamp != fixed.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestReadinessHandlerReportsStartupFailure(t *testing.T) {
	battle := runningBattle()
	battle.err = errors.New("roster incomplete")
	handlers := NewHandlerSet(Options{
		Logger:     logging.NewTestLogger(),
		Battle:     battle,
		Spectators: &stubSpectators{connected: 3, limit: 8},
	})

	rr := httptest.NewRecorder()
	handlers.ReadinessHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	var payload struct {
		Status     string `json:"status"`
		Message    string `json:"message"`
		Spectators int    `json:"spectators"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Status != "error" || payload.Message != "roster incomplete" || payload.Spectators != 3 {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestReadinessHandlerRequiresBattle(t *testing.T) {
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger()})
	rr := httptest.NewRecorder()
	handlers.ReadinessHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestBattleAndResultsHandlers(t *testing.T) {
	battle := runningBattle()
	router := NewHandlerSet(Options{Logger: logging.NewTestLogger(), Battle: battle}).NewRouter()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/battle", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var status BattleStatus
	if err := json.NewDecoder(rr.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status != battle.status {
		t.Fatalf("unexpected status %+v", status)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/results", nil))
	var results struct {
		Final   bool              `json:"final"`
		Results []scoring.Results `json:"results"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&results); err != nil {
		t.Fatalf("decode results: %v", err)
	}
	if results.Final || len(results.Results) != 2 || results.Results[0].Name != "tracker" || results.Results[1].Rank != 2 {
		t.Fatalf("unexpected results %+v", results)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/battle", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405 for a post, got %d", rr.Code)
	}
}

func TestEventsHandlerPagesBySequence(t *testing.T) {
	stream := events.NewStream(events.Config{Retain: 16})
	_, err := stream.PublishAll([]events.Record{
		{Kind: events.RecordRoundStarted, Round: 1, Value: 2},
		{Kind: events.RecordFire, Round: 1, Turn: 3, Robot: "tracker", Value: 3},
		{Kind: events.RecordBulletHit, Round: 1, Turn: 9, Robot: "tracker", Other: "spin", Value: 16},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	router := NewHandlerSet(Options{Logger: logging.NewTestLogger(), Telemetry: stream}).NewRouter()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/events?after=1", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var page struct {
		Events []struct {
			Sequence uint64        `json:"seq"`
			Record   events.Record `json:"record"`
		} `json:"events"`
		Next uint64 `json:"next"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if len(page.Events) != 2 || page.Next != 3 {
		t.Fatalf("unexpected page %+v", page)
	}
	if page.Events[0].Record.Kind != events.RecordFire || page.Events[1].Record.Other != "spin" {
		t.Fatalf("unexpected records %+v", page.Events)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/events?after=soon", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestMetricsHandlerIncludesArenaCounters(t *testing.T) {
	ticks := simulation.NewTickMonitor()
	ticks.Observe(2 * time.Millisecond)
	ticks.Observe(4 * time.Millisecond)

	snapshots := networking.NewSnapshotMetrics()
	snapshots.ObserveDelivery("viewer-1", 512)
	snapshots.ObserveDrop(networking.DropBandwidth)

	handlers := NewHandlerSet(Options{
		Logger:       logging.NewTestLogger(),
		Battle:       runningBattle(),
		Spectators:   &stubSpectators{connected: 1, limit: 4},
		Ticks:        ticks,
		Snapshots:    snapshots,
		ReplayStats:  func() replay.Stats { return replay.Stats{Frames: 120, Records: 14, Failures: 1} },
		StorageStats: func() replay.StorageStats { return replay.StorageStats{Bundles: 3, Bytes: 4096} },
	})
	rr := httptest.NewRecorder()
	handlers.MetricsHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rr.Body.String()
	for _, want := range []string{
		"arena_round 2",
		"arena_turn 41",
		"arena_spectators 1",
		"arena_turn_duration_seconds_count 2",
		"arena_turn_duration_max_seconds 0.004000",
		"arena_snapshots_delivered_total 1",
		"arena_snapshot_bytes_total{spectator=\"viewer-1\"} 512",
		"arena_snapshots_dropped_total{reason=\"bandwidth\"} 1",
		"arena_replay_frames_total 120",
		"arena_replay_failures_total 1",
		"arena_replay_bundles 3",
		"arena_replay_bytes 4096",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected metrics to contain %q, got:\n%s", want, body)
		}
	}
}

func TestReplayFlushHandlerRequiresAuthorization(t *testing.T) {
	flusher := &stubFlusher{location: "/tmp/replay"}
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger(), Replay: flusher, AdminToken: "secret"})

	rr := httptest.NewRecorder()
	handlers.ReplayFlushHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/replay/flush", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
	if flusher.calls != 0 {
		t.Fatalf("expected flusher not to be called")
	}
}

func TestReplayFlushHandlerDisabledWithoutToken(t *testing.T) {
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger(), Replay: &stubFlusher{}})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/replay/flush", nil)
	req.Header.Set("Authorization", "Bearer anything")
	handlers.ReplayFlushHandler().ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}

func TestReplayFlushHandlerRateLimits(t *testing.T) {
	flusher := &stubFlusher{location: "/tmp/replay"}
	limiter := &stubLimiter{remaining: 1}
	handlers := NewHandlerSet(Options{
		Logger:      logging.NewTestLogger(),
		Replay:      flusher,
		AdminToken:  "secret",
		RateLimiter: limiter,
	})

	req := httptest.NewRequest(http.MethodPost, "/replay/flush", nil)
	req.RemoteAddr = "192.0.2.7:4411"
	req.Header.Set("Authorization", "Bearer secret")

	rr := httptest.NewRecorder()
	handlers.ReplayFlushHandler().ServeHTTP(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", rr.Code)
	}
	var payload struct {
		Status   string `json:"status"`
		Location string `json:"location"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Location != "/tmp/replay" {
		t.Fatalf("unexpected location %q", payload.Location)
	}

	rr = httptest.NewRecorder()
	handlers.ReplayFlushHandler().ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", rr.Code)
	}
	if flusher.calls != 1 {
		t.Fatalf("expected flusher to be invoked once, got %d", flusher.calls)
	}
	if len(limiter.keys) != 2 || limiter.keys[0] != "192.0.2.7" {
		t.Fatalf("expected the limiter to key on the remote host, got %v", limiter.keys)
	}
}

func TestReplayFlushHandlerReportsFailure(t *testing.T) {
	flusher := &stubFlusher{err: errors.New("disk full")}
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger(), Replay: flusher, AdminToken: "secret"})
	req := httptest.NewRequest(http.MethodPost, "/replay/flush", nil)
	req.Header.Set("X-Admin-Token", "secret")
	rr := httptest.NewRecorder()
	handlers.ReplayFlushHandler().ServeHTTP(rr, req)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
}

func TestReplayFlushHandlerRejectsGet(t *testing.T) {
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger(), AdminToken: "secret"})
	rr := httptest.NewRecorder()
	handlers.ReplayFlushHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/replay/flush", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", rr.Code)
	}
}

func TestRouterMountsSpectatorHandler(t *testing.T) {
	called := false
	spectate := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	})
	router := NewHandlerSet(Options{Logger: logging.NewTestLogger(), Spectate: spectate}).NewRouter()
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if !called || rr.Code != http.StatusTeapot {
		t.Fatalf("expected the spectator handler to serve /ws, got %d", rr.Code)
	}
}

func TestRouterPropagatesTraceIDs(t *testing.T) {
	router := NewHandlerSet(Options{Logger: logging.NewTestLogger()}).NewRouter()

	//1.- A request without a trace header gets a freshly generated hex identifier.
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/livez", nil))
	generated := rr.Header().Get(logging.TraceIDHeader)
	if len(generated) != 32 || strings.Trim(generated, "0123456789abcdef") != "" {
		t.Fatalf("expected a 32 character hex trace id, got %q", generated)
	}

	//2.- An incoming trace header is echoed back unchanged.
	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	req.Header.Set(logging.TraceIDHeader, " upstream-7 ")
	router.ServeHTTP(rr, req)
	if got := rr.Header().Get(logging.TraceIDHeader); got != "upstream-7" {
		t.Fatalf("expected the upstream trace id, got %q", got)
	}

	//3.- The replay flush response carries the request trace so operators can find its log lines.
	flusher := &stubFlusher{location: "/tmp/replay"}
	router = NewHandlerSet(Options{Logger: logging.NewTestLogger(), Replay: flusher, AdminToken: "secret"}).NewRouter()
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/replay/flush", nil)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set(logging.TraceIDHeader, "flush-1")
	router.ServeHTTP(rr, req)
	var payload struct {
		TraceID string `json:"trace_id"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode flush response: %v", err)
	}
	if rr.Code != http.StatusAccepted || payload.TraceID != "flush-1" {
		t.Fatalf("expected the flush to report trace flush-1, got %d %+v", rr.Code, payload)
	}
}
