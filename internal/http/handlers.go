package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"robotarena/server/internal/events"
	"robotarena/server/internal/logging"
	"robotarena/server/internal/networking"
	"robotarena/server/internal/replay"
	"robotarena/server/internal/scoring"
	"robotarena/server/internal/simulation"
)

// DefaultEventPage bounds how many telemetry records one /events request returns.
const DefaultEventPage = 500

// BattleStatus is the public progress of the running battle.
type BattleStatus struct {
	BattleID string `json:"battle_id"`
	Phase    string `json:"phase"`
	Round    int    `json:"round"`
	Rounds   int    `json:"rounds"`
	Turn     int    `json:"turn"`
	Robots   int    `json:"robots_alive"`
	Ended    bool   `json:"ended"`
}

// BattleProvider exposes the running battle to the HTTP handlers.
type BattleProvider interface {
	Status() BattleStatus
	Results() []scoring.Results
	StartupError() error
}

// SpectatorCounter reports the websocket spectator population.
type SpectatorCounter interface {
	SpectatorCounts() (connected, limit int)
}

// ReplayFlusher pushes the replay bundle to disk and returns its location.
type ReplayFlusher interface {
	FlushReplay(ctx context.Context) (string, error)
}

// ReplayFlusherFunc adapts a function into a ReplayFlusher.
type ReplayFlusherFunc func(ctx context.Context) (string, error)

// FlushReplay implements ReplayFlusher.
func (f ReplayFlusherFunc) FlushReplay(ctx context.Context) (string, error) { return f(ctx) }

// RateLimiter gates how frequently a caller may invoke sensitive operations.
type RateLimiter interface {
	Allow(key string) bool
}

// Options configures the HandlerSet.
type Options struct {
	Logger       *logging.Logger
	Battle       BattleProvider
	Spectators   SpectatorCounter
	Telemetry    *events.Stream
	Ticks        *simulation.TickMonitor
	Snapshots    *networking.SnapshotMetrics
	Bandwidth    *networking.BandwidthRegulator
	Replay       ReplayFlusher
	ReplayStats  func() replay.Stats
	StorageStats func() replay.StorageStats
	Spectate     http.Handler
	AdminToken   string
	RateLimiter  RateLimiter
	TimeSource   func() time.Time
}

// HandlerSet bundles the arena operational and spectator handlers.
type HandlerSet struct {
	logger       *logging.Logger
	battle       BattleProvider
	spectators   SpectatorCounter
	telemetry    *events.Stream
	ticks        *simulation.TickMonitor
	snapshots    *networking.SnapshotMetrics
	bandwidth    *networking.BandwidthRegulator
	replay       ReplayFlusher
	replayStats  func() replay.Stats
	storageStats func() replay.StorageStats
	spectate     http.Handler
	adminToken   string
	rateLimiter  RateLimiter
	now          func() time.Time
	started      time.Time
}

// NewHandlerSet constructs a HandlerSet using the provided options.
func NewHandlerSet(opts Options) *HandlerSet {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	now := opts.TimeSource
	if now == nil {
		now = time.Now
	}
	return &HandlerSet{
		logger:       logger,
		battle:       opts.Battle,
		spectators:   opts.Spectators,
		telemetry:    opts.Telemetry,
		ticks:        opts.Ticks,
		snapshots:    opts.Snapshots,
		bandwidth:    opts.Bandwidth,
		replay:       opts.Replay,
		replayStats:  opts.ReplayStats,
		storageStats: opts.StorageStats,
		spectate:     opts.Spectate,
		adminToken:   strings.TrimSpace(opts.AdminToken),
		rateLimiter:  opts.RateLimiter,
		now:          now,
		started:      now(),
	}
}

// NewRouter returns a router with every handler registered behind request tracing.
func (h *HandlerSet) NewRouter() *mux.Router {
	router := mux.NewRouter()
	router.Use(logging.HTTPTraceMiddleware(h.logger))
	h.Register(router)
	return router
}

// Register attaches all handlers to the provided router.
func (h *HandlerSet) Register(router *mux.Router) {
	if router == nil {
		return
	}
	router.HandleFunc("/livez", h.LivenessHandler()).Methods(http.MethodGet)
	router.HandleFunc("/readyz", h.ReadinessHandler()).Methods(http.MethodGet)
	router.HandleFunc("/battle", h.BattleHandler()).Methods(http.MethodGet)
	router.HandleFunc("/results", h.ResultsHandler()).Methods(http.MethodGet)
	router.HandleFunc("/events", h.EventsHandler()).Methods(http.MethodGet)
	router.HandleFunc("/metrics", h.MetricsHandler()).Methods(http.MethodGet)
	router.HandleFunc("/replay/flush", h.ReplayFlushHandler())
	if h.spectate != nil {
		router.Handle("/ws", h.spectate)
	}
}

// LivenessHandler reports that the HTTP server is reachable.
func (h *HandlerSet) LivenessHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Status:    "alive",
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// ReadinessHandler reports whether the battle started and how many spectators watch it.
func (h *HandlerSet) ReadinessHandler() http.HandlerFunc {
	type response struct {
		Status        string  `json:"status"`
		Message       string  `json:"message,omitempty"`
		UptimeSeconds float64 `json:"uptime_seconds"`
		Phase         string  `json:"phase,omitempty"`
		Spectators    int     `json:"spectators"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		resp := response{Status: "ok", UptimeSeconds: h.now().Sub(h.started).Seconds()}
		if h.spectators != nil {
			resp.Spectators, _ = h.spectators.SpectatorCounts()
		}
		if h.battle == nil {
			status = http.StatusServiceUnavailable
			resp.Status = "error"
			resp.Message = "battle not configured"
		} else {
			resp.Phase = h.battle.Status().Phase
			if err := h.battle.StartupError(); err != nil {
				status = http.StatusServiceUnavailable
				resp.Status = "error"
				resp.Message = err.Error()
			}
		}
		writeJSON(w, status, resp)
	}
}

// BattleHandler reports the progress of the battle.
func (h *HandlerSet) BattleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.battle == nil {
			http.Error(w, "battle not configured", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, h.battle.Status())
	}
}

// ResultsHandler returns the ranked standings, final once the battle ended.
func (h *HandlerSet) ResultsHandler() http.HandlerFunc {
	type response struct {
		Final   bool              `json:"final"`
		Results []scoring.Results `json:"results"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if h.battle == nil {
			http.Error(w, "battle not configured", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, response{Final: h.battle.Status().Ended, Results: h.battle.Results()})
	}
}

// EventsHandler pages through retained telemetry after the sequence given by ?after=.
func (h *HandlerSet) EventsHandler() http.HandlerFunc {
	type entry struct {
		Sequence uint64         `json:"seq"`
		Record   *events.Record `json:"record"`
	}
	type response struct {
		Events []entry `json:"events"`
		Next   uint64  `json:"next"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if h.telemetry == nil {
			http.Error(w, "telemetry not configured", http.StatusServiceUnavailable)
			return
		}
		var after uint64
		if raw := strings.TrimSpace(r.URL.Query().Get("after")); raw != "" {
			value, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				http.Error(w, "after must be a sequence number", http.StatusBadRequest)
				return
			}
			after = value
		}
		envelopes := h.telemetry.Since(after)
		if len(envelopes) > DefaultEventPage {
			envelopes = envelopes[:DefaultEventPage]
		}
		resp := response{Events: make([]entry, 0, len(envelopes)), Next: after}
		for _, envelope := range envelopes {
			resp.Events = append(resp.Events, entry{Sequence: envelope.Sequence, Record: envelope.Record})
			resp.Next = envelope.Sequence
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// MetricsHandler emits Prometheus compatible text metrics.
func (h *HandlerSet) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		fmt.Fprintf(w, "# HELP arena_uptime_seconds Arena uptime in seconds.\n")
		fmt.Fprintf(w, "# TYPE arena_uptime_seconds gauge\n")
		fmt.Fprintf(w, "arena_uptime_seconds %.0f\n", h.now().Sub(h.started).Seconds())

		if h.battle != nil {
			status := h.battle.Status()
			fmt.Fprintf(w, "# HELP arena_round Current round of the battle.\n")
			fmt.Fprintf(w, "# TYPE arena_round gauge\n")
			fmt.Fprintf(w, "arena_round %d\n", status.Round)
			fmt.Fprintf(w, "# HELP arena_turn Current turn of the round.\n")
			fmt.Fprintf(w, "# TYPE arena_turn gauge\n")
			fmt.Fprintf(w, "arena_turn %d\n", status.Turn)
			fmt.Fprintf(w, "# HELP arena_robots_alive Robots still fighting in the round.\n")
			fmt.Fprintf(w, "# TYPE arena_robots_alive gauge\n")
			fmt.Fprintf(w, "arena_robots_alive %d\n", status.Robots)
		}
		if h.spectators != nil {
			connected, _ := h.spectators.SpectatorCounts()
			fmt.Fprintf(w, "# HELP arena_spectators Connected websocket spectators.\n")
			fmt.Fprintf(w, "# TYPE arena_spectators gauge\n")
			fmt.Fprintf(w, "arena_spectators %d\n", connected)
		}
		if h.ticks != nil {
			ticks := h.ticks.Snapshot()
			fmt.Fprintf(w, "# HELP arena_turn_duration_seconds Observed turn resolution time.\n")
			fmt.Fprintf(w, "# TYPE arena_turn_duration_seconds summary\n")
			fmt.Fprintf(w, "arena_turn_duration_seconds{quantile=\"0.95\"} %.6f\n", ticks.P95.Seconds())
			fmt.Fprintf(w, "arena_turn_duration_seconds_count %d\n", ticks.Samples)
			fmt.Fprintf(w, "# HELP arena_turn_duration_max_seconds Slowest observed turn.\n")
			fmt.Fprintf(w, "# TYPE arena_turn_duration_max_seconds gauge\n")
			fmt.Fprintf(w, "arena_turn_duration_max_seconds %.6f\n", ticks.Max.Seconds())
		}
		if h.snapshots != nil {
			fmt.Fprintf(w, "# HELP arena_snapshots_delivered_total Snapshots delivered to spectators.\n")
			fmt.Fprintf(w, "# TYPE arena_snapshots_delivered_total counter\n")
			fmt.Fprintf(w, "arena_snapshots_delivered_total %d\n", h.snapshots.Delivered())
			fmt.Fprintf(w, "# HELP arena_snapshot_bytes_total Snapshot bytes delivered per spectator.\n")
			fmt.Fprintf(w, "# TYPE arena_snapshot_bytes_total counter\n")
			for spectator, size := range h.snapshots.BytesPerSpectator() {
				fmt.Fprintf(w, "arena_snapshot_bytes_total{spectator=%q} %d\n", spectator, size)
			}
			fmt.Fprintf(w, "# HELP arena_snapshots_dropped_total Snapshots dropped per reason.\n")
			fmt.Fprintf(w, "# TYPE arena_snapshots_dropped_total counter\n")
			for reason, count := range h.snapshots.DropCounts() {
				fmt.Fprintf(w, "arena_snapshots_dropped_total{reason=%q} %d\n", string(reason), count)
			}
		}
		if h.bandwidth != nil {
			if usage := h.bandwidth.SnapshotUsage(); len(usage) > 0 {
				fmt.Fprintf(w, "# HELP arena_bandwidth_bytes_per_second Observed outbound bandwidth per spectator.\n")
				fmt.Fprintf(w, "# TYPE arena_bandwidth_bytes_per_second gauge\n")
				for spectator, sample := range usage {
					fmt.Fprintf(w, "arena_bandwidth_bytes_per_second{spectator=%q} %.2f\n", spectator, sample.BytesPerSecond)
				}
				fmt.Fprintf(w, "# HELP arena_bandwidth_denied_total Throttled deliveries per spectator.\n")
				fmt.Fprintf(w, "# TYPE arena_bandwidth_denied_total counter\n")
				for spectator, sample := range usage {
					fmt.Fprintf(w, "arena_bandwidth_denied_total{spectator=%q} %d\n", spectator, sample.DeniedDeliveries)
				}
			}
		}
		if h.replayStats != nil {
			stats := h.replayStats()
			fmt.Fprintf(w, "# HELP arena_replay_frames_total Frames written to the replay bundle.\n")
			fmt.Fprintf(w, "# TYPE arena_replay_frames_total counter\n")
			fmt.Fprintf(w, "arena_replay_frames_total %d\n", stats.Frames)
			fmt.Fprintf(w, "# HELP arena_replay_records_total Telemetry records written to the replay bundle.\n")
			fmt.Fprintf(w, "# TYPE arena_replay_records_total counter\n")
			fmt.Fprintf(w, "arena_replay_records_total %d\n", stats.Records)
			fmt.Fprintf(w, "# HELP arena_replay_failures_total Replay writes that failed.\n")
			fmt.Fprintf(w, "# TYPE arena_replay_failures_total counter\n")
			fmt.Fprintf(w, "arena_replay_failures_total %d\n", stats.Failures)
		}
		if h.storageStats != nil {
			storage := h.storageStats()
			fmt.Fprintf(w, "# HELP arena_replay_bundles Replay bundles retained on disk.\n")
			fmt.Fprintf(w, "# TYPE arena_replay_bundles gauge\n")
			fmt.Fprintf(w, "arena_replay_bundles %d\n", storage.Bundles)
			fmt.Fprintf(w, "# HELP arena_replay_bytes Disk footprint of retained replay bundles.\n")
			fmt.Fprintf(w, "# TYPE arena_replay_bytes gauge\n")
			fmt.Fprintf(w, "arena_replay_bytes %d\n", storage.Bytes)
		}
	}
}

// ReplayFlushHandler authorises and forces the replay bundle to disk.
func (h *HandlerSet) ReplayFlushHandler() http.HandlerFunc {
	type response struct {
		Status   string `json:"status"`
		Location string `json:"location,omitempty"`
		TraceID  string `json:"trace_id,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.LoggerFromContext(r.Context())
		if reqLogger == nil {
			reqLogger = h.logger
		}
		reqLogger = reqLogger.With(logging.String("handler", "replay_flush"), logging.String("remote_addr", r.RemoteAddr))
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if h.adminToken == "" {
			reqLogger.Warn("replay flush denied: admin auth disabled")
			http.Error(w, "admin authentication not configured", http.StatusForbidden)
			return
		}
		if !h.authorise(r) {
			reqLogger.Warn("replay flush denied: unauthorized request")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if h.rateLimiter != nil && !h.rateLimiter.Allow(clientKey(r)) {
			reqLogger.Warn("replay flush denied: rate limit exceeded")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		if h.replay == nil {
			reqLogger.Warn("replay flush denied: replays disabled")
			http.Error(w, "replay recording is disabled", http.StatusServiceUnavailable)
			return
		}
		location, err := h.replay.FlushReplay(r.Context())
		if err != nil {
			reqLogger.Error("replay flush failed", logging.Error(err))
			http.Error(w, "failed to flush replay", http.StatusInternalServerError)
			return
		}
		reqLogger.Info("replay flushed", logging.String("location", location))
		writeJSON(w, http.StatusAccepted, response{
			Status:   "accepted",
			Location: location,
			TraceID:  logging.TraceIDFromContext(r.Context()),
		})
	}
}

func (h *HandlerSet) authorise(r *http.Request) bool {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	var token string
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		token = strings.TrimSpace(header[7:])
	} else if header != "" {
		token = header
	}
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Admin-Token"))
	}
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) == 1
}

// clientKey identifies the caller for rate limiting by its remote host.
func clientKey(r *http.Request) string {
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx > 0 {
		return addr[:idx]
	}
	return addr
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}
