package main

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"robotarena/server/internal/arena"
	"robotarena/server/internal/events"
	"robotarena/server/internal/logging"
	"robotarena/server/internal/networking"
)

const (
	spectatorSendBuffer = 256
	spectatorWriteWait  = 5 * time.Second
)

// spectator is one websocket connection watching the battle.
type spectator struct {
	conn   *websocket.Conn
	send   chan []byte
	id     string
	format networking.Format
}

// spectatorHub pushes every resolved turn to the websocket spectators.
type spectatorHub struct {
	upgrader     websocket.Upgrader
	auth         spectatorAuthenticator
	publisher    *networking.SnapshotPublisher
	logger       *logging.Logger
	pingInterval time.Duration
	maxClients   int
	origins      []string
	nextID       uint64

	mu      sync.Mutex
	clients map[*spectator]struct{}
	closed  bool
}

type hubOption func(*spectatorHub)

func withAuthenticator(authenticator spectatorAuthenticator) hubOption {
	return func(h *spectatorHub) {
		if authenticator != nil {
			h.auth = authenticator
		}
	}
}

func withPingInterval(interval time.Duration) hubOption {
	return func(h *spectatorHub) {
		if interval > 0 {
			h.pingInterval = interval
		}
	}
}

func withMaxClients(limit int) hubOption {
	return func(h *spectatorHub) {
		if limit >= 0 {
			h.maxClients = limit
		}
	}
}

func withAllowedOrigins(origins []string) hubOption {
	return func(h *spectatorHub) {
		h.origins = append([]string(nil), origins...)
	}
}

func withHubLogger(logger *logging.Logger) hubOption {
	return func(h *spectatorHub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func newSpectatorHub(publisher *networking.SnapshotPublisher, opts ...hubOption) *spectatorHub {
	h := &spectatorHub{
		auth:         allowAllAuthenticator{},
		publisher:    publisher,
		logger:       logging.L(),
		pingInterval: 30 * time.Second,
		clients:      make(map[*spectator]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	h.logger = h.logger.With(logging.String("component", "spectators"))
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

func (h *spectatorHub) checkOrigin(r *http.Request) bool {
	if len(h.origins) == 0 {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	//1.- Non-browser clients send no origin and are judged by the token alone.
	if origin == "" {
		return true
	}
	for _, allowed := range h.origins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// ServeHTTP upgrades the request and registers a spectator.
func (h *spectatorHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	subject, err := h.auth.Authenticate(r)
	if err != nil {
		h.logger.Warn("spectator rejected", logging.String("remote", r.RemoteAddr), logging.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !h.hasRoom() {
		http.Error(w, "spectator limit reached", http.StatusServiceUnavailable)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", logging.String("remote", r.RemoteAddr), logging.Error(err))
		return
	}
	if subject == "" {
		subject = "spectator"
	}
	client := &spectator{
		conn:   conn,
		send:   make(chan []byte, spectatorSendBuffer),
		id:     fmt.Sprintf("%s-%d", subject, atomic.AddUint64(&h.nextID, 1)),
		format: networking.ParseFormat(r.URL.Query().Get("format")),
	}
	if !h.register(client) {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "spectator limit reached"))
		conn.Close()
		return
	}
	h.logger.Info("spectator joined", logging.String("spectator", client.id), logging.String("format", string(client.format)))

	go h.readLoop(client)
	go h.writeLoop(client)
}

func (h *spectatorHub) hasRoom() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.closed && (h.maxClients == 0 || len(h.clients) < h.maxClients)
}

func (h *spectatorHub) register(client *spectator) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	//1.- Re-check under the lock since concurrent upgrades may have filled the hub.
	if h.closed || (h.maxClients > 0 && len(h.clients) >= h.maxClients) {
		return false
	}
	h.clients[client] = struct{}{}
	return true
}

func (h *spectatorHub) remove(client *spectator) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()
	if ok {
		h.publisher.Forget(client.id)
		h.logger.Info("spectator left", logging.String("spectator", client.id))
	}
}

// readLoop drains control frames so pongs and close handshakes are processed. Missing
// pongs end the connection.
func (h *spectatorHub) readLoop(client *spectator) {
	defer func() {
		h.remove(client)
		client.conn.Close()
	}()
	//1.- A spectator that stops answering pings for two intervals is dropped.
	pongWait := 2 * h.pingInterval
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *spectatorHub) writeLoop(client *spectator) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()
	messageType := websocket.TextMessage
	if client.format == networking.FormatBinary {
		messageType = websocket.BinaryMessage
	}
	for {
		select {
		case msg, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(spectatorWriteWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "battle over"))
				return
			}
			if err := client.conn.WriteMessage(messageType, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(spectatorWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ObserveTurn encodes the turn once and queues it for every spectator within budget.
func (h *spectatorHub) ObserveTurn(snapshot arena.Snapshot, _ []events.Record) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) == 0 {
		return
	}
	encoded, err := h.publisher.Encode(snapshot)
	if err != nil {
		h.logger.Warn("snapshot not encoded", logging.Int("turn", snapshot.Turn), logging.Error(err))
		return
	}
	for client := range h.clients {
		payload := encoded.Payload(client.format)
		if !h.publisher.Admit(client.id, payload) {
			continue
		}
		select {
		case client.send <- payload:
		default:
			h.publisher.Backpressure()
		}
	}
}

// SpectatorCounts reports the connected spectators and the configured limit.
func (h *spectatorHub) SpectatorCounts() (int, int) {
	if h == nil {
		return 0, 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients), h.maxClients
}

// Close says goodbye to every spectator and refuses new ones.
func (h *spectatorHub) Close() {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.closed = true
	clients := make([]*spectator, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()
	for _, client := range clients {
		h.remove(client)
	}
}
