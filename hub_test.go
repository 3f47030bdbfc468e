package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"robotarena/server/internal/arena"
	"robotarena/server/internal/auth"
	"robotarena/server/internal/logging"
	"robotarena/server/internal/networking"
	"robotarena/server/internal/websockettest"
)

func startHub(t *testing.T, opts ...hubOption) (*spectatorHub, *httptest.Server) {
	t.Helper()
	publisher := networking.NewSnapshotPublisher(nil, nil)
	hub := newSpectatorHub(publisher, append([]hubOption{withHubLogger(logging.NewTestLogger())}, opts...)...)
	server := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		server.Close()
	})
	return hub, server
}

func dialHub(t *testing.T, server *httptest.Server, query string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	return websocket.DefaultDialer.Dial(websockettest.SpectatorURL(server.URL, query), nil)
}

func waitForSpectators(t *testing.T, hub *spectatorHub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if connected, _ := hub.SpectatorCounts(); connected == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	connected, _ := hub.SpectatorCounts()
	t.Fatalf("expected %d spectators, got %d", want, connected)
}

func hubSnapshot() arena.Snapshot {
	return arena.Snapshot{
		Round:  1,
		Turn:   3,
		Width:  800,
		Height: 600,
		Robots: []arena.RobotView{{Name: "tracker", X: 400, Y: 300, Energy: 87.5, State: arena.StateActive.String()}},
	}
}

func TestHubStreamsJSONSnapshots(t *testing.T) {
	hub, server := startHub(t)
	conn, _, err := dialHub(t, server, "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitForSpectators(t, hub, 1)

	hub.ObserveTurn(hubSnapshot(), nil)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var snapshot arena.Snapshot
	if kind != websocket.TextMessage || json.Unmarshal(payload, &snapshot) != nil {
		t.Fatalf("expected a JSON text frame, got kind %d payload %q", kind, payload)
	}
	if snapshot.Turn != 3 || len(snapshot.Robots) != 1 || snapshot.Robots[0].Name != "tracker" {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
}

func TestHubStreamsBinaryFrames(t *testing.T) {
	hub, server := startHub(t)
	conn, _, err := dialHub(t, server, "?format=binary")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitForSpectators(t, hub, 1)

	hub.ObserveTurn(hubSnapshot(), nil)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	decoded, err := networking.DecodeFrame(payload)
	if kind != websocket.BinaryMessage || err != nil {
		t.Fatalf("expected a binary frame, got kind %d: %v", kind, err)
	}
	if decoded.Turn != 3 || decoded.Robots[0].Energy != 87.5 {
		t.Fatalf("unexpected decoded frame %+v", decoded)
	}
}

func TestHubEnforcesSpectatorLimit(t *testing.T) {
	hub, server := startHub(t, withMaxClients(1))
	first, _, err := dialHub(t, server, "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer first.Close()
	waitForSpectators(t, hub, 1)

	_, resp, err := dialHub(t, server, "")
	if !errors.Is(err, websocket.ErrBadHandshake) || resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected the second spectator to be refused, got %v", err)
	}
	if connected, limit := hub.SpectatorCounts(); connected != 1 || limit != 1 {
		t.Fatalf("unexpected counts %d/%d", connected, limit)
	}
}

func TestHubRequiresTokensWhenConfigured(t *testing.T) {
	authenticator, err := newSpectatorAuthenticator("s3cret", "battle-7")
	if err != nil {
		t.Fatalf("authenticator: %v", err)
	}
	hub, server := startHub(t, withAuthenticator(authenticator))

	_, resp, err := dialHub(t, server, "")
	if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected missing token to be rejected, got %v", err)
	}

	tokens, err := auth.NewSpectatorTokens("s3cret", 0)
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	foreign, err := tokens.Issue("mallory", "battle-8", time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, resp, err := dialHub(t, server, "?auth_token="+foreign); err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected a token for another battle to be rejected, got %v", err)
	}

	token, err := tokens.Issue("alice", "battle-7", time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	conn, _, err := dialHub(t, server, "?auth_token="+token)
	if err != nil {
		t.Fatalf("dial with token: %v", err)
	}
	defer conn.Close()
	waitForSpectators(t, hub, 1)

	hub.mu.Lock()
	var id string
	for client := range hub.clients {
		id = client.id
	}
	hub.mu.Unlock()
	if !strings.HasPrefix(id, "alice-") {
		t.Fatalf("expected the spectator to be named after the token subject, got %q", id)
	}
}

func TestHubCloseSaysGoodbye(t *testing.T) {
	hub, server := startHub(t)
	conn, _, err := dialHub(t, server, "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitForSpectators(t, hub, 1)

	hub.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected a normal close, got %v", err)
	}
	if _, resp, err := dialHub(t, server, ""); err == nil || resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected a closed hub to refuse spectators, got %v", err)
	}
}

func TestCheckOriginHonoursAllowList(t *testing.T) {
	hub := newSpectatorHub(nil, withAllowedOrigins([]string{"https://arena.example"}), withHubLogger(logging.NewTestLogger()))
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if !hub.checkOrigin(req) {
		t.Fatalf("expected requests without an origin to pass")
	}
	req.Header.Set("Origin", "https://arena.example")
	if !hub.checkOrigin(req) {
		t.Fatalf("expected the allowed origin to pass")
	}
	req.Header.Set("Origin", "https://evil.example")
	if hub.checkOrigin(req) {
		t.Fatalf("expected a foreign origin to be refused")
	}
}

func TestHubDropsUnresponsiveSpectators(t *testing.T) {
	hub, server := startHub(t, withPingInterval(20*time.Millisecond))
	conn, _, err := websockettest.DialIgnoringPongs(websockettest.SpectatorURL(server.URL, ""), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitForSpectators(t, hub, 1)
	//1.- Pings arrive only while the client reads, and none of them are answered.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	waitForSpectators(t, hub, 0)
}
