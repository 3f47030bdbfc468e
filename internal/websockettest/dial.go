package websockettest

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// SpectatorURL turns the http URL of a test server into the spectator socket URL.
func SpectatorURL(serverURL, query string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + "/ws" + query
}

// DialIgnoringPongs establishes a WebSocket connection and disables the
// automatic pong responses so that tests can simulate an unresponsive spectator.
func DialIgnoringPongs(urlStr string, header http.Header) (*websocket.Conn, *http.Response, error) {
	conn, resp, err := websocket.DefaultDialer.Dial(urlStr, header)
	if err != nil {
		return nil, resp, err
	}
	conn.SetPingHandler(func(string) error { return nil })
	conn.SetPongHandler(func(string) error { return nil })
	return conn, resp, nil
}
