package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomrelay/internal/relay"
)

const testOrigin = "http://localhost:8080"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startTestServer runs a hub behind an httptest server. mutate may adjust
// the configuration before the hub is built.
func startTestServer(t *testing.T, mutate func(*Config)) (*Hub, *httptest.Server) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.AllowedOrigins = []string{testOrigin}
	if mutate != nil {
		mutate(&cfg)
	}

	logger := discardLogger()
	rl, err := relay.New(relay.WithLogger(logger))
	require.NoError(t, err)

	hub := NewHub(rl, cfg, logger)
	go hub.Run()

	testServer := httptest.NewServer(SetupRoutes(hub))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hub.Shutdown(ctx)
		testServer.Close()
	})
	return hub, testServer
}

func buildWebSocketURL(serverURL, path string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + path
}

// dial opens a WebSocket to path on the test server with an allowed origin.
func dial(t *testing.T, serverURL, path string) *websocket.Conn {
	t.Helper()

	conn, err := dialWithOrigin(serverURL, path, testOrigin)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func dialWithOrigin(serverURL, path, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(buildWebSocketURL(serverURL, path), headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

func sendJoin(t *testing.T, conn *websocket.Conn, room, name string) {
	t.Helper()
	frame := fmt.Sprintf(`{"type":"join","payload":{"roomId":%q,"name":%q}}`, room, name)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func sendChat(t *testing.T, conn *websocket.Conn, text string) {
	t.Helper()
	frame := fmt.Sprintf(`{"type":"chat","payload":{"message":%q}}`, text)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

// receiveMessage reads one newMessage envelope.
func receiveMessage(t *testing.T, conn *websocket.Conn) relay.NewMessagePayload {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env relay.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	require.Equal(t, relay.TypeNewMessage, env.Type)

	var payload relay.NewMessagePayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	return payload
}

// expectNoMessage asserts nothing arrives within d. A timed out read leaves
// the connection unusable, so this must be the last read on conn.
func expectNoMessage(t *testing.T, conn *websocket.Conn, d time.Duration) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(d)))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "unexpected message: %s", data)
}

// waitForStats blocks until the relay reports want.
func waitForStats(t *testing.T, hub *Hub, want relay.Stats) {
	t.Helper()
	require.Eventually(t, func() bool {
		return hub.Relay().Stats() == want
	}, 2*time.Second, 10*time.Millisecond, "relay stats never reached %+v (last %+v)", want, hub.Relay().Stats())
}
