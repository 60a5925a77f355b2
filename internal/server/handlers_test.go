package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomrelay/internal/relay"
)

func TestHealthHandler(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodHead} {
		t.Run(method, func(t *testing.T) {
			rr := httptest.NewRecorder()
			HealthHandler(rr, httptest.NewRequest(method, "/", nil))

			assert.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, "text/plain", rr.Header().Get("Content-Type"))
			assert.Equal(t, "Room relay is running!", rr.Body.String())
		})
	}
}

func TestSetupRoutes(t *testing.T) {
	hub := newTestHub(t, nil)
	mux := SetupRoutes(hub)
	require.NotNil(t, mux)

	t.Run("plain GET on root is the health check", func(t *testing.T) {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "Room relay is running!", rr.Body.String())
	})

	t.Run("stats", func(t *testing.T) {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/stats", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

		var stats relay.Stats
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
		assert.Equal(t, relay.Stats{}, stats)
	})

	t.Run("stats rejects POST", func(t *testing.T) {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/stats", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	})

	t.Run("websocket endpoint rejects POST", func(t *testing.T) {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/ws", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	})

	t.Run("websocket endpoint requires upgrade", func(t *testing.T) {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ws", nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestStatsReflectsConnections(t *testing.T) {
	hub, ts := startTestServer(t, nil)

	alice := dial(t, ts.URL, "/ws")
	_ = dial(t, ts.URL, "/ws")
	sendJoin(t, alice, "r1", "Alice")
	waitForStats(t, hub, relay.Stats{Connections: 2, Joined: 1, Rooms: 1})

	resp, err := http.Get(ts.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var stats relay.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, relay.Stats{Connections: 2, Joined: 1, Rooms: 1}, stats)
	assert.Equal(t, 2, hub.ClientCount())
}

func TestCreateServer(t *testing.T) {
	port := ":8080"
	mux := http.NewServeMux()

	srv := CreateServer(port, mux)

	assert.Equal(t, port, srv.Addr)
	assert.Equal(t, mux, srv.Handler)
	assert.Equal(t, 15*time.Second, srv.ReadTimeout)
	assert.Equal(t, 15*time.Second, srv.WriteTimeout)
	assert.Equal(t, 60*time.Second, srv.IdleTimeout)
}

func TestShutdownServer(t *testing.T) {
	srv := CreateServer("127.0.0.1:0", http.NewServeMux())

	errCh := make(chan error, 1)
	go func() { errCh <- StartServer(srv) }()

	// Shutdown before or after ListenAndServe begins both end with ErrServerClosed.
	time.Sleep(50 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, ShutdownServer(ctx, srv))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("StartServer did not return after shutdown")
	}
}

func TestHubShutdownWithoutClients(t *testing.T) {
	hub := newTestHub(t, nil)

	stopped := make(chan struct{})
	go func() {
		hub.Run()
		close(stopped)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, hub.Shutdown(ctx))

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Hub did not stop after shutdown")
	}

	client := NewClient(nil, hub, "127.0.0.1:1")
	assert.False(t, hub.Register(client), "a stopped hub refuses new clients")
}

func TestHubShutdownRespectsContext(t *testing.T) {
	hub := newTestHub(t, nil)

	// Run is never started, so the event loop cannot acknowledge.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, hub.Shutdown(ctx), context.DeadlineExceeded)
}
