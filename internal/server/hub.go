package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomrelay/internal/relay"
)

// clientExit reports that a client's read pump ended, with the transport
// error if the connection did not close cleanly.
type clientExit struct {
	client *Client
	cause  error
}

// Hub owns the lifecycle of every WebSocket client. It registers clients
// with the relay, runs their pumps and turns pump exits into relay
// disconnects. Message routing itself lives in the relay.
type Hub struct {
	relay    *relay.Relay
	cfg      Config
	upgrader websocket.Upgrader
	logger   *slog.Logger

	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan clientExit
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a Hub that routes frames through r. A nil logger uses
// slog.Default().
func NewHub(r *relay.Relay, cfg Config, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.sanitized()
	origins := newOriginPolicy(cfg.AllowedOrigins, logger)

	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		relay: r,
		cfg:   cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
		logger:     logger,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan clientExit),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Relay returns the relay the hub feeds.
func (h *Hub) Relay() *relay.Relay {
	return h.relay
}

// Run starts the hub's main event loop. It returns once Shutdown is called
// and every client connection has been closed.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			h.handleRegister(client)

		case exit := <-h.unregister:
			h.handleUnregister(exit)
		}
	}
}

// Register hands a new client to the hub. It returns false if the hub is
// shutting down, in which case the caller still owns the connection.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) handleRegister(client *Client) {
	if client == nil {
		h.logger.Warn("Received nil client registration; skipping")
		return
	}

	h.mutex.Lock()
	h.clients[client] = struct{}{}
	clientCount := len(h.clients)
	h.mutex.Unlock()

	h.relay.Connect(client)
	h.logger.Debug("Client registered", "conn", client.ID(), "addr", client.Addr(), "clients", clientCount)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// unregisterClient is called by a read pump on exit. Once the event loop has
// stopped the client is torn down directly.
func (h *Hub) unregisterClient(client *Client, cause error) {
	client.markClosing()

	select {
	case h.unregister <- clientExit{client: client, cause: cause}:
	case <-h.done:
		h.teardown(client, cause)
	}
}

func (h *Hub) handleUnregister(exit clientExit) {
	h.mutex.Lock()
	_, ok := h.clients[exit.client]
	delete(h.clients, exit.client)
	clientCount := len(h.clients)
	h.mutex.Unlock()

	if !ok {
		return
	}
	h.teardown(exit.client, exit.cause)
	h.logger.Debug("Client unregistered", "conn", exit.client.ID(), "clients", clientCount)
}

// teardown removes the client from the relay and releases its queue.
func (h *Hub) teardown(client *Client, cause error) {
	h.relay.Disconnect(client, cause)
	client.release()
}

// shutdownClients closes every client connection. Each read pump then
// fails and tears its client down.
func (h *Hub) shutdownClients() {
	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*Client]struct{})
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn == nil {
			continue
		}
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			h.logger.Warn("Error closing client connection", "conn", client.ID(), "error", err)
		}
	}

	h.logger.Info("Closed client connections", "count", len(clients))
}

// ClientCount returns the number of connections the hub is tracking.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Shutdown stops the event loop, closes all client connections and waits for
// their pumps to finish or ctx to expire.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.logger.Info("Initiating hub shutdown...")
	h.cancel()

	select {
	case <-h.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		h.logger.Info("Hub shutdown completed successfully")
		return nil
	case <-ctx.Done():
		h.logger.Warn("Hub shutdown timeout reached, some goroutines may still be running")
		return ctx.Err()
	}
}
