// Package relay implements the room chat protocol: it interprets inbound join
// and chat envelopes, keeps the connection registry current and fans chat
// messages out to every open member of the sender's room.
//
// The relay is transport agnostic. A transport hands it connections through
// Connect, inbound frames through Handle and close or error events through
// Disconnect.
package relay

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jaevor/go-nanoid"

	"github.com/Tyrowin/roomrelay/internal/registry"
)

// messageIDLength matches the canonical nanoid length.
const messageIDLength = 21

// Conn is one live client link as seen by the relay.
type Conn interface {
	// ID identifies the connection in logs.
	ID() string
	// IsOpen reports whether the connection can still accept outbound frames.
	IsOpen() bool
	// Send queues payload for delivery. It must not block; a recipient that
	// cannot take the frame right away returns an error instead.
	Send(payload []byte) error
}

// Stats is a point-in-time summary of the registry.
type Stats struct {
	Connections int `json:"connections"`
	Joined      int `json:"joined"`
	Rooms       int `json:"rooms"`
}

// Relay routes envelopes between connections that share a room.
type Relay struct {
	members *registry.Registry[Conn]
	newID   func() string
	now     func() time.Time
	logger  *slog.Logger
}

// Option customizes a Relay.
type Option func(*Relay)

// WithLogger sets the logger used for connection and delivery events.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithIDGenerator replaces the message ID generator.
func WithIDGenerator(newID func() string) Option {
	return func(r *Relay) {
		if newID != nil {
			r.newID = newID
		}
	}
}

// WithClock replaces the clock used to timestamp messages.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates a Relay with an empty registry.
func New(opts ...Option) (*Relay, error) {
	newID, err := nanoid.Standard(messageIDLength)
	if err != nil {
		return nil, fmt.Errorf("failed to create message id generator: %w", err)
	}

	r := &Relay{
		members: registry.New[Conn](),
		newID:   newID,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Connect registers conn as an unjoined connection.
func (r *Relay) Connect(conn Conn) {
	r.members.Register(conn)
	r.logger.Info("Client connected", "conn", conn.ID())
}

// Handle processes one inbound frame from conn. Frames that cannot be parsed,
// lack required fields or carry an unknown type are dropped without a reply.
func (r *Relay) Handle(conn Conn, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		r.logger.Debug("Discarding malformed envelope", "conn", conn.ID(), "error", err)
		return
	}

	switch env.Type {
	case TypeJoin:
		r.handleJoin(conn, env.Payload)
	case TypeChat:
		r.handleChat(conn, env.Payload)
	default:
		r.logger.Debug("Discarding envelope of unknown type", "conn", conn.ID(), "type", env.Type)
	}
}

func (r *Relay) handleJoin(conn Conn, raw json.RawMessage) {
	var req JoinPayload
	if err := json.Unmarshal(raw, &req); err != nil || req.RoomID == nil || req.Name == nil {
		r.logger.Debug("Discarding malformed join", "conn", conn.ID(), "error", err)
		return
	}

	r.members.SetMembership(conn, *req.RoomID, *req.Name)
	r.logger.Info("User joined room", "conn", conn.ID(), "name", *req.Name, "room", *req.RoomID)
}

func (r *Relay) handleChat(conn Conn, raw json.RawMessage) {
	var req ChatPayload
	if err := json.Unmarshal(raw, &req); err != nil || req.Message == nil {
		r.logger.Debug("Discarding malformed chat", "conn", conn.ID(), "error", err)
		return
	}

	sender, ok := r.members.Lookup(conn)
	if !ok {
		r.logger.Debug("Discarding chat from connection outside any room", "conn", conn.ID())
		return
	}

	r.Broadcast(sender.Room, Message{
		ID:        r.newID(),
		Text:      *req.Message,
		Sender:    sender.Name,
		Timestamp: r.now(),
	})
}

// Broadcast sends msg to every open member of room, the sender included, and
// returns the number of connections that accepted it. A recipient that is not
// open or refuses the frame is skipped for this message only; it stays
// registered until its own disconnect.
func (r *Relay) Broadcast(room string, msg Message) int {
	data, err := encodeNewMessage(msg)
	if err != nil {
		r.logger.Error("Failed to encode message", "room", room, "error", err)
		return 0
	}

	recipients := r.members.MembersOf(room)
	delivered := 0
	for _, conn := range recipients {
		if !conn.IsOpen() {
			r.logger.Debug("Skipping recipient that is not open", "conn", conn.ID(), "room", room)
			continue
		}
		if err := conn.Send(data); err != nil {
			r.logger.Debug("Skipping recipient", "conn", conn.ID(), "room", room, "error", err)
			continue
		}
		delivered++
	}

	r.logger.Debug("Broadcast message", "room", room, "id", msg.ID, "recipients", len(recipients), "delivered", delivered)
	return delivered
}

// Disconnect removes conn from the registry. cause is nil for a graceful
// close. Calling Disconnect more than once for the same connection is safe.
func (r *Relay) Disconnect(conn Conn, cause error) {
	if cause != nil {
		r.logger.Warn("WebSocket error", "conn", conn.ID(), "error", cause)
	}

	m, ok := r.members.Remove(conn)
	if ok {
		r.logger.Info("User disconnected", "conn", conn.ID(), "name", m.Name, "room", m.Room)
		return
	}
	r.logger.Info("An unknown client disconnected", "conn", conn.ID())
}

// Lookup returns the room membership of conn, if it has joined one.
func (r *Relay) Lookup(conn Conn) (registry.Membership, bool) {
	return r.members.Lookup(conn)
}

// Stats summarizes the current registry state.
func (r *Relay) Stats() Stats {
	return Stats{
		Connections: r.members.Len(),
		Joined:      r.members.JoinedCount(),
		Rooms:       r.members.RoomCount(),
	}
}
