package relay

import (
	"encoding/json"
	"time"
)

// Envelope types on the wire.
const (
	TypeJoin       = "join"
	TypeChat       = "chat"
	TypeNewMessage = "newMessage"
)

// TimestampLayout is the outbound timestamp format: RFC 3339, UTC, millisecond
// precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Envelope is one frame exchanged with a client.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinPayload is the payload of a join envelope. Pointer fields distinguish an
// absent key from an empty string.
type JoinPayload struct {
	RoomID *string `json:"roomId"`
	Name   *string `json:"name"`
}

// ChatPayload is the payload of a chat envelope.
type ChatPayload struct {
	Message *string `json:"message"`
}

// NewMessagePayload is the payload of an outbound newMessage envelope.
type NewMessagePayload struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"`
}

// Message is a chat message captured by the relay at broadcast time.
type Message struct {
	ID        string
	Text      string
	Sender    string
	Timestamp time.Time
}

// Payload converts m into its wire representation.
func (m Message) Payload() NewMessagePayload {
	return NewMessagePayload{
		ID:        m.ID,
		Text:      m.Text,
		Sender:    m.Sender,
		Timestamp: m.Timestamp.UTC().Format(TimestampLayout),
	}
}

// encodeNewMessage renders m as a complete newMessage envelope.
func encodeNewMessage(m Message) ([]byte, error) {
	payload, err := json.Marshal(m.Payload())
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: TypeNewMessage, Payload: payload})
}
