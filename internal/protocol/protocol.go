package protocol

import (
	"encoding/json"

	"github.com/proctorhub/backend/internal/event"
)

type MessageType string

const (
	// Inbound from producers/observers.
	MsgJoinSession  MessageType = "join-session"
	MsgProctorEvent MessageType = "proctor-event"

	// Outbound to session members.
	MsgEvent MessageType = "event"
	MsgError MessageType = "error"
)

// Message is the wire envelope for both directions of the websocket. The
// payload is decoded after the type is known.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type ErrorPayload struct {
	Reason string `json:"reason"`
}

// EncodeEvent builds the outbound frame broadcast to session members. The
// payload shape matches the inbound proctor-event payload.
func EncodeEvent(ev event.Event) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: MsgEvent, Payload: payload})
}

// EncodeError builds a diagnostic frame sent back to a sender whose message
// was rejected. The connection stays up.
func EncodeError(reason string) ([]byte, error) {
	payload, err := json.Marshal(ErrorPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: MsgError, Payload: payload})
}
