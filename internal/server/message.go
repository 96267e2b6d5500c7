// Package server provides the WebSocket pairing server for mobile
// companion connections. It owns the network listener, drives the
// per-connection authentication state machine, and fans usage snapshots
// out to every authenticated peer.
package server

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the kind of message being sent over WebSocket.
// Each type has a specific payload structure defined below.
type MessageType string

const (
	// MessageTypeAuth is sent by clients to authenticate with a pairing token.
	// Payload: AuthPayload
	MessageTypeAuth MessageType = "auth"

	// MessageTypeAuthSuccess is sent by the server when authentication succeeds.
	// Payload: none
	MessageTypeAuthSuccess MessageType = "authSuccess"

	// MessageTypeAuthFailure is sent by the server when authentication fails.
	// The connection is closed after a short grace delay.
	// Payload: none
	MessageTypeAuthFailure MessageType = "authFailure"

	// MessageTypeSnapshot carries a usage snapshot to authenticated clients.
	// Payload: host-defined JSON value, opaque to the server.
	MessageTypeSnapshot MessageType = "snapshot"

	// MessageTypePing is a liveness probe from the client.
	// Payload: none
	MessageTypePing MessageType = "ping"

	// MessageTypePong is the server's reply to a ping.
	// Payload: none
	MessageTypePong MessageType = "pong"

	// MessageTypeDisconnect signals a graceful connection teardown.
	// Sent by either side before closing.
	// Payload: none
	MessageTypeDisconnect MessageType = "disconnect"
)

// Message is the envelope for all WebSocket messages.
// Only auth and snapshot messages carry a payload; every other type
// omits it. Timestamp is informational and never used for ordering.
type Message struct {
	// Type identifies what kind of message this is.
	Type MessageType `json:"type"`

	// Payload contains the message-specific data, if any.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Timestamp is when the message was created.
	Timestamp time.Time `json:"timestamp"`
}

// AuthPayload carries the pairing token and device metadata from the
// client. This is the only client-originated payload in the protocol.
type AuthPayload struct {
	// Token is the single-use pairing token from the scanned QR code.
	Token string `json:"token"`

	// DeviceName is the client's display name (e.g., "iPhone 15 Pro").
	DeviceName string `json:"deviceName"`
}

// DecodeMessage parses a raw WebSocket frame into a Message envelope.
// Payload contents are not validated here; payload decoding is deferred
// until the handler for the specific type runs.
func DecodeMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("decode message: missing type")
	}
	return msg, nil
}

// AuthPayload decodes the payload of an auth message.
func (m Message) AuthPayload() (AuthPayload, error) {
	if m.Type != MessageTypeAuth {
		return AuthPayload{}, fmt.Errorf("message type %q carries no auth payload", m.Type)
	}
	var payload AuthPayload
	if err := json.Unmarshal(m.Payload, &payload); err != nil {
		return AuthPayload{}, fmt.Errorf("decode auth payload: %w", err)
	}
	return payload, nil
}

// NewAuthMessage creates an auth message. Used by test clients; the
// server itself never sends auth.
func NewAuthMessage(token, deviceName string) Message {
	payload, _ := json.Marshal(AuthPayload{Token: token, DeviceName: deviceName})
	return Message{
		Type:      MessageTypeAuth,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// NewAuthSuccessMessage creates an authSuccess message.
func NewAuthSuccessMessage() Message {
	return Message{Type: MessageTypeAuthSuccess, Timestamp: time.Now()}
}

// NewAuthFailureMessage creates an authFailure message.
// It carries no payload: unknown, expired, and consumed tokens are
// deliberately indistinguishable to the client.
func NewAuthFailureMessage() Message {
	return Message{Type: MessageTypeAuthFailure, Timestamp: time.Now()}
}

// NewSnapshotMessage creates a snapshot message from an arbitrary
// JSON-serializable value. The value is serialized exactly once here;
// broadcast fan-out reuses the same bytes for every recipient.
func NewSnapshotMessage(snapshot any) (Message, error) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return Message{}, fmt.Errorf("serialize snapshot: %w", err)
	}
	return Message{
		Type:      MessageTypeSnapshot,
		Payload:   payload,
		Timestamp: time.Now(),
	}, nil
}

// NewPingMessage creates a ping message.
func NewPingMessage() Message {
	return Message{Type: MessageTypePing, Timestamp: time.Now()}
}

// NewPongMessage creates a pong message.
func NewPongMessage() Message {
	return Message{Type: MessageTypePong, Timestamp: time.Now()}
}

// NewDisconnectMessage creates a disconnect message.
func NewDisconnectMessage() Message {
	return Message{Type: MessageTypeDisconnect, Timestamp: time.Now()}
}
