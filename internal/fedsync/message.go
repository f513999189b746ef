package fedsync

import "time"

// MessageType is the type tag every logout-sync acknowledgement carries.
const MessageType = "SSO_LOGOUT_SYNC"

// Message is the acknowledgement a federated origin posts back once its local
// credentials are cleared.
type Message struct {
	Type    string `json:"type"`
	Source  string `json:"source"`
	Success bool   `json:"success"`
}

// Envelope wraps a received message with the origin that actually sent it.
// Trust decisions are made on Origin, never on the message's self-declared
// source.
type Envelope struct {
	Origin  string
	Message Message
}

// LogoutEvent is broadcast to same-origin tabs after a local logout so they
// can drop in-memory state without a network round trip.
type LogoutEvent struct {
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	At        time.Time `json:"at"`
}
