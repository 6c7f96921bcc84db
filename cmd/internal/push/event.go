package push

import (
	"encoding/json"
	"time"
)

// Event kinds understood by connected clients.
const (
	// KindConnected is the handshake frame written once per stream open.
	KindConnected = "connected"

	// KindLogoutAll tells a device its session has been revoked.
	KindLogoutAll = "logout-all"
)

// Event is a transient push notification addressed to one user's devices.
// It exists only in flight (local queues and the pub/sub channel) and is
// never persisted; a device that is offline when it fires simply misses it.
type Event struct {
	UserID           string          `json:"user_id"`
	ExcludeSessionID string          `json:"exclude_session_id,omitempty"`
	Kind             string          `json:"kind"`
	Payload          json.RawMessage `json:"payload,omitempty"`

	// Origin is the server ID of the publishing process. Subscribers drop
	// events carrying their own origin: the publisher already delivered to
	// its local streams at publish time.
	Origin    string    `json:"origin"`
	Timestamp time.Time `json:"ts"`
}

// LogoutAllPayload is the client-visible body of a logout-all event.
type LogoutAllPayload struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"` // ISO-8601
}

// Frame is the unit written to one stream: an SSE event name plus its JSON
// data line (the WS gateway sends the same pair as a JSON object).
type Frame struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}
