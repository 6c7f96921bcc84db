package push

import (
	"sync"

	"github.com/google/uuid"
)

// NewServerID returns the identity of this process, stamped on every event
// it publishes.
func NewServerID() string {
	return "server-" + uuid.NewString()
}

// Stream represents one connected device (an SSE response or a websocket).
//
// Design notes:
// - Send is intentionally NOT closed by the server to avoid panics from concurrent deliverers.
// - done signals the gateway goroutines to stop.
// - Close is idempotent.
type Stream struct {
	SessionID string
	UserID    string
	Send      chan Frame

	done      chan struct{}
	closeOnce sync.Once
}

// NewStream constructs a Stream with a bounded send queue.
func NewStream(userID, sessionID string, sendQueueSize int) *Stream {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Stream{
		SessionID: sessionID,
		UserID:    userID,
		Send:      make(chan Frame, sendQueueSize),
		done:      make(chan struct{}),
	}
}

// Done returns a channel that is closed when the stream is shutting down.
func (s *Stream) Done() <-chan struct{} {
	if s == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.done
}

// Close signals the stream goroutines to stop (idempotent).
// It does NOT close Send to keep delivery safe under concurrency.
func (s *Stream) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		close(s.done)
	})
}
