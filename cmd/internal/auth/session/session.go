package session

import (
	"context"
	"time"
)

// Session mirrors one deadbolt.sessions row.
type Session struct {
	ID           string
	UserID       string
	DeviceInfo   string
	IPAddress    string
	UserAgent    string
	CreatedAt    time.Time
	LastActivity time.Time
	Active       bool
}

// Device describes the client that opened a session.
type Device struct {
	Info      string
	IPAddress string
	UserAgent string
}

// Store abstracts persistence for session state.
//
// Implementations must make DeactivateAll atomic relative to concurrent
// IsActive checks: a racing reader sees the fully-prior or fully-post state,
// never a partial one.
type Store interface {
	// Create persists a new active session with a fresh ID.
	Create(ctx context.Context, now time.Time, userID string, dev Device) (Session, error)

	// IsActive reports whether the (user, session) pair exists and is active.
	// It fails closed: unknown and inactive are both false.
	IsActive(ctx context.Context, userID, sessionID string) (bool, error)

	// Touch updates last_activity. Best-effort; callers ignore failures.
	Touch(ctx context.Context, now time.Time, userID, sessionID string) error

	// ListActive returns the user's active sessions, newest first.
	ListActive(ctx context.Context, userID string) ([]Session, error)

	// Deactivate flips exactly one session to inactive (idempotent).
	Deactivate(ctx context.Context, now time.Time, userID, sessionID string) error

	// DeactivateAll flips every active session of the user to inactive in one
	// atomic step and returns how many were flipped (idempotent).
	DeactivateAll(ctx context.Context, now time.Time, userID string) (int64, error)
}
