package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"deadbolt/cmd/identity/ids"
)

// MemoryStore is the dev/test fallback when no database is configured.
// The single mutex makes DeactivateAll atomic relative to IsActive readers.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session // session id -> row
	byUser   map[string][]string // user id -> session ids (append order)
}

// NewMemoryStore constructs an in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		byUser:   make(map[string][]string),
	}
}

// Create registers a new active session.
func (s *MemoryStore) Create(ctx context.Context, now time.Time, userID string, dev Device) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return Session{}, err
	}

	sess := Session{
		ID:           id,
		UserID:       userID,
		DeviceInfo:   dev.Info,
		IPAddress:    dev.IPAddress,
		UserAgent:    dev.UserAgent,
		CreatedAt:    now,
		LastActivity: now,
		Active:       true,
	}

	s.mu.Lock()
	s.sessions[id] = &sess
	s.byUser[userID] = append(s.byUser[userID], id)
	s.mu.Unlock()

	return sess, nil
}

// IsActive fails closed on unknown pairs.
func (s *MemoryStore) IsActive(ctx context.Context, userID, sessionID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok || sess.UserID != userID {
		return false, nil
	}
	return sess.Active, nil
}

// Touch updates last_activity.
func (s *MemoryStore) Touch(ctx context.Context, now time.Time, userID, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || sess.UserID != userID {
		return ErrSessionNotFound
	}
	sess.LastActivity = now
	return nil
}

// ListActive returns active sessions, newest first.
func (s *MemoryStore) ListActive(ctx context.Context, userID string) ([]Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Session
	for _, id := range s.byUser[userID] {
		sess := s.sessions[id]
		if sess != nil && sess.Active {
			out = append(out, *sess)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Deactivate flips one session to inactive (idempotent).
func (s *MemoryStore) Deactivate(ctx context.Context, now time.Time, userID, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || sess.UserID != userID || !sess.Active {
		return nil
	}
	sess.Active = false
	sess.LastActivity = now
	return nil
}

// DeactivateAll flips all active sessions for the user under one lock hold.
func (s *MemoryStore) DeactivateAll(ctx context.Context, now time.Time, userID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, id := range s.byUser[userID] {
		sess := s.sessions[id]
		if sess != nil && sess.Active {
			sess.Active = false
			sess.LastActivity = now
			n++
		}
	}
	return n, nil
}
