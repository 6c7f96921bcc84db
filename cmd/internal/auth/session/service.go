package session

import (
	"context"
	"log/slog"
	"time"
)

// Service implements the high-level session operations for deadbolt.
//
// It issues sessions with bound access tokens, validates tokens against the
// authoritative store, and supports per-session deactivation. Bulk
// revocation lives in push.Revoker, which composes this store with the
// fan-out bridge.
type Service struct {
	cfg    Config
	tokens TokenManager
	store  Store
	log    *slog.Logger
}

// Issued is the result of opening a session.
type Issued struct {
	Session     Session
	AccessToken string
	AccessExp   time.Time
}

// NewService constructs a Service with the provided store and token manager.
func NewService(cfg Config, store Store, tokens TokenManager, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{cfg: cfg, store: store, tokens: tokens, log: log}
}

// Store exposes the underlying session store for composition (push.Revoker,
// readiness probes).
func (s *Service) Store() Store { return s.store }

// IssueSession creates a session row and an access token bound to it.
func (s *Service) IssueSession(ctx context.Context, now time.Time, userID string, dev Device) (Issued, error) {
	sess, err := s.store.Create(ctx, now, userID, dev)
	if err != nil {
		return Issued{}, err
	}

	token, exp, err := s.tokens.Issue(userID, sess.ID, now)
	if err != nil {
		return Issued{}, err
	}

	return Issued{Session: sess, AccessToken: token, AccessExp: exp}, nil
}

// ValidateToken verifies an access token and confirms the backing session is
// still active. The store is consulted on every call so revocations take
// effect immediately; last_activity is bumped best-effort.
func (s *Service) ValidateToken(ctx context.Context, token string, now time.Time) (Claims, error) {
	claims, err := s.tokens.Verify(token, now)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	active, err := s.store.IsActive(ctx, claims.UserID, claims.SessionID)
	if err != nil {
		return Claims{}, err
	}
	if !active {
		// Missing and revoked are reported identically.
		return Claims{}, ErrInvalidToken
	}

	if err := s.store.Touch(ctx, now, claims.UserID, claims.SessionID); err != nil {
		s.log.Debug("session.touch.fail", "session_id", claims.SessionID, "err", err)
	}

	return claims, nil
}

// ListActive returns the caller's active sessions, newest first.
func (s *Service) ListActive(ctx context.Context, userID string) ([]Session, error) {
	return s.store.ListActive(ctx, userID)
}

// Logout deactivates a single session (idempotent).
func (s *Service) Logout(ctx context.Context, now time.Time, userID, sessionID string) error {
	return s.store.Deactivate(ctx, now, userID, sessionID)
}
