package session

import (
	"context"
	"errors"
	"time"

	"deadbolt/cmd/identity/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL (deadbolt.sessions).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed session store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Create inserts a new active session row and returns it.
func (s *PostgresStore) Create(ctx context.Context, now time.Time, userID string, dev Device) (Session, error) {
	id, err := ids.NewULID(now)
	if err != nil {
		return Session{}, err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO deadbolt.sessions (
			id, user_id, device_info, ip_address, user_agent,
			created_at, last_activity, active
		) VALUES ($1, $2, $3, $4, $5, $6, $6, TRUE)
	`, id, userID, dev.Info, dev.IPAddress, dev.UserAgent, now)
	if err != nil {
		return Session{}, err
	}

	return Session{
		ID:           id,
		UserID:       userID,
		DeviceInfo:   dev.Info,
		IPAddress:    dev.IPAddress,
		UserAgent:    dev.UserAgent,
		CreatedAt:    now,
		LastActivity: now,
		Active:       true,
	}, nil
}

// IsActive fails closed: an unknown pair reads as inactive.
func (s *PostgresStore) IsActive(ctx context.Context, userID, sessionID string) (bool, error) {
	var active bool

	err := s.pool.QueryRow(ctx, `
		SELECT active
		FROM deadbolt.sessions
		WHERE id = $1 AND user_id = $2
	`, sessionID, userID).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return active, nil
}

// Touch updates last_activity for a session.
func (s *PostgresStore) Touch(ctx context.Context, now time.Time, userID, sessionID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE deadbolt.sessions
		SET last_activity = $3
		WHERE id = $1 AND user_id = $2
	`, sessionID, userID, now)
	return err
}

// ListActive returns active sessions for a user, newest first.
func (s *PostgresStore) ListActive(ctx context.Context, userID string) ([]Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, device_info, ip_address, user_agent,
		       created_at, last_activity, active
		FROM deadbolt.sessions
		WHERE user_id = $1 AND active
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(
			&sess.ID, &sess.UserID, &sess.DeviceInfo, &sess.IPAddress,
			&sess.UserAgent, &sess.CreatedAt, &sess.LastActivity, &sess.Active,
		); err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Deactivate flips one session to inactive (idempotent).
func (s *PostgresStore) Deactivate(ctx context.Context, now time.Time, userID, sessionID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE deadbolt.sessions
		SET active = FALSE, last_activity = $3
		WHERE id = $1 AND user_id = $2 AND active
	`, sessionID, userID, now)
	return err
}

// DeactivateAll flips every active session of the user in a single statement,
// so racing IsActive checks observe pre- or post-state only.
func (s *PostgresStore) DeactivateAll(ctx context.Context, now time.Time, userID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE deadbolt.sessions
		SET active = FALSE, last_activity = $2
		WHERE user_id = $1 AND active
	`, userID, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
