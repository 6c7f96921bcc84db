package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"deadbolt/cmd/identity/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL (deadbolt.users).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed identity store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("identity: nil pool")
	}
	return &PostgresStore{pool: pool}, nil
}

// CreateUser inserts a user row; the unique index on email_norm enforces
// conflict detection.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	email := strings.TrimSpace(in.Email)
	name := strings.TrimSpace(in.Name)
	if email == "" || name == "" || in.Password == "" {
		return User{}, ErrInvalidInput
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return User{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return User{}, err
	}

	norm := NormalizeEmail(email)

	_, err = s.pool.Exec(ctx, `
		INSERT INTO deadbolt.users (id, email, email_norm, name, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, email, norm, name, hash, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, ErrConflict
		}
		return User{}, err
	}

	return User{ID: id, Email: email, EmailNorm: norm, Name: name, CreatedAt: now}, nil
}

// GetByEmail loads a user plus password hash by normalized email.
func (s *PostgresStore) GetByEmail(ctx context.Context, emailNorm string) (Credentials, error) {
	var c Credentials

	err := s.pool.QueryRow(ctx, `
		SELECT id, email, email_norm, name, password_hash, created_at
		FROM deadbolt.users
		WHERE email_norm = $1
	`, NormalizeEmail(emailNorm)).Scan(
		&c.User.ID,
		&c.User.Email,
		&c.User.EmailNorm,
		&c.User.Name,
		&c.PasswordHash,
		&c.User.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Credentials{}, ErrNotFound
	}
	if err != nil {
		return Credentials{}, err
	}

	return c, nil
}

// GetByID loads a user row by ID.
func (s *PostgresStore) GetByID(ctx context.Context, userID string) (User, error) {
	var u User

	err := s.pool.QueryRow(ctx, `
		SELECT id, email, email_norm, name, created_at
		FROM deadbolt.users
		WHERE id = $1
	`, userID).Scan(&u.ID, &u.Email, &u.EmailNorm, &u.Name, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}

	return u, nil
}
