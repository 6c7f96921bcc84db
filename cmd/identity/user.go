package identity

import (
	"context"
	"time"
)

// User is deadbolt's canonical security principal.
type User struct {
	ID        string
	Email     string
	EmailNorm string
	Name      string

	CreatedAt time.Time
}

// CreateUserInput describes a registration request.
// Password must already satisfy the configured policy; the store hashes it.
type CreateUserInput struct {
	Email    string
	Name     string
	Password string
	Now      time.Time
}

// Credentials is the stored authentication material for a user.
// PasswordHash is a PHC-encoded Argon2id string; the plain password is never
// persisted.
type Credentials struct {
	User         User
	PasswordHash string
}

// Store is the identity persistence boundary.
type Store interface {
	// CreateUser registers a new user. Returns ErrConflict when the
	// normalized email is already taken.
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)

	// GetByEmail loads a user plus credentials by normalized email.
	// Returns ErrNotFound when absent.
	GetByEmail(ctx context.Context, emailNorm string) (Credentials, error)

	// GetByID loads a user by ID. Returns ErrNotFound when absent.
	GetByID(ctx context.Context, userID string) (User, error)
}
