package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"deadbolt/cmd/identity/ids"
)

// MemoryStore is the dev/test fallback when no database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]Credentials
	byEmail map[string]string // email_norm -> user id
}

// NewMemoryStore constructs an in-memory identity store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]Credentials),
		byEmail: make(map[string]string),
	}
}

// CreateUser registers a user in memory.
func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

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

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[norm]; taken {
		return User{}, ErrConflict
	}

	u := User{ID: id, Email: email, EmailNorm: norm, Name: name, CreatedAt: now}
	s.byID[id] = Credentials{User: u, PasswordHash: hash}
	s.byEmail[norm] = id

	return u, nil
}

// GetByEmail loads a user plus credentials by normalized email.
func (s *MemoryStore) GetByEmail(ctx context.Context, emailNorm string) (Credentials, error) {
	if err := ctx.Err(); err != nil {
		return Credentials{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[NormalizeEmail(emailNorm)]
	if !ok {
		return Credentials{}, ErrNotFound
	}
	return s.byID[id], nil
}

// GetByID loads a user by ID.
func (s *MemoryStore) GetByID(ctx context.Context, userID string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.byID[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	return c.User, nil
}
