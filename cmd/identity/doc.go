// Package identity holds deadbolt's user records and credential checks.
//
// It owns user persistence (Postgres or in-memory) and password hashing via
// cmd/security/password. Sessions are deliberately not modeled here; they
// live in cmd/internal/auth/session.
package identity
