// Package session implements deadbolt's session model.
//
// A session is one authenticated login instance. Sessions are persisted for
// their full lifetime: bulk or single revocation flips the active flag, rows
// are never deleted, and an inactive session is never reactivated. The store
// is the single source of truth for validity; the push registry only routes
// notifications.
//
// Access tokens are signed JWTs binding a caller to (user, session).
package session
