package push

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// LogoutAllMessage is the human-readable body shown by clients when their
// session is revoked.
const LogoutAllMessage = "You have been logged out from all devices"

// SessionDeactivator is the slice of the session store the revoker needs.
type SessionDeactivator interface {
	DeactivateAll(ctx context.Context, now time.Time, userID string) (int64, error)
}

// Revoker implements sign-out-everywhere: durable revocation first, then
// best-effort notification of connected devices.
type Revoker struct {
	log    *slog.Logger
	store  SessionDeactivator
	bridge Bridge
}

// NewRevoker constructs a Revoker.
func NewRevoker(log *slog.Logger, store SessionDeactivator, bridge Bridge) *Revoker {
	if log == nil {
		log = slog.Default()
	}
	return &Revoker{log: log, store: store, bridge: bridge}
}

// RevokeEverywhere deactivates every session of userID, then broadcasts a
// logout-all event excluding keepSessionID (the device that asked, which
// handles its own sign-out from the HTTP response). The store write must
// commit before the broadcast: a device that receives the push and retries
// must find its session already dead. A broadcast failure is logged, not
// surfaced; revocation already succeeded and disconnected devices learn of
// it on their next validated request. Returns the number of sessions
// deactivated.
func (r *Revoker) RevokeEverywhere(ctx context.Context, now time.Time, userID, keepSessionID string) (int64, error) {
	n, err := r.store.DeactivateAll(ctx, now, userID)
	if err != nil {
		return 0, err
	}
	r.log.Info("revoke.all", "user_id", userID, "deactivated", n, "kept", keepSessionID)

	payload, err := json.Marshal(LogoutAllPayload{
		Message:   LogoutAllMessage,
		Timestamp: now.UTC().Format(time.RFC3339),
	})
	if err != nil {
		r.log.Error("revoke.payload.fail", "user_id", userID, "err", err)
		return n, nil
	}

	ev := Event{
		UserID:           userID,
		ExcludeSessionID: keepSessionID,
		Kind:             KindLogoutAll,
		Payload:          payload,
		Timestamp:        now.UTC(),
	}
	if err := r.bridge.Publish(ctx, ev); err != nil {
		r.log.Error("revoke.broadcast.fail", "user_id", userID, "err", err)
	}
	return n, nil
}
