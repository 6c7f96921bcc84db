package push

import (
	"context"
	"sync"
)

// MemoryRegistry is the single-process fallback used when no Redis is
// configured, and in unit tests. No TTLs: entries live until Unregister.
type MemoryRegistry struct {
	serverID string

	mu      sync.RWMutex
	entries map[string]Entry               // session id -> entry
	byUser  map[string]map[string]struct{} // user id -> session ids
}

// NewMemoryRegistry constructs an in-memory registry bound to a server ID.
func NewMemoryRegistry(serverID string) *MemoryRegistry {
	return &MemoryRegistry{
		serverID: serverID,
		entries:  make(map[string]Entry),
		byUser:   make(map[string]map[string]struct{}),
	}
}

func (r *MemoryRegistry) Register(ctx context.Context, sessionID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[sessionID] = Entry{UserID: userID, ServerID: r.serverID}
	if r.byUser[userID] == nil {
		r.byUser[userID] = make(map[string]struct{})
	}
	r.byUser[userID][sessionID] = struct{}{}
	return nil
}

func (r *MemoryRegistry) Unregister(ctx context.Context, sessionID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, sessionID)
	if set := r.byUser[userID]; set != nil {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(r.byUser, userID)
		}
	}
	return nil
}

func (r *MemoryRegistry) Lookup(ctx context.Context, sessionID string) (Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[sessionID]
	return e, ok, nil
}

func (r *MemoryRegistry) ActiveSessions(ctx context.Context, userID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byUser[userID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out, nil
}
