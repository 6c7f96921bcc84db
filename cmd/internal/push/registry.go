package push

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Registry entries are leases, not records: they expire if the owning
	// process dies without cleaning up. Register refreshes the lease.
	registryDefaultTTL = 24 * time.Hour

	connKeyPrefix   = "deadbolt:conn:"
	userConnsPrefix = "deadbolt:user:"
	userConnsSuffix = ":conns"
)

// Entry describes who owns a registered connection and where it lives.
type Entry struct {
	UserID   string
	ServerID string
}

// Registry is the shared map of connected sessions across all processes.
// Entries are advisory with a TTL; the authoritative revocation state lives
// in the session store.
type Registry interface {
	Register(ctx context.Context, sessionID, userID string) error
	Unregister(ctx context.Context, sessionID, userID string) error
	Lookup(ctx context.Context, sessionID string) (Entry, bool, error)
	ActiveSessions(ctx context.Context, userID string) ([]string, error)
}

// RedisRegistry stores entries as hashes with a reverse index per user.
// An instance is bound to one server ID and only writes entries for streams
// held by its own process.
type RedisRegistry struct {
	rdb      redis.UniversalClient
	serverID string
	ttl      time.Duration
}

// NewRedisRegistry constructs a registry bound to this process's server ID.
func NewRedisRegistry(rdb redis.UniversalClient, serverID string, ttl time.Duration) *RedisRegistry {
	if ttl <= 0 {
		ttl = registryDefaultTTL
	}
	return &RedisRegistry{rdb: rdb, serverID: serverID, ttl: ttl}
}

func connKey(sessionID string) string { return connKeyPrefix + sessionID }

func userConnsKey(userID string) string { return userConnsPrefix + userID + userConnsSuffix }

// Register records the session as connected to this server and refreshes the
// lease on both the entry and the per-user index.
func (r *RedisRegistry) Register(ctx context.Context, sessionID, userID string) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, connKey(sessionID), "user_id", userID, "server_id", r.serverID)
		pipe.Expire(ctx, connKey(sessionID), r.ttl)
		pipe.SAdd(ctx, userConnsKey(userID), sessionID)
		pipe.Expire(ctx, userConnsKey(userID), r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("registry register %s: %w", sessionID, err)
	}
	return nil
}

// Unregister removes the session entry and its index membership.
func (r *RedisRegistry) Unregister(ctx context.Context, sessionID, userID string) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, connKey(sessionID))
		pipe.SRem(ctx, userConnsKey(userID), sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("registry unregister %s: %w", sessionID, err)
	}
	return nil
}

// Lookup resolves a session ID to its owner. Missing or expired entries
// report found=false, not an error.
func (r *RedisRegistry) Lookup(ctx context.Context, sessionID string) (Entry, bool, error) {
	m, err := r.rdb.HGetAll(ctx, connKey(sessionID)).Result()
	if err != nil {
		return Entry{}, false, fmt.Errorf("registry lookup %s: %w", sessionID, err)
	}
	if len(m) == 0 {
		return Entry{}, false, nil
	}
	return Entry{UserID: m["user_id"], ServerID: m["server_id"]}, true, nil
}

// ActiveSessions lists the session IDs currently registered for the user
// across all servers. The index may briefly include entries whose hash has
// already expired.
func (r *RedisRegistry) ActiveSessions(ctx context.Context, userID string) ([]string, error) {
	ids, err := r.rdb.SMembers(ctx, userConnsKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("registry sessions for %s: %w", userID, err)
	}
	return ids, nil
}
