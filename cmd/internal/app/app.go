// Package app wires the deadbolt server runtime: config, logging, HTTP
// routes, and the push subsystem.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"deadbolt/cmd/identity"
	authapi "deadbolt/cmd/internal/auth/api"
	"deadbolt/cmd/internal/auth/session"
	"deadbolt/cmd/internal/push"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// App is the deadbolt server runtime. One App is one "process" in the
// fan-out sense: it has a server ID, a local stream table, and (when Redis
// is configured) a bridge subscription.
type App struct {
	cfg Config
	log Logger

	serverID string

	dbPool    *pgxpool.Pool
	dbEnabled bool

	rdb          *redis.Client
	redisEnabled bool

	table    *push.Table
	registry push.Registry
	bridge   push.Bridge

	// Non-nil only in Redis mode; Run starts its subscriber loop.
	redisBridge *push.RedisBridge

	promReg *prometheus.Registry

	auth *authapi.Handler
	sse  *push.SSEGateway
	ws   *push.WSGateway
}

// New constructs a fully wired App instance from config and logger.
//
// Backends degrade independently: without DEADBOLT_DATABASE_URL users and
// sessions live in memory, without DEADBOLT_REDIS_URL the registry is local
// and events do not cross processes. Production runs with both.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	tokens, err := session.NewJWTManager(sessCfg)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		log:      log,
		serverID: push.NewServerID(),
		promReg:  prometheus.NewRegistry(),
	}

	users, sessStore, err := a.newStores(context.Background())
	if err != nil {
		return nil, err
	}

	metrics := push.NewMetrics(a.promReg)
	if err := a.newPush(context.Background(), metrics); err != nil {
		a.closeBackends()
		return nil, err
	}

	svc := session.NewService(sessCfg, sessStore, tokens, log)
	revoker := push.NewRevoker(log, sessStore, a.bridge)

	auth, err := authapi.NewHandler(log, authapi.LoadConfigFromEnv(), users, svc, revoker, a.registry)
	if err != nil {
		a.closeBackends()
		return nil, err
	}
	a.auth = auth

	gwCfg := push.GatewayConfigFromEnv()
	a.sse = push.NewSSEGateway(log, svc, a.table, a.registry, gwCfg)
	a.ws = push.NewWSGateway(log, svc, a.table, a.registry, gwCfg)

	return a, nil
}

// newStores selects Postgres or in-memory persistence.
func (a *App) newStores(ctx context.Context) (identity.Store, session.Store, error) {
	if a.cfg.DatabaseURL == "" {
		a.log.Info("db.disabled.inmemory_store")
		return identity.NewMemoryStore(), session.NewMemoryStore(), nil
	}

	pool, err := NewDBPool(ctx, a.cfg)
	if err != nil {
		return nil, nil, err
	}
	a.dbPool = pool
	a.dbEnabled = true
	a.log.Info("db.enabled.postgres_store")

	users, err := identity.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return users, session.NewPostgresStore(pool), nil
}

// newPush selects the Redis-backed registry and bridge or their local
// fallbacks, and builds the stream table on top.
func (a *App) newPush(ctx context.Context, metrics *push.Metrics) error {
	if a.cfg.RedisURL == "" {
		a.log.Info("redis.disabled.local_push", "server_id", a.serverID)
		a.registry = push.NewMemoryRegistry(a.serverID)
		a.table = push.NewTable(a.log, a.registry, metrics)
		a.bridge = push.NewLoopbackBridge(a.table, a.serverID, metrics)
		return nil
	}

	rdb, err := NewRedisClient(ctx, a.cfg)
	if err != nil {
		return err
	}
	a.rdb = rdb
	a.redisEnabled = true
	a.log.Info("redis.enabled.shared_push", "server_id", a.serverID)

	a.registry = push.NewRedisRegistry(rdb, a.serverID, a.cfg.RegistryTTL)
	a.table = push.NewTable(a.log, a.registry, metrics)
	a.redisBridge = push.NewRedisBridge(a.log, rdb, a.table, a.serverID, metrics)
	a.bridge = a.redisBridge
	return nil
}

// Run starts the HTTP server (and the bridge subscriber in Redis mode) and
// blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.redisBridge != nil {
		go a.redisBridge.Run(runCtx)
	}

	mux := http.NewServeMux()
	registerHTTP(mux, a)

	var handler http.Handler = mux
	handler = WithSecurityHeaders(handler)
	handler = WithCORS(handler, a.cfg, a.log)
	handler = WithRequestLogging(handler, a.log)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       a.cfg.ReadTimeout,
		WriteTimeout:      a.cfg.WriteTimeout,
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"server_id", a.serverID,
		"db_enabled", a.dbEnabled,
		"redis_enabled", a.redisEnabled,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
	}

	// Tear down every local stream and release its registry lease before
	// the backends go away.
	a.table.CloseAll(shutdownCtx)
	cancel()
	a.closeBackends()

	a.log.Info("server.stopped")
	return nil
}

func (a *App) closeBackends() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Warn("redis.close.fail", "err", err)
		}
		a.rdb = nil
	}
	if a.dbPool != nil {
		a.dbPool.Close()
		a.dbPool = nil
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
