package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	// WriteTimeout applies to plain endpoints only. It defaults to zero
	// because /events is long-lived; the stream gateways set per-write
	// deadlines themselves.
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	RedisURL    string
	RegistryTTL time.Duration

	// If true, /readyz returns 503 unless the backing stores are
	// configured and reachable.
	ReadinessRequireDB    bool
	ReadinessRequireRedis bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("DEADBOLT_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel: EnvString("DEADBOLT_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("DEADBOLT_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("DEADBOLT_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("DEADBOLT_HTTP_WRITE_TIMEOUT", 0),
		IdleTimeout:       EnvDuration("DEADBOLT_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("DEADBOLT_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("DEADBOLT_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("DEADBOLT_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("DEADBOLT_DB_MIN_CONNS", 0),

		RedisURL:    EnvString("DEADBOLT_REDIS_URL", ""),
		RegistryTTL: EnvDuration("DEADBOLT_REGISTRY_TTL", 24*time.Hour),

		ReadinessRequireDB:    EnvBool("DEADBOLT_READINESS_REQUIRE_DB", false),
		ReadinessRequireRedis: EnvBool("DEADBOLT_READINESS_REQUIRE_REDIS", false),

		CORSAllowedOrigins:   EnvCSV("DEADBOLT_CORS_ALLOWED_ORIGINS", "http://localhost,http://127.0.0.1:*"),
		CORSAllowCredentials: EnvBool("DEADBOLT_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("DEADBOLT_CORS_MAX_AGE_SECONDS", 600),
	}
}
