package session

import (
	"os"
	"time"
)

// Config defines runtime configuration for the session subsystem.
type Config struct {
	// Issuer is the value set in the "iss" claim of access tokens.
	Issuer string

	// AccessTokenTTL defines the lifetime of issued access tokens.
	AccessTokenTTL time.Duration

	// ClockSkew is the allowed time skew during token validation.
	ClockSkew time.Duration

	// SigningKey is the HMAC secret for access tokens. Required; minimum
	// 32 bytes.
	SigningKey string
}

// DefaultConfig returns defaults suitable for development.
// Production deployments override values via environment variables.
func DefaultConfig() Config {
	return Config{
		Issuer:         "deadbolt",
		AccessTokenTTL: 24 * time.Hour,
		ClockSkew:      30 * time.Second,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - DEADBOLT_JWT_SIGNING_KEY (>= 32 bytes)
//
// Optional:
//   - DEADBOLT_AUTH_ISSUER
//   - DEADBOLT_AUTH_ACCESS_TTL
//   - DEADBOLT_AUTH_CLOCK_SKEW
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("DEADBOLT_AUTH_ISSUER"); v != "" {
		cfg.Issuer = v
	}

	if v := os.Getenv("DEADBOLT_AUTH_ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.AccessTokenTTL = d
	}

	if v := os.Getenv("DEADBOLT_AUTH_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.ClockSkew = d
	}

	cfg.SigningKey = os.Getenv("DEADBOLT_JWT_SIGNING_KEY")
	if len(cfg.SigningKey) < 32 {
		return Config{}, ErrConfig
	}

	return cfg, nil
}
