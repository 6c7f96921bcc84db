package push

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultSendQueueSize = 256
	minSendQueueSize     = 32

	defaultWriteTimeout = 5 * time.Second
	defaultKeepAlive    = 25 * time.Second

	maxPingFailures = 3
)

// GatewayConfig tunes the per-stream write pumps of both gateways.
type GatewayConfig struct {
	SendQueueSize int
	WriteTimeout  time.Duration
	KeepAlive     time.Duration
}

// GatewayConfigFromEnv reads DEADBOLT_PUSH_* overrides, falling back to
// defaults on anything unset or unparseable.
func GatewayConfigFromEnv() GatewayConfig {
	cfg := GatewayConfig{
		SendQueueSize: envIntPush("DEADBOLT_PUSH_SEND_QUEUE", defaultSendQueueSize),
		WriteTimeout:  envDurationPush("DEADBOLT_PUSH_WRITE_TIMEOUT", defaultWriteTimeout),
		KeepAlive:     envDurationPush("DEADBOLT_PUSH_KEEPALIVE_INTERVAL", defaultKeepAlive),
	}
	if cfg.SendQueueSize < minSendQueueSize {
		cfg.SendQueueSize = minSendQueueSize
	}
	return cfg
}

func envIntPush(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationPush(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
