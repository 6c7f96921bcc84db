package password

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Params controls Argon2id hashing cost. MemoryKiB is in KiB as required by
// argon2.IDKey.
type Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Config is the single configuration surface for this package.
type Config struct {
	Params    Params
	MinLength int
	MaxLength int
}

// DefaultConfig returns a baseline suitable for interactive logins.
// Parallelism is CPU-aware but clamped to keep container usage predictable.
func DefaultConfig() Config {
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Params: Params{
			MemoryKiB:   64 * 1024,
			Iterations:  3,
			Parallelism: uint8(threads),
			SaltLength:  16,
			KeyLength:   32,
		},
		MinLength: 8,
		MaxLength: 256,
	}
}

// FromEnv loads config from environment variables.
//
// Env surface:
//   - DEADBOLT_PASSWORD_MIN_LEN
//   - DEADBOLT_PASSWORD_MAX_LEN
//   - DEADBOLT_ARGON2_MEMORY_KIB
//   - DEADBOLT_ARGON2_ITERATIONS
//   - DEADBOLT_ARGON2_PARALLELISM
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v, ok := os.LookupEnv("DEADBOLT_PASSWORD_MIN_LEN"); ok {
		n, err := atoiBounded(v, 1, 1024)
		if err != nil {
			return Config{}, fmt.Errorf("DEADBOLT_PASSWORD_MIN_LEN: %w", err)
		}
		cfg.MinLength = n
	}

	if v, ok := os.LookupEnv("DEADBOLT_PASSWORD_MAX_LEN"); ok {
		n, err := atoiBounded(v, 1, 4096)
		if err != nil {
			return Config{}, fmt.Errorf("DEADBOLT_PASSWORD_MAX_LEN: %w", err)
		}
		cfg.MaxLength = n
	}

	if v, ok := os.LookupEnv("DEADBOLT_ARGON2_MEMORY_KIB"); ok {
		u, err := atou32Bounded(v, 8*1024, 1024*1024)
		if err != nil {
			return Config{}, fmt.Errorf("DEADBOLT_ARGON2_MEMORY_KIB: %w", err)
		}
		cfg.Params.MemoryKiB = u
	}

	if v, ok := os.LookupEnv("DEADBOLT_ARGON2_ITERATIONS"); ok {
		u, err := atou32Bounded(v, 1, 20)
		if err != nil {
			return Config{}, fmt.Errorf("DEADBOLT_ARGON2_ITERATIONS: %w", err)
		}
		cfg.Params.Iterations = u
	}

	if v, ok := os.LookupEnv("DEADBOLT_ARGON2_PARALLELISM"); ok {
		u, err := atou32Bounded(v, 1, 255)
		if err != nil {
			return Config{}, fmt.Errorf("DEADBOLT_ARGON2_PARALLELISM: %w", err)
		}
		cfg.Params.Parallelism = uint8(u)
	}

	if cfg.MinLength > cfg.MaxLength {
		return Config{}, fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			cfg.MinLength, cfg.MaxLength,
		)
	}

	return cfg, nil
}

func atoiBounded(s string, minVal, maxVal int) (int, error) {
	i64, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an integer")
	}
	i := int(i64)
	if i < minVal || i > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return i, nil
}

func atou32Bounded(s string, minVal, maxVal uint32) (uint32, error) {
	u64, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an unsigned integer")
	}
	u := uint32(u64)
	if u < minVal || u > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return u, nil
}
