package identity

import (
	"deadbolt/cmd/security/password"
)

// HashPassword returns a PHC-style Argon2id hash using the env-driven
// security/password configuration.
func HashPassword(passwordPlain string) (string, error) {
	cfg, err := password.FromEnv()
	if err != nil {
		// Invalid env is an operational error, not a weak fallback.
		return "", err
	}
	return cfg.Hash(passwordPlain)
}

// VerifyPassword checks a password against a stored PHC Argon2id hash.
func VerifyPassword(passwordPlain, encodedPHC string) (bool, error) {
	cfg, err := password.FromEnv()
	if err != nil {
		return false, err
	}
	return cfg.Verify(encodedPHC, passwordPlain)
}
