package session

import "errors"

var (
	// ErrInvalidToken is returned when an access token fails verification,
	// or when its backing session is missing or inactive. The two cases are
	// deliberately indistinguishable to callers.
	ErrInvalidToken = errors.New("invalid token")

	// ErrSessionNotFound is returned by stores for lookups of unknown sessions.
	ErrSessionNotFound = errors.New("session not found")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
