package identity

import "strings"

// NormalizeEmail performs case-insensitive canonicalization.
// Trim + lower-case only; stricter unicode rules can be layered later behind
// a versioned policy.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
