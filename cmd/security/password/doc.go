// Package password provides Argon2id password hashing for deadbolt.
//
// Hashes are encoded as PHC-style strings. Verification treats the encoded
// hash as untrusted input: it is parsed strictly and refused when its cost
// parameters exceed the configured bounds.
package password
