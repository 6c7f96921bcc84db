// Package authapi exposes the HTTP surface of deadbolt: registration,
// login, per-session and everywhere logout, the device list, and /me.
package authapi
