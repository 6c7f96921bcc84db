// Package push implements cross-process event delivery to connected devices.
//
// Each process holds a Table of local streams (one per device connection). A
// shared Registry in Redis maps session IDs to their owning user and server,
// and a Bridge broadcasts events between processes over pub/sub. The Revoker
// composes the session store with the Bridge to implement
// sign-out-everywhere: deactivate every session durably, then push a
// logout-all event to every connected device on every server.
package push
