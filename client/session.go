// Package client implements the consumer side of the sync subsystem: a
// long-lived subscription to the server's push channel, local view state the
// incoming events are applied to, a durable offline mutation queue, and a
// route-aware read cache. It is used by the desktop and CLI frontends and by
// the integration tests.
package client

import "github.com/google/uuid"

// NewSessionID returns a fresh per-tab session identifier. It is generated
// once per process and held in memory only: a restart is a new session with
// no stale echo-suppression state. It is not a credential.
func NewSessionID() string {
	return uuid.NewString()
}
