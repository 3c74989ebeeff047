// Package commands implements the command set (spec.md §4.C) and the
// connection FSM's gating rules (spec.md §4.D): subscribed-mode
// restriction, transaction queueing, and command execution against the
// shared Context.
package commands

import (
	"time"

	"github.com/emberdb/emberdb/internal/sink"
)

// queuedCommand is one command recorded during a MULTI block, replayed in
// order by EXEC (spec.md §4.C).
type queuedCommand struct {
	name string
	args [][]byte
}

// Session holds per-connection state (spec.md §3): everything here is
// touched only by the goroutine owning the connection, except Sink, which
// other goroutines (pub/sub fanout, replica propagation) write through
// concurrently.
type Session struct {
	ID   int64
	Sink sink.Sink

	InTransaction bool
	queued        []queuedCommand

	SubscribedChannels map[string]struct{}

	// BecameReplica is set by PSYNC once the handshake completes; the
	// owning connection loop checks this after Execute returns and from
	// then on treats the connection as a replica link, reading its
	// REPLCONF ACK frames on the same loop.
	BecameReplica bool

	// IsReplicaLink is true when Execute is being driven by the replica
	// replay loop (internal/replication) rather than a normal client
	// connection: replies are suppressed except for REPLCONF GETACK.
	IsReplicaLink bool

	ConnectedAt time.Time
}

// NewSession constructs a fresh per-connection Session.
func NewSession(id int64, s sink.Sink) *Session {
	return &Session{
		ID:                 id,
		Sink:               s,
		SubscribedChannels: make(map[string]struct{}),
		ConnectedAt:        time.Now(),
	}
}

func (s *Session) subscribedMode() bool {
	return len(s.SubscribedChannels) > 0
}
