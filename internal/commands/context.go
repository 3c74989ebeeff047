package commands

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/emberdb/emberdb/internal/config"
	"github.com/emberdb/emberdb/internal/protocol"
	"github.com/emberdb/emberdb/internal/pubsub"
	"github.com/emberdb/emberdb/internal/store"
)

// Context holds the dependencies command handlers share across
// connections: the keyspace, the pub/sub registry, and (on a master) the
// replication engine. It is constructed once at startup and never mutated
// after wiring, except through the thread-safe objects it points to.
type Context struct {
	Keyspace *store.Keyspace
	PubSub   *pubsub.Registry

	// Master is non-nil only when Role is RoleMaster; EXEC, WAIT and PSYNC
	// use it directly. Replicated through the Propagator interface so this
	// package never imports internal/replication.
	Master Propagator

	Role   config.Role
	Config *config.Config

	// ReplIDFn and OffsetFn report the active replication identity and
	// offset regardless of role: on a master they read the Master's own
	// bookkeeping, on a replica they read the replica link's applied
	// offset. Supplied by process wiring (cmd/emberdb-server).
	ReplIDFn func() string
	OffsetFn func() int64

	// LinkUpFn reports whether the replica's master link is currently
	// established; nil on a master. Only metrics sampling reads it.
	LinkUpFn func() bool

	// SnapshotBlob produces the bytes PSYNC sends a newly synced replica.
	// Only set (and only called) on a master.
	SnapshotBlob func() []byte

	Logger    zerolog.Logger
	StartedAt time.Time
}

// IsWrite reports whether name mutates the keyspace and therefore needs
// propagating to replicas (spec.md §4.D step 4). BLPOP counts as a write
// only when it actually pops a value; the caller decides that from the
// reply before propagating.
func IsWrite(name string) bool {
	switch name {
	case "SET", "DEL", "INCR", "RPUSH", "LPUSH", "LPOP", "BLPOP", "XADD", "FLUSHALL":
		return true
	default:
		return false
	}
}

// ShouldPropagate reports whether the already-produced reply for name
// should be shipped to replicas. Every write propagates except BLPOP,
// which only propagates when it actually popped a value (a null-bulk
// reply means it timed out empty-handed, spec.md §4.B/§4.F) — the
// connection loop calls this after dispatch, once the reply is known.
func ShouldPropagate(name string, reply protocol.Reply) bool {
	if !IsWrite(name) {
		return false
	}
	if name == "BLPOP" {
		return !reply.IsNullBulk()
	}
	return true
}
