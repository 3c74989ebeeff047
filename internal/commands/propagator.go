package commands

import "github.com/emberdb/emberdb/internal/sink"

// Propagator is the subset of the master replication engine the command
// layer needs: EXEC uses it to replay a transaction's writes as individual
// propagated frames (spec.md §4.C), WAIT uses it to snapshot the offset and
// poll replica acks, and PSYNC uses it to register a new replica sink. It
// is satisfied by *internal/replication.Master without either package
// importing the other.
type Propagator interface {
	Propagate(frame []byte)
	Offset() int64
	ReplicaCount() int
	Wait(n int, timeoutMs int) int
	AddReplica(s sink.Sink)
	RemoveReplica(s sink.Sink)
	UpdateAck(addr string, offset int64)
	ReplID() string
}
