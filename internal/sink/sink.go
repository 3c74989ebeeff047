// Package sink defines the minimal write-only handle shared by the pub/sub
// and replication registries: the owned token a connection's write half is
// stored as once it stops being just "a reply path for its own requests"
// and becomes a fan-out target for other connections (spec.md §9).
package sink

// Sink is the write half of a connection, addressable from other
// goroutines. Implementations must be safe for concurrent use: a
// subscriber or replica sink can be written to by the keyspace/pubsub/
// replication goroutines while its owning connection goroutine is also
// reading from the socket.
type Sink interface {
	// Send pushes raw, already-framed bytes to the peer. Implementations
	// serialize concurrent callers (e.g. with an internal mutex or a
	// buffered channel drained by a single writer goroutine).
	Send(p []byte) error

	// RemoteAddr identifies the sink for registries keyed by address
	// (the replica registry, spec.md §4.E).
	RemoteAddr() string
}
