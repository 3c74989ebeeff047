package replication

import (
	"sync"
	"time"

	"github.com/emberdb/emberdb/internal/protocol"
	"github.com/emberdb/emberdb/internal/sink"
)

type replicaEntry struct {
	sink      sink.Sink
	ackOffset int64
}

// Master tracks connected replicas and the master's replication offset
// (spec.md §4.E). Propagation is fire-and-forget: a sink that errors is
// dropped from the registry rather than retried.
type Master struct {
	mu       sync.Mutex
	replicas map[string]*replicaEntry
	offset   int64
	replID   string
}

// NewMaster constructs a Master with the given fixed replication ID
// (spec.md §4.E: master_replid is stable for the process lifetime).
func NewMaster(replID string) *Master {
	return &Master{
		replicas: make(map[string]*replicaEntry),
		replID:   replID,
	}
}

// ReplID returns the master's replication ID, reported by INFO replication.
func (m *Master) ReplID() string { return m.replID }

// AddReplica registers s as a newly synced replica, starting at the
// master's current offset.
func (m *Master) AddReplica(s sink.Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replicas[s.RemoteAddr()] = &replicaEntry{sink: s, ackOffset: m.offset}
}

// RemoveReplica drops s from the registry, e.g. on disconnect.
func (m *Master) RemoveReplica(s sink.Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.replicas, s.RemoteAddr())
}

// Offset returns the master's current replication offset.
func (m *Master) Offset() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offset
}

// ReplicaCount returns the number of currently registered replicas.
func (m *Master) ReplicaCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.replicas)
}

// Propagate fans frame out to every connected replica and advances the
// master's offset by len(frame), whether or not any replica is connected
// (spec.md §4.E: the offset tracks bytes the master has produced, not
// bytes any replica has received).
func (m *Master) Propagate(frame []byte) {
	m.mu.Lock()
	m.offset += int64(len(frame))
	var dead []string
	for addr, r := range m.replicas {
		if err := r.sink.Send(frame); err != nil {
			dead = append(dead, addr)
		}
	}
	for _, addr := range dead {
		delete(m.replicas, addr)
	}
	m.mu.Unlock()
}

// UpdateAck records a replica's self-reported applied offset, from a
// REPLCONF ACK <offset> frame it sent back.
func (m *Master) UpdateAck(addr string, offset int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.replicas[addr]; ok && offset > r.ackOffset {
		r.ackOffset = offset
	}
}

// ackedAtLeast counts replicas whose last reported ack offset is >= target.
func (m *Master) ackedAtLeast(target int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.replicas {
		if r.ackOffset >= target {
			n++
		}
	}
	return n
}

// Wait implements WAIT n timeout_ms (spec.md §4.E): it snapshots the
// master's current offset T *before* requesting acks, so a replica's
// reply to the GETACK frame this triggers reports the offset predating
// that frame, not including it. If n replicas have already acked >= T it
// returns at once without sending anything; otherwise it sends REPLCONF
// GETACK * once, then polls until at least n replicas have acked >= T or
// timeout_ms elapses, returning the number acked at whichever point it
// stops.
func (m *Master) Wait(n int, timeoutMs int) int {
	m.mu.Lock()
	target := m.offset
	m.mu.Unlock()

	if m.ackedAtLeast(target) >= n {
		return m.ackedAtLeast(target)
	}

	m.Propagate(protocol.EncodeCommand("REPLCONF", "GETACK", "*"))

	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if got := m.ackedAtLeast(target); got >= n {
			return got
		}
		if timeoutMs > 0 && time.Now().After(deadline) {
			return m.ackedAtLeast(target)
		}
		<-ticker.C
	}
}
