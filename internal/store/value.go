// Package store implements the keyspace: the mapping from byte-string keys
// to typed values, lazy expiry, and the blocking-waiter registry that list
// pushes notify. Grounded in the teacher's single coarse-grained registry
// style (ws/server.go's sync.Map client registry, SubscriptionIndex), but
// using a plain map guarded by one mutex per spec.md §4.B: cross-key
// operations (KEYS, transaction replay) are simpler to keep correct this
// way than with fine-grained per-key locks.
package store

import "time"

// Type identifies which variant a Value currently holds.
type Type int

const (
	TypeNone Type = iota
	TypeString
	TypeList
	TypeStream
)

func (t Type) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeList:
		return "list"
	case TypeStream:
		return "stream"
	default:
		return "none"
	}
}

// Value is the tagged union described in spec.md §3: a key holds exactly
// one of these variants.
type Value struct {
	Typ    Type
	Str    []byte
	List   *deque
	Stream *Stream
}

// entry pairs a Value with its optional expiry instant.
type entry struct {
	val      Value
	expireAt time.Time // zero value means "no expiry"
}

func (e *entry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}
