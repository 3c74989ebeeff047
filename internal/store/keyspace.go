package store

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

// ErrWrongType is returned by any operation applied to a key whose stored
// Value variant doesn't match the command's expected type (spec.md §3
// invariant 1). Callers translate this into a "-WRONGTYPE ..." reply.
type ErrWrongType struct {
	Have, Want Type
}

func (e *ErrWrongType) Error() string {
	return "WRONGTYPE Operation against a key holding the wrong kind of value"
}

// Keyspace is the single authoritative, mutex-guarded map from key to
// entry. All read-modify-write sequences (expiry-check-and-delete,
// push-and-wake, XADD monotonicity-check-and-append) hold mu for the whole
// sequence, per spec.md §5.
type Keyspace struct {
	mu      sync.Mutex
	data    map[string]*entry
	waiters *waiterRegistry

	// now is overridable in tests to make expiry deterministic.
	now func() time.Time
}

// New constructs an empty Keyspace.
func New() *Keyspace {
	return &Keyspace{
		data:    make(map[string]*entry),
		waiters: newWaiterRegistry(),
		now:     time.Now,
	}
}

// lookup returns the live (non-expired) entry for key, deleting it first if
// its expiry has passed (spec.md §3 invariant 3, lazy expiry).
func (ks *Keyspace) lookup(key string) (*entry, bool) {
	e, ok := ks.data[key]
	if !ok {
		return nil, false
	}
	if e.expired(ks.now()) {
		delete(ks.data, key)
		return nil, false
	}
	return e, true
}

// --- strings ---

// Set stores a string value, replacing whatever was there, with an
// optional expiry (zero time means none).
func (ks *Keyspace) Set(key string, val []byte, expireAt time.Time) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.data[key] = &entry{val: Value{Typ: TypeString, Str: val}, expireAt: expireAt}
}

// Get returns the string value, or ok=false if the key is absent/expired.
func (ks *Keyspace) Get(key string) (val []byte, ok bool, err error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, found := ks.lookup(key)
	if !found {
		return nil, false, nil
	}
	if e.val.Typ != TypeString {
		return nil, false, &ErrWrongType{Have: e.val.Typ, Want: TypeString}
	}
	return e.val.Str, true, nil
}

// Incr parses the existing string value as a signed 64-bit integer, adds
// one, and stores the decimal form back. A missing key is treated as 0.
func (ks *Keyspace) Incr(key string) (int64, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, found := ks.lookup(key)
	var cur int64
	if found {
		if e.val.Typ != TypeString {
			return 0, &ErrWrongType{Have: e.val.Typ, Want: TypeString}
		}
		n, err := strconv.ParseInt(string(e.val.Str), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value is not an integer or out of range")
		}
		cur = n
	}
	cur++
	ks.data[key] = &entry{val: Value{Typ: TypeString, Str: []byte(strconv.FormatInt(cur, 10))}}
	return cur, nil
}

// Type reports the key's variant, or TypeNone if absent/expired.
func (ks *Keyspace) Type(key string) Type {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, found := ks.lookup(key)
	if !found {
		return TypeNone
	}
	return e.val.Typ
}

// Keys returns every non-expired key in ascending byte order. Pattern
// matching beyond the bare "*" wildcard is a non-goal (spec.md §1); callers
// only invoke this for "KEYS *".
func (ks *Keyspace) Keys() []string {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	now := ks.now()
	out := make([]string, 0, len(ks.data))
	for k, e := range ks.data {
		if e.expired(now) {
			delete(ks.data, k)
			continue
		}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// DBSize returns the count of non-expired keys, sweeping expired ones along
// the way.
func (ks *Keyspace) DBSize() int {
	return len(ks.Keys())
}

// Len returns the raw key count, including expired-but-not-yet-swept
// entries. Metrics sampling uses this instead of DBSize so observation
// never mutates the keyspace.
func (ks *Keyspace) Len() int {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return len(ks.data)
}

// Del removes a key unconditionally. It returns true if the key existed
// (and was not already lazily expired).
func (ks *Keyspace) Del(key string) bool {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	_, found := ks.lookup(key)
	if found {
		delete(ks.data, key)
	}
	return found
}

// FlushAll drops every key.
func (ks *Keyspace) FlushAll() {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.data = make(map[string]*entry)
}

// SetNow overrides the clock used for expiry comparisons; for tests only.
func (ks *Keyspace) SetNow(fn func() time.Time) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.now = fn
}
