package store

import "errors"

// ErrStreamIDZero is returned when an explicit XADD id of 0-0 is given;
// spec.md §4.B requires a distinct error for this case.
var ErrStreamIDZero = errors.New("The ID specified in XADD must be greater than 0-0")

// ErrStreamIDNotIncreasing covers every other monotonicity violation.
var ErrStreamIDNotIncreasing = errors.New("The ID specified in XADD is equal or smaller than the target stream top item")

// IDSpec is the parsed form of an XADD id argument: "*", "<ms>-*", or
// "<ms>-<seq>". Command parsing (not this package) turns the wire argument
// into an IDSpec; this package only knows how to resolve it against stream
// state, since the "now" and "last id at ms" facts live here.
type IDSpec struct {
	Auto      bool // "*": both ms and seq chosen automatically
	MS        uint64
	AutoSeq   bool // "<ms>-*": ms given, seq chosen automatically
	Seq       uint64
	NowMillis uint64 // used only when Auto is true
}

func (ks *Keyspace) getOrCreateStream(key string) (*Stream, error) {
	e, found := ks.lookup(key)
	if !found {
		s := newStream()
		ks.data[key] = &entry{val: Value{Typ: TypeStream, Stream: s}}
		return s, nil
	}
	if e.val.Typ != TypeStream {
		return nil, &ErrWrongType{Have: e.val.Typ, Want: TypeStream}
	}
	return e.val.Stream, nil
}

// XAdd resolves spec into a concrete StreamID against the stream at key,
// validates strict monotonicity (spec.md §3 invariant 2), appends the
// entry, and returns the chosen id.
func (ks *Keyspace) XAdd(key string, spec IDSpec, fields []FieldValue) (StreamID, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	s, err := ks.getOrCreateStream(key)
	if err != nil {
		return StreamID{}, err
	}

	id, err := resolveStreamID(s, spec)
	if err != nil {
		return StreamID{}, err
	}

	s.append(StreamEntry{ID: id, Fields: fields})
	return id, nil
}

func resolveStreamID(s *Stream, spec IDSpec) (StreamID, error) {
	var id StreamID
	switch {
	case spec.Auto:
		ms := spec.NowMillis
		maxSeq, found := s.maxSeqAtMS(ms)
		seq := uint64(0)
		if found {
			seq = maxSeq + 1
		}
		id = StreamID{MS: ms, Seq: seq}
	case spec.AutoSeq:
		maxSeq, found := s.maxSeqAtMS(spec.MS)
		var seq uint64
		if found {
			seq = maxSeq + 1
		} else if spec.MS == 0 {
			seq = 1
		} else {
			seq = 0
		}
		id = StreamID{MS: spec.MS, Seq: seq}
	default:
		id = StreamID{MS: spec.MS, Seq: spec.Seq}
	}

	if id.IsZero() {
		return StreamID{}, ErrStreamIDZero
	}
	if len(s.entries) > 0 && id.Compare(s.lastID()) <= 0 {
		return StreamID{}, ErrStreamIDNotIncreasing
	}
	return id, nil
}

// XRange returns entries with start <= id <= end, per spec.md §4.B
// (callers resolve "-", "+", and bare-ms forms into concrete StreamIDs
// before calling, using MaxSeqAtMS below for a bare-ms end bound).
func (ks *Keyspace) XRange(key string, start, end StreamID) ([]StreamEntry, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, found := ks.lookup(key)
	if !found {
		return nil, nil
	}
	if e.val.Typ != TypeStream {
		return nil, &ErrWrongType{Have: e.val.Typ, Want: TypeStream}
	}
	return e.val.Stream.rangeInclusive(start, end), nil
}

// MaxSeqAtMS exposes the stream's highest seq at a given ms, used to
// resolve a bare "<ms>" end-bound in XRANGE to (ms, max_seq_present_at_ms).
func (ks *Keyspace) MaxSeqAtMS(key string, ms uint64) (uint64, bool) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, found := ks.lookup(key)
	if !found || e.val.Typ != TypeStream {
		return 0, false
	}
	return e.val.Stream.maxSeqAtMS(ms)
}

// LastStreamID returns the stream's current last id (StreamID{} if absent
// or empty), used to resolve XREAD's "$" sentinel before blocking.
func (ks *Keyspace) LastStreamID(key string) StreamID {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, found := ks.lookup(key)
	if !found || e.val.Typ != TypeStream {
		return StreamID{}
	}
	return e.val.Stream.lastID()
}

// XReadAfter returns entries strictly greater than cursor for key.
func (ks *Keyspace) XReadAfter(key string, cursor StreamID) ([]StreamEntry, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, found := ks.lookup(key)
	if !found {
		return nil, nil
	}
	if e.val.Typ != TypeStream {
		return nil, &ErrWrongType{Have: e.val.Typ, Want: TypeStream}
	}
	return e.val.Stream.after(cursor), nil
}
