package store

// StreamID is the two-part monotonic identifier of a stream entry
// (spec.md §3 invariant 2).
type StreamID struct {
	MS  uint64
	Seq uint64
}

// Compare returns -1, 0, or 1 as id is less than, equal to, or greater than
// other, comparing (ms, seq) lexicographically.
func (id StreamID) Compare(other StreamID) int {
	switch {
	case id.MS < other.MS:
		return -1
	case id.MS > other.MS:
		return 1
	case id.Seq < other.Seq:
		return -1
	case id.Seq > other.Seq:
		return 1
	default:
		return 0
	}
}

func (id StreamID) IsZero() bool { return id.MS == 0 && id.Seq == 0 }

// FieldValue is one (field, value) pair attached to a stream entry.
type FieldValue struct {
	Field []byte
	Value []byte
}

// StreamEntry is one append-only log record.
type StreamEntry struct {
	ID     StreamID
	Fields []FieldValue
}

// Stream is the ordered log backing the Stream value variant. Entries are
// strictly increasing by ID (spec.md §3 invariant 2); appends are O(1)
// amortized and range scans are linear, which is adequate for the
// command set this server implements (no indexing beyond XRANGE/XREAD).
type Stream struct {
	entries []StreamEntry
}

func newStream() *Stream {
	return &Stream{}
}

func (s *Stream) lastID() StreamID {
	if len(s.entries) == 0 {
		return StreamID{}
	}
	return s.entries[len(s.entries)-1].ID
}

// maxSeqAtMS returns the highest seq already used at the given ms, and
// whether any entry exists at that ms — needed to resolve the "<ms>-*"
// auto-sequence form (spec.md §4.B).
func (s *Stream) maxSeqAtMS(ms uint64) (uint64, bool) {
	var max uint64
	found := false
	for _, e := range s.entries {
		if e.ID.MS != ms {
			continue
		}
		if !found || e.ID.Seq > max {
			max = e.ID.Seq
		}
		found = true
	}
	return max, found
}

func (s *Stream) append(e StreamEntry) {
	s.entries = append(s.entries, e)
}

// rangeInclusive returns entries with start <= id <= end.
func (s *Stream) rangeInclusive(start, end StreamID) []StreamEntry {
	var out []StreamEntry
	for _, e := range s.entries {
		if e.ID.Compare(start) >= 0 && e.ID.Compare(end) <= 0 {
			out = append(out, e)
		}
	}
	return out
}

// after returns entries strictly greater than cursor, in order.
func (s *Stream) after(cursor StreamID) []StreamEntry {
	var out []StreamEntry
	for _, e := range s.entries {
		if e.ID.Compare(cursor) > 0 {
			out = append(out, e)
		}
	}
	return out
}
