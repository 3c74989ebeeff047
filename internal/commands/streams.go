package commands

import (
	"strconv"
	"strings"
	"time"

	"github.com/emberdb/emberdb/internal/protocol"
	"github.com/emberdb/emberdb/internal/store"
)

// cmdXAdd implements XADD key id field value [field value ...] (spec.md
// §4.B). id is one of "*", "<ms>-*", or "<ms>-<seq>".
func cmdXAdd(ctx *Context, args [][]byte) protocol.Reply {
	if len(args) < 4 || len(args)%2 != 0 {
		return protocol.Errorf("wrong number of arguments for 'xadd' command")
	}
	key := string(args[0])
	spec, err := parseIDSpec(string(args[1]))
	if err != nil {
		return protocol.Errorf("%s", err.Error())
	}
	if spec.Auto {
		spec.NowMillis = uint64(time.Now().UnixMilli())
	}

	fields := make([]store.FieldValue, 0, (len(args)-2)/2)
	for i := 2; i < len(args); i += 2 {
		fields = append(fields, store.FieldValue{Field: args[i], Value: args[i+1]})
	}

	id, err := ctx.Keyspace.XAdd(key, spec, fields)
	if err != nil {
		return streamErrorReply(err)
	}
	return protocol.BulkString(formatStreamID(id))
}

func streamErrorReply(err error) protocol.Reply {
	switch err {
	case store.ErrStreamIDZero:
		return protocol.Errorf("The ID specified in XADD must be greater than 0-0")
	case store.ErrStreamIDNotIncreasing:
		return protocol.Errorf("The ID specified in XADD is equal or smaller than the target stream top item")
	default:
		return wrongTypeReply(err)
	}
}

// parseIDSpec parses an XADD id argument into a store.IDSpec.
func parseIDSpec(s string) (store.IDSpec, error) {
	if s == "*" {
		return store.IDSpec{Auto: true}, nil
	}
	parts := strings.SplitN(s, "-", 2)
	ms, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return store.IDSpec{}, errBadStreamID
	}
	if len(parts) == 1 {
		return store.IDSpec{MS: ms}, nil
	}
	if parts[1] == "*" {
		return store.IDSpec{AutoSeq: true, MS: ms}, nil
	}
	seq, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return store.IDSpec{}, errBadStreamID
	}
	return store.IDSpec{MS: ms, Seq: seq}, nil
}

var errBadStreamID = streamIDFormatError{}

type streamIDFormatError struct{}

func (streamIDFormatError) Error() string {
	return "Invalid stream ID specified as stream command argument"
}

func formatStreamID(id store.StreamID) string {
	return strconv.FormatUint(id.MS, 10) + "-" + strconv.FormatUint(id.Seq, 10)
}

// cmdXRange implements XRANGE key start end (spec.md §4.B): "-"/"+" are the
// lowest/highest ids, a bare "<ms>" means (ms,0) on start and
// (ms,max_seq_present_at_ms) on end.
func cmdXRange(ctx *Context, args [][]byte) protocol.Reply {
	if len(args) != 3 {
		return protocol.Errorf("wrong number of arguments for 'xrange' command")
	}
	key := string(args[0])
	start, err := resolveRangeBound(ctx, key, string(args[1]), false)
	if err != nil {
		return protocol.Errorf("%s", err.Error())
	}
	end, err := resolveRangeBound(ctx, key, string(args[2]), true)
	if err != nil {
		return protocol.Errorf("%s", err.Error())
	}
	entries, err := ctx.Keyspace.XRange(key, start, end)
	if err != nil {
		return wrongTypeReply(err)
	}
	return encodeStreamEntries(entries)
}

func resolveRangeBound(ctx *Context, key, s string, isEnd bool) (store.StreamID, error) {
	switch s {
	case "-":
		return store.StreamID{}, nil
	case "+":
		return store.StreamID{MS: ^uint64(0), Seq: ^uint64(0)}, nil
	}
	parts := strings.SplitN(s, "-", 2)
	ms, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return store.StreamID{}, errBadStreamID
	}
	if len(parts) == 2 {
		seq, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return store.StreamID{}, errBadStreamID
		}
		return store.StreamID{MS: ms, Seq: seq}, nil
	}
	if !isEnd {
		return store.StreamID{MS: ms, Seq: 0}, nil
	}
	maxSeq, found := ctx.Keyspace.MaxSeqAtMS(key, ms)
	if !found {
		return store.StreamID{MS: ms, Seq: 0}, nil
	}
	return store.StreamID{MS: ms, Seq: maxSeq}, nil
}

func encodeStreamEntries(entries []store.StreamEntry) protocol.Reply {
	out := make([]protocol.Reply, len(entries))
	for i, e := range entries {
		fields := make([]protocol.Reply, 0, len(e.Fields)*2)
		for _, fv := range e.Fields {
			fields = append(fields, protocol.Bulk(fv.Field), protocol.Bulk(fv.Value))
		}
		out[i] = protocol.Array([]protocol.Reply{
			protocol.BulkString(formatStreamID(e.ID)),
			protocol.Array(fields),
		})
	}
	return protocol.Array(out)
}

// cmdXRead implements XREAD [BLOCK ms] STREAMS k... id... (spec.md §4.B).
// The "$" sentinel resolves to each stream's current last id before any
// blocking begins.
func cmdXRead(ctx *Context, args [][]byte) protocol.Reply {
	var blockMs int64 = -1 // -1 means no BLOCK option given
	i := 0
	if i < len(args) && strings.EqualFold(string(args[i]), "BLOCK") {
		if i+1 >= len(args) {
			return protocol.Errorf("syntax error")
		}
		ms, err := strconv.ParseInt(string(args[i+1]), 10, 64)
		if err != nil || ms < 0 {
			return protocol.Errorf("timeout is not an integer or out of range")
		}
		blockMs = ms
		i += 2
	}
	if i >= len(args) || !strings.EqualFold(string(args[i]), "STREAMS") {
		return protocol.Errorf("syntax error")
	}
	i++
	rest := args[i:]
	if len(rest) == 0 || len(rest)%2 != 0 {
		return protocol.Errorf("Unbalanced XREAD list of streams: for each stream key an ID or '$' must be specified")
	}
	n := len(rest) / 2
	keys := make([]string, n)
	cursors := make([]store.StreamID, n)
	for j := 0; j < n; j++ {
		keys[j] = string(rest[j])
		idArg := string(rest[n+j])
		if idArg == "$" {
			cursors[j] = ctx.Keyspace.LastStreamID(keys[j])
			continue
		}
		id, err := parseExplicitStreamID(idArg)
		if err != nil {
			return protocol.Errorf("%s", err.Error())
		}
		cursors[j] = id
	}

	reply, hasData, err := tryXRead(ctx, keys, cursors)
	if err != nil {
		return wrongTypeReply(err)
	}
	if hasData || blockMs < 0 {
		if !hasData {
			// Without BLOCK an empty result is the empty array; only an
			// expired timed block yields the null array.
			return protocol.Array(nil)
		}
		return reply
	}

	var deadline time.Time
	if blockMs > 0 {
		deadline = time.Now().Add(time.Duration(blockMs) * time.Millisecond)
	}
	for {
		time.Sleep(10 * time.Millisecond)
		reply, hasData, err := tryXRead(ctx, keys, cursors)
		if err != nil {
			return wrongTypeReply(err)
		}
		if hasData {
			return reply
		}
		if blockMs > 0 && time.Now().After(deadline) {
			return protocol.NullArray()
		}
	}
}

func parseExplicitStreamID(s string) (store.StreamID, error) {
	parts := strings.SplitN(s, "-", 2)
	ms, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return store.StreamID{}, errBadStreamID
	}
	if len(parts) == 1 {
		return store.StreamID{MS: ms}, nil
	}
	seq, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return store.StreamID{}, errBadStreamID
	}
	return store.StreamID{MS: ms, Seq: seq}, nil
}

// tryXRead performs one non-blocking attempt across all requested streams,
// returning the per-stream reply array and whether any stream had data.
func tryXRead(ctx *Context, keys []string, cursors []store.StreamID) (protocol.Reply, bool, error) {
	var out []protocol.Reply
	for idx, key := range keys {
		entries, err := ctx.Keyspace.XReadAfter(key, cursors[idx])
		if err != nil {
			return protocol.Reply{}, false, err
		}
		if len(entries) == 0 {
			continue
		}
		out = append(out, protocol.Array([]protocol.Reply{
			protocol.BulkString(key),
			encodeStreamEntries(entries),
		}))
	}
	if len(out) == 0 {
		return protocol.Reply{}, false, nil
	}
	return protocol.Array(out), true, nil
}
