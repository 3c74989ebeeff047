package commands

import (
	"strconv"
	"time"

	"github.com/emberdb/emberdb/internal/protocol"
	"github.com/emberdb/emberdb/internal/store"
)

func cmdRPush(ctx *Context, args [][]byte) protocol.Reply {
	if len(args) < 2 {
		return protocol.Errorf("wrong number of arguments for 'rpush' command")
	}
	n, err := ctx.Keyspace.RPush(string(args[0]), args[1:])
	if err != nil {
		return wrongTypeReply(err)
	}
	return protocol.Integer(int64(n))
}

func cmdLPush(ctx *Context, args [][]byte) protocol.Reply {
	if len(args) < 2 {
		return protocol.Errorf("wrong number of arguments for 'lpush' command")
	}
	n, err := ctx.Keyspace.LPush(string(args[0]), args[1:])
	if err != nil {
		return wrongTypeReply(err)
	}
	return protocol.Integer(int64(n))
}

func cmdLLen(ctx *Context, args [][]byte) protocol.Reply {
	if len(args) != 1 {
		return protocol.Errorf("wrong number of arguments for 'llen' command")
	}
	n, err := ctx.Keyspace.LLen(string(args[0]))
	if err != nil {
		return wrongTypeReply(err)
	}
	return protocol.Integer(int64(n))
}

func cmdLPop(ctx *Context, args [][]byte) protocol.Reply {
	if len(args) < 1 || len(args) > 2 {
		return protocol.Errorf("wrong number of arguments for 'lpop' command")
	}
	n := 1
	hasCount := len(args) == 2
	if hasCount {
		parsed, err := strconv.Atoi(string(args[1]))
		if err != nil || parsed < 0 {
			return protocol.Errorf("value is out of range, must be positive")
		}
		n = parsed
	}
	vals, err := ctx.Keyspace.LPop(string(args[0]), n)
	if err != nil {
		return wrongTypeReply(err)
	}
	if vals == nil || (len(vals) == 0 && n > 0) {
		if hasCount {
			return protocol.NullArray()
		}
		return protocol.NullBulk()
	}
	if !hasCount {
		return protocol.Bulk(vals[0])
	}
	out := make([]protocol.Reply, len(vals))
	for i, v := range vals {
		out[i] = protocol.Bulk(v)
	}
	return protocol.Array(out)
}

func cmdLRange(ctx *Context, args [][]byte) protocol.Reply {
	if len(args) != 3 {
		return protocol.Errorf("wrong number of arguments for 'lrange' command")
	}
	start, err1 := strconv.Atoi(string(args[1]))
	stop, err2 := strconv.Atoi(string(args[2]))
	if err1 != nil || err2 != nil {
		return protocol.Errorf("value is not an integer or out of range")
	}
	vals, err := ctx.Keyspace.LRange(string(args[0]), start, stop)
	if err != nil {
		return wrongTypeReply(err)
	}
	out := make([]protocol.Reply, len(vals))
	for i, v := range vals {
		out[i] = protocol.Bulk(v)
	}
	return protocol.Array(out)
}

// cmdBLPop implements BLPOP key timeout_seconds (spec.md §4.B, §4.F). It
// parks the calling connection's own goroutine — admissible per spec.md §5
// since each connection already owns a dedicated task — rather than
// spinning up a separate timer task.
func cmdBLPop(ctx *Context, sess *Session, args [][]byte) protocol.Reply {
	if len(args) != 2 {
		return protocol.Errorf("wrong number of arguments for 'blpop' command")
	}
	key := string(args[0])
	timeoutSec, err := strconv.ParseFloat(string(args[1]), 64)
	if err != nil || timeoutSec < 0 {
		return protocol.Errorf("timeout is not a float or out of range")
	}

	if sess.IsReplicaLink {
		// The replay loop must never park: a replicated BLPOP frame only
		// arrives because it popped on the master, so its element is
		// normally already present here. If it isn't, waiting would stall
		// every frame behind it.
		v, ok, err := ctx.Keyspace.TryBLPop(key)
		if err != nil {
			return wrongTypeReply(err)
		}
		if !ok {
			return protocol.NullBulk()
		}
		return protocol.Array([]protocol.Reply{protocol.BulkString(key), protocol.Bulk(v)})
	}

	w := store.NewWaiter()
	val, immediate, err := ctx.Keyspace.BLPopOrRegister(key, w)
	if err != nil {
		return wrongTypeReply(err)
	}
	if immediate {
		return protocol.Array([]protocol.Reply{protocol.BulkString(key), protocol.Bulk(val)})
	}

	var timeoutCh <-chan time.Time
	if timeoutSec > 0 {
		timer := time.NewTimer(time.Duration(timeoutSec * float64(time.Second)))
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case res := <-w.Result():
		return protocol.Array([]protocol.Reply{protocol.BulkString(key), protocol.Bulk(res.Value)})
	case <-timeoutCh:
		if ctx.Keyspace.CancelWaiter(key, w) {
			// Deadline elapsed with nothing delivered: null bulk, never a
			// null array (spec.md §4.F).
			return protocol.NullBulk()
		}
		// Lost the race: a push already claimed this waiter and a value
		// is in flight (spec.md §4.F mutual exclusion between wake and
		// timeout) — wait for it instead of reporting a spurious timeout.
		res := <-w.Result()
		return protocol.Array([]protocol.Reply{protocol.BulkString(key), protocol.Bulk(res.Value)})
	}
}
