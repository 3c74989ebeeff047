package commands

import (
	"strconv"
	"strings"
	"time"

	"github.com/emberdb/emberdb/internal/protocol"
	"github.com/emberdb/emberdb/internal/store"
)

// cmdSet implements SET key value [PX ms] (spec.md §4.B). Only the PX
// option is recognized; anything else is a usage error.
func cmdSet(ctx *Context, args [][]byte) protocol.Reply {
	if len(args) < 2 {
		return protocol.Errorf("wrong number of arguments for 'set' command")
	}
	key, val := string(args[0]), args[1]

	var expireAt time.Time
	rest := args[2:]
	for len(rest) > 0 {
		opt := strings.ToUpper(string(rest[0]))
		switch opt {
		case "PX":
			if len(rest) < 2 {
				return protocol.Errorf("syntax error")
			}
			ms, err := strconv.ParseInt(string(rest[1]), 10, 64)
			if err != nil {
				return protocol.Errorf("value is not an integer or out of range")
			}
			expireAt = time.Now().Add(time.Duration(ms) * time.Millisecond)
			rest = rest[2:]
		default:
			return protocol.Errorf("syntax error")
		}
	}

	ctx.Keyspace.Set(key, val, expireAt)
	return protocol.OK()
}

func cmdGet(ctx *Context, args [][]byte) protocol.Reply {
	if len(args) != 1 {
		return protocol.Errorf("wrong number of arguments for 'get' command")
	}
	val, ok, err := ctx.Keyspace.Get(string(args[0]))
	if err != nil {
		return wrongTypeReply(err)
	}
	if !ok {
		return protocol.NullBulk()
	}
	return protocol.Bulk(val)
}

func cmdIncr(ctx *Context, args [][]byte) protocol.Reply {
	if len(args) != 1 {
		return protocol.Errorf("wrong number of arguments for 'incr' command")
	}
	n, err := ctx.Keyspace.Incr(string(args[0]))
	if err != nil {
		if _, ok := err.(*store.ErrWrongType); ok {
			return wrongTypeReply(err)
		}
		return protocol.Errorf("%s", err.Error())
	}
	return protocol.Integer(n)
}

func cmdType(ctx *Context, args [][]byte) protocol.Reply {
	if len(args) != 1 {
		return protocol.Errorf("wrong number of arguments for 'type' command")
	}
	return protocol.SimpleString(ctx.Keyspace.Type(string(args[0])).String())
}

func cmdKeys(ctx *Context, args [][]byte) protocol.Reply {
	if len(args) != 1 {
		return protocol.Errorf("wrong number of arguments for 'keys' command")
	}
	if string(args[0]) != "*" {
		return protocol.Errorf("KEYS only supports the '*' pattern")
	}
	keys := ctx.Keyspace.Keys()
	out := make([]protocol.Reply, len(keys))
	for i, k := range keys {
		out[i] = protocol.BulkString(k)
	}
	return protocol.Array(out)
}

func cmdDel(ctx *Context, args [][]byte) protocol.Reply {
	if len(args) < 1 {
		return protocol.Errorf("wrong number of arguments for 'del' command")
	}
	var n int64
	for _, a := range args {
		if ctx.Keyspace.Del(string(a)) {
			n++
		}
	}
	return protocol.Integer(n)
}

// wrongTypeReply translates a *store.ErrWrongType into the distinguished
// -WRONGTYPE reply spec.md §3 invariant 1 requires; any other error is
// surfaced as a generic usage error.
func wrongTypeReply(err error) protocol.Reply {
	if _, ok := err.(*store.ErrWrongType); ok {
		return protocol.WrongType("Operation against a key holding the wrong kind of value")
	}
	return protocol.Errorf("%s", err.Error())
}
