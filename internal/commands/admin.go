package commands

import (
	"fmt"
	"strings"

	"github.com/emberdb/emberdb/internal/config"
	"github.com/emberdb/emberdb/internal/protocol"
)

func cmdPing(args [][]byte) protocol.Reply {
	if len(args) > 1 {
		return protocol.Errorf("wrong number of arguments for 'ping' command")
	}
	if len(args) == 1 {
		return protocol.Bulk(args[0])
	}
	return protocol.SimpleString("PONG")
}

func cmdEcho(args [][]byte) protocol.Reply {
	if len(args) != 1 {
		return protocol.Errorf("wrong number of arguments for 'echo' command")
	}
	return protocol.Bulk(args[0])
}

// cmdCommand answers COMMAND (no subcommand) and COMMAND DOCS/COUNT with an
// empty array: clients typically issue this at startup to probe capability
// and tolerate an empty catalog.
func cmdCommand(args [][]byte) protocol.Reply {
	return protocol.Array(nil)
}

func cmdDBSize(ctx *Context, args [][]byte) protocol.Reply {
	if len(args) != 0 {
		return protocol.Errorf("wrong number of arguments for 'dbsize' command")
	}
	return protocol.Integer(int64(ctx.Keyspace.DBSize()))
}

func cmdFlushAll(ctx *Context, args [][]byte) protocol.Reply {
	if len(args) != 0 {
		return protocol.Errorf("wrong number of arguments for 'flushall' command")
	}
	ctx.Keyspace.FlushAll()
	return protocol.OK()
}

// cmdConfig answers CONFIG GET <param>. Only the handful of parameters
// INFO-adjacent tooling probes are recognized; anything else yields an
// empty array, matching a real server's behavior for an unknown parameter.
func cmdConfig(ctx *Context, args [][]byte) protocol.Reply {
	if len(args) < 1 {
		return protocol.Errorf("wrong number of arguments for 'config' command")
	}
	sub := strings.ToUpper(string(args[0]))
	if sub != "GET" {
		return protocol.Errorf("CONFIG %s is not supported", sub)
	}
	if len(args) != 2 {
		return protocol.Errorf("wrong number of arguments for 'config|get' command")
	}
	param := strings.ToLower(string(args[1]))
	var value string
	switch param {
	case "dir":
		value = ctx.Config.Dir
	case "dbfilename":
		value = ctx.Config.SnapshotFilename
	case "maxmemory":
		value = "0"
	case "appendonly":
		value = "no"
	default:
		return protocol.Array(nil)
	}
	return protocol.Array([]protocol.Reply{protocol.BulkString(param), protocol.BulkString(value)})
}

// cmdInfo answers INFO and INFO replication with the replication section
// spec.md §4.E's test vectors check against: role, connected_slaves,
// master_replid, master_repl_offset.
func cmdInfo(ctx *Context, args [][]byte) protocol.Reply {
	var b strings.Builder
	b.WriteString("# Replication\r\n")
	if ctx.Role == config.RoleMaster {
		fmt.Fprintf(&b, "role:master\r\n")
		fmt.Fprintf(&b, "connected_slaves:%d\r\n", ctx.Master.ReplicaCount())
	} else {
		fmt.Fprintf(&b, "role:slave\r\n")
	}
	fmt.Fprintf(&b, "master_replid:%s\r\n", ctx.ReplIDFn())
	fmt.Fprintf(&b, "master_repl_offset:%d\r\n", ctx.OffsetFn())
	return protocol.BulkString(b.String())
}
