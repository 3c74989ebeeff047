package commands

import (
	"github.com/emberdb/emberdb/internal/config"
	"github.com/emberdb/emberdb/internal/protocol"
)

func cmdMulti(sess *Session, args [][]byte) protocol.Reply {
	if len(args) != 0 {
		return protocol.Errorf("wrong number of arguments for 'multi' command")
	}
	sess.InTransaction = true
	sess.queued = nil
	return protocol.OK()
}

func cmdDiscard(sess *Session, args [][]byte) protocol.Reply {
	if len(args) != 0 {
		return protocol.Errorf("wrong number of arguments for 'discard' command")
	}
	if !sess.InTransaction {
		return protocol.Errorf("DISCARD without MULTI")
	}
	sess.InTransaction = false
	sess.queued = nil
	return protocol.OK()
}

// cmdExec implements EXEC (spec.md §4.C): it replays every command queued
// since MULTI, in order, against the live keyspace, and returns their
// replies as one array. Each replayed write is individually propagated to
// replicas here — EXEC is the only place MULTI/EXEC-era writes reach the
// replication stream (spec.md §4.E) — rather than by the connection loop's
// normal post-reply propagation step, since EXEC itself is not a write.
func cmdExec(ctx *Context, sess *Session, args [][]byte) protocol.Reply {
	if len(args) != 0 {
		return protocol.Errorf("wrong number of arguments for 'exec' command")
	}
	if !sess.InTransaction {
		return protocol.Errorf("EXEC without MULTI")
	}

	queued := sess.queued
	sess.InTransaction = false
	sess.queued = nil

	replies := make([]protocol.Reply, len(queued))
	for i, cmd := range queued {
		reply := dispatch(ctx, sess, cmd.name, cmd.args)
		replies[i] = reply
		if ctx.Role == config.RoleMaster && ctx.Master != nil && ShouldPropagate(cmd.name, reply) {
			ctx.Master.Propagate(EncodeFrame(cmd.name, cmd.args))
		}
	}
	return protocol.Array(replies)
}

// EncodeFrame re-serializes a decoded command back into its wire frame.
// Re-encoding byte-for-byte reproduces the original framing (spec.md §4.A's
// grammar is fully determined by the argument count and lengths), which is
// all byte-accurate offset accounting (spec.md §3 invariant 5) requires.
func EncodeFrame(name string, args [][]byte) []byte {
	strs := make([]string, 0, len(args)+1)
	strs = append(strs, name)
	for _, a := range args {
		strs = append(strs, string(a))
	}
	return protocol.EncodeCommand(strs...)
}
