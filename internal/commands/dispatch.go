package commands

import (
	"strings"

	"github.com/emberdb/emberdb/internal/protocol"
)

// Execute runs one parsed command frame against ctx on behalf of sess,
// applying the connection FSM's gating rules in order (spec.md §4.D):
// subscribed-mode restriction, transaction queueing, then dispatch.
func Execute(ctx *Context, sess *Session, frame [][]byte) protocol.Reply {
	if len(frame) == 0 {
		return protocol.Error("ERR empty command")
	}
	name := strings.ToUpper(string(frame[0]))
	args := frame[1:]

	if sess.subscribedMode() {
		if !allowedInSubscribedMode(name) {
			return protocol.Errorf("Can't execute '%s' in subscribed mode", strings.ToLower(name))
		}
		if name == "PING" {
			// Subscribed-mode PING replies with a two-element array
			// instead of the usual +PONG (spec.md §4.C/§4.D).
			return protocol.Array([]protocol.Reply{protocol.BulkString("pong"), protocol.BulkString("")})
		}
	}

	if sess.InTransaction && !isTxControl(name) {
		sess.queued = append(sess.queued, queuedCommand{name: name, args: args})
		return protocol.SimpleString("QUEUED")
	}

	return dispatch(ctx, sess, name, args)
}

func allowedInSubscribedMode(name string) bool {
	switch name {
	case "SUBSCRIBE", "UNSUBSCRIBE", "PSUBSCRIBE", "PUNSUBSCRIBE", "PING", "QUIT":
		return true
	default:
		return false
	}
}

func isTxControl(name string) bool {
	switch name {
	case "MULTI", "EXEC", "DISCARD":
		return true
	default:
		return false
	}
}

func dispatch(ctx *Context, sess *Session, name string, args [][]byte) protocol.Reply {
	switch name {
	case "PING":
		return cmdPing(args)
	case "ECHO":
		return cmdEcho(args)
	case "QUIT":
		return protocol.OK()
	case "COMMAND":
		return cmdCommand(args)
	case "DBSIZE":
		return cmdDBSize(ctx, args)
	case "FLUSHALL":
		return cmdFlushAll(ctx, args)
	case "CONFIG":
		return cmdConfig(ctx, args)
	case "INFO":
		return cmdInfo(ctx, args)

	case "SET":
		return cmdSet(ctx, args)
	case "GET":
		return cmdGet(ctx, args)
	case "INCR":
		return cmdIncr(ctx, args)
	case "TYPE":
		return cmdType(ctx, args)
	case "KEYS":
		return cmdKeys(ctx, args)
	case "DEL":
		return cmdDel(ctx, args)

	case "RPUSH":
		return cmdRPush(ctx, args)
	case "LPUSH":
		return cmdLPush(ctx, args)
	case "LLEN":
		return cmdLLen(ctx, args)
	case "LPOP":
		return cmdLPop(ctx, args)
	case "LRANGE":
		return cmdLRange(ctx, args)
	case "BLPOP":
		return cmdBLPop(ctx, sess, args)

	case "XADD":
		return cmdXAdd(ctx, args)
	case "XRANGE":
		return cmdXRange(ctx, args)
	case "XREAD":
		return cmdXRead(ctx, args)

	case "SUBSCRIBE":
		return cmdSubscribe(ctx, sess, args)
	case "UNSUBSCRIBE":
		return cmdUnsubscribe(ctx, sess, args)
	case "PSUBSCRIBE":
		return cmdSubscribe(ctx, sess, args)
	case "PUNSUBSCRIBE":
		return cmdUnsubscribe(ctx, sess, args)
	case "PUBLISH":
		return cmdPublish(ctx, args)
	case "PUBSUB":
		return cmdPubSub(ctx, args)

	case "MULTI":
		return cmdMulti(sess, args)
	case "EXEC":
		return cmdExec(ctx, sess, args)
	case "DISCARD":
		return cmdDiscard(sess, args)

	case "REPLCONF":
		return cmdReplConf(ctx, sess, args)
	case "PSYNC":
		return cmdPSync(ctx, sess, args)
	case "WAIT":
		return cmdWait(ctx, args)

	default:
		return protocol.Errorf("unknown command '%s'", strings.ToLower(name))
	}
}
