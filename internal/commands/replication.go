package commands

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/emberdb/emberdb/internal/protocol"
)

// cmdReplConf implements REPLCONF (spec.md §4.C). Most subcommands are
// handshake bookkeeping the master/replica simply acknowledge; GETACK and
// ACK are the two that actually do something.
func cmdReplConf(ctx *Context, sess *Session, args [][]byte) protocol.Reply {
	if len(args) < 1 {
		return protocol.Errorf("wrong number of arguments for 'replconf' command")
	}
	sub := strings.ToUpper(string(args[0]))

	switch sub {
	case "GETACK":
		// The replica replies with its own ACK out-of-band rather than
		// through this command's normal reply slot (spec.md §4.C, §4.E):
		// the offset it reports is the value that predated this very
		// GETACK frame.
		offset := ctx.OffsetFn()
		ack := protocol.EncodeCommand("REPLCONF", "ACK", strconv.FormatInt(offset, 10))
		_ = sess.Sink.Send(ack)
		return protocol.NoReply()

	case "ACK":
		if len(args) != 2 {
			return protocol.NoReply()
		}
		offset, err := strconv.ParseInt(string(args[1]), 10, 64)
		if err == nil && ctx.Master != nil {
			ctx.Master.UpdateAck(sess.Sink.RemoteAddr(), offset)
		}
		// A replica's ACK is a one-way heartbeat to the master; it never
		// gets a reply, on the link or off it.
		return protocol.NoReply()

	default:
		return protocol.OK()
	}
}

// cmdPSync implements PSYNC ? -1 (spec.md §4.C, §4.E): the master replies
// "+FULLRESYNC <replid> <offset>" immediately followed by the snapshot
// blob framed as a raw bulk string with no trailing CRLF, then registers
// the connection as a replica sink. Because that framing doesn't fit any
// of the ordinary typed Reply shapes, PSYNC writes directly to the sink
// and returns NoReply.
func cmdPSync(ctx *Context, sess *Session, args [][]byte) protocol.Reply {
	if ctx.Master == nil {
		return protocol.Errorf("PSYNC is only valid against a master")
	}

	blob := ctx.SnapshotBlob()

	var buf bytes.Buffer
	w := protocol.NewWriter(&buf)
	_ = w.WriteReply(protocol.SimpleString("FULLRESYNC " + ctx.Master.ReplID() + " " + strconv.FormatInt(ctx.Master.Offset(), 10)))
	_ = w.Flush()
	_ = w.WriteRawBulkHeader(len(blob))
	_ = w.WriteRaw(blob)
	_ = w.Flush()

	if err := sess.Sink.Send(buf.Bytes()); err != nil {
		return protocol.NoReply()
	}

	ctx.Master.AddReplica(sess.Sink)
	sess.BecameReplica = true
	return protocol.NoReply()
}

// cmdWait implements WAIT n timeout_ms (spec.md §4.C, §4.E).
func cmdWait(ctx *Context, args [][]byte) protocol.Reply {
	if len(args) != 2 {
		return protocol.Errorf("wrong number of arguments for 'wait' command")
	}
	n, err1 := strconv.Atoi(string(args[0]))
	timeoutMs, err2 := strconv.Atoi(string(args[1]))
	if err1 != nil || err2 != nil || n < 0 || timeoutMs < 0 {
		return protocol.Errorf("value is not an integer or out of range")
	}
	if ctx.Master == nil {
		return protocol.Integer(0)
	}
	return protocol.Integer(int64(ctx.Master.Wait(n, timeoutMs)))
}
