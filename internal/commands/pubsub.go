package commands

import (
	"bytes"
	"strings"

	"github.com/emberdb/emberdb/internal/protocol"
)

// cmdSubscribe implements SUBSCRIBE ch (and is reused for PSUBSCRIBE, which
// treats its pattern argument as a literal channel name — full glob
// subscriptions are a non-goal, spec.md §1).
func cmdSubscribe(ctx *Context, sess *Session, args [][]byte) protocol.Reply {
	if len(args) != 1 {
		return protocol.Errorf("wrong number of arguments for 'subscribe' command")
	}
	ch := string(args[0])
	if _, already := sess.SubscribedChannels[ch]; !already {
		sess.SubscribedChannels[ch] = struct{}{}
		ctx.PubSub.Subscribe(ch, sess.Sink)
	}
	return protocol.Array([]protocol.Reply{
		protocol.BulkString("subscribe"),
		protocol.BulkString(ch),
		protocol.Integer(int64(len(sess.SubscribedChannels))),
	})
}

func cmdUnsubscribe(ctx *Context, sess *Session, args [][]byte) protocol.Reply {
	if len(args) != 1 {
		return protocol.Errorf("wrong number of arguments for 'unsubscribe' command")
	}
	ch := string(args[0])
	if _, ok := sess.SubscribedChannels[ch]; ok {
		delete(sess.SubscribedChannels, ch)
		ctx.PubSub.Unsubscribe(ch, sess.Sink)
	}
	return protocol.Array([]protocol.Reply{
		protocol.BulkString("unsubscribe"),
		protocol.BulkString(ch),
		protocol.Integer(int64(len(sess.SubscribedChannels))),
	})
}

// cmdPublish implements PUBLISH ch msg (spec.md §4.C): every subscriber of
// ch receives a framed ["message", ch, msg] array, and the reply is the
// number of subscribers delivery was attempted to.
func cmdPublish(ctx *Context, args [][]byte) protocol.Reply {
	if len(args) != 2 {
		return protocol.Errorf("wrong number of arguments for 'publish' command")
	}
	ch, msg := string(args[0]), args[1]

	var buf bytes.Buffer
	w := protocol.NewWriter(&buf)
	_ = w.WriteReply(protocol.Array([]protocol.Reply{
		protocol.BulkString("message"),
		protocol.BulkString(ch),
		protocol.Bulk(msg),
	}))
	_ = w.Flush()

	n := ctx.PubSub.Publish(ch, buf.Bytes())
	return protocol.Integer(int64(n))
}

// cmdPubSub implements PUBSUB CHANNELS (spec.md §4.C's expanded admin
// surface): the names of channels with at least one subscriber.
func cmdPubSub(ctx *Context, args [][]byte) protocol.Reply {
	if len(args) < 1 {
		return protocol.Errorf("wrong number of arguments for 'pubsub' command")
	}
	sub := string(args[0])
	if !strings.EqualFold(sub, "channels") {
		return protocol.Errorf("unknown PUBSUB subcommand '%s'", sub)
	}
	chans := ctx.PubSub.Channels()
	out := make([]protocol.Reply, len(chans))
	for i, c := range chans {
		out[i] = protocol.BulkString(c)
	}
	return protocol.Array(out)
}
