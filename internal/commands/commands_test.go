package commands_test

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/emberdb/emberdb/internal/commands"
	"github.com/emberdb/emberdb/internal/config"
	"github.com/emberdb/emberdb/internal/protocol"
	"github.com/emberdb/emberdb/internal/pubsub"
	"github.com/emberdb/emberdb/internal/replication"
	"github.com/emberdb/emberdb/internal/store"
)

// captureSink records everything pushed at it, standing in for a
// connection's write half.
type captureSink struct {
	mu   sync.Mutex
	addr string
	got  []byte
}

func (s *captureSink) Send(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, p...)
	return nil
}

func (s *captureSink) RemoteAddr() string { return s.addr }

func (s *captureSink) bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.got))
	copy(out, s.got)
	return out
}

func newTestContext() (*commands.Context, *replication.Master) {
	master := replication.NewMaster("8371b4fb1155b71f4a04d3e1bc3e18c4a990aeeb")
	ctx := &commands.Context{
		Keyspace:     store.New(),
		PubSub:       pubsub.New(),
		Master:       master,
		Role:         config.RoleMaster,
		Config:       &config.Config{Dir: "/var/lib/emberdb", SnapshotFilename: "dump.rdb"},
		ReplIDFn:     master.ReplID,
		OffsetFn:     master.Offset,
		SnapshotBlob: replication.EmptySnapshotBlob,
		Logger:       zerolog.Nop(),
		StartedAt:    time.Now(),
	}
	return ctx, master
}

func newTestSession(id int64) (*commands.Session, *captureSink) {
	s := &captureSink{addr: "127.0.0.1:50000"}
	return commands.NewSession(id, s), s
}

// enc renders a reply to its wire form for assertions.
func enc(t *testing.T, r protocol.Reply) string {
	t.Helper()
	var buf bytes.Buffer
	w := protocol.NewWriter(&buf)
	if err := w.WriteReply(r); err != nil {
		t.Fatalf("encode reply: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("flush reply: %v", err)
	}
	return buf.String()
}

func run(t *testing.T, ctx *commands.Context, sess *commands.Session, args ...string) string {
	t.Helper()
	frame := make([][]byte, len(args))
	for i, a := range args {
		frame[i] = []byte(a)
	}
	return enc(t, commands.Execute(ctx, sess, frame))
}

func TestPingEcho(t *testing.T) {
	ctx, _ := newTestContext()
	sess, _ := newTestSession(1)

	if got := run(t, ctx, sess, "PING"); got != "+PONG\r\n" {
		t.Fatalf("PING = %q", got)
	}
	if got := run(t, ctx, sess, "ECHO", "hi"); got != "$2\r\nhi\r\n" {
		t.Fatalf("ECHO = %q", got)
	}
}

func TestSetGetMissing(t *testing.T) {
	ctx, _ := newTestContext()
	sess, _ := newTestSession(1)

	if got := run(t, ctx, sess, "SET", "foo", "bar"); got != "+OK\r\n" {
		t.Fatalf("SET = %q", got)
	}
	if got := run(t, ctx, sess, "GET", "foo"); got != "$3\r\nbar\r\n" {
		t.Fatalf("GET = %q", got)
	}
	if got := run(t, ctx, sess, "GET", "nope"); got != "$-1\r\n" {
		t.Fatalf("GET missing = %q", got)
	}
}

func TestSetWithExpiry(t *testing.T) {
	ctx, _ := newTestContext()
	sess, _ := newTestSession(1)

	run(t, ctx, sess, "SET", "foo", "bar", "PX", "50")
	if got := run(t, ctx, sess, "TYPE", "foo"); got != "+string\r\n" {
		t.Fatalf("TYPE before expiry = %q", got)
	}
	time.Sleep(80 * time.Millisecond)
	if got := run(t, ctx, sess, "GET", "foo"); got != "$-1\r\n" {
		t.Fatalf("GET after expiry = %q", got)
	}
	if got := run(t, ctx, sess, "TYPE", "foo"); got != "+none\r\n" {
		t.Fatalf("TYPE after expiry = %q", got)
	}
}

func TestWrongTypeReply(t *testing.T) {
	ctx, _ := newTestContext()
	sess, _ := newTestSession(1)

	run(t, ctx, sess, "SET", "k", "v")
	got := run(t, ctx, sess, "RPUSH", "k", "x")
	if !strings.HasPrefix(got, "-WRONGTYPE ") {
		t.Fatalf("RPUSH on string = %q", got)
	}
	if after := run(t, ctx, sess, "GET", "k"); after != "$1\r\nv\r\n" {
		t.Fatalf("keyspace mutated by failed op: %q", after)
	}
}

func TestListCommands(t *testing.T) {
	ctx, _ := newTestContext()
	sess, _ := newTestSession(1)

	if got := run(t, ctx, sess, "RPUSH", "l", "a", "b", "c"); got != ":3\r\n" {
		t.Fatalf("RPUSH = %q", got)
	}
	if got := run(t, ctx, sess, "LRANGE", "l", "0", "-1"); got != "*3\r\n$1\r\na\r\n$1\r\nb\r\n$1\r\nc\r\n" {
		t.Fatalf("LRANGE = %q", got)
	}
	if got := run(t, ctx, sess, "LPOP", "l"); got != "$1\r\na\r\n" {
		t.Fatalf("LPOP = %q", got)
	}
	if got := run(t, ctx, sess, "LLEN", "l"); got != ":2\r\n" {
		t.Fatalf("LLEN = %q", got)
	}
	if got := run(t, ctx, sess, "LRANGE", "l", "5", "10"); got != "*0\r\n" {
		t.Fatalf("LRANGE out of bounds = %q", got)
	}
}

func TestTransactionScenario(t *testing.T) {
	ctx, _ := newTestContext()
	sess, _ := newTestSession(1)

	if got := run(t, ctx, sess, "MULTI"); got != "+OK\r\n" {
		t.Fatalf("MULTI = %q", got)
	}
	if got := run(t, ctx, sess, "INCR", "n"); got != "+QUEUED\r\n" {
		t.Fatalf("queued INCR = %q", got)
	}
	if got := run(t, ctx, sess, "INCR", "n"); got != "+QUEUED\r\n" {
		t.Fatalf("queued INCR = %q", got)
	}
	if got := run(t, ctx, sess, "EXEC"); got != "*2\r\n:1\r\n:2\r\n" {
		t.Fatalf("EXEC = %q", got)
	}
	if got := run(t, ctx, sess, "EXEC"); got != "-ERR EXEC without MULTI\r\n" {
		t.Fatalf("second EXEC = %q", got)
	}
	if got := run(t, ctx, sess, "DISCARD"); got != "-ERR DISCARD without MULTI\r\n" {
		t.Fatalf("DISCARD = %q", got)
	}
}

func TestDiscardDropsQueue(t *testing.T) {
	ctx, _ := newTestContext()
	sess, _ := newTestSession(1)

	run(t, ctx, sess, "MULTI")
	run(t, ctx, sess, "SET", "k", "v")
	if got := run(t, ctx, sess, "DISCARD"); got != "+OK\r\n" {
		t.Fatalf("DISCARD = %q", got)
	}
	if got := run(t, ctx, sess, "GET", "k"); got != "$-1\r\n" {
		t.Fatalf("discarded SET was applied: %q", got)
	}
}

func TestExecPropagatesQueuedWrites(t *testing.T) {
	ctx, master := newTestContext()
	sess, _ := newTestSession(1)

	before := master.Offset()
	run(t, ctx, sess, "MULTI")
	run(t, ctx, sess, "SET", "a", "1")
	run(t, ctx, sess, "GET", "a")
	run(t, ctx, sess, "EXEC")

	wantFrame := protocol.EncodeCommand("SET", "a", "1")
	if got := master.Offset() - before; got != int64(len(wantFrame)) {
		t.Fatalf("offset advanced by %d, want %d (only the queued SET)", got, len(wantFrame))
	}
}

func TestSubscribedModeRestriction(t *testing.T) {
	ctx, _ := newTestContext()
	sess, _ := newTestSession(1)

	if got := run(t, ctx, sess, "SUBSCRIBE", "news"); got != "*3\r\n$9\r\nsubscribe\r\n$4\r\nnews\r\n:1\r\n" {
		t.Fatalf("SUBSCRIBE = %q", got)
	}
	if got := run(t, ctx, sess, "GET", "k"); got != "-ERR Can't execute 'get' in subscribed mode\r\n" {
		t.Fatalf("restricted GET = %q", got)
	}
	if got := run(t, ctx, sess, "PING"); got != "*2\r\n$4\r\npong\r\n$0\r\n\r\n" {
		t.Fatalf("subscribed PING = %q", got)
	}
	if got := run(t, ctx, sess, "UNSUBSCRIBE", "news"); got != "*3\r\n$11\r\nunsubscribe\r\n$4\r\nnews\r\n:0\r\n" {
		t.Fatalf("UNSUBSCRIBE = %q", got)
	}
	if got := run(t, ctx, sess, "GET", "k"); got != "$-1\r\n" {
		t.Fatalf("GET after unsubscribe = %q", got)
	}
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	ctx, _ := newTestContext()
	subSess, subSink := newTestSession(1)
	pubSess, _ := newTestSession(2)

	run(t, ctx, subSess, "SUBSCRIBE", "news")
	if got := run(t, ctx, pubSess, "PUBLISH", "news", "hello"); got != ":1\r\n" {
		t.Fatalf("PUBLISH = %q", got)
	}

	want := "*3\r\n$7\r\nmessage\r\n$4\r\nnews\r\n$5\r\nhello\r\n"
	if got := string(subSink.bytes()); got != want {
		t.Fatalf("subscriber received %q, want %q", got, want)
	}

	if got := run(t, ctx, pubSess, "PUBLISH", "empty", "x"); got != ":0\r\n" {
		t.Fatalf("PUBLISH to empty channel = %q", got)
	}
}

func TestXAddAutogenScenario(t *testing.T) {
	ctx, _ := newTestContext()
	sess, _ := newTestSession(1)

	if got := run(t, ctx, sess, "XADD", "s", "1-*", "f", "v"); got != "$3\r\n1-0\r\n" {
		t.Fatalf("first XADD 1-* = %q", got)
	}
	if got := run(t, ctx, sess, "XADD", "s", "1-*", "f", "v"); got != "$3\r\n1-1\r\n" {
		t.Fatalf("second XADD 1-* = %q", got)
	}
	if got := run(t, ctx, sess, "XADD", "s", "0-0", "f", "v"); got != "-ERR The ID specified in XADD must be greater than 0-0\r\n" {
		t.Fatalf("XADD 0-0 = %q", got)
	}
	if got := run(t, ctx, sess, "XADD", "s", "1-1", "f", "v"); got != "-ERR The ID specified in XADD is equal or smaller than the target stream top item\r\n" {
		t.Fatalf("stale XADD = %q", got)
	}
}

func TestXRangeAndXRead(t *testing.T) {
	ctx, _ := newTestContext()
	sess, _ := newTestSession(1)

	run(t, ctx, sess, "XADD", "s", "1-1", "f", "v1")
	run(t, ctx, sess, "XADD", "s", "1-2", "f", "v2")

	want := "*2\r\n" +
		"*2\r\n$3\r\n1-1\r\n*2\r\n$1\r\nf\r\n$2\r\nv1\r\n" +
		"*2\r\n$3\r\n1-2\r\n*2\r\n$1\r\nf\r\n$2\r\nv2\r\n"
	if got := run(t, ctx, sess, "XRANGE", "s", "-", "+"); got != want {
		t.Fatalf("XRANGE = %q, want %q", got, want)
	}

	// Bare-ms end bound resolves to the highest seq at that ms.
	if got := run(t, ctx, sess, "XRANGE", "s", "1-2", "1"); got != "*1\r\n*2\r\n$3\r\n1-2\r\n*2\r\n$1\r\nf\r\n$2\r\nv2\r\n" {
		t.Fatalf("XRANGE bare-ms end = %q", got)
	}

	wantRead := "*1\r\n*2\r\n$1\r\ns\r\n*1\r\n*2\r\n$3\r\n1-2\r\n*2\r\n$1\r\nf\r\n$2\r\nv2\r\n"
	if got := run(t, ctx, sess, "XREAD", "STREAMS", "s", "1-1"); got != wantRead {
		t.Fatalf("XREAD = %q, want %q", got, wantRead)
	}

	// Non-blocking XREAD with nothing newer returns the empty array.
	if got := run(t, ctx, sess, "XREAD", "STREAMS", "s", "1-2"); got != "*0\r\n" {
		t.Fatalf("empty XREAD = %q", got)
	}
}

func TestXReadBlockTimesOut(t *testing.T) {
	ctx, _ := newTestContext()
	sess, _ := newTestSession(1)

	run(t, ctx, sess, "XADD", "s", "1-1", "f", "v")
	start := time.Now()
	got := run(t, ctx, sess, "XREAD", "BLOCK", "50", "STREAMS", "s", "$")
	if got != "*-1\r\n" {
		t.Fatalf("blocked XREAD = %q", got)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Fatalf("XREAD returned before its deadline")
	}
}

func TestBLPopImmediateAndTimeout(t *testing.T) {
	ctx, _ := newTestContext()
	sess, _ := newTestSession(1)

	run(t, ctx, sess, "RPUSH", "q", "x")
	if got := run(t, ctx, sess, "BLPOP", "q", "1"); got != "*2\r\n$1\r\nq\r\n$1\r\nx\r\n" {
		t.Fatalf("immediate BLPOP = %q", got)
	}

	start := time.Now()
	if got := run(t, ctx, sess, "BLPOP", "q", "0.05"); got != "$-1\r\n" {
		t.Fatalf("timed-out BLPOP = %q", got)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Fatalf("BLPOP returned before its deadline")
	}
}

func TestKeysDelDBSize(t *testing.T) {
	ctx, _ := newTestContext()
	sess, _ := newTestSession(1)

	run(t, ctx, sess, "SET", "b", "2")
	run(t, ctx, sess, "SET", "a", "1")
	if got := run(t, ctx, sess, "KEYS", "*"); got != "*2\r\n$1\r\na\r\n$1\r\nb\r\n" {
		t.Fatalf("KEYS = %q", got)
	}
	if got := run(t, ctx, sess, "DBSIZE"); got != ":2\r\n" {
		t.Fatalf("DBSIZE = %q", got)
	}
	if got := run(t, ctx, sess, "DEL", "a", "missing"); got != ":1\r\n" {
		t.Fatalf("DEL = %q", got)
	}
	if got := run(t, ctx, sess, "FLUSHALL"); got != "+OK\r\n" {
		t.Fatalf("FLUSHALL = %q", got)
	}
	if got := run(t, ctx, sess, "DBSIZE"); got != ":0\r\n" {
		t.Fatalf("DBSIZE after FLUSHALL = %q", got)
	}
}

func TestConfigGetAndInfo(t *testing.T) {
	ctx, _ := newTestContext()
	sess, _ := newTestSession(1)

	if got := run(t, ctx, sess, "CONFIG", "GET", "dir"); got != "*2\r\n$3\r\ndir\r\n$16\r\n/var/lib/emberdb\r\n" {
		t.Fatalf("CONFIG GET dir = %q", got)
	}
	if got := run(t, ctx, sess, "CONFIG", "GET", "dbfilename"); got != "*2\r\n$10\r\ndbfilename\r\n$8\r\ndump.rdb\r\n" {
		t.Fatalf("CONFIG GET dbfilename = %q", got)
	}

	info := run(t, ctx, sess, "INFO", "replication")
	for _, want := range []string{"role:master", "master_replid:8371b4fb1155b71f4a04d3e1bc3e18c4a990aeeb", "master_repl_offset:0"} {
		if !strings.Contains(info, want) {
			t.Fatalf("INFO missing %q: %q", want, info)
		}
	}
}

func TestPSyncRegistersReplica(t *testing.T) {
	ctx, master := newTestContext()
	sess, s := newTestSession(1)

	if got := run(t, ctx, sess, "PSYNC", "?", "-1"); got != "" {
		t.Fatalf("PSYNC produced a normal reply: %q", got)
	}
	if !sess.BecameReplica {
		t.Fatal("session not flagged as replica")
	}
	if master.ReplicaCount() != 1 {
		t.Fatalf("replica count = %d", master.ReplicaCount())
	}

	blob := replication.EmptySnapshotBlob()
	want := "+FULLRESYNC " + master.ReplID() + " 0\r\n$88\r\n" + string(blob)
	if got := string(s.bytes()); got != want {
		t.Fatalf("PSYNC wire bytes = %q, want %q", got, want)
	}
}

func TestReplConfGetAckSendsOffset(t *testing.T) {
	ctx, _ := newTestContext()
	ctx.OffsetFn = func() int64 { return 42 }
	sess, s := newTestSession(1)
	sess.IsReplicaLink = true

	if got := run(t, ctx, sess, "REPLCONF", "GETACK", "*"); got != "" {
		t.Fatalf("GETACK produced a normal reply: %q", got)
	}
	want := string(protocol.EncodeCommand("REPLCONF", "ACK", "42"))
	if got := string(s.bytes()); got != want {
		t.Fatalf("ACK frame = %q, want %q", got, want)
	}
}

func TestReplConfAckUpdatesMaster(t *testing.T) {
	ctx, master := newTestContext()
	sess, s := newTestSession(1)

	run(t, ctx, sess, "PSYNC", "?", "-1")
	s.mu.Lock()
	s.got = nil
	s.mu.Unlock()

	// "SET a 1" is a 27-byte frame; the replica acking 27 satisfies a WAIT
	// whose target was captured right after the propagation.
	frame := protocol.EncodeCommand("SET", "a", "1")
	if len(frame) != 27 {
		t.Fatalf("frame length = %d, want 27", len(frame))
	}
	master.Propagate(frame)

	if got := run(t, ctx, sess, "REPLCONF", "ACK", "27"); got != "" {
		t.Fatalf("ACK produced a reply: %q", got)
	}
	if n := master.Wait(1, 10); n != 1 {
		t.Fatalf("Wait after ACK = %d, want 1", n)
	}
}

func TestUnknownCommand(t *testing.T) {
	ctx, _ := newTestContext()
	sess, _ := newTestSession(1)
	if got := run(t, ctx, sess, "BOGUS"); got != "-ERR unknown command 'bogus'\r\n" {
		t.Fatalf("unknown command = %q", got)
	}
}
