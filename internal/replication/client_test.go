package replication

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/emberdb/emberdb/internal/commands"
	"github.com/emberdb/emberdb/internal/config"
	"github.com/emberdb/emberdb/internal/protocol"
	"github.com/emberdb/emberdb/internal/pubsub"
	"github.com/emberdb/emberdb/internal/store"
)

func TestParseFullResync(t *testing.T) {
	replID, offset, err := parseFullResync("+FULLRESYNC 8371b4fb1155b71f4a04d3e1bc3e18c4a990aeeb 42")
	if err != nil {
		t.Fatalf("parseFullResync: %v", err)
	}
	if replID != "8371b4fb1155b71f4a04d3e1bc3e18c4a990aeeb" || offset != 42 {
		t.Fatalf("got %q %d", replID, offset)
	}

	for _, bad := range []string{"", "+OK", "-ERR nope", "+FULLRESYNC onlyone", "+FULLRESYNC id notanumber"} {
		if _, _, err := parseFullResync(bad); err == nil {
			t.Errorf("parseFullResync(%q): expected error", bad)
		}
	}
}

// TestClientHandshakeAndReplay runs a scripted master that accepts one
// replica connection and walks it through the full handshake, then streams
// frames and collects the ACK the replica sends back in response to GETACK.
func TestClientHandshakeAndReplay(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	const replID = "8371b4fb1155b71f4a04d3e1bc3e18c4a990aeeb"
	setFrame := protocol.EncodeCommand("SET", "a", "1")
	getackFrame := protocol.EncodeCommand("REPLCONF", "GETACK", "*")

	ackCh := make(chan [][]byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := protocol.NewReader(conn)

		expect := func(want ...string) bool {
			args, _, err := r.ReadCommand()
			if err != nil || len(args) != len(want) {
				return false
			}
			for i := range want {
				if string(args[i]) != want[i] {
					return false
				}
			}
			return true
		}

		if !expect("PING") {
			return
		}
		conn.Write([]byte("+PONG\r\n"))
		args, _, err := r.ReadCommand()
		if err != nil || len(args) != 3 || string(args[0]) != "REPLCONF" || string(args[1]) != "listening-port" {
			return
		}
		conn.Write([]byte("+OK\r\n"))
		if !expect("REPLCONF", "capa", "psync2") {
			return
		}
		conn.Write([]byte("+OK\r\n"))
		if !expect("PSYNC", "?", "-1") {
			return
		}

		blob := EmptySnapshotBlob()
		conn.Write([]byte("+FULLRESYNC " + replID + " 0\r\n"))
		conn.Write([]byte("$" + strconv.Itoa(len(blob)) + "\r\n"))
		conn.Write(blob)

		conn.Write(setFrame)
		conn.Write(getackFrame)

		ack, _, err := r.ReadCommand()
		if err != nil {
			return
		}
		ackCh <- ack
	}()

	ks := store.New()
	ctx := &commands.Context{
		Keyspace: ks,
		PubSub:   pubsub.New(),
		Role:     config.RoleReplica,
		Config:   &config.Config{},
		Logger:   zerolog.Nop(),
	}
	addr := ln.Addr().(*net.TCPAddr)
	c := NewClient("127.0.0.1", addr.Port, 7777, ctx, zerolog.Nop())
	ctx.ReplIDFn = c.ReplID
	ctx.OffsetFn = c.Offset

	done := make(chan struct{})
	go func() {
		// connectAndReplay returns with an error once the scripted master
		// hangs up; the handshake and replay must already have happened.
		c.connectAndReplay(make(chan struct{}))
		close(done)
	}()

	var ack [][]byte
	select {
	case ack = <-ackCh:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for REPLCONF ACK")
	}

	if len(ack) != 3 || string(ack[0]) != "REPLCONF" || string(ack[1]) != "ACK" {
		t.Fatalf("unexpected ack frame: %q", ack)
	}
	// The reported offset predates the GETACK frame itself: only the SET
	// frame's bytes have been accounted.
	if got := string(ack[2]); got != strconv.Itoa(len(setFrame)) {
		t.Fatalf("acked offset = %s, want %d", got, len(setFrame))
	}

	if v, ok, _ := ks.Get("a"); !ok || string(v) != "1" {
		t.Fatalf("replicated SET not applied: %q %v", v, ok)
	}
	if c.ReplID() != replID {
		t.Fatalf("replid = %q", c.ReplID())
	}

	ln.Close()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("replay loop did not exit after master hangup")
	}
}
