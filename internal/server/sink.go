// Package server implements the TCP accept loop and per-connection FSM
// (spec.md §4.D): admission control, the reader/writer goroutine pair per
// client, master-side write propagation, and switching a connection to a
// replica link after PSYNC.
// Grounded on the teacher's Server/Client/readPump/writePump shape
// (ws/server.go), adapted from WebSocket framing to the raw RESP codec of
// spec.md §4.A.
package server

import (
	"net"
	"sync"
)

// clientSink is the write half of an accepted connection, addressable
// from other goroutines once it becomes a pub/sub or replica fanout
// target (spec.md §9). A single writer goroutine drains sendCh so replies
// written on the connection's own request/reply path and replies pushed
// in from elsewhere (PUBLISH, replica propagation and ACK requests) never
// interleave mid-frame.
type clientSink struct {
	id     int64
	conn   net.Conn
	remote string

	sendCh    chan []byte
	closeOnce sync.Once
	closed    chan struct{}
}

const sendBufferSize = 256

func newClientSink(id int64, conn net.Conn) *clientSink {
	return &clientSink{
		id:     id,
		conn:   conn,
		remote: conn.RemoteAddr().String(),
		sendCh: make(chan []byte, sendBufferSize),
		closed: make(chan struct{}),
	}
}

// Send enqueues already-framed bytes for the writer goroutine. It blocks
// if the send buffer is full rather than silently dropping a reply: every
// request on this protocol expects exactly one reply, so dropping would
// break the client's framing, not just degrade a best-effort push.
func (c *clientSink) Send(p []byte) error {
	select {
	case c.sendCh <- p:
		return nil
	case <-c.closed:
		return net.ErrClosed
	}
}

func (c *clientSink) RemoteAddr() string { return c.remote }

// writePump drains sendCh onto the socket until the connection is closed,
// mirroring the teacher's writePump (ws/server.go).
func (c *clientSink) writePump() {
	for {
		select {
		case p := <-c.sendCh:
			if _, err := c.conn.Write(p); err != nil {
				c.close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

// close shuts the connection down exactly once, safe to call from either
// the reader or writer side.
func (c *clientSink) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
}
