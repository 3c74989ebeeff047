package server

import (
	"bytes"
	"errors"
	"io"
	"net"
	"time"

	"github.com/emberdb/emberdb/internal/commands"
	"github.com/emberdb/emberdb/internal/config"
	"github.com/emberdb/emberdb/internal/metrics"
	"github.com/emberdb/emberdb/internal/protocol"
)

// handleConn owns one accepted connection end to end: admission control,
// session setup, the read/dispatch/reply loop, master-side propagation, and
// teardown. Grounded on the teacher's per-client goroutine in
// ws/server.go (accept loop hands the conn to a goroutine that blocks on
// reads until it errs or is closed).
func (s *Server) handleConn(conn net.Conn) {
	ok, reason := s.guard.Admit()
	if !ok {
		metrics.ConnectionsRejected.Inc()
		s.logger.Warn().Str("remote", conn.RemoteAddr().String()).Str("reason", reason).Msg("connection rejected")
		conn.Close()
		return
	}
	defer s.guard.Release()

	metrics.ConnectionsTotal.Inc()
	metrics.ConnectionsActive.Inc()
	defer metrics.ConnectionsActive.Dec()

	id := s.nextConnID()
	sink := newClientSink(id, conn)
	s.conns.Store(id, sink)
	go sink.writePump()
	defer s.conns.Delete(id)
	defer sink.close()

	sess := commands.NewSession(id, sink)
	defer s.cleanupSession(sess)

	reader := protocol.NewReader(conn)
	writer := protocol.NewWriter(sinkWriter{sink})

	isReplicaLink := false
	for {
		args, _, err := reader.ReadCommand()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Debug().Err(err).Str("remote", sink.RemoteAddr()).Msg("connection read error")
			}
			return
		}
		if !s.limiter.Allow(id) {
			metrics.RateLimitedCommands.Inc()
			_ = writer.WriteReply(protocol.Errorf("max requests per second exceeded, please slow down"))
			_ = writer.Flush()
			continue
		}

		name := commandName(args)
		start := time.Now()
		reply := commands.Execute(s.ctx, sess, args)
		metrics.CommandDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		if reply.IsError() {
			metrics.CommandsTotal.WithLabelValues(name, "error").Inc()
		} else {
			metrics.CommandsTotal.WithLabelValues(name, "ok").Inc()
		}

		// Spec.md §4.D step 4: replica links never feed propagation, and
		// MULTI-era commands were only queued — EXEC replays and propagates
		// those itself.
		if !isReplicaLink && !sess.InTransaction &&
			s.ctx.Role == config.RoleMaster && s.ctx.Master != nil &&
			commands.ShouldPropagate(name, reply) {
			s.ctx.Master.Propagate(commands.EncodeFrame(string(args[0]), args[1:]))
		}

		if !reply.IsNone() {
			if err := writer.WriteReply(reply); err != nil || writer.Flush() != nil {
				return
			}
		}

		if sess.BecameReplica && !isReplicaLink {
			// PSYNC already wrote FULLRESYNC + the snapshot directly to the
			// sink and returned NoReply; this same loop now simply keeps
			// reading frames off the connection. The only frames a replica
			// sends back up this link are REPLCONF ACK, which dispatch
			// already routes to ctx.Master.UpdateAck, so no separate
			// read-half goroutine is needed.
			isReplicaLink = true
			s.logger.Info().Str("remote", sink.RemoteAddr()).Msg("connection promoted to replica link")
		}
	}
}

func (s *Server) cleanupSession(sess *commands.Session) {
	s.limiter.Remove(sess.ID)
	s.ctx.PubSub.UnsubscribeAll(sess.Sink)
	if s.ctx.Master != nil {
		s.ctx.Master.RemoveReplica(sess.Sink)
	}
}

func commandName(args [][]byte) string {
	if len(args) == 0 {
		return ""
	}
	return string(bytes.ToUpper(args[0]))
}

// sinkWriter adapts a clientSink to io.Writer so protocol.Writer can buffer
// and flush onto it without the command layer ever touching net.Conn
// directly.
type sinkWriter struct{ s *clientSink }

func (w sinkWriter) Write(p []byte) (int, error) {
	b := make([]byte, len(p))
	copy(b, p)
	if err := w.s.Send(b); err != nil {
		return 0, err
	}
	return len(p), nil
}
