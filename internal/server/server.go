package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/emberdb/emberdb/internal/commands"
	"github.com/emberdb/emberdb/internal/config"
	"github.com/emberdb/emberdb/internal/health"
	"github.com/emberdb/emberdb/internal/metrics"
	"github.com/emberdb/emberdb/internal/ratelimit"
)

// drainGrace bounds how long Shutdown waits for in-flight connections to
// finish on their own before they are force-closed, mirroring the
// teacher's grace-period drain loop in Shutdown (ws/server.go).
const drainGrace = 30 * time.Second

// Server owns the TCP listener, the metrics HTTP endpoint, and the set of
// live connections. Grounded on the teacher's Server (ws/server.go):
// NewServer wires dependencies once, Start opens sockets and spawns the
// accept loop, Shutdown drains gracefully then force-closes stragglers.
type Server struct {
	cfg    *config.Config
	ctx    *commands.Context
	logger zerolog.Logger

	guard   *health.Guard
	limiter *ratelimit.Limiter

	listener   net.Listener
	metricsSrv *http.Server

	lastConnID atomic.Int64
	conns      sync.Map // int64 -> *clientSink

	shuttingDown atomic.Bool
	stopCh       chan struct{}
	wg           sync.WaitGroup
}

// New constructs a Server. ctx must already have Keyspace, PubSub, Role,
// Config, ReplIDFn, OffsetFn and (on a master) Master and SnapshotBlob
// wired; see cmd/emberdb-server.
func New(cfg *config.Config, ctx *commands.Context, logger zerolog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		ctx:     ctx,
		logger:  logger,
		guard:   health.New(cfg.MaxConnections, cfg.CPURejectThreshold),
		limiter: ratelimit.New(cfg.MaxCommandsPerSec),
		stopCh:  make(chan struct{}),
	}
}

func (s *Server) nextConnID() int64 {
	return s.lastConnID.Add(1)
}

// Start opens the TCP listener and the metrics HTTP server and begins
// accepting connections. It returns once both are listening; the accept
// loop itself runs in a background goroutine tracked by s.wg.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.logger.Info().Str("addr", s.cfg.Addr).Str("role", string(s.cfg.Role)).Msg("listening")

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", s.handleHealth)
	s.metricsSrv = &http.Server{Addr: s.cfg.MetricsAddr, Handler: mux}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	s.wg.Add(1)
	go s.acceptLoop()

	s.wg.Add(1)
	go s.sampleMetrics()

	return nil
}

// sampleMetrics refreshes the gauges that track shared state no single
// command path owns, the way the teacher's system monitor samples on a
// ticker (ws/internal/shared/monitoring/system_monitor.go).
func (s *Server) sampleMetrics() {
	defer s.wg.Done()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
		case <-s.stopCh:
			return
		}
		metrics.KeyspaceKeys.Set(float64(s.ctx.Keyspace.Len()))
		metrics.BlockedClients.Set(float64(s.ctx.Keyspace.BlockedWaiters()))
		if s.ctx.OffsetFn != nil {
			metrics.ReplicationOffset.Set(float64(s.ctx.OffsetFn()))
		}
		if s.ctx.Master != nil {
			metrics.ConnectedReplicas.Set(float64(s.ctx.Master.ReplicaCount()))
		}
		if s.ctx.LinkUpFn != nil {
			if s.ctx.LinkUpFn() {
				metrics.ReplicaLinkUp.Set(1)
			} else {
				metrics.ReplicaLinkUp.Set(0)
			}
		}
	}
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.shuttingDown.Load() {
				return
			}
			s.logger.Error().Err(err).Msg("accept error")
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// Shutdown stops accepting new connections, gives in-flight connections up
// to drainGrace to finish, then force-closes any that remain and waits for
// every tracked goroutine to exit. Grounded on the teacher's Shutdown
// (ws/server.go): atomic flag, listener close, grace-period drain, force
// close, context cancel, wg.Wait.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shuttingDown.Store(true)
	close(s.stopCh)
	if s.listener != nil {
		s.listener.Close()
	}
	if s.metricsSrv != nil {
		s.metricsSrv.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(drainGrace):
		s.logger.Warn().Msg("drain grace period elapsed, forcing remaining connections closed")
	case <-ctx.Done():
	}

	s.conns.Range(func(_, v any) bool {
		v.(*clientSink).close()
		return true
	})

	select {
	case <-done:
		return nil
	case <-time.After(5 * time.Second):
		return ctx.Err()
	}
}
