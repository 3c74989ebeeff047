// Command emberdb-server is the process entrypoint: it parses the one
// debug flag, loads configuration from the environment, wires the core's
// dependencies for its configured role, and drives OS signal-triggered
// graceful shutdown. Grounded on the teacher's cmd entrypoint (ws/main.go).
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/emberdb/emberdb/internal/commands"
	"github.com/emberdb/emberdb/internal/config"
	"github.com/emberdb/emberdb/internal/logging"
	"github.com/emberdb/emberdb/internal/pubsub"
	"github.com/emberdb/emberdb/internal/replication"
	"github.com/emberdb/emberdb/internal/server"
	"github.com/emberdb/emberdb/internal/store"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (overrides EMBER_LOG_LEVEL)")
	flag.Parse()

	bootLogger := log.New(os.Stdout, "[emberdb] ", log.LstdFlags)

	// automaxprocs rounds GOMAXPROCS down to the container's CPU limit;
	// logged here since it silently changes scheduler behavior.
	bootLogger.Printf("GOMAXPROCS: %d (via automaxprocs)", runtime.GOMAXPROCS(0))

	cfg, err := config.Load(nil)
	if err != nil {
		bootLogger.Fatalf("failed to load configuration: %v", err)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger.Info().Str("config", cfg.Print()).Msg("starting")

	ctx := &commands.Context{
		Keyspace:  store.New(),
		PubSub:    pubsub.New(),
		Role:      cfg.Role,
		Config:    cfg,
		StartedAt: time.Now(),
	}

	var replicaClient *replication.Client
	stopReplica := make(chan struct{})

	switch cfg.Role {
	case config.RoleMaster:
		master := replication.NewMaster(cfg.MasterReplID)
		ctx.Master = master
		ctx.ReplIDFn = master.ReplID
		ctx.OffsetFn = master.Offset
		ctx.SnapshotBlob = replication.EmptySnapshotBlob

	case config.RoleReplica:
		replicaClient = replication.NewClient(cfg.MasterHost, cfg.MasterPort, listenPort(cfg.Addr), ctx, logger)
		ctx.Master = nil
		ctx.ReplIDFn = replicaClient.ReplID
		ctx.OffsetFn = replicaClient.Offset
		ctx.LinkUpFn = replicaClient.LinkUp
		ctx.SnapshotBlob = func() []byte { return nil }
		go replicaClient.Run(stopReplica)
	}

	srv := server.New(cfg, ctx, logger)
	if err := srv.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start server")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down")
	close(stopReplica)
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error().Err(err).Msg("error during shutdown")
	}
}

// listenPort extracts the numeric port from a ":6380"-style listen address
// for reporting via REPLCONF listening-port during the replica handshake.
func listenPort(addr string) int {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			n := 0
			for _, c := range addr[i+1:] {
				if c < '0' || c > '9' {
					return 0
				}
				n = n*10 + int(c-'0')
			}
			return n
		}
	}
	return 0
}
