// Package config loads the core's configuration from the environment.
//
// Command-line flag parsing is a non-goal of the core (see spec.md §1); this
// package is the concrete producer of the parsed configuration struct the
// core consumes. cmd/emberdb-server is the only caller.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Role identifies whether this instance is the authoritative master or a
// replica of some other instance.
type Role string

const (
	RoleMaster  Role = "master"
	RoleReplica Role = "replica"
)

// Config holds all server configuration.
//
// Tags:
//
//	env: environment variable name
//	envDefault: default value if not set
type Config struct {
	Dir              string `env:"EMBER_DIR" envDefault:"."`
	SnapshotFilename string `env:"EMBER_SNAPSHOT_FILENAME" envDefault:"dump.rdb"`

	Addr        string `env:"EMBER_ADDR" envDefault:":6380"`
	MetricsAddr string `env:"EMBER_METRICS_ADDR" envDefault:":9121"`

	Role       Role   `env:"EMBER_ROLE" envDefault:"master"`
	MasterHost string `env:"EMBER_MASTER_HOST" envDefault:""`
	MasterPort int    `env:"EMBER_MASTER_PORT" envDefault:"0"`

	// MasterReplID is fixed on a master for the process lifetime; a replica
	// adopts the replid reported by its master at FULLRESYNC time.
	MasterReplID string `env:"EMBER_MASTER_REPLID" envDefault:""`

	MaxConnections int `env:"EMBER_MAX_CONNECTIONS" envDefault:"10000"`

	// MaxCommandsPerSec caps per-connection command throughput; 0 disables
	// the limiter entirely (default, matches protocol test vectors that
	// assume no throttling).
	MaxCommandsPerSec int `env:"EMBER_MAX_COMMANDS_PER_SEC" envDefault:"0"`

	CPURejectThreshold float64 `env:"EMBER_CPU_REJECT_THRESHOLD" envDefault:"0"`

	LogLevel  string `env:"EMBER_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"EMBER_LOG_FORMAT" envDefault:"json"`
}

// Load reads configuration from a .env file (if present) and the process
// environment. Priority: env vars > .env file > struct defaults.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found, using environment variables only")
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if cfg.Role == RoleMaster && cfg.MasterReplID == "" {
		cfg.MasterReplID = fixedMasterReplID
	}

	return cfg, nil
}

// fixedMasterReplID is the 40-hex replication ID used when none is supplied
// by configuration. A real deployment would randomize this per process
// start; the spec only requires a fixed-width 40-hex string (§6).
const fixedMasterReplID = "8371b4fb1155b71f4a04d3e1bc3e18c4a990aeeb"

// Validate checks configuration for internally inconsistent values.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("EMBER_ADDR is required")
	}
	if c.MaxConnections < 1 {
		return fmt.Errorf("EMBER_MAX_CONNECTIONS must be > 0, got %d", c.MaxConnections)
	}
	if c.Role != RoleMaster && c.Role != RoleReplica {
		return fmt.Errorf("EMBER_ROLE must be %q or %q, got %q", RoleMaster, RoleReplica, c.Role)
	}
	if c.Role == RoleReplica && (c.MasterHost == "" || c.MasterPort == 0) {
		return fmt.Errorf("EMBER_MASTER_HOST and EMBER_MASTER_PORT are required when EMBER_ROLE=replica")
	}
	return nil
}

// Print writes a human-readable summary of the active configuration, the
// way the teacher's startup banner does, without requiring a logger.
func (c *Config) Print() string {
	var b strings.Builder
	fmt.Fprintf(&b, "role=%s addr=%s", c.Role, c.Addr)
	if c.Role == RoleReplica {
		fmt.Fprintf(&b, " master=%s:%d", c.MasterHost, c.MasterPort)
	}
	fmt.Fprintf(&b, " dir=%s snapshot=%s max_connections=%d", c.Dir, c.SnapshotFilename, c.MaxConnections)
	return b.String()
}
