package config

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Addr:           ":6380",
			Role:           RoleMaster,
			MaxConnections: 100,
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	c := base()
	c.Addr = ""
	if err := c.Validate(); err == nil {
		t.Fatal("missing addr accepted")
	}

	c = base()
	c.MaxConnections = 0
	if err := c.Validate(); err == nil {
		t.Fatal("zero max connections accepted")
	}

	c = base()
	c.Role = "standby"
	if err := c.Validate(); err == nil {
		t.Fatal("unknown role accepted")
	}

	c = base()
	c.Role = RoleReplica
	if err := c.Validate(); err == nil {
		t.Fatal("replica without master host/port accepted")
	}
	c.MasterHost = "10.0.0.1"
	c.MasterPort = 6380
	if err := c.Validate(); err != nil {
		t.Fatalf("valid replica config rejected: %v", err)
	}
}

func TestLoadDefaultsToMasterWithFixedReplID(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Role != RoleMaster {
		t.Fatalf("default role = %q", cfg.Role)
	}
	if len(cfg.MasterReplID) != 40 {
		t.Fatalf("replid %q is not 40 chars", cfg.MasterReplID)
	}
}

func TestLoadReplicaFromEnv(t *testing.T) {
	t.Setenv("EMBER_ROLE", "replica")
	t.Setenv("EMBER_MASTER_HOST", "10.0.0.9")
	t.Setenv("EMBER_MASTER_PORT", "6380")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Role != RoleReplica || cfg.MasterHost != "10.0.0.9" || cfg.MasterPort != 6380 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if !strings.Contains(cfg.Print(), "master=10.0.0.9:6380") {
		t.Fatalf("Print missing master: %q", cfg.Print())
	}
}
