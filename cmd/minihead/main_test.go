package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/minihead/minihead/internal/config"
)

func TestLoadConfig_MissingDefaultFallsBack(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := loadConfig(config.DefaultConfigPath)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if got := cfg.GetGeometry(); got != "mini6" {
		t.Errorf("GetGeometry() = %q, want mini6", got)
	}
}

func TestLoadConfig_MissingExplicitFails(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "custom.json")); err == nil {
		t.Error("expected error for a missing explicit config")
	}
}

func TestApplyFlags(t *testing.T) {
	cfg := config.EmptyConfig()
	*listen = ":9999"
	*geometry = "mini8"
	defer func() { *listen, *geometry = "", "" }()

	applyFlags(cfg)
	if got := cfg.GetListen(); got != ":9999" {
		t.Errorf("GetListen() = %q", got)
	}
	if got := cfg.GetGeometry(); got != "mini8" {
		t.Errorf("GetGeometry() = %q", got)
	}
	// unset flags keep the file value
	if cfg.SocketURL != nil {
		t.Errorf("SocketURL = %q, want unset", *cfg.SocketURL)
	}
}

func TestFlagDefaults(t *testing.T) {
	if *devMode {
		t.Error("dev mode should default to off")
	}
	if *configPath != config.DefaultConfigPath {
		t.Errorf("config default = %q", *configPath)
	}
}

func TestNewSolver(t *testing.T) {
	cfg := config.EmptyConfig()
	solver, err := newSolver(cfg)
	if err != nil {
		t.Fatalf("newSolver: %v", err)
	}
	if solver.NumBranches() != 6 {
		t.Errorf("NumBranches() = %d, want 6", solver.NumBranches())
	}

	eight := "mini8"
	cfg.Geometry = &eight
	solver, err = newSolver(cfg)
	if err != nil {
		t.Fatalf("newSolver(mini8): %v", err)
	}
	if solver.NumBranches() != 8 {
		t.Errorf("NumBranches() = %d, want 8", solver.NumBranches())
	}

	unknown := "mini5"
	cfg.Geometry = &unknown
	if _, err := newSolver(cfg); err == nil {
		t.Error("expected error for unknown geometry")
	}

	missing := filepath.Join(t.TempDir(), "none.json")
	cfg.GeometryFile = &missing
	if _, err := newSolver(cfg); err == nil {
		t.Error("expected error for missing geometry file")
	}
}

func TestMotorIDs(t *testing.T) {
	cfg := config.EmptyConfig()
	ids := motorIDs(cfg, 3)
	if len(ids) != 3 || ids[0] != 1 || ids[2] != 3 {
		t.Errorf("motorIDs default = %v", ids)
	}
	cfg.MotorIDs = []int{10, 11}
	ids = motorIDs(cfg, 2)
	if ids[0] != 10 || ids[1] != 11 {
		t.Errorf("motorIDs configured = %v", ids)
	}
}

func TestNewConnector(t *testing.T) {
	cfg := config.MustLoadDefaultConfig()
	c := newConnector(cfg)
	if c.SocketURL != cfg.GetSocketURL() {
		t.Errorf("SocketURL = %q", c.SocketURL)
	}
	if c.DialTimeout != 2*time.Second {
		t.Errorf("DialTimeout = %v", c.DialTimeout)
	}
	if c.Requester == nil {
		t.Error("serial fallback missing")
	}

	dev := devConnector(cfg, "127.0.0.1:8090")
	if dev.SocketURL != "ws://127.0.0.1:8090/bridge" {
		t.Errorf("dev SocketURL = %q", dev.SocketURL)
	}
	if dev.Requester != nil {
		t.Error("dev mode must not touch serial ports")
	}
}

func TestDialAddr(t *testing.T) {
	tests := map[string]string{
		":8090":          "127.0.0.1:8090",
		"0.0.0.0:80":     "127.0.0.1:80",
		"10.0.0.2:8090":  "10.0.0.2:8090",
		"localhost:1234": "localhost:1234",
		"garbage":        "garbage",
	}
	for in, want := range tests {
		if got := dialAddr(in); got != want {
			t.Errorf("dialAddr(%q) = %q, want %q", in, got, want)
		}
	}
}
