package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()

	if got := cfg.GetGeometry(); got != "mini6" {
		t.Errorf("GetGeometry() = %q, want mini6", got)
	}
	if got := len(cfg.GetMotorIDs()); got != 6 {
		t.Errorf("len(GetMotorIDs()) = %d, want 6", got)
	}
	if got := cfg.GetCadence(); got != 10*time.Millisecond {
		t.Errorf("GetCadence() = %v, want 10ms", got)
	}
	if got := cfg.GetReplayInterval(); got != 20*time.Millisecond {
		t.Errorf("GetReplayInterval() = %v, want 20ms", got)
	}
	if got := cfg.GetBaudRate(); got != 1_000_000 {
		t.Errorf("GetBaudRate() = %d, want 1000000", got)
	}
}

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := EmptyConfig()

	if got := cfg.GetGeometry(); got != "mini6" {
		t.Errorf("GetGeometry() = %q, want mini6", got)
	}
	if ids := cfg.GetMotorIDs(); ids != nil {
		t.Errorf("GetMotorIDs() = %v, want nil", ids)
	}
	if got := cfg.GetSocketURL(); got != "" {
		t.Errorf("GetSocketURL() = %q, want empty", got)
	}
	if got := cfg.GetReadWait(); got != 10*time.Millisecond {
		t.Errorf("GetReadWait() = %v, want 10ms", got)
	}
	if got := cfg.GetListen(); got != ":8090" {
		t.Errorf("GetListen() = %q, want :8090", got)
	}
	if got := cfg.GetDBPath(); got != "minihead.db" {
		t.Errorf("GetDBPath() = %q, want minihead.db", got)
	}
	if got := cfg.GetArmLength(); got != 0.038 {
		t.Errorf("GetArmLength() = %v, want 0.038", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on empty config: %v", err)
	}
}

func TestLoadConfig_PartialOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "partial.json")
	if err := os.WriteFile(path, []byte(`{"geometry":"mini8","cadence":"5ms"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got := cfg.GetGeometry(); got != "mini8" {
		t.Errorf("GetGeometry() = %q, want mini8", got)
	}
	if got := cfg.GetCadence(); got != 5*time.Millisecond {
		t.Errorf("GetCadence() = %v, want 5ms", got)
	}
	// Unset fields fall back.
	if got := cfg.GetReplayInterval(); got != 20*time.Millisecond {
		t.Errorf("GetReplayInterval() = %v, want 20ms", got)
	}
}

func TestLoadConfig_Rejects(t *testing.T) {
	dir := t.TempDir()

	cases := []struct {
		name string
		file string
		body string
	}{
		{"wrong extension", "cfg.yaml", `{}`},
		{"bad json", "bad.json", `{"geometry":`},
		{"bad duration", "dur.json", `{"cadence":"fast"}`},
		{"zero cadence", "zero.json", `{"cadence":"0s"}`},
		{"negative wait", "neg.json", `{"read_wait":"-1ms"}`},
		{"motor id range", "ids.json", `{"motor_ids":[1,300]}`},
		{"arm length", "arm.json", `{"arm_length":0}`},
		{"rod length", "rod.json", `{"rod_length":-1}`},
		{"fk iterations", "iter.json", `{"fk_iterations":0}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, tc.file)
			if err := os.WriteFile(path, []byte(tc.body), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadConfig(path); err == nil {
				t.Errorf("LoadConfig(%s) succeeded, want error", tc.body)
			}
		})
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadConfig_TooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.json")
	big := make([]byte, 1024*1024+1)
	for i := range big {
		big[i] = ' '
	}
	if err := os.WriteFile(path, big, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected error for oversized file")
	}
}

func TestGetMotorIDs_Converts(t *testing.T) {
	cfg := &Config{MotorIDs: []int{11, 12, 13}}
	ids := cfg.GetMotorIDs()
	want := []uint8{11, 12, 13}
	if len(ids) != len(want) {
		t.Fatalf("len = %d, want %d", len(ids), len(want))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %d, want %d", i, ids[i], want[i])
		}
	}
}

func TestParseDuration_FallsBack(t *testing.T) {
	cfg := &Config{ReadWait: ptrString("garbage"), BaudRate: ptrInt(0), ArmLength: ptrFloat64(0.05)}
	if got := cfg.GetReadWait(); got != 10*time.Millisecond {
		t.Errorf("GetReadWait() = %v, want default", got)
	}
	if got := cfg.GetBaudRate(); got != 1_000_000 {
		t.Errorf("GetBaudRate() = %d, want default", got)
	}
	if got := cfg.GetArmLength(); got != 0.05 {
		t.Errorf("GetArmLength() = %v, want 0.05", got)
	}
}
