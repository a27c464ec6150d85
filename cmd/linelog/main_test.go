package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigLayering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "linelog.yaml")
	if err := os.WriteFile(path, []byte("device:\n  capacity: 5\narchive:\n  fsync: never\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("LINELOG_DEVICE_CAPACITY", "7")
	t.Setenv("LINELOG_LOG_LEVEL", "warn")

	cmd := newServerStartCommand()
	if err := cmd.ParseFlags([]string{"--config", path, "--log-level", "debug", "--terminator", `\x1e`, "--archive=false"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Device.Capacity != 7 {
		t.Fatalf("env should override file capacity, got %d", cfg.Device.Capacity)
	}
	if cfg.Archive.Fsync != "never" || cfg.Archive.Enabled {
		t.Fatalf("archive %+v", cfg.Archive)
	}
	if cfg.Log.Level != "debug" || cfg.TerminatorByte() != 0x1e {
		t.Fatalf("flags not applied: level=%s term=%q", cfg.Log.Level, cfg.Device.Terminator)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	cmd := newServerStartCommand()
	if err := cmd.ParseFlags([]string{"--capacity", "0"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if _, err := loadConfig(cmd); err == nil {
		t.Fatalf("expected validation error")
	}
}
