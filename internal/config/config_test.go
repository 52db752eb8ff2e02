package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BatchSize != 500 {
		t.Fatalf("batch size = %d, want 500", cfg.BatchSize)
	}
	if cfg.Out != "./data/events.jsonl" {
		t.Fatalf("out = %s", cfg.Out)
	}
	if !cfg.CheckpointEnabled {
		t.Fatalf("checkpoint disabled by default")
	}
	if cfg.RetryBackoff != 500*time.Millisecond {
		t.Fatalf("retry backoff = %v", cfg.RetryBackoff)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("log level = %s", cfg.LogLevel)
	}
}

func TestLoadFlagsOverride(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("in", "", "")
	flags.Int("batch-size", 500, "")
	if err := flags.Parse([]string{"--in", "/tmp/replay.jsonl", "--batch-size", "17"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.In != "/tmp/replay.jsonl" {
		t.Fatalf("in = %s", cfg.In)
	}
	if cfg.BatchSize != 17 {
		t.Fatalf("batch size = %d, want 17", cfg.BatchSize)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "in: /data/in.jsonl\nbatch-size: 99\nlog-level: debug\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.In != "/data/in.jsonl" || cfg.BatchSize != 99 || cfg.LogLevel != "debug" {
		t.Fatalf("cfg = %+v", cfg)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatalf("missing explicit config accepted")
	}
}
