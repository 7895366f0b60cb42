package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Remote.URL != "nats://localhost:4222" {
		t.Fatalf("Expected default remote URL, got %q", cfg.Remote.URL)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("Expected default log level, got %q", cfg.LogLevel)
	}
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("data_dir: /tmp/ppx\nlog_level: debug\nremote:\n  url: nats://store.example.com:4222\n  timeout_ms: 1000\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.DataDir != "/tmp/ppx" {
		t.Fatalf("Expected overridden data dir, got %q", cfg.DataDir)
	}
	if cfg.Remote.URL != "nats://store.example.com:4222" {
		t.Fatalf("Expected overridden remote URL, got %q", cfg.Remote.URL)
	}
	if cfg.Remote.Timeout != 1000 {
		t.Fatalf("Expected overridden timeout, got %d", cfg.Remote.Timeout)
	}
	// Fields absent from the file keep their defaults
	if cfg.Remote.ReconnectWait != 2000 {
		t.Fatalf("Expected default reconnect wait, got %d", cfg.Remote.ReconnectWait)
	}
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("remote: ["), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("Expected error for malformed config file")
	}
}

func TestDatabasePath(t *testing.T) {
	cfg := &Config{DataDir: "/var/lib/ppx"}
	if got := cfg.DatabasePath(); got != filepath.Join("/var/lib/ppx", "passphrasex.db") {
		t.Fatalf("Unexpected database path: %q", got)
	}
}
