package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadServerConfigMissingFile(t *testing.T) {
	cfg, err := LoadServerConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadServerConfig: %v", err)
	}
	if cfg != DefaultServerConfig() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadServerConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	if err := os.WriteFile(path, []byte("pool_size: 7\ncontrol_port: 9001\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("LoadServerConfig: %v", err)
	}
	if cfg.PoolSize != 7 || cfg.ControlPort != 9001 {
		t.Fatalf("got %+v", cfg)
	}
	// Unspecified fields keep their defaults.
	if cfg.ProxyPort != 17002 {
		t.Fatalf("expected default proxy port, got %d", cfg.ProxyPort)
	}
}

func TestClientConfigTCPForward(t *testing.T) {
	cfg := DefaultClientConfig()
	if cfg.TCPForward() {
		t.Fatal("default config should be command mode, not TCP forward")
	}
	cfg.CommandMode = false
	cfg.LocalPort = 8080
	if !cfg.TCPForward() {
		t.Fatal("expected TCP forward mode")
	}
}
