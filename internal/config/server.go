// Package config loads the YAML-backed configuration for the rendezvous
// server and client agent binaries, the way the teacher lineage's
// WingConfig loaded ~/.wingthing/wing.yaml: a struct with yaml tags, an
// optional file on disk, and CLI flags layered on top afterward.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds the rendezvous server's settings.
type ServerConfig struct {
	ControlPort int `yaml:"control_port"`
	ProxyPort   int `yaml:"proxy_port"`
	PublicPort  int `yaml:"public_port"`
	PoolSize    int `yaml:"pool_size"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

// DefaultServerConfig returns the spec-mandated defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ControlPort: 17001,
		ProxyPort:   17002,
		PublicPort:  17003,
		PoolSize:    3,
		LogLevel:    "info",
	}
}

// LoadServerConfig reads a YAML file at path into the defaults. A missing
// file is not an error — the caller proceeds with defaults and whatever
// CLI flags are layered on afterward.
func LoadServerConfig(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
