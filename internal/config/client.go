package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// ClientConfig holds the client agent's settings.
type ClientConfig struct {
	ServerAddr  string `yaml:"server_addr"`
	ControlPort int    `yaml:"control_port"`
	ProxyPort   int    `yaml:"proxy_port"`

	ClientID string `yaml:"client_id,omitempty"` // derived via deviceid when empty

	// TCP-forward mode: splice the proxy connection straight to a local
	// service instead of dispatching through the in-process router.
	LocalAddr string `yaml:"local_addr,omitempty"`
	LocalPort int    `yaml:"local_port,omitempty"`

	CommandMode bool `yaml:"command_mode"`

	EnableMCP bool `yaml:"enable_mcp,omitempty"`
	MCPPort   int  `yaml:"mcp_port,omitempty"`

	// AdminPort is a loopback-only HTTP listener exposing the same router
	// as the tunnel (principally /api/status), so `agentx-client status`
	// and the TUI can introspect a running client without going through
	// the rendezvous server.
	AdminPort int `yaml:"admin_port,omitempty"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

// DefaultClientConfig returns the spec-mandated defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ServerAddr:  "127.0.0.1",
		ControlPort: 17001,
		ProxyPort:   17002,
		CommandMode: true,
		MCPPort:     17004,
		AdminPort:   17005,
		LogLevel:    "info",
	}
}

// LoadClientConfig reads a YAML file at path into the defaults. A missing
// file is not an error.
func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()
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

// TCPForward reports whether this config should splice proxy connections
// directly to a local service rather than dispatching through the router.
func (c ClientConfig) TCPForward() bool {
	return !c.CommandMode && c.LocalPort > 0
}
