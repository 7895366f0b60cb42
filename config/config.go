// Package config loads the client configuration from a YAML file,
// falling back to defaults when no file is present.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the client configuration
type Config struct {
	// DataDir is where the local database lives
	DataDir string `yaml:"data_dir"`

	// LogLevel sets the minimum log level (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// Remote configuration
	Remote RemoteConfig `yaml:"remote"`
}

// RemoteConfig holds remote store connection settings
type RemoteConfig struct {
	URL             string `yaml:"url"`
	CredentialsFile string `yaml:"credentials_file"`
	Timeout         int    `yaml:"timeout_ms"`
	ReconnectWait   int    `yaml:"reconnect_wait_ms"`
	MaxReconnects   int    `yaml:"max_reconnects"`
}

// DatabasePath returns the path of the local credential database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "passphrasex.db")
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Use defaults if no config file
		return cfg, nil
	}

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		DataDir:  filepath.Join(home, ".passphrasex"),
		LogLevel: "info",
		Remote: RemoteConfig{
			URL:           "nats://localhost:4222",
			Timeout:       5000,
			ReconnectWait: 2000,
			MaxReconnects: -1, // Unlimited
		},
	}
}
