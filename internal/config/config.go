package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// CurrentVersion is the only config file version this build understands.
const CurrentVersion = 1

// Network collection methods.
const (
	MethodMDNS  = "mdns"
	MethodSweep = "sweep"
)

// Store backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config represents the entire user configuration file.
type Config struct {
	Version      int           `yaml:"version"`
	TickInterval time.Duration `yaml:"tick_interval"`
	LogLevel     string        `yaml:"log_level,omitempty"`
	Radio        RadioConfig   `yaml:"radio"`
	Network      NetworkConfig `yaml:"network"`
	Store        StoreConfig   `yaml:"store"`
	Serve        ServeConfig   `yaml:"serve"`
}

// RadioConfig holds settings for the radio channel.
type RadioConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	AllowDuplicates bool          `yaml:"allow_duplicates,omitempty"`
	Script          string        `yaml:"script,omitempty"` // Replay script used as the radio source
}

// NetworkConfig holds settings for the network channel.
type NetworkConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	Method       string        `yaml:"method"`             // "mdns" or "sweep"
	Services     []string      `yaml:"services,omitempty"` // mDNS service types
	Subnet       string        `yaml:"subnet,omitempty"`   // Empty means autodetect
	Ports        []int         `yaml:"ports,omitempty"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	Concurrency  int           `yaml:"concurrency"`
}

// StoreConfig selects where scan sessions are persisted.
type StoreConfig struct {
	Backend string `yaml:"backend"`        // "file" or "sqlite"
	Path    string `yaml:"path,omitempty"` // Empty means inside the config directory
}

// ServeConfig holds settings for the live feed server.
type ServeConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a Config populated with default values.
func Default() *Config {
	return &Config{
		Version:      CurrentVersion,
		TickInterval: 100 * time.Millisecond,
		Radio: RadioConfig{
			Timeout: 15 * time.Second,
		},
		Network: NetworkConfig{
			Timeout: 15 * time.Second,
			Method:  MethodMDNS,
			Services: []string{
				"_http._tcp",
				"_workstation._tcp",
				"_device-info._tcp",
				"_airplay._tcp",
				"_googlecast._tcp",
				"_ipp._tcp",
			},
			Ports:        []int{22, 80, 443, 445, 548, 8080},
			ProbeTimeout: 500 * time.Millisecond,
			Concurrency:  64,
		},
		Store: StoreConfig{
			Backend: BackendFile,
		},
		Serve: ServeConfig{
			Addr: "127.0.0.1:8787",
		},
	}
}

// Validate checks that the configuration can be used as-is.
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return fmt.Errorf("unsupported config version: %d (expected %d)", c.Version, CurrentVersion)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %s", c.TickInterval)
	}
	if c.Radio.Timeout <= 0 {
		return fmt.Errorf("radio.timeout must be positive, got %s", c.Radio.Timeout)
	}
	if c.Network.Timeout <= 0 {
		return fmt.Errorf("network.timeout must be positive, got %s", c.Network.Timeout)
	}
	switch c.Network.Method {
	case MethodMDNS, MethodSweep:
	default:
		return fmt.Errorf("network.method must be %q or %q, got %q", MethodMDNS, MethodSweep, c.Network.Method)
	}
	if c.Network.Method == MethodMDNS && len(c.Network.Services) == 0 {
		return fmt.Errorf("network.services must list at least one service type")
	}
	for _, p := range c.Network.Ports {
		if p < 1 || p > 65535 {
			return fmt.Errorf("network.ports: invalid port %d", p)
		}
	}
	if c.Network.Concurrency < 0 {
		return fmt.Errorf("network.concurrency must not be negative")
	}
	switch c.Store.Backend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("store.backend must be %q or %q, got %q", BackendFile, BackendSQLite, c.Store.Backend)
	}
	return nil
}

// StorePath returns the configured session store path, falling back to a
// backend-specific file inside the config directory.
func (c *Config) StorePath() (string, error) {
	if c.Store.Path != "" {
		return c.Store.Path, nil
	}
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	name := "sessions.yaml"
	if strings.EqualFold(c.Store.Backend, BackendSQLite) {
		name = "sessions.db"
	}
	return filepath.Join(dir, name), nil
}
