package config

import (
	"errors"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override config file values.
const (
	EnvStoreBackend = "PROXISCAN_STORE_BACKEND"
	EnvStorePath    = "PROXISCAN_STORE_PATH"
	EnvLogLevel     = "PROXISCAN_LOG_LEVEL"
	EnvServeAddr    = "PROXISCAN_SERVE_ADDR"
)

// LoadDotEnv loads environment variables from path. Missing files are ignored
// and variables already set in the environment win.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// ApplyEnv overlays PROXISCAN_* environment variables onto cfg.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvStoreBackend); v != "" {
		cfg.Store.Backend = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv(EnvStorePath); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvServeAddr); v != "" {
		cfg.Serve.Addr = v
	}
}
