// Package config provides user configuration management for proxiscan.
//
// The configuration is a versioned YAML file stored in the platform-appropriate
// location:
//   - Linux: $XDG_CONFIG_HOME/proxiscan/config.yaml or $HOME/.config/proxiscan/config.yaml
//   - macOS: $HOME/.config/proxiscan/config.yaml
//   - Windows: %LOCALAPPDATA%\proxiscan\config.yaml
//
// A missing file is not an error; Load returns Default() instead. Keys omitted
// from the file keep their default values.
//
// # Environment Overrides
//
// An optional .env file can be loaded with LoadDotEnv before Load. After the
// file is read, these variables override its values:
//   - PROXISCAN_STORE_BACKEND: "file" or "sqlite"
//   - PROXISCAN_STORE_PATH: session store location
//   - PROXISCAN_LOG_LEVEL: debug, info, warn or error
//   - PROXISCAN_SERVE_ADDR: listen address for the live feed server
//
// # Usage Example
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Radio.Timeout)
//
// # Thread Safety
//
// File reads and writes are serialized by a package-level mutex. Save writes
// to a temporary file and renames it into place.
package config
