// Package config provides TOML configuration file loading for the host.
// The configuration file lives at ~/.meterlink/config.toml by default, but
// can be overridden with the --config flag. CLI flags always take
// precedence over file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the host configuration file structure.
// Field names map to snake_case TOML keys via struct tags.
type Config struct {
	// Addr is the host:port for the pairing WebSocket server.
	// Port 0 binds an ephemeral port. Default: 0.0.0.0:7600
	Addr string `toml:"addr"`

	// TLSCert is the path to the TLS certificate file.
	// Default: ~/.meterlink/certs/host.crt (auto-generated if missing)
	TLSCert string `toml:"tls_cert"`

	// TLSKey is the path to the TLS key file.
	// Default: ~/.meterlink/certs/host.key (auto-generated if missing)
	TLSKey string `toml:"tls_key"`

	// NoTLS disables TLS and serves plaintext WebSocket connections.
	// Intended for development only. Default: false
	NoTLS bool `toml:"no_tls"`

	// DeviceStore is the path to the SQLite database for paired-device
	// history. Default: ~/.meterlink/meterlink.db
	DeviceStore string `toml:"device_store"`

	// TokenTTLSeconds is the pairing token lifetime in seconds.
	// Default: 60
	TokenTTLSeconds int `toml:"token_ttl_seconds"`

	// SnapshotPollMs is the interval between usage snapshot broadcasts
	// in milliseconds. Default: 5000
	SnapshotPollMs int `toml:"snapshot_poll_ms"`

	// UsageFile is an optional path to a JSON file with the current usage
	// snapshot. When set, the host broadcasts its contents on each poll.
	UsageFile string `toml:"usage_file"`

	// MdnsEnabled enables mDNS/Bonjour service advertisement.
	// Discovery only reveals presence; pairing tokens are still required.
	// Default: false (disabled for security - must be explicitly enabled)
	MdnsEnabled bool `toml:"mdns_enabled"`

	// Pair issues and displays a pairing QR code during startup,
	// eliminating the need to run 'meterlink pair' separately.
	// Default: false
	Pair bool `toml:"pair"`

	// HostName is the display name embedded in QR payloads and mDNS
	// records. Defaults to the system hostname if empty.
	HostName string `toml:"host_name"`
}

// DefaultConfigPath returns the default config file location:
// ~/.meterlink/config.toml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".meterlink", "config.toml"), nil
}

// WriteDefault creates a config file with mobile-ready defaults at the
// given path.
//
// Behavior:
//   - If the file already exists, returns without error (does not overwrite).
//   - Creates the parent directory if it doesn't exist.
//   - Returns an error if the file cannot be written.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil // File exists, nothing to do
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	const content = `# meterlink configuration
# Created by 'meterlink start' for mobile-ready defaults

# Listen on all interfaces for LAN access
addr = "0.0.0.0:7600"

# Pairing token lifetime in seconds
token_ttl_seconds = 60
`

	// Restrictive permissions: owner read/write only.
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Load reads a TOML config file from the given path.
//
// Behavior:
//   - If path is empty, attempts the default location and returns an empty
//     Config without error if that file doesn't exist.
//   - If path is specified, returns an error if the file doesn't exist.
//   - Returns an error if the file exists but cannot be parsed.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			// Can't determine home dir, return empty config
			return cfg, nil
		}
		if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
			// Default config doesn't exist, that's fine
			return cfg, nil
		}
		path = defaultPath
	} else {
		// Explicit path provided: error if file doesn't exist, since the
		// user expects the config to be applied.
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}
