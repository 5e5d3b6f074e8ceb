package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# optpnl configuration

[scenario]
# Underlying move range as decimal fractions (-0.5 = -50%)
min_move = -0.5
max_move = 0.5
# Number of grid points between min_move and max_move (at least 2)
intervals = 50
# Also evaluate the earliest leg maturity on every run
show_earliest_maturity = false
# Contract multiplier for legs that do not set one
multiplier = 100

[provider]
# Market data source: "file" (offline fixture) or "kite"
kind = "file"
# Snapshot fixture used by the file provider (default: <config dir>/snapshots.json)
# fixture_path = "/path/to/snapshots.json"
# Kite exchange for option instruments
exchange = "NFO"
timeout = "10s"
# Concurrent snapshot requests during a refresh
concurrency = 4
retry_attempts = 3
retry_delay = "200ms"
# Consecutive failures before the circuit opens, and how long it stays open
breaker_trips = 5
breaker_reset = "30s"
# Percent-scaled fallbacks for fields the provider does not report.
# Kite quotes carry no implied vol, so default_ivol must be positive there.
default_finance_rate = 0.0
default_div_yield = 0.0
default_ivol = 20.0

[cache]
# SQLite snapshot cache and run history
enabled = true
# path = "/path/to/optpnl.db"
max_age = "24h"

[log]
# debug, info, warn, error
level = "info"
file = false
# file_path = "/path/to/optpnl.log"
max_size_mb = 20
max_backups = 5
max_age_days = 30

[ui]
color_enabled = true
chart_width = 72
chart_height = 20
`

const credentialsTemplate = `# optpnl credentials
# WARNING: Keep this file secure! Do not commit to version control.

[kite]
api_key = ""
api_secret = ""
access_token = ""
`

var errTemplateExists = fmt.Errorf("config template already exists")

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}
	return nil
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	if _, err := os.Stat(path); err == nil {
		return errTemplateExists
	}
	// Use restricted permissions for credentials file
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}
	return nil
}

// WriteTemplates writes config.toml and credentials.toml templates into
// configDir, leaving existing files untouched. It returns the files written.
func WriteTemplates(configDir string) ([]string, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	var written []string
	cfgPath := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := createTemplateConfig(configDir, "config"); err != nil {
			return written, err
		}
		written = append(written, cfgPath)
	}

	switch err := createTemplateCredentials(configDir); err {
	case nil:
		written = append(written, filepath.Join(configDir, "credentials.toml"))
	case errTemplateExists:
	default:
		return written, err
	}
	return written, nil
}
