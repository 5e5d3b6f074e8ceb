package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apperrors "optpnl/internal/errors"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"KITE_API_KEY", "KITE_API_SECRET", "KITE_ACCESS_TOKEN",
		"OPTPNL_PROVIDER", "OPTPNL_FIXTURE", "OPTPNL_CACHE_PATH", "OPTPNL_LOG_LEVEL", "OPTPNL_INTERVALS",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_MissingFileWritesTemplate(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Path != "" {
		t.Errorf("Path = %q, want empty when defaults are used", cfg.Path)
	}
	if cfg.Scenario.Intervals != 50 || cfg.Provider.Kind != "file" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.toml")); err != nil {
		t.Errorf("template not written: %v", err)
	}

	// The written template loads to the same settings.
	again, err := Load(dir)
	if err != nil {
		t.Fatalf("Load(template) error = %v", err)
	}
	if again.Path == "" || again.Scenario != cfg.Scenario || again.Provider.Timeout != 10*time.Second {
		t.Errorf("template settings = %+v", again)
	}
	if again.Provider.FixturePath != cfg.Provider.FixturePath {
		t.Errorf("commented fixture_path overrode the default: %q", again.Provider.FixturePath)
	}
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	toml := `
[scenario]
min_move = -0.2
max_move = 0.3
intervals = 21

[provider]
kind = "kite"
retry_delay = "1s"

[cache]
max_age = "15m"
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(toml), 0644); err != nil {
		t.Fatal(err)
	}
	creds := "[kite]\napi_key = \"abc\"\naccess_token = \"from-file\"\n"
	if err := os.WriteFile(filepath.Join(dir, "credentials.toml"), []byte(creds), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("KITE_ACCESS_TOKEN", "from-env")
	t.Setenv("OPTPNL_INTERVALS", "31")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Scenario.MinMove != -0.2 || cfg.Scenario.MaxMove != 0.3 || cfg.Scenario.Intervals != 31 {
		t.Errorf("scenario = %+v", cfg.Scenario)
	}
	if cfg.Scenario.Multiplier != 100 {
		t.Errorf("unset multiplier = %d, want default 100", cfg.Scenario.Multiplier)
	}
	if !cfg.IsKite() || cfg.Provider.RetryDelay != time.Second || cfg.Provider.Concurrency != 4 {
		t.Errorf("provider = %+v", cfg.Provider)
	}
	if cfg.Cache.MaxAge != 15*time.Minute {
		t.Errorf("cache.max_age = %v", cfg.Cache.MaxAge)
	}
	if cfg.Credentials.Kite.APIKey != "abc" || cfg.Credentials.Kite.AccessToken != "from-env" {
		t.Errorf("credentials = %+v", cfg.Credentials.Kite)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[scenario]\nintervals = 1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); !apperrors.Is(err, apperrors.ErrConfigInvalid) {
		t.Errorf("Load() error = %v, want ErrConfigInvalid", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"inverted range", func(c *Config) { c.Scenario.MinMove = 0.5 }, "min_move"},
		{"total loss floor", func(c *Config) { c.Scenario.MinMove = -1 }, "greater than -1"},
		{"one interval", func(c *Config) { c.Scenario.Intervals = 1 }, "intervals"},
		{"zero multiplier", func(c *Config) { c.Scenario.Multiplier = 0 }, "multiplier"},
		{"unknown provider", func(c *Config) { c.Provider.Kind = "bloomberg" }, "provider.kind"},
		{"no concurrency", func(c *Config) { c.Provider.Concurrency = 0 }, "concurrency"},
		{"negative ivol", func(c *Config) { c.Provider.DefaultIVol = -1 }, "non-negative"},
		{"kite without ivol", func(c *Config) { c.Provider.Kind = "kite"; c.Provider.DefaultIVol = 0 }, "default_ivol"},
		{"file without ivol", func(c *Config) { c.Provider.DefaultIVol = 0 }, ""},
		{"cache without path", func(c *Config) { c.Cache.Path = "" }, "cache.path"},
		{"disabled cache without path", func(c *Config) { c.Cache.Enabled = false; c.Cache.Path = "" }, ""},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if tt.want == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if !apperrors.Is(err, apperrors.ErrConfigInvalid) || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestWriteTemplates(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")

	written, err := WriteTemplates(dir)
	if err != nil {
		t.Fatalf("WriteTemplates() error = %v", err)
	}
	if len(written) != 2 {
		t.Fatalf("written = %v", written)
	}
	info, err := os.Stat(filepath.Join(dir, "credentials.toml"))
	if err != nil || info.Mode().Perm() != 0600 {
		t.Errorf("credentials.toml mode = %v, %v", info, err)
	}

	written, err = WriteTemplates(dir)
	if err != nil || len(written) != 0 {
		t.Errorf("second WriteTemplates() = %v, %v; want nothing written", written, err)
	}
}
