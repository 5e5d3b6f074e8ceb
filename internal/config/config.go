// Package config provides configuration management for the scenario tool.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "optpnl/internal/errors"
)

// Config holds all application configuration.
type Config struct {
	Scenario    ScenarioConfig `mapstructure:"scenario"`
	Provider    ProviderConfig `mapstructure:"provider"`
	Cache       CacheConfig    `mapstructure:"cache"`
	Log         LogConfig      `mapstructure:"log"`
	UI          UIConfig       `mapstructure:"ui"`
	Credentials Credentials    `mapstructure:"-"` // Loaded separately

	// Path is the config file that was read, empty when defaults were used.
	Path string `mapstructure:"-"`
}

// ScenarioConfig holds defaults applied to strategies that leave them unset.
type ScenarioConfig struct {
	MinMove              float64 `mapstructure:"min_move"`
	MaxMove              float64 `mapstructure:"max_move"`
	Intervals            int     `mapstructure:"intervals"`
	ShowEarliestMaturity bool    `mapstructure:"show_earliest_maturity"`
	Multiplier           int     `mapstructure:"multiplier"`
}

// ProviderConfig selects and tunes the market-data provider.
type ProviderConfig struct {
	Kind          string        `mapstructure:"kind"` // file, kite
	FixturePath   string        `mapstructure:"fixture_path"`
	Exchange      string        `mapstructure:"exchange"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Concurrency   int           `mapstructure:"concurrency"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	BreakerTrips  int           `mapstructure:"breaker_trips"`
	BreakerReset  time.Duration `mapstructure:"breaker_reset"`

	// Percent-scaled values used when the provider does not report them.
	DefaultFinanceRate float64 `mapstructure:"default_finance_rate"`
	DefaultDivYield    float64 `mapstructure:"default_div_yield"`
	DefaultIVol        float64 `mapstructure:"default_ivol"`
}

// CacheConfig controls the persistent snapshot cache and run history.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Path    string        `mapstructure:"path"`
	MaxAge  time.Duration `mapstructure:"max_age"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// UIConfig holds output-related configuration.
type UIConfig struct {
	ColorEnabled bool `mapstructure:"color_enabled"`
	ChartWidth   int  `mapstructure:"chart_width"`
	ChartHeight  int  `mapstructure:"chart_height"`
}

// Credentials holds API credentials.
type Credentials struct {
	Kite KiteCredentials `mapstructure:"kite"`
}

// KiteCredentials holds Kite Connect credentials.
type KiteCredentials struct {
	APIKey      string `mapstructure:"api_key"`
	APISecret   string `mapstructure:"api_secret"`
	AccessToken string `mapstructure:"access_token"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/optpnl"
	}
	return filepath.Join(home, ".config", "optpnl")
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	dir := DefaultConfigDir()
	return &Config{
		Scenario: ScenarioConfig{
			MinMove:    -0.5,
			MaxMove:    0.5,
			Intervals:  50,
			Multiplier: 100,
		},
		Provider: ProviderConfig{
			Kind:          "file",
			FixturePath:   filepath.Join(dir, "snapshots.json"),
			Exchange:      "NFO",
			Timeout:       10 * time.Second,
			Concurrency:   4,
			RetryAttempts: 3,
			RetryDelay:    200 * time.Millisecond,
			BreakerTrips:  5,
			BreakerReset:  30 * time.Second,
			DefaultIVol:   20,
		},
		Cache: CacheConfig{
			Enabled: true,
			Path:    filepath.Join(dir, "optpnl.db"),
			MaxAge:  24 * time.Hour,
		},
		Log: LogConfig{
			Level:      "info",
			FilePath:   filepath.Join(dir, "logs", "optpnl.log"),
			MaxSizeMB:  20,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		UI: UIConfig{
			ColorEnabled: true,
			ChartWidth:   72,
			ChartHeight:  20,
		},
	}
}

// Load loads configuration from the specified directory. If configDir is
// empty the default directory is used. A missing config.toml is replaced by a
// commented template and the defaults are returned.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	// .env in the working directory, then in the config directory. Existing
	// environment variables are never overwritten.
	_ = godotenv.Load()
	_ = godotenv.Load(filepath.Join(configDir, ".env"))

	cfg := Default()

	path, err := loadConfigFile(configDir, "config", cfg)
	if err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}
	cfg.Path = path

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, target *Config) (string, error) {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, target)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return "", createTemplateConfig(configDir, name)
		}
		return "", err
	}

	if err := v.Unmarshal(target); err != nil {
		return "", err
	}
	return v.ConfigFileUsed(), nil
}

// setDefaults registers the current values of cfg so keys missing from the
// file keep their defaults after Unmarshal.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("scenario.min_move", cfg.Scenario.MinMove)
	v.SetDefault("scenario.max_move", cfg.Scenario.MaxMove)
	v.SetDefault("scenario.intervals", cfg.Scenario.Intervals)
	v.SetDefault("scenario.show_earliest_maturity", cfg.Scenario.ShowEarliestMaturity)
	v.SetDefault("scenario.multiplier", cfg.Scenario.Multiplier)

	v.SetDefault("provider.kind", cfg.Provider.Kind)
	v.SetDefault("provider.fixture_path", cfg.Provider.FixturePath)
	v.SetDefault("provider.exchange", cfg.Provider.Exchange)
	v.SetDefault("provider.timeout", cfg.Provider.Timeout)
	v.SetDefault("provider.concurrency", cfg.Provider.Concurrency)
	v.SetDefault("provider.retry_attempts", cfg.Provider.RetryAttempts)
	v.SetDefault("provider.retry_delay", cfg.Provider.RetryDelay)
	v.SetDefault("provider.breaker_trips", cfg.Provider.BreakerTrips)
	v.SetDefault("provider.breaker_reset", cfg.Provider.BreakerReset)

	v.SetDefault("cache.enabled", cfg.Cache.Enabled)
	v.SetDefault("cache.path", cfg.Cache.Path)
	v.SetDefault("cache.max_age", cfg.Cache.MaxAge)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.file_path", cfg.Log.FilePath)
	v.SetDefault("log.max_size_mb", cfg.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", cfg.Log.MaxBackups)
	v.SetDefault("log.max_age_days", cfg.Log.MaxAgeDays)

	v.SetDefault("ui.color_enabled", cfg.UI.ColorEnabled)
	v.SetDefault("ui.chart_width", cfg.UI.ChartWidth)
	v.SetDefault("ui.chart_height", cfg.UI.ChartHeight)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	// Kite credentials
	if v := os.Getenv("KITE_API_KEY"); v != "" {
		cfg.Credentials.Kite.APIKey = v
	}
	if v := os.Getenv("KITE_API_SECRET"); v != "" {
		cfg.Credentials.Kite.APISecret = v
	}
	if v := os.Getenv("KITE_ACCESS_TOKEN"); v != "" {
		cfg.Credentials.Kite.AccessToken = v
	}

	if v := os.Getenv("OPTPNL_PROVIDER"); v != "" {
		cfg.Provider.Kind = v
	}
	if v := os.Getenv("OPTPNL_FIXTURE"); v != "" {
		cfg.Provider.FixturePath = v
	}
	if v := os.Getenv("OPTPNL_CACHE_PATH"); v != "" {
		cfg.Cache.Path = v
	}
	if v := os.Getenv("OPTPNL_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("OPTPNL_INTERVALS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scenario.Intervals = n
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return apperrors.Wrapf(apperrors.ErrConfigInvalid, format, args...)
	}

	if c.Scenario.MinMove >= c.Scenario.MaxMove {
		return invalid("scenario.min_move (%v) must be below scenario.max_move (%v)", c.Scenario.MinMove, c.Scenario.MaxMove)
	}
	if c.Scenario.MinMove <= -1 {
		return invalid("scenario.min_move must be greater than -1 (a -100%% move)")
	}
	if c.Scenario.Intervals < 2 {
		return invalid("scenario.intervals must be at least 2")
	}
	if c.Scenario.Multiplier <= 0 {
		return invalid("scenario.multiplier must be positive")
	}

	switch c.Provider.Kind {
	case "file", "kite":
	default:
		return invalid("provider.kind %q (must be 'file' or 'kite')", c.Provider.Kind)
	}
	if c.Provider.Concurrency < 1 {
		return invalid("provider.concurrency must be at least 1")
	}
	if c.Provider.RetryAttempts < 1 {
		return invalid("provider.retry_attempts must be at least 1")
	}
	if c.Provider.DefaultFinanceRate < 0 || c.Provider.DefaultDivYield < 0 || c.Provider.DefaultIVol < 0 {
		return invalid("provider default rates must be non-negative")
	}
	if c.IsKite() && c.Provider.DefaultIVol == 0 {
		return invalid("provider.default_ivol must be positive with the kite provider, which reports no implied vol")
	}

	if c.Cache.Enabled && c.Cache.Path == "" {
		return invalid("cache.path is required when the cache is enabled")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level %q", c.Log.Level)
	}

	return nil
}

// IsKite reports whether the live Kite provider is selected.
func (c *Config) IsKite() bool {
	return c.Provider.Kind == "kite"
}
