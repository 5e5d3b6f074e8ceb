package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"optpnl/internal/config"
	"optpnl/internal/logging"
	"optpnl/internal/marketdata"
	"optpnl/internal/security"
	"optpnl/internal/store"
	"optpnl/internal/strategy"
)

// Version information
const (
	Version   = "0.3.0"
	BuildDate = "2024-06-03"
)

// App holds the application dependencies. They are set up in the root
// command's PersistentPreRunE once flags are parsed.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Store  store.DataStore

	configDir string
	debug     bool
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(logger zerolog.Logger) *cobra.Command {
	app := &App{Logger: logger}

	rootCmd := &cobra.Command{
		Use:   "optpnl",
		Short: "Scenario P&L for multi-leg option strategies",
		Long: `optpnl evaluates the profit and loss of a multi-leg option strategy
across a grid of underlying moves and evaluation dates.

Strategies are JSON documents. Market data comes from an offline snapshot
fixture or from Zerodha Kite Connect, and refreshed snapshots are cached in
SQLite between runs.

Use 'optpnl run <strategy.json>' to evaluate a strategy.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.Close()
		},
	}

	rootCmd.PersistentFlags().StringVar(&app.configDir, "config-dir", "", "config directory (default: ~/.config/optpnl)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable coloured output")
	rootCmd.PersistentFlags().BoolVar(&app.debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newQuoteCmd(app))
	rootCmd.AddCommand(newChainCmd(app))
	rootCmd.AddCommand(newStrategyCmd(app))
	rootCmd.AddCommand(newCacheCmd(app))
	rootCmd.AddCommand(newHistoryCmd(app))
	rootCmd.AddCommand(newStatusCmd(app))

	return rootCmd
}

// Execute runs the CLI with the given arguments.
func Execute(ctx context.Context, logger zerolog.Logger, args []string) error {
	cmd := NewRootCmd(logger)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func (a *App) setup(cmd *cobra.Command) error {
	if a.Config != nil {
		return nil
	}

	cfg, err := config.Load(a.configDir)
	if err != nil {
		return err
	}
	a.Config = cfg
	if !cfg.UI.ColorEnabled {
		color.NoColor = true
	}

	logCfg := logging.DefaultLogConfig()
	logCfg.Level = cfg.Log.Level
	logCfg.File = cfg.Log.File
	logCfg.FilePath = cfg.Log.FilePath
	logCfg.MaxSize = cfg.Log.MaxSizeMB
	logCfg.MaxBackups = cfg.Log.MaxBackups
	logCfg.MaxAge = cfg.Log.MaxAgeDays
	a.Logger = logging.NewLoggerWithConfig(logCfg)
	if a.debug {
		logging.SetDebugLevel()
		a.Logger = a.Logger.Level(zerolog.DebugLevel)
	}
	if cfg.Path == "" {
		a.Logger.Debug().Str("dir", a.dir()).Msg("No config.toml found, wrote template and using defaults")
	}

	if cfg.Cache.Enabled {
		st, err := store.NewSQLiteStore(cfg.Cache.Path)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to open cache database, running without it")
		} else {
			a.Store = st
			a.Logger.Debug().Str("path", cfg.Cache.Path).Msg("SQLite store initialized")
		}
	}

	cmd.SetContext(logging.WithLogger(cmd.Context(), a.Logger))
	return nil
}

// Close releases the store.
func (a *App) Close() {
	if a.Store == nil {
		return
	}
	if err := a.Store.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to close store")
	}
	a.Store = nil
}

func (a *App) dir() string {
	if a.configDir != "" {
		return a.configDir
	}
	return config.DefaultConfigDir()
}

// Provider builds the configured market-data provider wrapped with retry
// and a circuit breaker.
func (a *App) Provider() (marketdata.Provider, error) {
	cfg := a.Config.Provider

	var inner marketdata.Provider
	switch cfg.Kind {
	case "kite":
		kp, err := marketdata.NewKiteProvider(marketdata.KiteConfig{
			APIKey:      a.Config.Credentials.Kite.APIKey,
			AccessToken: a.Config.Credentials.Kite.AccessToken,
			Exchange:    cfg.Exchange,
			Defaults: marketdata.SnapshotDefaults{
				FinanceRate: cfg.DefaultFinanceRate,
				DivYield:    cfg.DefaultDivYield,
				IVol:        cfg.DefaultIVol,
			},
		}, a.Logger)
		if err != nil {
			return nil, err
		}
		inner = kp
	default:
		fp, err := marketdata.NewFileProvider(cfg.FixturePath)
		if err != nil {
			return nil, err
		}
		inner = fp
	}

	rc := marketdata.DefaultResilienceConfig()
	rc.Retry.MaxAttempts = cfg.RetryAttempts
	if cfg.RetryDelay > 0 {
		rc.Retry.InitialDelay = cfg.RetryDelay
	}
	if cfg.BreakerTrips > 0 {
		rc.Breaker.FailureThreshold = cfg.BreakerTrips
	}
	if cfg.BreakerReset > 0 {
		rc.Breaker.Timeout = cfg.BreakerReset
	}
	rc.Timeout = cfg.Timeout
	return marketdata.NewResilientProvider(inner, rc, a.Logger), nil
}

// Cache returns a snapshot cache backed by the store when one is open.
func (a *App) Cache() *marketdata.Cache {
	var st marketdata.SnapshotStore
	if a.Store != nil {
		st = a.Store
	}
	return marketdata.NewCache(st, a.Config.Cache.MaxAge, a.Logger)
}

// Defaults returns the strategy defaults from the scenario config.
func (a *App) Defaults() strategy.Defaults {
	return strategy.Defaults{
		MinMove:    a.Config.Scenario.MinMove,
		MaxMove:    a.Config.Scenario.MaxMove,
		Intervals:  a.Config.Scenario.Intervals,
		Multiplier: a.Config.Scenario.Multiplier,
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("optpnl v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and manage application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(redactedConfig(app.Config))
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": app.dir()})
			}
			output.Println(app.dir())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("Configuration is valid")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write config.toml and credentials.toml templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			written, err := config.WriteTemplates(app.dir())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string][]string{"written": written})
			}
			if len(written) == 0 {
				output.Info("Templates already present in %s", app.dir())
				return nil
			}
			for _, p := range written {
				output.Success("Wrote %s", p)
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	src := cfg.Path
	if src == "" {
		src = "(defaults)"
	}
	output.Dim("Source: %s", src)
	output.Println()

	output.Bold("Scenario")
	output.Printf("  Move range:      %s to %s\n", FormatMove(cfg.Scenario.MinMove), FormatMove(cfg.Scenario.MaxMove))
	output.Printf("  Intervals:       %d\n", cfg.Scenario.Intervals)
	output.Printf("  Earliest expiry: %v\n", cfg.Scenario.ShowEarliestMaturity)
	output.Printf("  Multiplier:      %d\n", cfg.Scenario.Multiplier)
	output.Println()

	output.Bold("Provider")
	output.Printf("  Kind:            %s\n", cfg.Provider.Kind)
	if cfg.IsKite() {
		output.Printf("  Exchange:        %s\n", cfg.Provider.Exchange)
		output.Printf("  API key:         %s\n", orUnset(security.MaskCredential(cfg.Credentials.Kite.APIKey)))
		output.Printf("  Access token:    %s\n", orUnset(security.MaskCredential(cfg.Credentials.Kite.AccessToken)))
	} else {
		output.Printf("  Fixture:         %s\n", cfg.Provider.FixturePath)
	}
	output.Printf("  Concurrency:     %d\n", cfg.Provider.Concurrency)
	output.Printf("  Retries:         %d (from %s)\n", cfg.Provider.RetryAttempts, cfg.Provider.RetryDelay)
	output.Printf("  Breaker:         %d failures, %s reset\n", cfg.Provider.BreakerTrips, cfg.Provider.BreakerReset)
	output.Println()

	output.Bold("Cache")
	output.Printf("  Enabled:         %v\n", cfg.Cache.Enabled)
	output.Printf("  Database:        %s\n", cfg.Cache.Path)
	output.Printf("  Max age:         %s\n", cfg.Cache.MaxAge)
	output.Println()

	output.Bold("Logging")
	output.Printf("  Level:           %s\n", cfg.Log.Level)
	if cfg.Log.File {
		output.Printf("  File:            %s\n", filepath.Clean(cfg.Log.FilePath))
	}
}

// redactedConfig returns a copy of cfg with credentials masked.
func redactedConfig(cfg *config.Config) config.Config {
	out := *cfg
	kite := &out.Credentials.Kite
	kite.APIKey = security.MaskCredential(kite.APIKey)
	kite.APISecret = security.MaskCredential(kite.APISecret)
	kite.AccessToken = security.MaskCredential(kite.AccessToken)
	return out
}

func orUnset(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

// requireStore fails commands that only make sense with the cache database.
func (a *App) requireStore() error {
	if a.Store == nil {
		return fmt.Errorf("cache database unavailable (cache.enabled=%v)", a.Config.Cache.Enabled)
	}
	return nil
}
