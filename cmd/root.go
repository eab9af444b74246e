package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"kuharvest/internal/config"
)

var (
	// Persistent flags, bound in init().
	cfgFile      string
	downloadPath string
	gdbPath      string
	logFormat    string
	logLevel     string
	logOutput    string

	// Populated in PersistentPreRunE.
	rootLogger *slog.Logger
	appConfig  config.Config
)

var rootCmd = &cobra.Command{
	Use:   "kuharvest",
	Short: "Harvest cadastral-unit shapefiles into a cumulative feature store.",
	Long: `kuharvest fetches per-unit cadastral archives from the public registry,
extracts the parcel and definition layers, joins them spatially one-to-one,
and accumulates the joined features into a single store inside a DuckDB
geodatabase container.

The primary command is 'run', which executes the full pipeline. Other
commands process a single unit, export the store to Parquet, view the
event log, or clean the staging directory.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var level slog.Level
		switch strings.ToLower(logLevel) {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		var logWriter io.Writer = os.Stderr
		switch strings.ToLower(logOutput) {
		case "", "stderr":
		case "stdout":
			logWriter = os.Stdout
		default:
			f, err := os.OpenFile(logOutput, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
			if err != nil {
				return fmt.Errorf("failed to open log file %s: %w", logOutput, err)
			}
			logWriter = f
		}

		opts := &slog.HandlerOptions{Level: level}
		var handler slog.Handler
		if logFormat == "json" {
			handler = slog.NewJSONHandler(logWriter, opts)
		} else {
			handler = slog.NewTextHandler(logWriter, opts)
		}
		rootLogger = slog.New(handler)
		slog.SetDefault(rootLogger)

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		// Path flags override the config file.
		if downloadPath != "" {
			cfg.DownloadPath = downloadPath
		}
		if gdbPath != "" {
			cfg.GDBPath = gdbPath
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		appConfig = cfg
		rootLogger.Debug("Configuration loaded.",
			slog.String("download_path", cfg.DownloadPath),
			slog.String("gdb_path", cfg.GDBPath),
			slog.String("store", cfg.StoreName))
		return nil
	},
}

// Execute adds all child commands to the root command and runs it. Called
// by main.main().
func Execute() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(unitCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(cleanupCmd)

	if err := rootCmd.Execute(); err != nil {
		if rootLogger != nil {
			rootLogger.Error("Command execution failed.", "error", err)
		} else {
			fmt.Fprintf(os.Stderr, "Command execution failed: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&downloadPath, "download-path", "", "Override staging directory from config")
	rootCmd.PersistentFlags().StringVar(&gdbPath, "gdb-path", "", "Override geodatabase container path from config")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log output format (text or json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logOutput, "log-output", "stderr", "Log output destination (stderr, stdout, or file path)")

	rootCmd.Version = "0.1.0"
}

func getLogger() *slog.Logger {
	if rootLogger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return rootLogger
}

func getConfig() config.Config {
	return appConfig
}
