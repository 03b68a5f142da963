package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mw90/attrpatch/internal/config"
	"github.com/spf13/cobra"
)

var (
	cfg     *config.Config
	cfgFile string

	installDir string
	bundleDir  string
	backupDir  string
	logLevel   string
	logFormat  string
	noProgress bool
)

var rootCmd = &cobra.Command{
	Use:   "attrpatch",
	Short: "Attribute display editor for FM asset bundles",
	Long: `attrpatch edits the attribute threshold tables, colour presets and
role-highlight toggles stored inside the game's asset bundle files.

Every save snapshots the affected bundles first and either applies all
edits or none of them; a failed write rolls the bundles back to the
snapshot taken moments before.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		if cmd.Flags().Changed("install-dir") {
			cfg.InstallDir = installDir
		}
		if cmd.Flags().Changed("bundle-dir") {
			cfg.BundleDir = bundleDir
		}
		if cmd.Flags().Changed("backup-dir") {
			cfg.BackupDir = backupDir
		}
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			cfg.LogFormat = logFormat
		}

		var level slog.Level
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		var handler slog.Handler
		if cfg.LogFormat == "json" {
			handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			})
		} else {
			handler = tint.NewHandler(os.Stderr, &tint.Options{
				Level: level,
			})
		}

		logger := slog.New(handler)
		slog.SetDefault(logger)

		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is attrpatch.yaml in home or pwd)")
	rootCmd.PersistentFlags().StringVarP(&installDir, "install-dir", "i", "", "game installation directory")
	rootCmd.PersistentFlags().StringVar(&bundleDir, "bundle-dir", "", "bundle directory (overrides install-dir probing)")
	rootCmd.PersistentFlags().StringVar(&backupDir, "backup-dir", "", "snapshot directory (default is <bundle-dir>/backup)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "disable progress bar")
}
