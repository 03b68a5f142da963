package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

type Config struct {
	InstallDir string   `mapstructure:"install_dir"`
	BundleDir  string   `mapstructure:"bundle_dir"`
	BackupDir  string   `mapstructure:"backup_dir"`
	Bundles    []string `mapstructure:"bundles"`
	LogLevel   string   `mapstructure:"log_level"`
	LogFormat  string   `mapstructure:"log_format"`
}

// Bundle files that carry the attribute-display records. The data
// collection bundle holds the threshold table and highlight toggles; the
// style bundle holds the colour presets.
var defaultBundles = []string{
	"ui-datacollections_assets_all.bundle",
	"ui-styles_assets_default.bundle",
}

// Load initializes and loads configuration from file
func Load(cfgFile string) (*Config, error) {
	// Set defaults
	viper.SetDefault("bundles", defaultBundles)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "text")

	// Config file handling
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigName("attrpatch")
		viper.SetConfigType("yaml")
	}

	// Read config file (optional)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(cfg.Bundles) == 0 {
		cfg.Bundles = defaultBundles
	}

	return &cfg, nil
}

// Platform subdirectories the game ships bundles under, probed in order.
var platformDirs = []string{
	"StandaloneWindows64",
	"StandaloneLinux64",
	"StandaloneOSX",
}

// ResolveBundleDir locates the bundle directory for an installation. An
// explicitly configured bundle_dir wins; otherwise the platform
// subdirectories under the install dir are probed, defaulting to the
// Windows layout when none exists yet.
func (c *Config) ResolveBundleDir() (string, error) {
	if c.BundleDir != "" {
		return c.BundleDir, nil
	}
	if c.InstallDir == "" {
		return "", fmt.Errorf("no install_dir or bundle_dir configured")
	}

	base := filepath.Join(c.InstallDir, "fm_Data", "StreamingAssets", "aa")
	for _, platform := range platformDirs {
		dir := filepath.Join(base, platform)
		if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
			return dir, nil
		}
	}
	return filepath.Join(base, platformDirs[0]), nil
}

// ResolveBackupDir returns the backup location: configured, or a backup
// directory next to the bundles.
func (c *Config) ResolveBackupDir(bundleDir string) string {
	if c.BackupDir != "" {
		return c.BackupDir
	}
	return filepath.Join(bundleDir, "backup")
}

// BundlePaths returns the absolute paths of the configured bundle files
// that exist under dir.
func (c *Config) BundlePaths(dir string) []string {
	var paths []string
	for _, name := range c.Bundles {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			paths = append(paths, p)
		}
	}
	return paths
}
