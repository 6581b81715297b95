package commands

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/ministake/ministake/internal/config"
	"github.com/ministake/ministake/internal/logging"
)

// Global CLI flags
var (
	// ConfigPath is the config file; empty means the default location
	ConfigPath string

	// MockMode forces the in-memory ledger
	MockMode bool

	// LogLevel overrides log.level from the config
	LogLevel string
)

// loaded is the configuration resolved by Setup
var loaded *config.Config

// Setup loads the configuration and configures logging. It runs before
// every command.
func Setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWith(configPath(), func(c *config.Config) {
		if MockMode {
			c.Mock = true
		}
		if LogLevel != "" {
			c.Log.Level = LogLevel
		}
	})
	if err != nil {
		return err
	}
	if err := logging.Configure(cfg.Log.Level, logging.Format(cfg.Log.Format)); err != nil {
		return fmt.Errorf("invalid log settings: %w", err)
	}
	loaded = cfg
	return nil
}

// currentConfig returns the loaded configuration, or the defaults when Setup
// has not run (tests call commands directly).
func currentConfig() *config.Config {
	if loaded == nil {
		cfg := config.DefaultConfig()
		cfg.Mock = MockMode
		return cfg
	}
	return loaded
}

func configPath() string {
	if ConfigPath != "" {
		return ConfigPath
	}
	return config.DefaultConfigPath()
}

// Version information (set at build time)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// GetVersion returns the version string
func GetVersion() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
	}
	return "dev"
}

// GetCommit returns the git commit
func GetCommit() string {
	if Commit != "unknown" {
		return Commit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				if len(setting.Value) > 8 {
					return setting.Value[:8]
				}
				return setting.Value
			}
		}
	}
	return "unknown"
}

// GetGoVersion returns the Go version
func GetGoVersion() string {
	return runtime.Version()
}
