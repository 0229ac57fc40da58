// Package commands implements the courtstream CLI. Each subcommand
// lives in its own file and is attached to the root command through
// Register.
package commands

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/c360studio/courtstream/config"
)

// Options carries root-level flags into every subcommand.
type Options struct {
	// ConfigPath is an explicit config file path. Empty means layered
	// discovery: user config first, then a project courtstream.yaml.
	ConfigPath string

	// LogLevel is the slog level name (debug, info, warn, error).
	LogLevel string
}

// Register attaches all courtstream subcommands to the root command.
func Register(root *cobra.Command, opts *Options) {
	root.AddCommand(
		newRunCommand(opts),
		newReplayCommand(opts),
		newStatusCommand(opts),
		newFetchCommand(opts),
		newVersionCommand(),
	)
}

// Logger builds a stderr logger honoring the --log-level flag. Unknown
// level names fall back to info.
func (o *Options) Logger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(o.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadConfig resolves the effective configuration. An explicit --config
// path wins; otherwise the layered loader applies.
func (o *Options) loadConfig(logger *slog.Logger) (*config.Config, error) {
	if o.ConfigPath == "" {
		return config.NewLoader(logger).Load()
	}

	cfg, err := config.LoadFromFile(o.ConfigPath)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = config.DefaultDataDir()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
