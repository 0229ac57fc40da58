// Package config provides configuration for e2e pipeline runs.
package config

import "time"

// Default connection targets.
const (
	DefaultNATSURL = "nats://localhost:4222"

	// DefaultBinary is resolved through PATH when no explicit binary
	// path is given.
	DefaultBinary = "courtstream"
)

// Default timeouts.
const (
	DefaultCommandTimeout = 30 * time.Second
	DefaultSetupTimeout   = 60 * time.Second
	DefaultStageTimeout   = 45 * time.Second
	DefaultPollInterval   = 500 * time.Millisecond
)

// Config holds the e2e run configuration.
type Config struct {
	// NATSURL is the NATS server scenarios and the pipeline share.
	NATSURL string `json:"nats_url"`

	// BinaryPath locates the courtstream binary under test.
	BinaryPath string `json:"binary_path"`

	// WorkDir is where scenario workspaces are created. Empty means the
	// system temp directory.
	WorkDir string `json:"work_dir"`

	CommandTimeout time.Duration `json:"command_timeout"`
	SetupTimeout   time.Duration `json:"setup_timeout"`
	StageTimeout   time.Duration `json:"stage_timeout"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		NATSURL:        DefaultNATSURL,
		BinaryPath:     DefaultBinary,
		CommandTimeout: DefaultCommandTimeout,
		SetupTimeout:   DefaultSetupTimeout,
		StageTimeout:   DefaultStageTimeout,
	}
}
