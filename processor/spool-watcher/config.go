package spoolwatcher

import (
	"fmt"
	"reflect"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/c360studio/semstreams/component"

	"github.com/c360studio/courtstream/event"
)

// watcherSchema is generated from the Config struct.
var watcherSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds spool-watcher configuration.
type Config struct {
	// Ports define component connectivity
	Ports *component.ComponentPorts `json:"ports,omitempty"`

	// Enabled controls whether spool watching is active
	Enabled bool `json:"enabled" default:"false" description:"Enable watching the local spool directory"`

	// SpoolDir is the drop directory holding registry exports
	SpoolDir string `json:"spool_dir,omitempty" description:"Drop directory holding bulk registry exports"`

	// IncludeGlobs select the files to ingest, relative to the spool dir
	IncludeGlobs []string `json:"include_globs,omitempty" description:"Glob patterns selecting spool files to ingest"`

	// ExcludeGlobs filter files out after the include pass
	ExcludeGlobs []string `json:"exclude_globs,omitempty" description:"Glob patterns excluding spool files"`

	// DebounceDelay is how long to wait for more changes before processing
	DebounceDelay string `json:"debounce_delay,omitempty" default:"2s" description:"Debounce delay before processing spool changes"`
}

// DefaultConfig returns the default spool-watcher configuration. The
// watcher is disabled until a spool directory is configured.
func DefaultConfig() Config {
	return Config{
		Enabled:       false,
		IncludeGlobs:  []string{"**/*.html", "**/*.htm", "**/*.txt", "**/*.pdf"},
		ExcludeGlobs:  []string{"**/.*", "**/*.tmp", "**/*.part"},
		DebounceDelay: "2s",
		Ports: &component.ComponentPorts{
			Outputs: []component.PortDefinition{
				{
					Name:        "discovered.out",
					Protocol:    "nats",
					Type:        "jetstream",
					StreamName:  event.StreamName,
					Subject:     event.SubjectDiscovered,
					Description: "Spool files announced as discovered documents",
					Required:    true,
				},
			},
		},
	}
}

// GetDebounceDelay returns the debounce delay as a duration.
func (c *Config) GetDebounceDelay() time.Duration {
	if c.DebounceDelay == "" {
		return 2 * time.Second
	}
	d, err := time.ParseDuration(c.DebounceDelay)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Enabled && c.SpoolDir == "" {
		return fmt.Errorf("spool_dir is required when the watcher is enabled")
	}
	if c.DebounceDelay != "" {
		if _, err := time.ParseDuration(c.DebounceDelay); err != nil {
			return fmt.Errorf("invalid debounce_delay: %w", err)
		}
	}
	for _, pattern := range c.IncludeGlobs {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid include glob %q", pattern)
		}
	}
	for _, pattern := range c.ExcludeGlobs {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid exclude glob %q", pattern)
		}
	}
	return nil
}
