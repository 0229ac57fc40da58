// Package config provides configuration loading and management for Courtstream.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete Courtstream configuration
type Config struct {
	Registry RegistryConfig `yaml:"registry"`
	Storage  StorageConfig  `yaml:"storage"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	NATS     NATSConfig     `yaml:"nats"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// RegistryConfig configures access to the upstream court registry
type RegistryConfig struct {
	// BaseURL is the registry root (default: https://reyestr.court.gov.ua)
	BaseURL string `yaml:"base_url"`
	// UserAgent identifies outbound requests to the registry
	UserAgent string `yaml:"user_agent"`
	// RateLimit is the maximum request rate against the registry, in requests per second
	RateLimit float64 `yaml:"rate_limit"`
	// Burst is the short-term burst allowance on top of RateLimit
	Burst int `yaml:"burst"`
}

// StorageConfig configures local storage locations
type StorageConfig struct {
	// DataDir holds the SQLite database and the raw document store
	// (default: ~/.local/share/courtstream)
	DataDir string `yaml:"data_dir"`
	// SpoolDir is an optional drop directory watched for manually
	// supplied documents (empty = spool watching disabled)
	SpoolDir string `yaml:"spool_dir"`
}

// PipelineConfig tunes the ingestion pipeline
type PipelineConfig struct {
	// FetchWorkers is the number of concurrent document fetchers
	FetchWorkers int `yaml:"fetch_workers"`
	// ParseWorkers is the number of concurrent document parsers
	ParseWorkers int `yaml:"parse_workers"`
	// DiscoveryInterval is how often the registry is polled for changes.
	// Zero disables polling entirely for spool-only deployments.
	DiscoveryInterval time.Duration `yaml:"discovery_interval"`
	// RecheckInterval forces a re-fetch of known documents whose change
	// signal has not moved in this long
	RecheckInterval time.Duration `yaml:"recheck_interval"`
	// MaxFetchAttempts bounds retries for transient fetch failures
	MaxFetchAttempts int `yaml:"max_fetch_attempts"`
	// ConfidenceThreshold marks extractions below it as low confidence (0.0-1.0)
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// NATSConfig configures the NATS connection
type NATSConfig struct {
	// URL is the NATS server URL
	URL string `yaml:"url"`
	// StreamMaxAge is how long pipeline events stay replayable on the
	// stream, as a Go duration string
	StreamMaxAge string `yaml:"stream_max_age"`
}

// MetricsConfig configures the Prometheus metrics endpoint
type MetricsConfig struct {
	// Addr is the listen address for /metrics (empty = disabled)
	Addr string `yaml:"addr"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Registry: RegistryConfig{
			BaseURL:   "https://reyestr.court.gov.ua",
			UserAgent: "courtstream/0.1",
			RateLimit: 2,
			Burst:     4,
		},
		Storage: StorageConfig{
			DataDir:  "", // Resolved by the loader
			SpoolDir: "",
		},
		Pipeline: PipelineConfig{
			FetchWorkers:        8,
			ParseWorkers:        4,
			DiscoveryInterval:   10 * time.Minute,
			RecheckInterval:     24 * time.Hour,
			MaxFetchAttempts:    4,
			ConfidenceThreshold: 0.5,
		},
		NATS: NATSConfig{
			URL:          "nats://localhost:4222",
			StreamMaxAge: "168h",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
	}
}

// DefaultDataDir returns the location used for the database and document
// store when storage.data_dir is not set.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "courtstream-data"
	}
	return filepath.Join(home, ".local", "share", "courtstream")
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Registry.BaseURL == "" {
		return fmt.Errorf("registry.base_url is required")
	}
	if c.Registry.RateLimit <= 0 {
		return fmt.Errorf("registry.rate_limit must be positive")
	}
	if c.Pipeline.FetchWorkers <= 0 {
		return fmt.Errorf("pipeline.fetch_workers must be positive")
	}
	if c.Pipeline.ParseWorkers <= 0 {
		return fmt.Errorf("pipeline.parse_workers must be positive")
	}
	if c.Pipeline.DiscoveryInterval < 0 {
		return fmt.Errorf("pipeline.discovery_interval cannot be negative")
	}
	if c.Pipeline.RecheckInterval <= 0 {
		return fmt.Errorf("pipeline.recheck_interval must be positive")
	}
	if c.Pipeline.MaxFetchAttempts < 1 {
		return fmt.Errorf("pipeline.max_fetch_attempts must be at least 1")
	}
	if c.Pipeline.ConfidenceThreshold < 0 || c.Pipeline.ConfidenceThreshold > 1 {
		return fmt.Errorf("pipeline.confidence_threshold must be between 0 and 1")
	}
	if c.NATS.StreamMaxAge != "" {
		if _, err := time.ParseDuration(c.NATS.StreamMaxAge); err != nil {
			return fmt.Errorf("invalid nats.stream_max_age: %w", err)
		}
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Registry
	if other.Registry.BaseURL != "" {
		c.Registry.BaseURL = other.Registry.BaseURL
	}
	if other.Registry.UserAgent != "" {
		c.Registry.UserAgent = other.Registry.UserAgent
	}
	if other.Registry.RateLimit != 0 {
		c.Registry.RateLimit = other.Registry.RateLimit
	}
	if other.Registry.Burst != 0 {
		c.Registry.Burst = other.Registry.Burst
	}

	// Storage
	if other.Storage.DataDir != "" {
		c.Storage.DataDir = other.Storage.DataDir
	}
	if other.Storage.SpoolDir != "" {
		c.Storage.SpoolDir = other.Storage.SpoolDir
	}

	// Pipeline
	if other.Pipeline.FetchWorkers != 0 {
		c.Pipeline.FetchWorkers = other.Pipeline.FetchWorkers
	}
	if other.Pipeline.ParseWorkers != 0 {
		c.Pipeline.ParseWorkers = other.Pipeline.ParseWorkers
	}
	if other.Pipeline.DiscoveryInterval != 0 {
		c.Pipeline.DiscoveryInterval = other.Pipeline.DiscoveryInterval
	}
	if other.Pipeline.RecheckInterval != 0 {
		c.Pipeline.RecheckInterval = other.Pipeline.RecheckInterval
	}
	if other.Pipeline.MaxFetchAttempts != 0 {
		c.Pipeline.MaxFetchAttempts = other.Pipeline.MaxFetchAttempts
	}
	if other.Pipeline.ConfidenceThreshold != 0 {
		c.Pipeline.ConfidenceThreshold = other.Pipeline.ConfidenceThreshold
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
	if other.NATS.StreamMaxAge != "" {
		c.NATS.StreamMaxAge = other.NATS.StreamMaxAge
	}

	// Metrics
	if other.Metrics.Addr != "" {
		c.Metrics.Addr = other.Metrics.Addr
	}
}
