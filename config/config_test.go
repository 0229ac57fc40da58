package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Registry.BaseURL != "https://reyestr.court.gov.ua" {
		t.Errorf("expected default base URL https://reyestr.court.gov.ua, got %s", cfg.Registry.BaseURL)
	}
	if cfg.Pipeline.FetchWorkers != 8 {
		t.Errorf("expected 8 fetch workers, got %d", cfg.Pipeline.FetchWorkers)
	}
	if cfg.Pipeline.DiscoveryInterval != 10*time.Minute {
		t.Errorf("expected discovery interval 10m, got %v", cfg.Pipeline.DiscoveryInterval)
	}
	if cfg.Pipeline.RecheckInterval != 24*time.Hour {
		t.Errorf("expected recheck interval 24h, got %v", cfg.Pipeline.RecheckInterval)
	}
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("expected default NATS URL nats://localhost:4222, got %s", cfg.NATS.URL)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing base URL",
			modify:  func(c *Config) { c.Registry.BaseURL = "" },
			wantErr: true,
		},
		{
			name:    "zero rate limit",
			modify:  func(c *Config) { c.Registry.RateLimit = 0 },
			wantErr: true,
		},
		{
			name:    "zero fetch workers",
			modify:  func(c *Config) { c.Pipeline.FetchWorkers = 0 },
			wantErr: true,
		},
		{
			name:    "negative discovery interval",
			modify:  func(c *Config) { c.Pipeline.DiscoveryInterval = -time.Minute },
			wantErr: true,
		},
		{
			name:    "zero discovery interval allowed for spool-only runs",
			modify:  func(c *Config) { c.Pipeline.DiscoveryInterval = 0 },
			wantErr: false,
		},
		{
			name:    "zero fetch attempts",
			modify:  func(c *Config) { c.Pipeline.MaxFetchAttempts = 0 },
			wantErr: true,
		},
		{
			name:    "confidence threshold too high",
			modify:  func(c *Config) { c.Pipeline.ConfidenceThreshold = 1.1 },
			wantErr: true,
		},
		{
			name:    "confidence threshold too low",
			modify:  func(c *Config) { c.Pipeline.ConfidenceThreshold = -0.1 },
			wantErr: true,
		},
		{
			name:    "malformed stream max age",
			modify:  func(c *Config) { c.NATS.StreamMaxAge = "one week" },
			wantErr: true,
		},
		{
			name:    "empty stream max age allowed",
			modify:  func(c *Config) { c.NATS.StreamMaxAge = "" },
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	// Create temp file with config
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
registry:
  base_url: "https://registry.test"
  user_agent: "test-agent/1.0"
  rate_limit: 5
storage:
  data_dir: "/test/data"
  spool_dir: "/test/spool"
pipeline:
  fetch_workers: 12
  discovery_interval: 5m
  recheck_interval: 12h
nats:
  url: "nats://test:4222"
metrics:
  addr: ":9999"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Registry.BaseURL != "https://registry.test" {
		t.Errorf("expected base URL https://registry.test, got %s", cfg.Registry.BaseURL)
	}
	if cfg.Registry.RateLimit != 5 {
		t.Errorf("expected rate limit 5, got %f", cfg.Registry.RateLimit)
	}
	if cfg.Storage.DataDir != "/test/data" {
		t.Errorf("expected data dir /test/data, got %s", cfg.Storage.DataDir)
	}
	if cfg.Pipeline.FetchWorkers != 12 {
		t.Errorf("expected 12 fetch workers, got %d", cfg.Pipeline.FetchWorkers)
	}
	if cfg.Pipeline.DiscoveryInterval != 5*time.Minute {
		t.Errorf("expected discovery interval 5m, got %v", cfg.Pipeline.DiscoveryInterval)
	}
	if cfg.Pipeline.RecheckInterval != 12*time.Hour {
		t.Errorf("expected recheck interval 12h, got %v", cfg.Pipeline.RecheckInterval)
	}
	// Unset values keep their defaults
	if cfg.Pipeline.ParseWorkers != 4 {
		t.Errorf("expected parse workers to keep default 4, got %d", cfg.Pipeline.ParseWorkers)
	}
	if cfg.NATS.URL != "nats://test:4222" {
		t.Errorf("expected NATS URL nats://test:4222, got %s", cfg.NATS.URL)
	}
	if cfg.Metrics.Addr != ":9999" {
		t.Errorf("expected metrics addr :9999, got %s", cfg.Metrics.Addr)
	}
}

func TestConfigMerge(t *testing.T) {
	base := DefaultConfig()
	override := &Config{
		Registry: RegistryConfig{
			BaseURL: "https://override.test",
		},
		Pipeline: PipelineConfig{
			FetchWorkers: 16,
		},
	}

	base.Merge(override)

	if base.Registry.BaseURL != "https://override.test" {
		t.Errorf("expected base URL https://override.test, got %s", base.Registry.BaseURL)
	}
	if base.Pipeline.FetchWorkers != 16 {
		t.Errorf("expected 16 fetch workers, got %d", base.Pipeline.FetchWorkers)
	}
	// User agent should remain from base since override didn't set it
	if base.Registry.UserAgent != "courtstream/0.1" {
		t.Errorf("expected user agent to remain default, got %s", base.Registry.UserAgent)
	}
	if base.Pipeline.ParseWorkers != 4 {
		t.Errorf("expected parse workers to remain default, got %d", base.Pipeline.ParseWorkers)
	}
}

func TestConfigSaveToFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "subdir", "config.yaml")

	cfg := DefaultConfig()
	cfg.Registry.BaseURL = "https://saved.test"

	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	// Verify file was created
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("config file was not created")
	}

	// Load and verify
	loaded, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("failed to load saved config: %v", err)
	}
	if loaded.Registry.BaseURL != "https://saved.test" {
		t.Errorf("expected base URL https://saved.test, got %s", loaded.Registry.BaseURL)
	}
}
