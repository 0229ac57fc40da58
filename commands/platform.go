package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	semconfig "github.com/c360studio/semstreams/config"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/c360studio/semstreams/service"
	"github.com/c360studio/semstreams/types"

	"github.com/c360studio/courtstream/config"
	"github.com/c360studio/courtstream/event"
)

// buildPlatformConfig translates the application config into the
// semstreams platform config that drives streams, components, and
// services. Component settings left out here keep the component's own
// defaults.
func buildPlatformConfig(app *config.Config) (*semconfig.Config, error) {
	components := semconfig.ComponentConfigs{}
	addComponent := func(name string, enabled bool, settings map[string]any) error {
		raw, err := json.Marshal(settings)
		if err != nil {
			return fmt.Errorf("marshal %s config: %w", name, err)
		}
		components[name] = types.ComponentConfig{
			Name:    name,
			Type:    types.ComponentTypeProcessor,
			Enabled: enabled,
			Config:  raw,
		}
		return nil
	}

	// A zero discovery interval means spool-only operation: the registry
	// is never polled. The disabled monitor keeps its own defaults so its
	// stored config stays valid.
	monitor := map[string]any{
		"registry_url": app.Registry.BaseURL,
		"rate_limit":   app.Registry.RateLimit,
	}
	if app.Pipeline.DiscoveryInterval > 0 {
		monitor["discovery_interval"] = app.Pipeline.DiscoveryInterval
		monitor["recheck_interval"] = app.Pipeline.RecheckInterval
	}
	if err := addComponent("change-monitor", app.Pipeline.DiscoveryInterval > 0, monitor); err != nil {
		return nil, err
	}

	fetcher := map[string]any{
		"worker_count": app.Pipeline.FetchWorkers,
		"max_attempts": app.Pipeline.MaxFetchAttempts,
		"user_agent":   app.Registry.UserAgent,
		"rate_limit":   app.Registry.RateLimit,
		"burst":        app.Registry.Burst,
		"data_dir":     app.Storage.DataDir,
	}
	if app.Storage.SpoolDir != "" {
		fetcher["spool_dir"] = app.Storage.SpoolDir
	}
	if err := addComponent("doc-fetcher", true, fetcher); err != nil {
		return nil, err
	}

	if err := addComponent("doc-parser", true, map[string]any{
		"worker_count":         app.Pipeline.ParseWorkers,
		"confidence_threshold": app.Pipeline.ConfidenceThreshold,
		"data_dir":             app.Storage.DataDir,
	}); err != nil {
		return nil, err
	}

	if err := addComponent("version-writer", true, map[string]any{
		"data_dir": app.Storage.DataDir,
	}); err != nil {
		return nil, err
	}

	if err := addComponent("failure-sink", true, map[string]any{}); err != nil {
		return nil, err
	}

	if app.Storage.SpoolDir != "" {
		if err := addComponent("spool-watcher", true, map[string]any{
			"enabled":   true,
			"spool_dir": app.Storage.SpoolDir,
		}); err != nil {
			return nil, err
		}
	}

	maxAge := app.NATS.StreamMaxAge
	if maxAge == "" {
		maxAge = "168h"
	}

	return &semconfig.Config{
		Version: "1.0.0",
		Platform: semconfig.PlatformConfig{
			Org:         "courtstream",
			ID:          "courtstream-local",
			Environment: "dev",
		},
		NATS: semconfig.NATSConfig{
			URLs:          []string{app.NATS.URL},
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			JetStream: semconfig.JetStreamConfig{
				Enabled: true,
			},
		},
		Services:   types.ServiceConfigs{},
		Components: components,
		Streams: semconfig.StreamConfigs{
			event.StreamName: semconfig.StreamConfig{
				Subjects: []string{"court.documents.>"},
				MaxAge:   maxAge,
				Storage:  "file",
				Replicas: 1,
			},
		},
	}, nil
}

// connectToNATS dials the configured server. NATS_URL and
// COURTSTREAM_NATS_URL environment variables override the config.
func connectToNATS(ctx context.Context, app *config.Config, logger *slog.Logger) (*natsclient.Client, error) {
	natsURL := app.NATS.URL
	if envURL := os.Getenv("NATS_URL"); envURL != "" {
		natsURL = envURL
	} else if envURL := os.Getenv("COURTSTREAM_NATS_URL"); envURL != "" {
		natsURL = envURL
	}
	if natsURL == "" {
		natsURL = "nats://localhost:4222"
	}

	logger.Info("Connecting to NATS", "url", natsURL)

	client, err := natsclient.NewClient(natsURL,
		natsclient.WithName(appName),
		natsclient.WithMaxReconnects(-1),
		natsclient.WithReconnectWait(time.Second),
		natsclient.WithCircuitBreakerThreshold(20),
		natsclient.WithHealthInterval(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	if err := client.Connect(ctx); err != nil {
		return nil, wrapNATSError(err, natsURL)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.WaitForConnection(connCtx); err != nil {
		return nil, wrapNATSError(err, natsURL)
	}

	logger.Info("Connected to NATS", "url", natsURL)
	return client, nil
}

// wrapNATSError adds guidance for the common can't-connect case.
func wrapNATSError(err error, url string) error {
	errStr := err.Error()

	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no servers available") ||
		strings.Contains(errStr, "timeout") {
		return fmt.Errorf(`NATS connection failed: %w

NATS is not running at %s.

To start a local server with JetStream:
  nats-server -js

Or set NATS_URL to point at your NATS server.`, err, url)
	}

	return fmt.Errorf("NATS connection failed: %w", err)
}

func ensureStreams(ctx context.Context, cfg *semconfig.Config, natsClient *natsclient.Client, logger *slog.Logger) error {
	logger.Debug("Creating JetStream streams")
	streamsManager := semconfig.NewStreamsManager(natsClient, logger)

	if err := streamsManager.EnsureStreams(ctx, cfg); err != nil {
		return fmt.Errorf("ensure streams: %w", err)
	}

	logger.Debug("JetStream streams ready")
	return nil
}

func extractPlatformMeta(cfg *semconfig.Config) types.PlatformMeta {
	platformID := cfg.Platform.InstanceID
	if platformID == "" {
		platformID = cfg.Platform.ID
	}

	return types.PlatformMeta{
		Org:      cfg.Platform.Org,
		Platform: platformID,
	}
}

// ensureServiceManagerConfig injects service-manager defaults when the
// config does not carry them. The component-manager service needs it to
// instantiate the pipeline processors.
func ensureServiceManagerConfig(cfg *semconfig.Config) {
	if cfg.Services == nil {
		cfg.Services = make(types.ServiceConfigs)
	}

	if _, exists := cfg.Services["service-manager"]; !exists {
		defaultConfig := map[string]any{
			"http_port":  8080,
			"swagger_ui": false,
			"server_info": map[string]string{
				"title":       "Courtstream API",
				"description": "court registry ingestion pipeline",
				"version":     Version,
			},
		}
		defaultConfigJSON, _ := json.Marshal(defaultConfig)
		cfg.Services["service-manager"] = types.ServiceConfig{
			Name:    "service-manager",
			Enabled: true,
			Config:  defaultConfigJSON,
		}
	}
}

// configureAndCreateServices configures the manager and creates every
// enabled service except service-manager, which the manager configures
// directly.
func configureAndCreateServices(
	cfg *semconfig.Config,
	manager *service.Manager,
	svcDeps *service.Dependencies,
) error {
	if err := manager.ConfigureFromServices(cfg.Services, svcDeps); err != nil {
		return fmt.Errorf("configure service manager: %w", err)
	}

	for name, svcConfig := range cfg.Services {
		if name == "service-manager" {
			continue
		}

		if !svcConfig.Enabled {
			slog.Info("Service disabled in config", "name", name)
			continue
		}

		if !manager.HasConstructor(name) {
			slog.Warn("Service configured but not registered", "key", name)
			continue
		}

		if _, err := manager.CreateService(name, svcConfig.Config, svcDeps); err != nil {
			return fmt.Errorf("create service %s: %w", name, err)
		}

		slog.Info("Created service", "name", name)
	}

	return nil
}
