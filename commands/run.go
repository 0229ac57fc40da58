package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/componentregistry"
	semconfig "github.com/c360studio/semstreams/config"
	"github.com/c360studio/semstreams/metric"
	"github.com/c360studio/semstreams/service"

	"github.com/c360studio/courtstream/metrics"
	changemonitor "github.com/c360studio/courtstream/processor/change-monitor"
	docfetcher "github.com/c360studio/courtstream/processor/doc-fetcher"
	docparser "github.com/c360studio/courtstream/processor/doc-parser"
	failuresink "github.com/c360studio/courtstream/processor/failure-sink"
	spoolwatcher "github.com/c360studio/courtstream/processor/spool-watcher"
	versionwriter "github.com/c360studio/courtstream/processor/version-writer"
)

func newRunCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the ingestion pipeline",
		Long: `Run starts the full ingestion pipeline: the change monitor polls the
court registry for new and updated documents, fetch workers download
and content-address them, parsers extract structured case data, and
the version writer commits canonical document versions. Stages
communicate over NATS JetStream and resume from their durable consumer
position after a restart.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(opts)
		},
	}
}

func runPipeline(opts *Options) error {
	printBanner()

	logger := opts.Logger()
	slog.SetDefault(logger)

	appCfg, err := opts.loadConfig(logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	cfg, err := buildPlatformConfig(appCfg)
	if err != nil {
		return fmt.Errorf("build platform config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid platform config: %w", err)
	}

	ctx := context.Background()
	natsClient, err := connectToNATS(ctx, appCfg, logger)
	if err != nil {
		return err
	}
	defer natsClient.Close(ctx)

	if err := ensureStreams(ctx, cfg, natsClient, logger); err != nil {
		return err
	}

	slog.Info("Courtstream ready",
		"version", Version,
		"data_dir", appCfg.Storage.DataDir,
		"registry", appCfg.Registry.BaseURL)

	metricsRegistry := metric.NewMetricsRegistry()
	platform := extractPlatformMeta(cfg)

	// The config manager feeds component configs to the
	// component-manager service.
	configManager, err := semconfig.NewConfigManager(cfg, natsClient, logger)
	if err != nil {
		return fmt.Errorf("create config manager: %w", err)
	}
	if err := configManager.Start(ctx); err != nil {
		return fmt.Errorf("start config manager: %w", err)
	}
	defer configManager.Stop(5 * time.Second)

	componentRegistry := component.NewRegistry()

	if err := componentregistry.Register(componentRegistry); err != nil {
		return fmt.Errorf("register semstreams components: %w", err)
	}

	if err := changemonitor.Register(componentRegistry); err != nil {
		return fmt.Errorf("register change-monitor: %w", err)
	}
	if err := docfetcher.Register(componentRegistry); err != nil {
		return fmt.Errorf("register doc-fetcher: %w", err)
	}
	if err := docparser.Register(componentRegistry); err != nil {
		return fmt.Errorf("register doc-parser: %w", err)
	}
	if err := versionwriter.Register(componentRegistry); err != nil {
		return fmt.Errorf("register version-writer: %w", err)
	}
	if err := failuresink.Register(componentRegistry); err != nil {
		return fmt.Errorf("register failure-sink: %w", err)
	}
	if err := spoolwatcher.Register(componentRegistry); err != nil {
		return fmt.Errorf("register spool-watcher: %w", err)
	}

	factories := componentRegistry.ListFactories()
	slog.Info("Component factories registered", "count", len(factories))

	serviceRegistry := service.NewServiceRegistry()
	if err := service.RegisterAll(serviceRegistry); err != nil {
		return fmt.Errorf("register services: %w", err)
	}

	manager := service.NewServiceManager(serviceRegistry)
	ensureServiceManagerConfig(cfg)

	svcDeps := &service.Dependencies{
		NATSClient:        natsClient,
		MetricsRegistry:   metricsRegistry,
		Logger:            logger,
		Platform:          platform,
		Manager:           configManager,
		ComponentRegistry: componentRegistry,
	}

	if err := configureAndCreateServices(cfg, manager, svcDeps); err != nil {
		return err
	}

	var metricsServer *metrics.Server
	if appCfg.Metrics.Addr != "" {
		metricsServer = metrics.NewServer(appCfg.Metrics.Addr, logger)
		go func() {
			if err := metricsServer.Start(); err != nil {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	slog.Info("Starting all services")
	if err := manager.StartAll(signalCtx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}
	slog.Info("All services started")

	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	if err := manager.StopAll(30 * time.Second); err != nil {
		slog.Error("Error stopping services", "error", err)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("Error stopping metrics server", "error", err)
		}
	}

	slog.Info("Courtstream shutdown complete")
	return nil
}

func printBanner() {
	fmt.Println("╔═══════════════════════════════════════════════╗")
	fmt.Println("║           Courtstream v" + Version + "                  ║")
	fmt.Println("║     Court Registry Ingestion Pipeline         ║")
	fmt.Println("╚═══════════════════════════════════════════════╝")
}
