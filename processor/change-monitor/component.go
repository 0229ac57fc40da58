// Package changemonitor provides the polling component that watches the
// court registry for new and changed documents.
//
// Each sweep enumerates the registry listings and compares every entry
// against its stored fingerprint. The listing signal is an opaque hint:
// it may change without the document changing and vice versa. The monitor
// therefore only decides whether a fetch is worth announcing; the fetch
// stage performs the authoritative dedup via content hash.
package changemonitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/message"
	"github.com/c360studio/semstreams/natsclient"

	"github.com/c360studio/courtstream/event"
	"github.com/c360studio/courtstream/metrics"
	"github.com/c360studio/courtstream/model"
	"github.com/c360studio/courtstream/registry"
	"github.com/c360studio/courtstream/storage"
)

// Discoverer enumerates candidate documents from the registry listings.
type Discoverer interface {
	Discover(ctx context.Context) ([]registry.Candidate, error)
}

// FingerprintStore persists last-seen change signals between sweeps.
type FingerprintStore interface {
	Get(ctx context.Context, docID string) (*model.ChangeFingerprint, error)
	Put(ctx context.Context, fp *model.ChangeFingerprint) error
}

// Component implements the change-monitor processor.
type Component struct {
	name       string
	config     Config
	natsClient *natsclient.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics

	discovery    Discoverer
	fingerprints FingerprintStore

	// Lifecycle management
	running   bool
	startTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc

	// Metrics
	sweepsRun           atomic.Int64
	documentsDiscovered atomic.Int64
	updatesFlagged      atomic.Int64
	sweepErrors         atomic.Int64
	inFlight            atomic.Bool
	lastSweepMu         sync.RWMutex
	lastSweep           time.Time
}

// NewComponent creates a new change-monitor processor.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	var config Config
	if err := json.Unmarshal(rawConfig, &config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Apply defaults
	defaults := DefaultConfig()
	if config.DiscoveryInterval == 0 {
		config.DiscoveryInterval = defaults.DiscoveryInterval
	}
	if config.RecheckInterval == 0 {
		config.RecheckInterval = defaults.RecheckInterval
	}
	if config.RegistryURL == "" {
		config.RegistryURL = defaults.RegistryURL
	}
	if config.FetchTimeout == 0 {
		config.FetchTimeout = defaults.FetchTimeout
	}
	if config.RateLimit == 0 {
		config.RateLimit = defaults.RateLimit
	}
	if config.Ports == nil {
		config.Ports = defaults.Ports
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Component{
		name:       "change-monitor",
		config:     config,
		natsClient: deps.NATSClient,
		logger:     deps.GetLogger(),
		metrics:    metrics.Default(),
	}, nil
}

// Initialize prepares the component.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized change-monitor",
		"discovery_interval", c.config.DiscoveryInterval,
		"recheck_interval", c.config.RecheckInterval,
		"registry_url", c.config.RegistryURL)
	return nil
}

// Start begins polling the registry for changes.
func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("component already running")
	}
	if c.natsClient == nil {
		c.mu.Unlock()
		return fmt.Errorf("NATS client required")
	}

	c.running = true
	c.startTime = time.Now()

	subCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	// Dependencies not injected by tests are built from config
	if c.discovery == nil {
		clientCfg := registry.DefaultClientConfig()
		clientCfg.Timeout = c.config.FetchTimeout
		clientCfg.RateLimit = c.config.RateLimit
		discovery, err := registry.NewDiscovery(registry.NewClient(clientCfg), c.config.RegistryURL, c.logger)
		if err != nil {
			c.rollbackStart(cancel)
			return fmt.Errorf("create discovery: %w", err)
		}
		c.discovery = discovery
	}
	if c.fingerprints == nil {
		store, err := storage.NewFingerprintStore(c.natsClient)
		if err != nil {
			c.rollbackStart(cancel)
			return fmt.Errorf("create fingerprint store: %w", err)
		}
		c.fingerprints = store
	}

	go c.sweepLoop(subCtx)

	c.logger.Info("change-monitor started",
		"discovery_interval", c.config.DiscoveryInterval,
		"registry_url", c.config.RegistryURL)

	return nil
}

func (c *Component) rollbackStart(cancel context.CancelFunc) {
	c.mu.Lock()
	c.running = false
	c.cancel = nil
	c.mu.Unlock()
	cancel()
}

// sweepLoop periodically polls the registry listings.
func (c *Component) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(c.config.DiscoveryInterval)
	defer ticker.Stop()

	// Run immediately on start
	c.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

// sweep runs one discovery round. A tick that arrives while the previous
// sweep is still running is skipped.
func (c *Component) sweep(ctx context.Context) {
	if !c.inFlight.CompareAndSwap(false, true) {
		c.logger.Debug("Sweep already in flight, skipping tick")
		return
	}
	defer c.inFlight.Store(false)

	c.sweepsRun.Add(1)
	c.updateLastSweep()

	candidates, err := c.discovery.Discover(ctx)
	if err != nil {
		// The registry being briefly unreachable is normal; the next
		// tick retries.
		c.sweepErrors.Add(1)
		c.logger.Error("Discovery poll failed", "error", err)
		return
	}

	c.logger.Debug("Checking candidates", "count", len(candidates))

	for _, cand := range candidates {
		if err := c.handleCandidate(ctx, cand); err != nil {
			c.logger.Warn("Failed to process candidate",
				"registry_id", cand.RegistryID,
				"error", err)
		}
	}
}

// handleCandidate compares one listing entry against its stored fingerprint
// and publishes a discovered event when a fetch is warranted. The
// fingerprint is only refreshed when an event is published, so CheckedAt
// records the last time verification was triggered.
func (c *Component) handleCandidate(ctx context.Context, cand registry.Candidate) error {
	docID := model.NewDocumentID(cand.RegistryID)

	fp, err := c.fingerprints.Get(ctx, docID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		if err := c.publishDiscovered(ctx, docID, cand, false); err != nil {
			return err
		}
		c.documentsDiscovered.Add(1)
	case err != nil:
		return fmt.Errorf("load fingerprint: %w", err)
	default:
		if !needsRecheck(fp, cand, time.Now(), c.config.RecheckInterval) {
			return nil
		}
		if err := c.publishDiscovered(ctx, docID, cand, true); err != nil {
			return err
		}
		c.updatesFlagged.Add(1)
	}

	return c.fingerprints.Put(ctx, &model.ChangeFingerprint{
		DocumentID: docID,
		Signal:     cand.Signal,
		SourceURL:  cand.URL,
		CheckedAt:  time.Now().UTC(),
	})
}

// needsRecheck decides whether a known document warrants re-verification.
// A changed signal always triggers. A stale fingerprint triggers even when
// the signal matches, so silent edits are eventually caught.
func needsRecheck(fp *model.ChangeFingerprint, cand registry.Candidate, now time.Time, recheck time.Duration) bool {
	if cand.Signal != "" && fp.Signal != "" && cand.Signal != fp.Signal {
		return true
	}
	return now.Sub(fp.CheckedAt) >= recheck
}

// publishDiscovered emits a discovered event for the fetch stage.
func (c *Component) publishDiscovered(ctx context.Context, docID string, cand registry.Candidate, possibleUpdate bool) error {
	payload := &event.DiscoveredPayload{
		DocID:          docID,
		Stage:          event.StageDiscovery,
		SourceURL:      cand.URL,
		Signal:         cand.Signal,
		PossibleUpdate: possibleUpdate,
		OccurredAt:     time.Now().UTC(),
	}

	baseMsg := message.NewBaseMessage(event.DiscoveredType, payload, "change-monitor")
	data, err := json.Marshal(baseMsg)
	if err != nil {
		return fmt.Errorf("marshal discovered event: %w", err)
	}

	if err := c.natsClient.PublishToStream(ctx, event.SubjectDiscovered, data); err != nil {
		c.metrics.RecordPublishFailure(event.SubjectDiscovered)
		return fmt.Errorf("publish to %s: %w", event.SubjectDiscovered, err)
	}
	c.metrics.RecordPublish(event.SubjectDiscovered)
	c.metrics.RecordDiscovered()

	c.logger.Info("Document discovered",
		"doc_id", docID,
		"possible_update", possibleUpdate)
	return nil
}

// Stop gracefully stops the component.
func (c *Component) Stop(_ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}

	if c.cancel != nil {
		c.cancel()
	}

	c.running = false
	c.logger.Info("change-monitor stopped",
		"sweeps_run", c.sweepsRun.Load(),
		"documents_discovered", c.documentsDiscovered.Load(),
		"updates_flagged", c.updatesFlagged.Load())

	return nil
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "change-monitor",
		Type:        "processor",
		Description: "Polls the court registry for new and changed documents",
		Version:     "0.1.0",
	}
}

// InputPorts returns configured input port definitions.
func (c *Component) InputPorts() []component.Port {
	if c.config.Ports == nil {
		return []component.Port{}
	}

	ports := make([]component.Port, len(c.config.Ports.Inputs))
	for i, portDef := range c.config.Ports.Inputs {
		ports[i] = buildPort(portDef, component.DirectionInput)
	}
	return ports
}

// OutputPorts returns configured output port definitions.
func (c *Component) OutputPorts() []component.Port {
	if c.config.Ports == nil {
		return []component.Port{}
	}

	ports := make([]component.Port, len(c.config.Ports.Outputs))
	for i, portDef := range c.config.Ports.Outputs {
		ports[i] = buildPort(portDef, component.DirectionOutput)
	}
	return ports
}

// buildPort creates a component.Port from a PortDefinition.
func buildPort(portDef component.PortDefinition, direction component.Direction) component.Port {
	port := component.Port{
		Name:        portDef.Name,
		Direction:   direction,
		Required:    portDef.Required,
		Description: portDef.Description,
	}
	if portDef.Type == "jetstream" {
		port.Config = component.JetStreamPort{
			StreamName: portDef.StreamName,
			Subjects:   []string{portDef.Subject},
		}
	} else {
		port.Config = component.NATSPort{
			Subject: portDef.Subject,
		}
	}
	return port
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return monitorSchema
}

// Health returns the current health status.
func (c *Component) Health() component.HealthStatus {
	c.mu.RLock()
	running := c.running
	startTime := c.startTime
	c.mu.RUnlock()

	status := "stopped"
	if running {
		status = "running"
	}

	return component.HealthStatus{
		Healthy:    running,
		LastCheck:  time.Now(),
		ErrorCount: int(c.sweepErrors.Load()),
		Uptime:     time.Since(startTime),
		Status:     status,
	}
}

// DataFlow returns current data flow metrics.
func (c *Component) DataFlow() component.FlowMetrics {
	return component.FlowMetrics{
		MessagesPerSecond: 0,
		BytesPerSecond:    0,
		ErrorRate:         0,
		LastActivity:      c.getLastSweep(),
	}
}

func (c *Component) updateLastSweep() {
	c.lastSweepMu.Lock()
	c.lastSweep = time.Now()
	c.lastSweepMu.Unlock()
}

func (c *Component) getLastSweep() time.Time {
	c.lastSweepMu.RLock()
	defer c.lastSweepMu.RUnlock()
	return c.lastSweep
}
