// Package spoolwatcher provides the component that ingests bulk registry
// exports dropped into a local spool directory.
//
// Exports obtained out of band (bulk downloads, archival transfers) are
// unpacked into the spool; the watcher announces each matching file as a
// discovered document with a file:// source URL, which the fetch stage
// resolves from disk through the same pipeline as registry fetches. The
// watcher is disabled unless a spool directory is configured.
package spoolwatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/message"
	"github.com/c360studio/semstreams/natsclient"

	"github.com/c360studio/courtstream/event"
	"github.com/c360studio/courtstream/metrics"
	"github.com/c360studio/courtstream/model"
)

// Component implements the spool-watcher processor.
type Component struct {
	name       string
	config     Config
	natsClient *natsclient.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics

	watcher *spoolWatcher

	// Lifecycle management
	running   bool
	startTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	// Metrics
	filesDiscovered atomic.Int64
	updatesFlagged  atomic.Int64
	publishErrors   atomic.Int64
	lastActivityMu  sync.RWMutex
	lastActivity    time.Time
}

// NewComponent creates a new spool-watcher processor component.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	var config Config
	if err := json.Unmarshal(rawConfig, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Use default config if ports not set
	if config.Ports == nil {
		config = DefaultConfig()
		// Re-unmarshal to get user-provided values
		if err := json.Unmarshal(rawConfig, &config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Component{
		name:       "spool-watcher",
		config:     config,
		natsClient: deps.NATSClient,
		logger:     deps.GetLogger(),
		metrics:    metrics.Default(),
	}, nil
}

// Initialize prepares the component.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized spool-watcher",
		"enabled", c.config.Enabled,
		"spool_dir", c.config.SpoolDir)
	return nil
}

// Start begins watching the spool directory when enabled. A disabled
// watcher starts successfully and stays idle.
func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("component already running")
	}

	if !c.config.Enabled {
		c.running = true
		c.startTime = time.Now()
		c.mu.Unlock()
		c.logger.Info("Spool watcher disabled")
		return nil
	}

	if c.natsClient == nil {
		c.mu.Unlock()
		return fmt.Errorf("NATS client required")
	}

	c.running = true
	c.startTime = time.Now()

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	watcher, err := newSpoolWatcher(
		c.config.SpoolDir,
		c.config.IncludeGlobs,
		c.config.ExcludeGlobs,
		c.config.GetDebounceDelay(),
		c.logger,
	)
	if err != nil {
		c.rollbackStart(cancel)
		return fmt.Errorf("create spool watcher: %w", err)
	}
	c.watcher = watcher

	if err := watcher.Start(runCtx); err != nil {
		_ = watcher.Stop()
		c.watcher = nil
		c.rollbackStart(cancel)
		return fmt.Errorf("start spool watcher: %w", err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.publishLoop(runCtx)
	}()

	c.logger.Info("spool-watcher started",
		"spool_dir", c.config.SpoolDir,
		"debounce", c.config.GetDebounceDelay())

	return nil
}

func (c *Component) rollbackStart(cancel context.CancelFunc) {
	c.mu.Lock()
	c.running = false
	c.cancel = nil
	c.mu.Unlock()
	cancel()
}

// publishLoop drains watcher events until the events channel closes.
func (c *Component) publishLoop(ctx context.Context) {
	for ev := range c.watcher.Events() {
		c.publishDiscovered(ctx, ev)
	}
}

// publishDiscovered announces one spool file on the discovered subject. A
// failed publish is logged and dropped here: the file stays in the spool,
// and the startup sweep announces it again on the next run.
func (c *Component) publishDiscovered(ctx context.Context, ev spoolEvent) {
	c.updateLastActivity()

	payload := &event.DiscoveredPayload{
		DocID:          docIDForFile(ev.RelPath),
		Stage:          event.StageDiscovery,
		SourceURL:      fileURL(ev.AbsPath),
		Signal:         ev.Hash,
		PossibleUpdate: ev.PossibleUpdate,
		OccurredAt:     time.Now().UTC(),
	}

	baseMsg := message.NewBaseMessage(event.DiscoveredType, payload, "spool-watcher")
	data, err := json.Marshal(baseMsg)
	if err != nil {
		c.publishErrors.Add(1)
		c.logger.Error("Failed to marshal discovered event",
			"path", ev.RelPath,
			"error", err)
		return
	}

	if err := c.natsClient.PublishToStream(ctx, event.SubjectDiscovered, data); err != nil {
		c.publishErrors.Add(1)
		c.metrics.RecordPublishFailure(event.SubjectDiscovered)
		c.logger.Error("Failed to publish discovered event",
			"path", ev.RelPath,
			"error", err)
		return
	}
	c.metrics.RecordPublish(event.SubjectDiscovered)
	c.metrics.RecordDiscovered()

	c.filesDiscovered.Add(1)
	if ev.PossibleUpdate {
		c.updatesFlagged.Add(1)
	}
	c.logger.Info("Spool file discovered",
		"doc_id", payload.DocID,
		"path", ev.RelPath,
		"possible_update", ev.PossibleUpdate)
}

// docIDForFile derives the logical document id from a spool file name.
// File names carry the registry id, so re-dropping the same export file
// addresses the same document and dedups by content hash downstream.
func docIDForFile(relPath string) string {
	base := filepath.Base(relPath)
	id := strings.TrimSuffix(base, filepath.Ext(base))
	return model.NewDocumentID(id)
}

// fileURL builds the file:// URL the fetch stage resolves from disk.
func fileURL(absPath string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(absPath)}
	return u.String()
}

// Stop gracefully stops the component within the given timeout.
func (c *Component) Stop(timeout time.Duration) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}

	if c.cancel != nil {
		c.cancel()
	}
	watcher := c.watcher
	c.mu.Unlock()

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			c.logger.Warn("Failed to close spool watcher", "error", err)
		}
	}

	// Wait for the publish loop to finish with timeout
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		// Graceful shutdown completed
	case <-time.After(timeout):
		err = fmt.Errorf("stop timed out after %v", timeout)
	}

	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	c.logger.Info("spool-watcher stopped",
		"files_discovered", c.filesDiscovered.Load(),
		"updates_flagged", c.updatesFlagged.Load())

	return err
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "spool-watcher",
		Type:        "processor",
		Description: "Announces bulk registry exports dropped into the local spool",
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
	return watcherSchema
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
		ErrorCount: int(c.publishErrors.Load()),
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
		LastActivity:      c.getLastActivity(),
	}
}

func (c *Component) updateLastActivity() {
	c.lastActivityMu.Lock()
	c.lastActivity = time.Now()
	c.lastActivityMu.Unlock()
}

func (c *Component) getLastActivity() time.Time {
	c.lastActivityMu.RLock()
	defer c.lastActivityMu.RUnlock()
	return c.lastActivity
}
