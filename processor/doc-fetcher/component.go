// Package docfetcher provides the worker-pool component that downloads
// discovered documents, deduplicates them by content hash, and persists
// the raw bytes to the content store.
//
// Discovery signals are hints, not guarantees: this stage is where the
// pipeline decides whether content actually changed. A fetch whose sha256
// matches the most recent known version is acked without emitting
// anything downstream.
package docfetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/message"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go/jetstream"

	appconfig "github.com/c360studio/courtstream/config"
	"github.com/c360studio/courtstream/event"
	"github.com/c360studio/courtstream/metrics"
	"github.com/c360studio/courtstream/model"
	"github.com/c360studio/courtstream/registry"
	"github.com/c360studio/courtstream/storage"
	"github.com/c360studio/courtstream/storage/sqlite"
)

// Fetcher downloads documents from the registry.
type Fetcher interface {
	FetchWithETag(ctx context.Context, urlStr, etag string) (*registry.FetchResult, error)
}

// LeaseStore coordinates in-flight fetches so two workers never download
// the same document concurrently.
type LeaseStore interface {
	Acquire(ctx context.Context, docID, holder string) error
	Release(ctx context.Context, docID string) error
}

// ContentWriter persists raw document bytes by content hash.
type ContentWriter interface {
	Put(hash string, content []byte) (string, error)
}

// VersionReader reads the most recent known content hash per document.
type VersionReader interface {
	LatestVersionHash(ctx context.Context, docID string) (string, error)
}

// fetchOutcome tells handleMessage how to settle the consumed message.
type fetchOutcome int

const (
	// outcomePublished: new content stored and announced downstream.
	outcomePublished fetchOutcome = iota
	// outcomeUnchanged: content identical to the latest known version.
	outcomeUnchanged
	// outcomeBusy: another worker holds the document's fetch lease.
	outcomeBusy
	// outcomeFailed: terminal failure recorded on the failed subject.
	outcomeFailed
)

// Component implements the doc-fetcher processor.
type Component struct {
	name       string
	config     Config
	natsClient *natsclient.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics

	client   Fetcher
	leases   LeaseStore
	content  ContentWriter
	versions VersionReader
	store    *sqlite.Store

	retryConfig RetryConfig
	consumer    jetstream.Consumer

	// Lifecycle management
	running   bool
	startTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	// Metrics
	documentsFetched atomic.Int64
	unchangedSkipped atomic.Int64
	fetchFailures    atomic.Int64
	leasesBusy       atomic.Int64
	errors           atomic.Int64
	lastActivityMu   sync.RWMutex
	lastActivity     time.Time
}

// NewComponent creates a new doc-fetcher processor component.
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
	if config.DataDir == "" {
		config.DataDir = appconfig.DefaultDataDir()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	retryConfig := DefaultRetryConfig()
	retryConfig.MaxAttempts = config.GetMaxAttempts()

	return &Component{
		name:        "doc-fetcher",
		config:      config,
		natsClient:  deps.NATSClient,
		logger:      deps.GetLogger(),
		metrics:     metrics.Default(),
		retryConfig: retryConfig,
	}, nil
}

// Initialize prepares the component.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized doc-fetcher",
		"workers", c.config.GetWorkerCount(),
		"max_attempts", c.retryConfig.MaxAttempts,
		"data_dir", c.config.DataDir)
	return nil
}

// Start begins consuming discovered events with a pool of fetch workers.
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

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	// Dependencies not injected by tests are built from config
	if c.client == nil {
		c.client = registry.NewClient(registry.ClientConfig{
			Timeout:        c.config.GetFetchTimeout(),
			UserAgent:      c.config.GetUserAgent(),
			MaxContentSize: c.config.GetMaxContentSize(),
			RateLimit:      c.config.RateLimit,
			Burst:          c.config.Burst,
			SpoolRoot:      c.config.SpoolDir,
		})
	}
	if c.leases == nil {
		leases, err := storage.NewLeaseStore(c.natsClient, c.config.GetLeaseTTL())
		if err != nil {
			c.rollbackStart(cancel)
			return fmt.Errorf("create lease store: %w", err)
		}
		c.leases = leases
	}
	if c.content == nil {
		content, err := storage.NewContentStore(filepath.Join(c.config.DataDir, "documents"))
		if err != nil {
			c.rollbackStart(cancel)
			return fmt.Errorf("create content store: %w", err)
		}
		c.content = content
	}
	if c.versions == nil {
		store, err := sqlite.NewStore(c.config.DataDir)
		if err != nil {
			c.rollbackStart(cancel)
			return fmt.Errorf("open canonical store: %w", err)
		}
		c.store = store
		c.versions = store
	}

	js, err := c.natsClient.JetStream()
	if err != nil {
		c.rollbackStart(cancel)
		return fmt.Errorf("get jetstream: %w", err)
	}

	stream, err := js.Stream(runCtx, c.config.StreamName)
	if err != nil {
		c.rollbackStart(cancel)
		return fmt.Errorf("get stream %s: %w", c.config.StreamName, err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(runCtx, jetstream.ConsumerConfig{
		Durable:       c.config.ConsumerName,
		FilterSubject: c.config.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		// Worst case is MaxAttempts slow downloads plus backoff
		AckWait:    5 * time.Minute,
		MaxDeliver: 5,
	})
	if err != nil {
		c.rollbackStart(cancel)
		return fmt.Errorf("create consumer: %w", err)
	}
	c.consumer = consumer

	workers := c.config.GetWorkerCount()
	for i := 0; i < workers; i++ {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.consumeLoop(runCtx)
		}()
	}

	c.logger.Info("doc-fetcher started",
		"stream", c.config.StreamName,
		"consumer", c.config.ConsumerName,
		"workers", workers)

	return nil
}

func (c *Component) rollbackStart(cancel context.CancelFunc) {
	c.mu.Lock()
	c.running = false
	c.cancel = nil
	c.mu.Unlock()
	cancel()
}

// consumeLoop fetches and processes discovered events until ctx ends.
// Every worker runs its own loop against the shared consumer.
func (c *Component) consumeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := c.consumer.Fetch(1, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue // Timeout, try again
		}

		for msg := range msgs.Messages() {
			select {
			case <-ctx.Done():
				// NAK the current message so it can be redelivered
				_ = msg.Nak()
				// Drain remaining messages from this batch
				for remaining := range msgs.Messages() {
					_ = remaining.Nak()
				}
				return
			default:
				c.handleMessage(ctx, msg)
			}
		}
	}
}

// handleMessage decodes one discovered event and settles it according to
// the fetch outcome.
func (c *Component) handleMessage(ctx context.Context, msg jetstream.Msg) {
	c.updateLastActivity()

	var baseMsg message.BaseMessage
	if err := json.Unmarshal(msg.Data(), &baseMsg); err != nil {
		c.logger.Error("Failed to parse message", "error", err)
		c.errors.Add(1)
		if err := msg.Nak(); err != nil {
			c.logger.Warn("Failed to NAK message", "error", err)
		}
		return
	}

	payloadBytes, err := json.Marshal(baseMsg.Payload())
	if err != nil {
		c.logger.Error("Failed to marshal payload", "error", err)
		c.errors.Add(1)
		if err := msg.Nak(); err != nil {
			c.logger.Warn("Failed to NAK message", "error", err)
		}
		return
	}

	var discovered event.DiscoveredPayload
	if err := json.Unmarshal(payloadBytes, &discovered); err != nil {
		c.logger.Error("Failed to parse discovered payload", "error", err)
		c.errors.Add(1)
		if err := msg.Nak(); err != nil {
			c.logger.Warn("Failed to NAK message", "error", err)
		}
		return
	}

	outcome, err := c.processDiscovered(ctx, &discovered)
	if err != nil {
		c.logger.Error("Failed to process discovered document",
			"doc_id", discovered.DocID,
			"error", err)
		c.errors.Add(1)
		if err := msg.Nak(); err != nil {
			c.logger.Warn("Failed to NAK message", "error", err)
		}
		return
	}

	switch outcome {
	case outcomeBusy:
		c.leasesBusy.Add(1)
		if err := msg.NakWithDelay(10 * time.Second); err != nil {
			c.logger.Warn("Failed to NAK message", "error", err)
		}
	default:
		if err := msg.Ack(); err != nil {
			c.logger.Warn("Failed to ACK message", "error", err)
		}
	}
}

// processDiscovered downloads one document, dedups it against the latest
// known version, and stores and announces new content. A non-nil error
// means infrastructure trouble; the caller naks for redelivery. Terminal
// fetch failures are not errors: they are recorded on the failed subject
// and the discovery event is acked.
func (c *Component) processDiscovered(ctx context.Context, discovered *event.DiscoveredPayload) (fetchOutcome, error) {
	if err := c.leases.Acquire(ctx, discovered.DocID, c.name); err != nil {
		if errors.Is(err, storage.ErrLeaseHeld) {
			c.logger.Debug("Fetch lease busy", "doc_id", discovered.DocID)
			return outcomeBusy, nil
		}
		return 0, fmt.Errorf("acquire lease: %w", err)
	}
	defer func() {
		// TTL reclaims the lease if release fails
		if err := c.leases.Release(ctx, discovered.DocID); err != nil {
			c.logger.Warn("Failed to release fetch lease",
				"doc_id", discovered.DocID,
				"error", err)
		}
	}()

	start := time.Now()
	defer c.metrics.TrackActive(string(event.StageFetch))()

	result, attempts, err := c.fetchWithRetry(ctx, discovered.SourceURL, etagFromSignal(discovered.Signal))
	if err != nil {
		if ctx.Err() != nil {
			// Shutting down: redeliver instead of recording a failure
			return 0, err
		}
		if pubErr := c.publishFailure(ctx, discovered, err, attempts); pubErr != nil {
			return 0, pubErr
		}
		c.fetchFailures.Add(1)
		c.metrics.RecordFetch(metrics.StatusFailed, time.Since(start))
		return outcomeFailed, nil
	}

	if result.NotModified() {
		c.unchangedSkipped.Add(1)
		c.metrics.RecordFetch(metrics.StatusUnchanged, time.Since(start))
		c.logger.Debug("Document not modified", "doc_id", discovered.DocID)
		return outcomeUnchanged, nil
	}

	hash := storage.HashContent(result.Body)

	lastHash, err := c.versions.LatestVersionHash(ctx, discovered.DocID)
	if err != nil {
		return 0, fmt.Errorf("read latest version hash: %w", err)
	}
	if lastHash == hash {
		c.unchangedSkipped.Add(1)
		c.metrics.RecordFetch(metrics.StatusUnchanged, time.Since(start))
		c.logger.Debug("Document content unchanged",
			"doc_id", discovered.DocID,
			"hash", hash)
		return outcomeUnchanged, nil
	}

	location, err := c.content.Put(hash, result.Body)
	if err != nil {
		return 0, fmt.Errorf("store content: %w", err)
	}

	if err := c.publishFetched(ctx, discovered, result, hash, location); err != nil {
		return 0, err
	}
	c.documentsFetched.Add(1)
	c.metrics.RecordFetch(metrics.StatusFetched, time.Since(start))
	return outcomePublished, nil
}

// fetchWithRetry downloads with exponential backoff. Permanent failures
// (missing document, oversized or unsupported content) short-circuit;
// transient ones retry up to MaxAttempts.
func (c *Component) fetchWithRetry(ctx context.Context, sourceURL, etag string) (*registry.FetchResult, int, error) {
	var lastErr error

	for attempt := 1; attempt <= c.retryConfig.MaxAttempts; attempt++ {
		result, err := c.client.FetchWithETag(ctx, sourceURL, etag)
		if err == nil {
			return result, attempt, nil
		}

		lastErr = err

		if model.IsPermanentFetch(err) {
			return nil, attempt, err
		}

		if attempt < c.retryConfig.MaxAttempts {
			backoff := c.retryConfig.calculateBackoff(attempt)
			c.logger.Debug("Fetch failed, retrying",
				"attempt", attempt,
				"max_attempts", c.retryConfig.MaxAttempts,
				"backoff", backoff,
				"error", err)

			select {
			case <-ctx.Done():
				return nil, attempt, ctx.Err()
			case <-time.After(backoff):
				// Continue to retry
			}
		}
	}

	return nil, c.retryConfig.MaxAttempts, lastErr
}

// etagFromSignal returns the signal when it is an HTTP entity tag.
// Listing-snippet hashes are not valid tags and must not be sent.
func etagFromSignal(signal string) string {
	if strings.HasPrefix(signal, `"`) || strings.HasPrefix(signal, "W/") {
		return signal
	}
	return ""
}

// publishFetched emits a fetched event for the parse stage.
func (c *Component) publishFetched(ctx context.Context, discovered *event.DiscoveredPayload, result *registry.FetchResult, hash, location string) error {
	payload := &event.FetchedPayload{
		DocID:           discovered.DocID,
		CaseID:          discovered.CaseID,
		Stage:           event.StageFetch,
		SourceURL:       discovered.SourceURL,
		ContentHash:     hash,
		StorageLocation: location,
		ContentType:     result.ContentType,
		ETag:            result.ETag,
		OccurredAt:      time.Now().UTC(),
	}

	baseMsg := message.NewBaseMessage(event.FetchedType, payload, "doc-fetcher")
	data, err := json.Marshal(baseMsg)
	if err != nil {
		return fmt.Errorf("marshal fetched event: %w", err)
	}

	if err := c.natsClient.PublishToStream(ctx, event.SubjectFetched, data); err != nil {
		c.metrics.RecordPublishFailure(event.SubjectFetched)
		return fmt.Errorf("publish to %s: %w", event.SubjectFetched, err)
	}
	c.metrics.RecordPublish(event.SubjectFetched)

	c.logger.Info("Document fetched",
		"doc_id", discovered.DocID,
		"bytes", len(result.Body),
		"content_type", result.ContentType)
	return nil
}

// publishFailure records a terminal fetch failure on the failed subject.
func (c *Component) publishFailure(ctx context.Context, discovered *event.DiscoveredPayload, fetchErr error, attempts int) error {
	payload := &event.FailedPayload{
		DocID:      discovered.DocID,
		CaseID:     discovered.CaseID,
		Stage:      event.StageFetch,
		ErrorKind:  model.Kind(fetchErr),
		Error:      fetchErr.Error(),
		SourceURL:  discovered.SourceURL,
		Attempts:   attempts,
		OccurredAt: time.Now().UTC(),
	}

	baseMsg := message.NewBaseMessage(event.FailedType, payload, "doc-fetcher")
	data, err := json.Marshal(baseMsg)
	if err != nil {
		return fmt.Errorf("marshal failure event: %w", err)
	}

	if err := c.natsClient.PublishToStream(ctx, event.SubjectFailed, data); err != nil {
		c.metrics.RecordPublishFailure(event.SubjectFailed)
		return fmt.Errorf("publish to %s: %w", event.SubjectFailed, err)
	}
	c.metrics.RecordPublish(event.SubjectFailed)

	c.logger.Warn("Document fetch failed",
		"doc_id", discovered.DocID,
		"attempts", attempts,
		"error_kind", payload.ErrorKind,
		"error", fetchErr)
	return nil
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
	c.mu.Unlock()

	// Wait for workers to finish with timeout
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

	if c.store != nil {
		if cerr := c.store.Close(); cerr != nil {
			c.logger.Warn("Failed to close canonical store", "error", cerr)
		}
		c.store = nil
		c.versions = nil
	}

	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	c.logger.Info("doc-fetcher stopped",
		"documents_fetched", c.documentsFetched.Load(),
		"unchanged_skipped", c.unchangedSkipped.Load(),
		"fetch_failures", c.fetchFailures.Load())

	return err
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "doc-fetcher",
		Type:        "processor",
		Description: "Downloads discovered documents and dedups them by content hash",
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
	return fetcherSchema
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
		ErrorCount: int(c.errors.Load()),
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
