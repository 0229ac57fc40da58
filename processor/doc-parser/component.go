// Package docparser provides the worker-pool component that turns raw
// fetched documents into structured extractions.
//
// Each fetched event is parsed by content type, segmented into the closed
// section set, and mined for legal entities. The parser assigns the next
// tentative version number; the version writer owns the final say through
// its uniqueness and gap guards. Low-confidence extractions are emitted
// flagged, never discarded.
package docparser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
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
	"github.com/c360studio/courtstream/parse"
	"github.com/c360studio/courtstream/storage"
	"github.com/c360studio/courtstream/storage/sqlite"
)

// ContentReader loads raw document bytes from the content store.
type ContentReader interface {
	Get(location string) ([]byte, error)
}

// VersionReader reads the highest committed version number per document.
type VersionReader interface {
	MaxVersionNumber(ctx context.Context, docID string) (int, error)
}

// DocumentParser turns raw bytes into a structured extraction.
type DocumentParser interface {
	Parse(content []byte, contentType, sourceURL string) (*model.Extraction, error)
}

// parseOutcome tells handleMessage how to settle the consumed message.
type parseOutcome int

const (
	// outcomeParsed: extraction published downstream.
	outcomeParsed parseOutcome = iota
	// outcomeFailed: terminal parse failure recorded on the failed subject.
	outcomeFailed
)

// Component implements the doc-parser processor.
type Component struct {
	name       string
	config     Config
	natsClient *natsclient.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics

	parsers  DocumentParser
	content  ContentReader
	versions VersionReader
	store    *sqlite.Store

	consumer jetstream.Consumer

	// Lifecycle management
	running   bool
	startTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	// Metrics
	documentsParsed atomic.Int64
	parseFailures   atomic.Int64
	lowConfidence   atomic.Int64
	errors          atomic.Int64
	lastActivityMu  sync.RWMutex
	lastActivity    time.Time
}

// NewComponent creates a new doc-parser processor component.
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

	return &Component{
		name:       "doc-parser",
		config:     config,
		natsClient: deps.NATSClient,
		logger:     deps.GetLogger(),
		metrics:    metrics.Default(),
	}, nil
}

// Initialize prepares the component.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized doc-parser",
		"workers", c.config.GetWorkerCount(),
		"confidence_threshold", c.config.GetConfidenceThreshold(),
		"parser_version", parse.Version)
	return nil
}

// Start begins consuming fetched events with a pool of parse workers.
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
	if c.parsers == nil {
		c.parsers = parse.NewRegistry()
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
		AckWait:       2 * time.Minute,
		MaxDeliver:    5,
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

	c.logger.Info("doc-parser started",
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

// consumeLoop fetches and processes fetched events until ctx ends. Every
// worker runs its own loop against the shared consumer.
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

// handleMessage decodes one fetched event and settles it according to the
// parse outcome.
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

	var fetched event.FetchedPayload
	if err := json.Unmarshal(payloadBytes, &fetched); err != nil {
		c.logger.Error("Failed to parse fetched payload", "error", err)
		c.errors.Add(1)
		if err := msg.Nak(); err != nil {
			c.logger.Warn("Failed to NAK message", "error", err)
		}
		return
	}

	if _, err := c.processFetched(ctx, &fetched); err != nil {
		c.logger.Error("Failed to process fetched document",
			"doc_id", fetched.DocID,
			"error", err)
		c.errors.Add(1)
		if err := msg.Nak(); err != nil {
			c.logger.Warn("Failed to NAK message", "error", err)
		}
		return
	}

	if err := msg.Ack(); err != nil {
		c.logger.Warn("Failed to ACK message", "error", err)
	}
}

// processFetched parses one fetched document and publishes the extraction.
// A non-nil error means infrastructure trouble; the caller naks for
// redelivery. Malformed content is not an error: it is recorded on the
// failed subject and the fetched event is acked.
func (c *Component) processFetched(ctx context.Context, fetched *event.FetchedPayload) (parseOutcome, error) {
	start := time.Now()
	defer c.metrics.TrackActive(string(event.StageParse))()

	content, err := c.content.Get(fetched.StorageLocation)
	if err != nil {
		return 0, fmt.Errorf("load content: %w", err)
	}

	extraction, err := c.parsers.Parse(content, fetched.ContentType, fetched.SourceURL)
	if err != nil {
		if model.IsParseError(err) {
			if pubErr := c.publishFailure(ctx, fetched, err); pubErr != nil {
				return 0, pubErr
			}
			c.parseFailures.Add(1)
			c.metrics.RecordParse(metrics.StatusFailed, time.Since(start))
			return outcomeFailed, nil
		}
		return 0, fmt.Errorf("parse content: %w", err)
	}

	maxVersion, err := c.versions.MaxVersionNumber(ctx, fetched.DocID)
	if err != nil {
		return 0, fmt.Errorf("read max version: %w", err)
	}

	payload := c.buildParsed(fetched, extraction, maxVersion+1)

	if err := c.publishParsed(ctx, payload); err != nil {
		return 0, err
	}

	c.documentsParsed.Add(1)
	c.metrics.RecordParse(metrics.StatusParsed, time.Since(start))
	if payload.LowConfidence {
		c.lowConfidence.Add(1)
		c.logger.Warn("Low confidence extraction",
			"doc_id", fetched.DocID,
			"confidence", payload.Confidence)
	}
	return outcomeParsed, nil
}

// buildParsed assembles the parsed event for one extraction. The version
// id is minted here so writer retries stay idempotent, and the case id
// from discovery backfills extractions that found no case number in the
// text.
func (c *Component) buildParsed(fetched *event.FetchedPayload, extraction *model.Extraction, versionNumber int) *event.ParsedPayload {
	if extraction.CaseNumber == "" {
		extraction.CaseNumber = fetched.CaseID
	}

	confidence := parse.Confidence(extraction)

	return &event.ParsedPayload{
		DocID:           fetched.DocID,
		CaseID:          fetched.CaseID,
		VersionID:       model.NewVersionID(),
		Stage:           event.StageParse,
		VersionNumber:   versionNumber,
		SourceURL:       fetched.SourceURL,
		ContentHash:     fetched.ContentHash,
		StorageLocation: fetched.StorageLocation,
		ParserVersion:   parse.Version,
		Confidence:      confidence,
		LowConfidence:   confidence < c.config.GetConfidenceThreshold(),
		Extraction:      *extraction,
		OccurredAt:      time.Now().UTC(),
	}
}

// publishParsed emits a parsed event for the version writer.
func (c *Component) publishParsed(ctx context.Context, payload *event.ParsedPayload) error {
	baseMsg := message.NewBaseMessage(event.ParsedType, payload, "doc-parser")
	data, err := json.Marshal(baseMsg)
	if err != nil {
		return fmt.Errorf("marshal parsed event: %w", err)
	}

	if err := c.natsClient.PublishToStream(ctx, event.SubjectParsed, data); err != nil {
		c.metrics.RecordPublishFailure(event.SubjectParsed)
		return fmt.Errorf("publish to %s: %w", event.SubjectParsed, err)
	}
	c.metrics.RecordPublish(event.SubjectParsed)

	c.logger.Info("Document parsed",
		"doc_id", payload.DocID,
		"version", payload.VersionNumber,
		"confidence", payload.Confidence)
	return nil
}

// publishFailure records a terminal parse failure on the failed subject.
func (c *Component) publishFailure(ctx context.Context, fetched *event.FetchedPayload, parseErr error) error {
	payload := &event.FailedPayload{
		DocID:           fetched.DocID,
		CaseID:          fetched.CaseID,
		Stage:           event.StageParse,
		ErrorKind:       model.Kind(parseErr),
		Error:           parseErr.Error(),
		SourceURL:       fetched.SourceURL,
		StorageLocation: fetched.StorageLocation,
		OccurredAt:      time.Now().UTC(),
	}

	baseMsg := message.NewBaseMessage(event.FailedType, payload, "doc-parser")
	data, err := json.Marshal(baseMsg)
	if err != nil {
		return fmt.Errorf("marshal failure event: %w", err)
	}

	if err := c.natsClient.PublishToStream(ctx, event.SubjectFailed, data); err != nil {
		c.metrics.RecordPublishFailure(event.SubjectFailed)
		return fmt.Errorf("publish to %s: %w", event.SubjectFailed, err)
	}
	c.metrics.RecordPublish(event.SubjectFailed)

	c.logger.Warn("Document parse failed",
		"doc_id", fetched.DocID,
		"storage_location", fetched.StorageLocation,
		"error", parseErr)
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

	c.logger.Info("doc-parser stopped",
		"documents_parsed", c.documentsParsed.Load(),
		"parse_failures", c.parseFailures.Load(),
		"low_confidence", c.lowConfidence.Load())

	return err
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "doc-parser",
		Type:        "processor",
		Description: "Parses fetched documents into structured legal extractions",
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
	return parserSchema
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
