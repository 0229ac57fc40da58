// Package versionwriter provides the component that commits parsed document
// versions to the canonical store.
//
// The writer is the sole owner of the version invariants. Version numbers
// per document are gapless and start at 1; redelivered events are absorbed
// as no-ops; the same number with a different content hash is rejected as a
// consistency violation; the document's current pointer only moves forward,
// so replaying old versions never regresses it. Parsed events are never
// dropped: a write that cannot commit yet is requeued until it can.
package versionwriter

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
	"github.com/c360studio/semstreams/pkg/retry"
	"github.com/nats-io/nats.go/jetstream"

	appconfig "github.com/c360studio/courtstream/config"
	"github.com/c360studio/courtstream/event"
	"github.com/c360studio/courtstream/metrics"
	"github.com/c360studio/courtstream/model"
	"github.com/c360studio/courtstream/storage"
	"github.com/c360studio/courtstream/storage/sqlite"
)

// VersionStore commits parsed versions to the canonical store.
type VersionStore interface {
	WriteParsed(ctx context.Context, w sqlite.VersionWrite) (sqlite.WriteOutcome, error)
}

// writeResult tells handleMessage how to settle the consumed message.
type writeResult int

const (
	// resultCommitted: new version row created.
	resultCommitted writeResult = iota
	// resultDuplicate: redelivery absorbed as a no-op.
	resultDuplicate
	// resultViolation: conflicting hash rejected, failure recorded.
	resultViolation
	// resultGap: an earlier version has not committed yet, requeue.
	resultGap
	// resultStorageDown: retries exhausted against an unavailable store.
	resultStorageDown
)

// Component implements the version-writer processor.
type Component struct {
	name       string
	config     Config
	natsClient *natsclient.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics

	writes VersionStore
	store  *sqlite.Store

	consumer jetstream.Consumer

	// Lifecycle management
	running   bool
	startTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	// Metrics
	versionsWritten       atomic.Int64
	duplicatesAbsorbed    atomic.Int64
	consistencyViolations atomic.Int64
	gapsDeferred          atomic.Int64
	storageOutages        atomic.Int64
	errors                atomic.Int64
	lastActivityMu        sync.RWMutex
	lastActivity          time.Time
}

// NewComponent creates a new version-writer processor component.
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
		name:       "version-writer",
		config:     config,
		natsClient: deps.NATSClient,
		logger:     deps.GetLogger(),
		metrics:    metrics.Default(),
	}, nil
}

// Initialize prepares the component.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized version-writer", "data_dir", c.config.DataDir)
	return nil
}

// Start begins consuming parsed events.
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

	if c.writes == nil {
		store, err := sqlite.NewStore(c.config.DataDir)
		if err != nil {
			c.rollbackStart(cancel)
			return fmt.Errorf("open canonical store: %w", err)
		}
		c.store = store
		c.writes = store
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

	// MaxDeliver is unlimited: a parsed event must never be dropped, it is
	// requeued until storage recovers or the version gap closes.
	consumer, err := stream.CreateOrUpdateConsumer(runCtx, jetstream.ConsumerConfig{
		Durable:       c.config.ConsumerName,
		FilterSubject: c.config.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       2 * time.Minute,
		MaxDeliver:    -1,
	})
	if err != nil {
		c.rollbackStart(cancel)
		return fmt.Errorf("create consumer: %w", err)
	}
	c.consumer = consumer

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.consumeLoop(runCtx)
	}()

	c.logger.Info("version-writer started",
		"stream", c.config.StreamName,
		"consumer", c.config.ConsumerName)

	return nil
}

func (c *Component) rollbackStart(cancel context.CancelFunc) {
	c.mu.Lock()
	c.running = false
	c.cancel = nil
	c.mu.Unlock()
	cancel()
}

// consumeLoop fetches and processes parsed events until ctx ends.
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
			c.handleMessage(ctx, msg)
		}

		if msgs.Error() != nil && msgs.Error() != context.DeadlineExceeded {
			c.logger.Warn("Fetch error", "error", msgs.Error())
		}
	}
}

// handleMessage decodes one parsed event and settles it according to the
// write result.
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

	var parsed event.ParsedPayload
	if err := json.Unmarshal(payloadBytes, &parsed); err != nil {
		c.logger.Error("Failed to parse parsed payload", "error", err)
		c.errors.Add(1)
		if err := msg.Nak(); err != nil {
			c.logger.Warn("Failed to NAK message", "error", err)
		}
		return
	}

	result, err := c.processParsed(ctx, &parsed)
	if err != nil {
		c.logger.Error("Failed to process parsed event",
			"doc_id", parsed.DocID,
			"version", parsed.VersionNumber,
			"error", err)
		c.errors.Add(1)
		if err := msg.Nak(); err != nil {
			c.logger.Warn("Failed to NAK message", "error", err)
		}
		return
	}

	switch result {
	case resultGap:
		// The missing predecessor is usually already in flight; a short
		// delay lets it commit before this event comes back.
		if err := msg.NakWithDelay(10 * time.Second); err != nil {
			c.logger.Warn("Failed to NAK message", "error", err)
		}
	case resultStorageDown:
		if err := msg.NakWithDelay(30 * time.Second); err != nil {
			c.logger.Warn("Failed to NAK message", "error", err)
		}
	default:
		if err := msg.Ack(); err != nil {
			c.logger.Warn("Failed to ACK message", "error", err)
		}
	}
}

// processParsed commits one parsed version. A non-nil error means the event
// could not be evaluated at all and the caller naks for redelivery.
func (c *Component) processParsed(ctx context.Context, parsed *event.ParsedPayload) (writeResult, error) {
	start := time.Now()
	defer c.metrics.TrackActive(string(event.StageWrite))()

	write, err := buildWrite(parsed)
	if err != nil {
		return 0, err
	}

	// Invariant conflicts are captured before the retry wrapper so the
	// classification does not depend on unwrapping it afterwards.
	var outcome sqlite.WriteOutcome
	var terminalErr error
	writeErr := retry.Do(ctx, retry.DefaultConfig(), func() error {
		queryStart := time.Now()
		out, err := c.writes.WriteParsed(ctx, write)
		status := "success"
		if err != nil {
			status = "error"
		}
		c.metrics.RecordDbQuery("write_parsed", status, time.Since(queryStart))
		if err != nil {
			// Invariant conflicts cannot be fixed by retrying.
			if model.IsConsistencyViolation(err) || errors.Is(err, storage.ErrVersionGap) {
				terminalErr = err
				return retry.NonRetryable(err)
			}
			return err
		}
		outcome = out
		return nil
	})

	switch {
	case writeErr == nil:
		// Fall through to the outcome mapping below.
	case terminalErr != nil && errors.Is(terminalErr, storage.ErrVersionGap):
		c.gapsDeferred.Add(1)
		c.logger.Info("Version gap, requeueing",
			"doc_id", parsed.DocID,
			"version", parsed.VersionNumber)
		return resultGap, nil
	case terminalErr != nil:
		if pubErr := c.publishFailure(ctx, parsed, terminalErr); pubErr != nil {
			return 0, pubErr
		}
		c.consistencyViolations.Add(1)
		return resultViolation, nil
	case ctx.Err() != nil:
		// Shutting down: redeliver instead of recording an outage.
		return 0, writeErr
	default:
		// Retries exhausted: record the outage, keep the event queued.
		c.storageOutages.Add(1)
		outageErr := model.NewStorageUnavailable(writeErr)
		if pubErr := c.publishFailure(ctx, parsed, outageErr); pubErr != nil {
			c.logger.Warn("Failed to record storage outage", "error", pubErr)
		}
		c.logger.Error("Canonical store unavailable",
			"doc_id", parsed.DocID,
			"version", parsed.VersionNumber,
			"error", writeErr)
		return resultStorageDown, nil
	}

	switch outcome {
	case sqlite.WriteDuplicate:
		c.duplicatesAbsorbed.Add(1)
		c.metrics.RecordWrite(metrics.OutcomeDuplicate, time.Since(start))
		c.logger.Debug("Duplicate version absorbed",
			"doc_id", parsed.DocID,
			"version", parsed.VersionNumber)
		return resultDuplicate, nil
	default:
		c.versionsWritten.Add(1)
		c.metrics.RecordWrite(metrics.OutcomeApplied, time.Since(start))
		c.logger.Info("Version committed",
			"doc_id", parsed.DocID,
			"version", parsed.VersionNumber,
			"parser_version", parsed.ParserVersion)
		return resultCommitted, nil
	}
}

// buildWrite assembles the canonical write for one parsed event. The case
// number from discovery backfills extractions that found none, so the case
// row still gets created and linked.
func buildWrite(parsed *event.ParsedPayload) (sqlite.VersionWrite, error) {
	extraction := parsed.Extraction
	if extraction.CaseNumber == "" {
		extraction.CaseNumber = parsed.CaseID
	}

	parsedJSON, err := json.Marshal(&extraction)
	if err != nil {
		return sqlite.VersionWrite{}, fmt.Errorf("marshal extraction: %w", err)
	}

	return sqlite.VersionWrite{
		Document: model.LogicalDocument{
			ID:        parsed.DocID,
			CaseID:    parsed.CaseID,
			Type:      model.ParseDocumentType(string(extraction.DocumentType)),
			SourceURL: parsed.SourceURL,
			CreatedAt: parsed.OccurredAt,
		},
		Version: model.DocumentVersion{
			ID:             parsed.VersionID,
			DocumentID:     parsed.DocID,
			VersionNumber:  parsed.VersionNumber,
			SourceURL:      parsed.SourceURL,
			SourceHash:     parsed.ContentHash,
			RawStoragePath: parsed.StorageLocation,
			ParsedJSON:     parsedJSON,
			PublishedAt:    extraction.DecisionDate,
			CreatedAt:      parsed.OccurredAt,
		},
		Extraction: extraction,
		ParseRun: model.ParseRun{
			DocumentVersionID: parsed.VersionID,
			ParserVersion:     parsed.ParserVersion,
			ConfidenceScore:   parsed.Confidence,
			ParsedAt:          parsed.OccurredAt,
		},
	}, nil
}

// publishFailure records a write failure on the failed subject.
func (c *Component) publishFailure(ctx context.Context, parsed *event.ParsedPayload, writeErr error) error {
	payload := &event.FailedPayload{
		DocID:           parsed.DocID,
		CaseID:          parsed.CaseID,
		VersionID:       parsed.VersionID,
		Stage:           event.StageWrite,
		ErrorKind:       model.Kind(writeErr),
		Error:           writeErr.Error(),
		StorageLocation: parsed.StorageLocation,
		OccurredAt:      time.Now().UTC(),
	}

	baseMsg := message.NewBaseMessage(event.FailedType, payload, "version-writer")
	data, err := json.Marshal(baseMsg)
	if err != nil {
		return fmt.Errorf("marshal failure event: %w", err)
	}

	if err := c.natsClient.PublishToStream(ctx, event.SubjectFailed, data); err != nil {
		c.metrics.RecordPublishFailure(event.SubjectFailed)
		return fmt.Errorf("publish to %s: %w", event.SubjectFailed, err)
	}
	c.metrics.RecordPublish(event.SubjectFailed)

	c.logger.Warn("Version write failed",
		"doc_id", parsed.DocID,
		"version", parsed.VersionNumber,
		"error_kind", payload.ErrorKind,
		"error", writeErr)
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

	// Wait for the consume loop to finish with timeout
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
		c.writes = nil
	}

	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	c.logger.Info("version-writer stopped",
		"versions_written", c.versionsWritten.Load(),
		"duplicates_absorbed", c.duplicatesAbsorbed.Load(),
		"consistency_violations", c.consistencyViolations.Load(),
		"gaps_deferred", c.gapsDeferred.Load())

	return err
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "version-writer",
		Type:        "processor",
		Description: "Commits parsed versions to the canonical store under the version invariants",
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
	return writerSchema
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
