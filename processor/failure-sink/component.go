// Package failuresink provides the terminal consumer for pipeline
// failure events. Every stage publishes its dead documents to the failed
// subject; this component records them for operators. The durable audit
// trail is the stream itself, so the sink only logs, counts, and keeps a
// bounded in-memory window for the status surface.
package failuresink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/message"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/courtstream/event"
	"github.com/c360studio/courtstream/metrics"
)

// Component implements the failure-sink processor.
type Component struct {
	name       string
	config     Config
	natsClient *natsclient.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics

	consumer jetstream.Consumer

	// Lifecycle management
	running   bool
	startTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc

	// Metrics
	failuresRecorded  atomic.Int64
	fetchFailures     atomic.Int64
	parseFailures     atomic.Int64
	writeFailures     atomic.Int64
	discoveryFailures atomic.Int64
	decodeErrors      atomic.Int64
	lastActivityMu    sync.RWMutex
	lastActivity      time.Time

	// recentMu guards recent, a bounded window of the latest failures.
	recentMu sync.RWMutex
	recent   []event.FailedPayload
}

// NewComponent creates a new failure-sink processor component.
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
		name:       "failure-sink",
		config:     config,
		natsClient: deps.NATSClient,
		logger:     deps.GetLogger(),
		metrics:    metrics.Default(),
	}, nil
}

// Initialize prepares the component.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized failure-sink",
		"stream", c.config.StreamName,
		"consumer", c.config.ConsumerName,
		"subject", c.config.Subject)
	return nil
}

// Start begins consuming failure events.
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

	js, err := c.natsClient.JetStream()
	if err != nil {
		c.rollbackStart(cancel)
		return fmt.Errorf("get jetstream: %w", err)
	}

	stream, err := js.Stream(subCtx, c.config.StreamName)
	if err != nil {
		c.rollbackStart(cancel)
		return fmt.Errorf("get stream %s: %w", c.config.StreamName, err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(subCtx, jetstream.ConsumerConfig{
		Durable:       c.config.ConsumerName,
		FilterSubject: c.config.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    3,
	})
	if err != nil {
		c.rollbackStart(cancel)
		return fmt.Errorf("create consumer: %w", err)
	}
	c.consumer = consumer

	go c.consumeLoop(subCtx)

	c.logger.Info("failure-sink started",
		"stream", c.config.StreamName,
		"consumer", c.config.ConsumerName,
		"subject", c.config.Subject)

	return nil
}

func (c *Component) rollbackStart(cancel context.CancelFunc) {
	c.mu.Lock()
	c.running = false
	c.cancel = nil
	c.mu.Unlock()
	cancel()
}

// consumeLoop continuously consumes messages from the JetStream consumer.
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
			c.logger.Debug("Fetch timeout or error", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			c.handleMessage(msg)
		}

		if msgs.Error() != nil && msgs.Error() != context.DeadlineExceeded {
			c.logger.Warn("Message fetch error", "error", msgs.Error())
		}
	}
}

// handleMessage records a single failure event. The sink always acks:
// redelivering an audit record cannot fix anything.
func (c *Component) handleMessage(msg jetstream.Msg) {
	c.updateLastActivity()

	var baseMsg message.BaseMessage
	if err := json.Unmarshal(msg.Data(), &baseMsg); err != nil {
		c.logger.Error("Failed to parse message", "error", err)
		c.decodeErrors.Add(1)
		if err := msg.Nak(); err != nil {
			c.logger.Warn("Failed to NAK message", "error", err)
		}
		return
	}

	payloadBytes, err := json.Marshal(baseMsg.Payload())
	if err != nil {
		c.logger.Error("Failed to marshal payload", "error", err)
		c.decodeErrors.Add(1)
		if err := msg.Nak(); err != nil {
			c.logger.Warn("Failed to NAK message", "error", err)
		}
		return
	}

	var failed event.FailedPayload
	if err := json.Unmarshal(payloadBytes, &failed); err != nil {
		c.logger.Error("Failed to parse failure payload", "error", err)
		c.decodeErrors.Add(1)
		if err := msg.Nak(); err != nil {
			c.logger.Warn("Failed to NAK message", "error", err)
		}
		return
	}

	c.record(failed)

	c.logger.Error("Pipeline stage failure",
		"stage", failed.Stage,
		"doc_id", failed.DocID,
		"error_kind", failed.ErrorKind,
		"error", failed.Error,
		"attempts", failed.Attempts)

	if err := msg.Ack(); err != nil {
		c.logger.Warn("Failed to ACK message", "error", err)
	}
}

// record updates counters and the bounded recent-failures window.
func (c *Component) record(failed event.FailedPayload) {
	c.failuresRecorded.Add(1)
	c.metrics.RecordFailure(string(failed.Stage), string(failed.ErrorKind))

	switch failed.Stage {
	case event.StageDiscovery:
		c.discoveryFailures.Add(1)
	case event.StageFetch:
		c.fetchFailures.Add(1)
	case event.StageParse:
		c.parseFailures.Add(1)
	case event.StageWrite:
		c.writeFailures.Add(1)
	}

	if c.config.RetainCount == 0 {
		return
	}

	c.recentMu.Lock()
	c.recent = append(c.recent, failed)
	if len(c.recent) > c.config.RetainCount {
		c.recent = c.recent[len(c.recent)-c.config.RetainCount:]
	}
	c.recentMu.Unlock()
}

// Recent returns the retained failures, newest first.
func (c *Component) Recent() []event.FailedPayload {
	c.recentMu.RLock()
	defer c.recentMu.RUnlock()

	out := make([]event.FailedPayload, len(c.recent))
	for i, failed := range c.recent {
		out[len(c.recent)-1-i] = failed
	}
	return out
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
	c.logger.Info("failure-sink stopped",
		"failures_recorded", c.failuresRecorded.Load(),
		"fetch", c.fetchFailures.Load(),
		"parse", c.parseFailures.Load(),
		"write", c.writeFailures.Load())

	return nil
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "failure-sink",
		Type:        "processor",
		Description: "Records terminal pipeline failures for audit and replay",
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
	return failureSinkSchema
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
		ErrorCount: int(c.decodeErrors.Load()),
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
