package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSClient provides NATS operations for e2e scenarios.
type NATSClient struct {
	client *natsclient.Client
	nc     *nats.Conn
	js     jetstream.JetStream
	closed bool
	mu     sync.Mutex
}

// NewNATSClient connects to the NATS server scenarios share with the
// pipeline under test.
func NewNATSClient(ctx context.Context, natsURL string) (*NATSClient, error) {
	client, err := natsclient.NewClient(natsURL,
		natsclient.WithName("courtstream-e2e"),
		natsclient.WithMaxReconnects(5),
		natsclient.WithReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.WaitForConnection(connCtx); err != nil {
		return nil, fmt.Errorf("NATS connection timeout: %w", err)
	}

	nc := client.GetConnection()
	js, err := client.JetStream()
	if err != nil {
		return nil, fmt.Errorf("get JetStream context: %w", err)
	}

	return &NATSClient{
		client: client,
		nc:     nc,
		js:     js,
	}, nil
}

// Close closes the NATS client.
func (c *NATSClient) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	return c.client.Close(ctx)
}

// WaitForStream polls until the named stream exists. The pipeline creates
// its stream during startup, so this doubles as a readiness probe.
func (c *NATSClient) WaitForStream(ctx context.Context, name string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := c.js.Stream(ctx, name); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("stream %s never appeared: %w", name, ctx.Err())
		case <-ticker.C:
		}
	}
}

// StreamLastSeq returns the last sequence of the named stream, or 0 when
// the stream does not exist yet.
func (c *NATSClient) StreamLastSeq(ctx context.Context, name string) (uint64, error) {
	stream, err := c.js.Stream(ctx, name)
	if err != nil {
		return 0, nil
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return 0, fmt.Errorf("stream info: %w", err)
	}
	return info.State.LastSeq, nil
}

// JetStreamContext returns the JetStream context for advanced operations.
func (c *NATSClient) JetStreamContext() jetstream.JetStream {
	return c.js
}

// IsConnected returns true if the client is connected to NATS.
func (c *NATSClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.nc.IsConnected()
}

// MessageCapture collects messages from a subject for validation.
type MessageCapture struct {
	sub      *nats.Subscription
	messages []*nats.Msg
	mu       sync.Mutex
}

// CaptureMessages starts capturing messages from a subject. The caller
// MUST call Stop when done to prevent goroutine leaks.
func (c *NATSClient) CaptureMessages(subject string) (*MessageCapture, error) {
	capture := &MessageCapture{
		messages: make([]*nats.Msg, 0),
	}

	sub, err := c.nc.Subscribe(subject, func(msg *nats.Msg) {
		capture.mu.Lock()
		defer capture.mu.Unlock()
		capture.messages = append(capture.messages, msg)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", subject, err)
	}

	capture.sub = sub
	return capture, nil
}

// Messages returns a copy of all captured messages.
func (mc *MessageCapture) Messages() []*nats.Msg {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	result := make([]*nats.Msg, len(mc.messages))
	copy(result, mc.messages)
	return result
}

// Count returns the number of captured messages.
func (mc *MessageCapture) Count() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return len(mc.messages)
}

// WaitForCount waits until the specified number of messages are captured.
func (mc *MessageCapture) WaitForCount(ctx context.Context, count int) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %d messages, have %d: %w", count, mc.Count(), ctx.Err())
		case <-ticker.C:
			if mc.Count() >= count {
				return nil
			}
		}
	}
}

// Stop stops capturing messages.
func (mc *MessageCapture) Stop() error {
	if mc.sub != nil {
		return mc.sub.Unsubscribe()
	}
	return nil
}
