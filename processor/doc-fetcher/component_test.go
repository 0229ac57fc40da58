// Package docfetcher provides tests for the doc-fetcher component.
//
// Test Coverage:
//   - Component factory with invalid configurations
//   - Component lifecycle (Initialize, Stop)
//   - Start failure without NATS client
//   - Retry loop attempt counting and permanent-error short-circuit
//   - Backoff calculation bounds with jitter
//   - Lease-busy and unchanged-content outcomes
//   - Entity tag extraction from change signals
//   - Worker count clamping
//   - Component metadata (Meta, Health, DataFlow)
//   - Port configuration (InputPorts, OutputPorts)
//   - Config validation and defaults
//
// Note: Tests requiring NATS infrastructure (publishing fetched and failed
// events, live lease buckets) are integration tests and not included here.
package docfetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/c360studio/semstreams/component"

	"github.com/c360studio/courtstream/event"
	"github.com/c360studio/courtstream/metrics"
	"github.com/c360studio/courtstream/model"
	"github.com/c360studio/courtstream/registry"
	"github.com/c360studio/courtstream/storage"
)

type fakeFetcher struct {
	result *registry.FetchResult
	errs   []error
	calls  int
}

func (f *fakeFetcher) FetchWithETag(_ context.Context, _, _ string) (*registry.FetchResult, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.result, nil
}

type fakeLeases struct {
	held     map[string]bool
	acquires int
	releases int
	err      error
}

func (f *fakeLeases) Acquire(_ context.Context, docID, _ string) error {
	if f.err != nil {
		return f.err
	}
	if f.held[docID] {
		return fmt.Errorf("lease for %s: %w", docID, storage.ErrLeaseHeld)
	}
	f.acquires++
	return nil
}

func (f *fakeLeases) Release(_ context.Context, _ string) error {
	f.releases++
	return nil
}

type fakeContent struct {
	puts     int
	location string
}

func (f *fakeContent) Put(_ string, _ []byte) (string, error) {
	f.puts++
	return f.location, nil
}

type fakeVersions struct {
	hash string
	err  error
}

func (f *fakeVersions) LatestVersionHash(_ context.Context, _ string) (string, error) {
	return f.hash, f.err
}

func testComponent() *Component {
	return &Component{
		name:    "doc-fetcher",
		logger:  slog.Default(),
		config:  DefaultConfig(),
		metrics: metrics.Default(),
		retryConfig: RetryConfig{
			MaxAttempts:       3,
			BackoffBase:       time.Millisecond,
			BackoffMultiplier: 2.0,
			MaxBackoff:        5 * time.Millisecond,
		},
	}
}

func TestNewComponent_Unit(t *testing.T) {
	tests := []struct {
		name      string
		rawConfig json.RawMessage
		wantErr   bool
	}{
		{
			name:      "invalid JSON",
			rawConfig: json.RawMessage(`{invalid json}`),
			wantErr:   true,
		},
		{
			name:      "bad fetch timeout",
			rawConfig: json.RawMessage(`{"fetch_timeout":"not-a-duration"}`),
			wantErr:   true,
		},
		{
			name:      "negative worker count",
			rawConfig: json.RawMessage(`{"worker_count":-1}`),
			wantErr:   true,
		},
		{
			name:      "defaults",
			rawConfig: json.RawMessage(`{}`),
			wantErr:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := component.Dependencies{
				Logger: slog.Default(),
			}

			_, err := NewComponent(tt.rawConfig, deps)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewComponent() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewComponent_RetryFromConfig(t *testing.T) {
	deps := component.Dependencies{Logger: slog.Default()}

	got, err := NewComponent(json.RawMessage(`{"max_attempts":7}`), deps)
	if err != nil {
		t.Fatalf("NewComponent() error = %v", err)
	}

	c, ok := got.(*Component)
	if !ok {
		t.Fatalf("NewComponent() returned %T, want *Component", got)
	}
	if c.retryConfig.MaxAttempts != 7 {
		t.Errorf("retryConfig.MaxAttempts = %d, want 7", c.retryConfig.MaxAttempts)
	}
}

func TestComponent_Lifecycle(t *testing.T) {
	c := testComponent()

	if err := c.Initialize(); err != nil {
		t.Errorf("Initialize() error = %v, want nil", err)
	}

	if err := c.Stop(time.Second); err != nil {
		t.Error("Stop() should not error when already stopped")
	}
}

func TestComponent_StartWithoutNATSClient(t *testing.T) {
	c := testComponent()

	if err := c.Start(context.Background()); err == nil {
		t.Error("Start() should fail without NATS client")
	}
}

func TestFetchWithRetry_TransientExhausted(t *testing.T) {
	c := testComponent()
	fetcher := &fakeFetcher{
		errs: []error{
			model.NewTransientNetworkError(fmt.Errorf("timeout 1")),
			model.NewTransientNetworkError(fmt.Errorf("timeout 2")),
			model.NewTransientNetworkError(fmt.Errorf("timeout 3")),
		},
	}
	c.client = fetcher

	_, attempts, err := c.fetchWithRetry(context.Background(), "https://reyestr.court.gov.ua/Document/1", "")
	if err == nil {
		t.Fatal("fetchWithRetry() should fail after exhausting attempts")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if fetcher.calls != 3 {
		t.Errorf("fetcher calls = %d, want 3", fetcher.calls)
	}
	if !model.IsTransientNetwork(err) {
		t.Errorf("final error should stay transient, got %v", err)
	}
}

func TestFetchWithRetry_PermanentShortCircuit(t *testing.T) {
	c := testComponent()
	fetcher := &fakeFetcher{
		errs: []error{
			model.NewPermanentFetchError(fmt.Errorf("HTTP 404: Not Found")),
		},
	}
	c.client = fetcher

	_, attempts, err := c.fetchWithRetry(context.Background(), "https://reyestr.court.gov.ua/Document/404", "")
	if !model.IsPermanentFetch(err) {
		t.Fatalf("error = %v, want permanent fetch error", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (no retry on permanent errors)", attempts)
	}
	if fetcher.calls != 1 {
		t.Errorf("fetcher calls = %d, want 1", fetcher.calls)
	}
}

func TestFetchWithRetry_EventualSuccess(t *testing.T) {
	c := testComponent()
	fetcher := &fakeFetcher{
		errs:   []error{model.NewTransientNetworkError(fmt.Errorf("connection reset"))},
		result: &registry.FetchResult{Body: []byte("ok"), StatusCode: 200},
	}
	c.client = fetcher

	result, attempts, err := c.fetchWithRetry(context.Background(), "https://reyestr.court.gov.ua/Document/2", "")
	if err != nil {
		t.Fatalf("fetchWithRetry() error = %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if string(result.Body) != "ok" {
		t.Errorf("body = %q, want ok", result.Body)
	}
}

func TestCalculateBackoff(t *testing.T) {
	cfg := RetryConfig{
		BackoffBase:       100 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        300 * time.Millisecond,
	}

	tests := []struct {
		attempt int
		min     time.Duration
		max     time.Duration
	}{
		{1, 75 * time.Millisecond, 125 * time.Millisecond},
		{2, 150 * time.Millisecond, 250 * time.Millisecond},
		{3, 225 * time.Millisecond, 375 * time.Millisecond}, // capped at 300ms before jitter
	}

	for _, tt := range tests {
		for i := 0; i < 20; i++ {
			backoff := cfg.calculateBackoff(tt.attempt)
			if backoff < tt.min || backoff > tt.max {
				t.Errorf("calculateBackoff(%d) = %v, want within [%v, %v]",
					tt.attempt, backoff, tt.min, tt.max)
			}
		}
	}
}

func TestProcessDiscovered_LeaseBusy(t *testing.T) {
	c := testComponent()
	leases := &fakeLeases{held: map[string]bool{"doc-1": true}}
	c.leases = leases

	outcome, err := c.processDiscovered(context.Background(), &event.DiscoveredPayload{
		DocID:     "doc-1",
		SourceURL: "https://reyestr.court.gov.ua/Document/1",
	})
	if err != nil {
		t.Fatalf("processDiscovered() error = %v", err)
	}
	if outcome != outcomeBusy {
		t.Errorf("outcome = %v, want outcomeBusy", outcome)
	}
	if leases.releases != 0 {
		t.Error("a lease that was never acquired must not be released")
	}
}

func TestProcessDiscovered_UnchangedContent(t *testing.T) {
	body := []byte("РІШЕННЯ ІМЕНЕМ УКРАЇНИ")

	c := testComponent()
	leases := &fakeLeases{held: map[string]bool{}}
	content := &fakeContent{location: "ab/cd/ignored"}
	c.leases = leases
	c.content = content
	c.client = &fakeFetcher{result: &registry.FetchResult{Body: body, StatusCode: 200}}
	c.versions = &fakeVersions{hash: storage.HashContent(body)}

	outcome, err := c.processDiscovered(context.Background(), &event.DiscoveredPayload{
		DocID:     "doc-2",
		SourceURL: "https://reyestr.court.gov.ua/Document/2",
	})
	if err != nil {
		t.Fatalf("processDiscovered() error = %v", err)
	}
	if outcome != outcomeUnchanged {
		t.Errorf("outcome = %v, want outcomeUnchanged", outcome)
	}
	if content.puts != 0 {
		t.Error("unchanged content must not be written to the content store")
	}
	if leases.releases != 1 {
		t.Errorf("lease releases = %d, want 1", leases.releases)
	}
	if got := c.unchangedSkipped.Load(); got != 1 {
		t.Errorf("unchangedSkipped = %d, want 1", got)
	}
}

func TestProcessDiscovered_NotModified(t *testing.T) {
	c := testComponent()
	c.leases = &fakeLeases{held: map[string]bool{}}
	c.client = &fakeFetcher{result: &registry.FetchResult{StatusCode: 304}}

	outcome, err := c.processDiscovered(context.Background(), &event.DiscoveredPayload{
		DocID:     "doc-3",
		SourceURL: "https://reyestr.court.gov.ua/Document/3",
		Signal:    `"etag-abc"`,
	})
	if err != nil {
		t.Fatalf("processDiscovered() error = %v", err)
	}
	if outcome != outcomeUnchanged {
		t.Errorf("outcome = %v, want outcomeUnchanged", outcome)
	}
}

func TestProcessDiscovered_VersionReadError(t *testing.T) {
	c := testComponent()
	c.leases = &fakeLeases{held: map[string]bool{}}
	c.client = &fakeFetcher{result: &registry.FetchResult{Body: []byte("x"), StatusCode: 200}}
	c.versions = &fakeVersions{err: fmt.Errorf("database locked")}

	_, err := c.processDiscovered(context.Background(), &event.DiscoveredPayload{
		DocID:     "doc-4",
		SourceURL: "https://reyestr.court.gov.ua/Document/4",
	})
	if err == nil {
		t.Error("processDiscovered() should surface canonical store read errors for redelivery")
	}
}

func TestEtagFromSignal(t *testing.T) {
	tests := []struct {
		signal string
		want   string
	}{
		{`"abc123"`, `"abc123"`},
		{`W/"abc123"`, `W/"abc123"`},
		{"4bf3a2c8d9e1f0a7b6c5d4e3f2a1b0c9d8e7f6a5b4c3d2e1f0a9b8c7d6e5f4a3", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := etagFromSignal(tt.signal); got != tt.want {
			t.Errorf("etagFromSignal(%q) = %q, want %q", tt.signal, got, tt.want)
		}
	}
}

func TestConfig_GetWorkerCount(t *testing.T) {
	tests := []struct {
		configured int
		want       int
	}{
		{0, 8},
		{8, 8},
		{3, 5},
		{50, 20},
	}

	for _, tt := range tests {
		cfg := Config{WorkerCount: tt.configured}
		if got := cfg.GetWorkerCount(); got != tt.want {
			t.Errorf("GetWorkerCount() with %d = %d, want %d", tt.configured, got, tt.want)
		}
	}
}

func TestComponent_Meta(t *testing.T) {
	c := testComponent()

	meta := c.Meta()
	if meta.Name != "doc-fetcher" {
		t.Errorf("Meta().Name = %s, want doc-fetcher", meta.Name)
	}
	if meta.Type != "processor" {
		t.Errorf("Meta().Type = %s, want processor", meta.Type)
	}
}

func TestComponent_Ports(t *testing.T) {
	c := testComponent()

	inputs := c.InputPorts()
	if len(inputs) != 1 {
		t.Fatalf("InputPorts() returned %d ports, want 1", len(inputs))
	}

	outputs := c.OutputPorts()
	if len(outputs) != 2 {
		t.Fatalf("OutputPorts() returned %d ports, want 2", len(outputs))
	}
	for _, port := range outputs {
		if _, ok := port.Config.(component.JetStreamPort); !ok {
			t.Errorf("output port %s config is %T, want JetStreamPort", port.Name, port.Config)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(*Config) {}, false},
		{"missing stream", func(c *Config) { c.StreamName = "" }, true},
		{"missing subject", func(c *Config) { c.Subject = "" }, true},
		{"bad lease ttl", func(c *Config) { c.LeaseTTL = "soon" }, true},
		{"negative rate limit", func(c *Config) { c.RateLimit = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
