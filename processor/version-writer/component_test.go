// Package versionwriter tests verify canonical write orchestration without
// requiring NATS or SQLite infrastructure.
//
// Test Coverage:
// - Component creation with valid/invalid configurations
// - Default configuration application
// - Canonical write assembly from parsed events (case fallback, typing,
//   payload serialization)
// - Outcome mapping: committed, duplicate absorbed, gap deferred
// - Port configuration (input/output definitions)
// - Health status reporting
//
// Note: Tests requiring NATS infrastructure (message consumption,
// consistency-violation and storage-outage failure publishing) and tests
// requiring a real SQLite store live with the storage package integration
// tests and are not included here.
package versionwriter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/c360studio/semstreams/component"
	"log/slog"

	"github.com/c360studio/courtstream/event"
	"github.com/c360studio/courtstream/metrics"
	"github.com/c360studio/courtstream/model"
	"github.com/c360studio/courtstream/storage"
	"github.com/c360studio/courtstream/storage/sqlite"
)

type fakeWrites struct {
	outcome sqlite.WriteOutcome
	err     error
	calls   int
	last    sqlite.VersionWrite
}

func (f *fakeWrites) WriteParsed(_ context.Context, w sqlite.VersionWrite) (sqlite.WriteOutcome, error) {
	f.calls++
	f.last = w
	if f.err != nil {
		return "", f.err
	}
	return f.outcome, nil
}

func testComponent() *Component {
	return &Component{
		name:    "version-writer",
		config:  DefaultConfig(),
		logger:  slog.Default(),
		metrics: metrics.Default(),
	}
}

func testParsed() *event.ParsedPayload {
	date := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	return &event.ParsedPayload{
		DocID:           "doc-12345",
		CaseID:          "910/1234/25",
		VersionID:       "ver-abc",
		Stage:           event.StageParse,
		VersionNumber:   1,
		SourceURL:       "https://reyestr.court.gov.ua/Review/12345",
		ContentHash:     strings.Repeat("ab", 32),
		StorageLocation: "ab/cd/abcd.bin",
		ParserVersion:   "1.0.0",
		Confidence:      0.7,
		Extraction: model.Extraction{
			CourtName:    "Господарський суд міста Києва",
			DecisionDate: &date,
		},
		OccurredAt: time.Now().UTC(),
	}
}

func TestNewComponent_Unit(t *testing.T) {
	tests := []struct {
		name        string
		config      json.RawMessage
		expectError bool
	}{
		{
			name:        "invalid JSON",
			config:      json.RawMessage(`{invalid}`),
			expectError: true,
		},
		{
			name: "empty stream name with ports set",
			config: json.RawMessage(`{
				"stream_name": "",
				"consumer_name": "version-writer",
				"subject": "court.documents.parsed",
				"ports": {"inputs": [], "outputs": []}
			}`),
			expectError: true,
		},
		{
			name:        "defaults are valid",
			config:      json.RawMessage(`{}`),
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := component.Dependencies{
				Logger: slog.Default(),
			}

			comp, err := NewComponent(tt.config, deps)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if comp == nil {
				t.Fatal("expected component but got nil")
			}
		})
	}
}

func TestNewComponent_Defaults(t *testing.T) {
	deps := component.Dependencies{Logger: slog.Default()}

	comp, err := NewComponent(json.RawMessage(`{}`), deps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c, ok := comp.(*Component)
	if !ok {
		t.Fatal("expected *Component")
	}

	if c.config.StreamName != event.StreamName {
		t.Errorf("expected stream %s, got %s", event.StreamName, c.config.StreamName)
	}
	if c.config.ConsumerName != event.ConsumerWriter {
		t.Errorf("expected consumer %s, got %s", event.ConsumerWriter, c.config.ConsumerName)
	}
	if c.config.Subject != event.SubjectParsed {
		t.Errorf("expected subject %s, got %s", event.SubjectParsed, c.config.Subject)
	}
	if c.config.DataDir == "" {
		t.Error("expected data dir to be defaulted")
	}
}

func TestComponent_Lifecycle(t *testing.T) {
	c := testComponent()

	if c.running {
		t.Error("component should not be running initially")
	}

	health := c.Health()
	if health.Healthy {
		t.Error("component should not be healthy before start")
	}
	if health.Status != "stopped" {
		t.Errorf("expected status stopped, got %s", health.Status)
	}
}

func TestComponent_StartWithoutNATSClient(t *testing.T) {
	c := testComponent()

	err := c.Start(context.Background())
	if err == nil {
		t.Fatal("expected error when starting without NATS client")
	}
	if !strings.Contains(err.Error(), "NATS client required") {
		t.Errorf("unexpected error: %v", err)
	}
	if c.running {
		t.Error("component should not be running after failed start")
	}
}

func TestBuildWrite_Fields(t *testing.T) {
	parsed := testParsed()

	write, err := buildWrite(parsed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if write.Document.ID != parsed.DocID {
		t.Errorf("expected document id %s, got %s", parsed.DocID, write.Document.ID)
	}
	if write.Document.Type != model.DocumentTypeDecision {
		t.Errorf("untyped extraction should default to decision, got %s", write.Document.Type)
	}
	if write.Version.ID != parsed.VersionID {
		t.Errorf("version id from the parser must be kept, got %s", write.Version.ID)
	}
	if write.Version.VersionNumber != parsed.VersionNumber {
		t.Errorf("expected version %d, got %d", parsed.VersionNumber, write.Version.VersionNumber)
	}
	if write.Version.SourceHash != parsed.ContentHash {
		t.Error("content hash must become the version source hash")
	}
	if write.Version.RawStoragePath != parsed.StorageLocation {
		t.Error("storage location must become the raw storage path")
	}
	if write.Version.PublishedAt == nil || !write.Version.PublishedAt.Equal(*parsed.Extraction.DecisionDate) {
		t.Error("decision date must become published_at")
	}
	if write.ParseRun.ParserVersion != parsed.ParserVersion {
		t.Errorf("expected parser version %s, got %s", parsed.ParserVersion, write.ParseRun.ParserVersion)
	}
	if write.ParseRun.ConfidenceScore != parsed.Confidence {
		t.Errorf("expected confidence %f, got %f", parsed.Confidence, write.ParseRun.ConfidenceScore)
	}

	var roundTrip model.Extraction
	if err := json.Unmarshal(write.Version.ParsedJSON, &roundTrip); err != nil {
		t.Fatalf("parsed_json must hold the extraction: %v", err)
	}
	if roundTrip.CourtName != parsed.Extraction.CourtName {
		t.Error("serialized extraction lost the court name")
	}
}

func TestBuildWrite_CaseNumberFallback(t *testing.T) {
	parsed := testParsed()
	parsed.Extraction.CaseNumber = ""

	write, err := buildWrite(parsed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if write.Extraction.CaseNumber != parsed.CaseID {
		t.Errorf("expected case number fallback %s, got %s",
			parsed.CaseID, write.Extraction.CaseNumber)
	}
}

func TestBuildWrite_ExtractedCaseNumberWins(t *testing.T) {
	parsed := testParsed()
	parsed.Extraction.CaseNumber = "757/999/24"

	write, err := buildWrite(parsed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if write.Extraction.CaseNumber != "757/999/24" {
		t.Errorf("extracted case number should not be overwritten, got %s",
			write.Extraction.CaseNumber)
	}
}

func TestBuildWrite_DocumentType(t *testing.T) {
	parsed := testParsed()
	parsed.Extraction.DocumentType = model.DocumentTypeRuling

	write, err := buildWrite(parsed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if write.Document.Type != model.DocumentTypeRuling {
		t.Errorf("expected ruling, got %s", write.Document.Type)
	}
}

func TestProcessParsed_Committed(t *testing.T) {
	c := testComponent()
	writes := &fakeWrites{outcome: sqlite.WriteApplied}
	c.writes = writes

	result, err := c.processParsed(context.Background(), testParsed())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != resultCommitted {
		t.Errorf("expected resultCommitted, got %d", result)
	}
	if writes.calls != 1 {
		t.Errorf("expected 1 write, got %d", writes.calls)
	}
	if c.versionsWritten.Load() != 1 {
		t.Error("expected versions_written to count the commit")
	}
}

func TestProcessParsed_DuplicateAbsorbed(t *testing.T) {
	c := testComponent()
	c.writes = &fakeWrites{outcome: sqlite.WriteDuplicate}

	result, err := c.processParsed(context.Background(), testParsed())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != resultDuplicate {
		t.Errorf("expected resultDuplicate, got %d", result)
	}
	if c.duplicatesAbsorbed.Load() != 1 {
		t.Error("expected duplicates_absorbed to count the redelivery")
	}
	if c.versionsWritten.Load() != 0 {
		t.Error("a duplicate must not count as a written version")
	}
}

func TestProcessParsed_GapDeferred(t *testing.T) {
	c := testComponent()
	writes := &fakeWrites{
		err: fmt.Errorf("version 3 of doc-12345 after 1: %w", storage.ErrVersionGap),
	}
	c.writes = writes

	parsed := testParsed()
	parsed.VersionNumber = 3

	result, err := c.processParsed(context.Background(), parsed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != resultGap {
		t.Errorf("expected resultGap, got %d", result)
	}
	if writes.calls != 1 {
		t.Errorf("a gap must not be retried in place, got %d write attempts", writes.calls)
	}
	if c.gapsDeferred.Load() != 1 {
		t.Error("expected gaps_deferred to count the requeue")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := DefaultConfig()

	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{"default is valid", func(*Config) {}, false},
		{"missing stream", func(c *Config) { c.StreamName = "" }, true},
		{"missing consumer", func(c *Config) { c.ConsumerName = "" }, true},
		{"missing subject", func(c *Config) { c.Subject = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid
			tt.mutate(&config)

			err := config.Validate()
			if tt.expectError && err == nil {
				t.Error("expected validation error")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestComponent_Meta(t *testing.T) {
	c := testComponent()

	meta := c.Meta()
	if meta.Name != "version-writer" {
		t.Errorf("expected name version-writer, got %s", meta.Name)
	}
	if meta.Type != "processor" {
		t.Errorf("expected type processor, got %s", meta.Type)
	}
}

func TestComponent_Ports(t *testing.T) {
	c := testComponent()

	inputs := c.InputPorts()
	if len(inputs) != 1 {
		t.Fatalf("expected 1 input port, got %d", len(inputs))
	}
	if inputs[0].Name != "parsed.in" {
		t.Errorf("expected port parsed.in, got %s", inputs[0].Name)
	}
	jsPort, ok := inputs[0].Config.(component.JetStreamPort)
	if !ok {
		t.Fatal("expected JetStream input port")
	}
	if jsPort.StreamName != event.StreamName {
		t.Errorf("expected stream %s, got %s", event.StreamName, jsPort.StreamName)
	}

	outputs := c.OutputPorts()
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output port, got %d", len(outputs))
	}
	if outputs[0].Name != "failed.out" {
		t.Errorf("expected port failed.out, got %s", outputs[0].Name)
	}
}
