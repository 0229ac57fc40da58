package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/c360studio/courtstream/config"
	"github.com/c360studio/courtstream/storage/sqlite"
)

func TestLocalStatusEmptyStore(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.DataDir = t.TempDir()

	report, err := localStatus(context.Background(), cfg)
	if err != nil {
		t.Fatalf("localStatus() error = %v", err)
	}

	if report.DataDir != cfg.Storage.DataDir {
		t.Errorf("expected data dir %s, got %s", cfg.Storage.DataDir, report.DataDir)
	}
	if report.DatabasePath == "" {
		t.Error("expected a database path")
	}
	if report.Store != (sqlite.Stats{}) {
		t.Errorf("expected empty store stats, got %+v", report.Store)
	}
	if report.RegistryURL != cfg.Registry.BaseURL {
		t.Errorf("expected registry URL %s, got %s", cfg.Registry.BaseURL, report.RegistryURL)
	}
}

func TestRenderStatus(t *testing.T) {
	report := &statusReport{
		DataDir:      "/data",
		DatabasePath: "/data/courtstream.db",
		RegistryURL:  "https://registry.test",
		NATSURL:      "nats://localhost:4222",
		Store:        sqlite.Stats{Documents: 3, Versions: 5, ParseRuns: 7},
		Stream: &streamReport{
			Messages: 12,
			FirstSeq: 1,
			LastSeq:  12,
			Consumers: []consumerReport{
				{Name: "doc-parser", Pending: 2, AckPending: 1, Delivered: 10},
			},
		},
	}

	var buf bytes.Buffer
	renderStatus(&buf, report)
	out := buf.String()

	for _, want := range []string{
		"/data/courtstream.db",
		"documents:   3",
		"versions:    5",
		"parse runs:  7",
		"messages:    12 (seq 1-12)",
		"doc-parser:",
		"pending=2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderStatusStreamUnavailable(t *testing.T) {
	report := &statusReport{
		DataDir:     "/data",
		StreamError: "NATS connection failed: connection refused\n\nNATS is not running",
	}

	var buf bytes.Buffer
	renderStatus(&buf, report)
	out := buf.String()

	if !strings.Contains(out, "COURT stream: unavailable") {
		t.Errorf("expected unavailable notice, got:\n%s", out)
	}
	// Only the summary line of a multi-line error is shown.
	if strings.Contains(out, "NATS is not running") {
		t.Errorf("expected guidance lines to be trimmed, got:\n%s", out)
	}
}

func TestStatusReportJSON(t *testing.T) {
	report := &statusReport{
		DataDir:     "/data",
		StreamError: "unreachable",
		Store:       sqlite.Stats{Documents: 1},
	}

	data, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["stream_error"] != "unreachable" {
		t.Errorf("expected stream_error in JSON, got %v", decoded)
	}
	if _, ok := decoded["stream"]; ok {
		t.Error("expected stream to be omitted when unavailable")
	}
}

func TestFirstLine(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"single line", "single line"},
		{"first\nsecond", "first"},
		{"trimmed \nrest", "trimmed"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := firstLine(tt.in); got != tt.want {
			t.Errorf("firstLine(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
