package commands

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	semconfig "github.com/c360studio/semstreams/config"
	"github.com/c360studio/semstreams/types"

	"github.com/c360studio/courtstream/config"
	"github.com/c360studio/courtstream/event"
)

func componentSettings(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal component config: %v", err)
	}
	return m
}

func TestBuildPlatformConfig(t *testing.T) {
	app := config.DefaultConfig()
	app.Storage.DataDir = "/var/lib/courtstream"

	cfg, err := buildPlatformConfig(app)
	if err != nil {
		t.Fatalf("buildPlatformConfig: %v", err)
	}

	stream, ok := cfg.Streams[event.StreamName]
	if !ok {
		t.Fatalf("stream %s not configured", event.StreamName)
	}
	if len(stream.Subjects) != 1 || stream.Subjects[0] != "court.documents.>" {
		t.Errorf("stream subjects = %v, want [court.documents.>]", stream.Subjects)
	}
	if stream.MaxAge != "168h" {
		t.Errorf("stream max age = %q, want 168h", stream.MaxAge)
	}

	for _, name := range []string{"change-monitor", "doc-fetcher", "doc-parser", "version-writer", "failure-sink"} {
		cc, ok := cfg.Components[name]
		if !ok {
			t.Errorf("component %s missing", name)
			continue
		}
		if !cc.Enabled {
			t.Errorf("component %s disabled by default", name)
		}
	}
	if _, ok := cfg.Components["spool-watcher"]; ok {
		t.Error("spool-watcher configured without a spool directory")
	}

	monitor := componentSettings(t, cfg.Components["change-monitor"].Config)
	if _, ok := monitor["discovery_interval"]; !ok {
		t.Error("change-monitor config missing discovery_interval")
	}
	if monitor["registry_url"] != app.Registry.BaseURL {
		t.Errorf("change-monitor registry_url = %v", monitor["registry_url"])
	}
}

func TestBuildPlatformConfigSpoolOnly(t *testing.T) {
	app := config.DefaultConfig()
	app.Pipeline.DiscoveryInterval = 0
	app.Storage.SpoolDir = "/var/spool/court"

	cfg, err := buildPlatformConfig(app)
	if err != nil {
		t.Fatalf("buildPlatformConfig: %v", err)
	}

	monitor, ok := cfg.Components["change-monitor"]
	if !ok {
		t.Fatal("change-monitor missing; disabled components keep their slot")
	}
	if monitor.Enabled {
		t.Error("change-monitor enabled with a zero discovery interval")
	}
	settings := componentSettings(t, monitor.Config)
	if _, ok := settings["discovery_interval"]; ok {
		t.Error("disabled monitor carries a zero discovery_interval")
	}

	watcher, ok := cfg.Components["spool-watcher"]
	if !ok {
		t.Fatal("spool-watcher missing despite configured spool directory")
	}
	if !watcher.Enabled {
		t.Error("spool-watcher disabled")
	}
	ws := componentSettings(t, watcher.Config)
	if ws["spool_dir"] != app.Storage.SpoolDir {
		t.Errorf("spool-watcher spool_dir = %v, want %s", ws["spool_dir"], app.Storage.SpoolDir)
	}

	fetcher := componentSettings(t, cfg.Components["doc-fetcher"].Config)
	if fetcher["spool_dir"] != app.Storage.SpoolDir {
		t.Errorf("doc-fetcher spool_dir = %v, want %s", fetcher["spool_dir"], app.Storage.SpoolDir)
	}
}

func TestBuildPlatformConfigMaxAgeFallback(t *testing.T) {
	app := config.DefaultConfig()
	app.NATS.StreamMaxAge = ""

	cfg, err := buildPlatformConfig(app)
	if err != nil {
		t.Fatalf("buildPlatformConfig: %v", err)
	}
	if got := cfg.Streams[event.StreamName].MaxAge; got != "168h" {
		t.Errorf("stream max age = %q, want fallback 168h", got)
	}
}

func TestEnsureServiceManagerConfig(t *testing.T) {
	cfg := &semconfig.Config{}
	ensureServiceManagerConfig(cfg)

	svc, ok := cfg.Services["service-manager"]
	if !ok {
		t.Fatal("service-manager not injected")
	}
	if !svc.Enabled {
		t.Error("injected service-manager disabled")
	}

	custom := types.ServiceConfig{Name: "service-manager", Enabled: false}
	cfg2 := &semconfig.Config{Services: types.ServiceConfigs{"service-manager": custom}}
	ensureServiceManagerConfig(cfg2)
	if cfg2.Services["service-manager"].Enabled {
		t.Error("existing service-manager config overwritten")
	}
}

func TestWrapNATSError(t *testing.T) {
	refused := errors.New("dial tcp 127.0.0.1:4222: connection refused")
	err := wrapNATSError(refused, "nats://localhost:4222")
	if !strings.Contains(err.Error(), "nats-server -js") {
		t.Error("guidance missing for refused connection")
	}
	if !errors.Is(err, refused) {
		t.Error("wrapped error lost the cause")
	}

	auth := errors.New("authorization violation")
	err = wrapNATSError(auth, "nats://localhost:4222")
	if strings.Contains(err.Error(), "nats-server -js") {
		t.Error("guidance added for an unrelated failure")
	}
}
