package spoolwatcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/c360studio/courtstream/storage"
)

func newTestWatcher(t *testing.T, root string) *spoolWatcher {
	t.Helper()

	cfg := DefaultConfig()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	watcher, err := newSpoolWatcher(root, cfg.IncludeGlobs, cfg.ExcludeGlobs, 50*time.Millisecond, logger)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	return watcher
}

func TestNewSpoolWatcher(t *testing.T) {
	tmpDir := t.TempDir()

	watcher := newTestWatcher(t, tmpDir)
	defer watcher.Stop()

	if !filepath.IsAbs(watcher.root) {
		t.Errorf("expected absolute root, got %s", watcher.root)
	}
	if watcher.DroppedEvents() != 0 {
		t.Errorf("expected 0 dropped events, got %d", watcher.DroppedEvents())
	}
}

func TestSpoolWatcher_Matches(t *testing.T) {
	w := &spoolWatcher{
		includes: []string{"**/*.html", "**/*.txt"},
		excludes: []string{"**/.*", "**/*.tmp"},
	}

	tests := []struct {
		name    string
		relPath string
		want    bool
	}{
		{"html at root", "124567890.html", true},
		{"html in subdirectory", "2025-01/124567890.html", true},
		{"text file", "export/readme.txt", true},
		{"unmatched extension", "export/archive.zip", false},
		{"hidden file excluded", ".inprogress.html", false},
		{"hidden file in subdirectory excluded", "2025-01/.inprogress.html", false},
		{"partial download excluded", "2025-01/124567890.tmp", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := w.matches(tt.relPath); got != tt.want {
				t.Errorf("matches(%q) = %v, want %v", tt.relPath, got, tt.want)
			}
		})
	}
}

func TestSpoolWatcher_MatchesEmptyIncludes(t *testing.T) {
	w := &spoolWatcher{excludes: []string{"**/*.tmp"}}

	if !w.matches("anything.bin") {
		t.Error("empty include list should match everything")
	}
	if w.matches("partial.tmp") {
		t.Error("excludes still apply with an empty include list")
	}
}

func TestSpoolWatcher_FileCreation(t *testing.T) {
	tmpDir := t.TempDir()

	watcher := newTestWatcher(t, tmpDir)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := watcher.Start(ctx); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer watcher.Stop()

	// Give watcher time to set up
	time.Sleep(100 * time.Millisecond)

	content := []byte("<html><body>decision text</body></html>")
	testFile := filepath.Join(tmpDir, "124567890.html")
	if err := os.WriteFile(testFile, content, 0o644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	select {
	case ev := <-watcher.Events():
		if ev.RelPath != "124567890.html" {
			t.Errorf("expected rel path 124567890.html, got %s", ev.RelPath)
		}
		if ev.Hash != storage.HashContent(content) {
			t.Errorf("event hash does not match file content")
		}
		if ev.PossibleUpdate {
			t.Error("first sighting must not be flagged as an update")
		}
	case <-time.After(1 * time.Second):
		t.Error("timeout waiting for spool event")
	}
}

func TestSpoolWatcher_StartupSweep(t *testing.T) {
	tmpDir := t.TempDir()

	// Files dropped while the watcher was down
	for _, name := range []string{"111.html", "222.html"} {
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte(name), 0o644); err != nil {
			t.Fatalf("failed to write test file: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "skip.tmp"), []byte("partial"), 0o644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	watcher := newTestWatcher(t, tmpDir)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := watcher.Start(ctx); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer watcher.Stop()

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case ev := <-watcher.Events():
			got[ev.RelPath] = true
		case <-time.After(1 * time.Second):
			t.Fatalf("timeout waiting for sweep events, got %d", len(got))
		}
	}

	if !got["111.html"] || !got["222.html"] {
		t.Errorf("sweep missed files: %v", got)
	}

	select {
	case ev := <-watcher.Events():
		t.Errorf("unexpected event for excluded file: %+v", ev)
	case <-time.After(300 * time.Millisecond):
		// Expected - the .tmp file is excluded
	}
}

func TestSpoolWatcher_ContentChangeFlagsUpdate(t *testing.T) {
	tmpDir := t.TempDir()

	testFile := filepath.Join(tmpDir, "124567890.html")
	if err := os.WriteFile(testFile, []byte("first revision"), 0o644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	watcher := newTestWatcher(t, tmpDir)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := watcher.Start(ctx); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer watcher.Stop()

	// First event comes from the startup sweep
	select {
	case ev := <-watcher.Events():
		if ev.PossibleUpdate {
			t.Error("sweep event must not be flagged as an update")
		}
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for sweep event")
	}

	if err := os.WriteFile(testFile, []byte("second revision"), 0o644); err != nil {
		t.Fatalf("failed to modify test file: %v", err)
	}

	select {
	case ev := <-watcher.Events():
		if !ev.PossibleUpdate {
			t.Error("changed content must be flagged as an update")
		}
		if ev.Hash != storage.HashContent([]byte("second revision")) {
			t.Error("event hash must reflect the new content")
		}
	case <-time.After(1 * time.Second):
		t.Error("timeout waiting for update event")
	}
}

func TestSpoolWatcher_UnchangedContentSkipped(t *testing.T) {
	tmpDir := t.TempDir()

	content := []byte("same content")
	testFile := filepath.Join(tmpDir, "124567890.html")
	if err := os.WriteFile(testFile, content, 0o644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	watcher := newTestWatcher(t, tmpDir)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := watcher.Start(ctx); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer watcher.Stop()

	select {
	case <-watcher.Events():
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for sweep event")
	}

	// Touch with identical content
	if err := os.WriteFile(testFile, content, 0o644); err != nil {
		t.Fatalf("failed to rewrite test file: %v", err)
	}

	select {
	case ev := <-watcher.Events():
		t.Errorf("unexpected event for unchanged content: %+v", ev)
	case <-time.After(300 * time.Millisecond):
		// Expected - hash unchanged
	}
}

func TestSpoolWatcher_IgnoresDeletes(t *testing.T) {
	tmpDir := t.TempDir()

	testFile := filepath.Join(tmpDir, "124567890.html")
	if err := os.WriteFile(testFile, []byte("to be cleaned up"), 0o644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	watcher := newTestWatcher(t, tmpDir)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := watcher.Start(ctx); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer watcher.Stop()

	select {
	case <-watcher.Events():
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for sweep event")
	}

	if err := os.Remove(testFile); err != nil {
		t.Fatalf("failed to remove test file: %v", err)
	}

	select {
	case ev := <-watcher.Events():
		t.Errorf("unexpected event for deleted file: %+v", ev)
	case <-time.After(300 * time.Millisecond):
		// Expected - spool cleanup is not a registry change
	}
}
