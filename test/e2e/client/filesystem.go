package client

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/c360studio/courtstream/config"
)

// Workspace lays out one scenario's disk state: the config file, the data
// directory holding the canonical store, and the spool drop directory.
// Each scenario gets its own workspace so store assertions are isolated
// even though scenarios share a NATS server.
type Workspace struct {
	Root       string
	ConfigPath string
	DataDir    string
	SpoolDir   string
}

// NewWorkspace creates a fresh workspace under parent. An empty parent
// uses the system temp directory.
func NewWorkspace(parent string) (*Workspace, error) {
	root, err := os.MkdirTemp(parent, "courtstream-e2e-")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	w := &Workspace{
		Root:       root,
		ConfigPath: filepath.Join(root, "courtstream.yaml"),
		DataDir:    filepath.Join(root, "data"),
		SpoolDir:   filepath.Join(root, "spool"),
	}

	for _, dir := range []string{w.DataDir, w.SpoolDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			os.RemoveAll(root)
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	return w, nil
}

// WriteAppConfig writes a pipeline config wired to this workspace.
// Registry polling is off and the metrics listener is disabled so
// concurrent scenarios neither hit the live registry nor fight over
// ports; ingestion happens through the spool.
func (w *Workspace) WriteAppConfig(natsURL string, mutate ...func(*config.Config)) error {
	cfg := config.DefaultConfig()
	cfg.Storage.DataDir = w.DataDir
	cfg.Storage.SpoolDir = w.SpoolDir
	cfg.NATS.URL = natsURL
	cfg.Pipeline.DiscoveryInterval = 0
	cfg.Metrics.Addr = ""

	for _, fn := range mutate {
		fn(cfg)
	}

	return cfg.SaveToFile(w.ConfigPath)
}

// DropSpoolFile places a registry export into the spool the way a bulk
// import does: written under a temp name first, then renamed, so the
// watcher never sees a half-written file. The base name (without
// extension) becomes the document's registry id.
func (w *Workspace) DropSpoolFile(name string, content []byte) error {
	final := filepath.Join(w.SpoolDir, name)
	tmp := final + ".tmp"

	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return fmt.Errorf("write spool file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publish spool file: %w", err)
	}
	return nil
}

// SpoolPath returns the absolute path of a spool file.
func (w *Workspace) SpoolPath(name string) string {
	return filepath.Join(w.SpoolDir, name)
}

// FileExists checks a path relative to the workspace root.
func (w *Workspace) FileExists(rel string) bool {
	_, err := os.Stat(filepath.Join(w.Root, rel))
	return err == nil
}

// DatabaseExists reports whether the pipeline has created its store.
func (w *Workspace) DatabaseExists() bool {
	entries, err := os.ReadDir(w.DataDir)
	if err != nil {
		return false
	}
	return len(entries) > 0
}

// Remove deletes the workspace. Best effort; a scenario that wants to
// keep its state for debugging skips this in Teardown.
func (w *Workspace) Remove() error {
	// SQLite may still be flushing right after daemon shutdown
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if err = os.RemoveAll(w.Root); err == nil {
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return err
}
