package spoolwatcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/c360studio/courtstream/storage"
)

const (
	// eventChannelBuffer is the size of the watch event channel.
	eventChannelBuffer = 500
)

// spoolEvent is one spool file ready for ingestion.
type spoolEvent struct {
	// AbsPath is the absolute file path inside the spool directory.
	AbsPath string

	// RelPath is the path relative to the spool directory.
	RelPath string

	// Hash is the sha256 of the file content at flush time.
	Hash string

	// PossibleUpdate marks a file whose content changed since it was last
	// seen by this watcher.
	PossibleUpdate bool
}

// spoolWatcher watches the drop directory and emits debounced events for
// files matching the configured globs. A removed spool file is cleanup,
// not a registry change, so deletions are never emitted.
type spoolWatcher struct {
	root     string
	includes []string
	excludes []string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   *slog.Logger

	// Debouncing: collect changes before processing
	pendingMu sync.Mutex
	pending   map[string]struct{}

	// Hash-based change detection
	hashMu sync.RWMutex
	hashes map[string]string

	// Output channel
	events chan spoolEvent

	// Metrics
	droppedEvents atomic.Int64
}

// newSpoolWatcher creates a watcher over the given spool directory.
func newSpoolWatcher(root string, includes, excludes []string, debounce time.Duration, logger *slog.Logger) (*spoolWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	abs, err := filepath.Abs(root)
	if err == nil {
		root = abs
	}

	return &spoolWatcher{
		root:     root,
		includes: includes,
		excludes: excludes,
		debounce: debounce,
		watcher:  fsw,
		logger:   logger,
		pending:  make(map[string]struct{}),
		hashes:   make(map[string]string),
		events:   make(chan spoolEvent, eventChannelBuffer),
	}, nil
}

// Events returns the channel of spool events.
func (w *spoolWatcher) Events() <-chan spoolEvent {
	return w.events
}

// Start begins watching the spool directory. Files already present are
// swept once so exports dropped while the watcher was down are not missed.
func (w *spoolWatcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return err
	}

	if err := w.addWatchesRecursive(w.root); err != nil {
		return err
	}

	if err := w.sweepExisting(); err != nil {
		return err
	}

	go w.processEvents(ctx)

	w.logger.Info("Spool watcher started",
		"spool_dir", w.root,
		"debounce", w.debounce,
		"includes", w.includes)

	return nil
}

// Stop stops the watcher.
// The events channel is closed by processEvents when it exits.
func (w *spoolWatcher) Stop() error {
	return w.watcher.Close()
}

// matches applies the include then exclude globs to a relative path.
func (w *spoolWatcher) matches(relPath string) bool {
	slashPath := filepath.ToSlash(relPath)

	included := len(w.includes) == 0
	for _, pattern := range w.includes {
		if ok, err := doublestar.Match(pattern, slashPath); err == nil && ok {
			included = true
			break
		}
	}
	if !included {
		return false
	}

	for _, pattern := range w.excludes {
		if ok, err := doublestar.Match(pattern, slashPath); err == nil && ok {
			return false
		}
	}
	return true
}

// addWatchesRecursive adds watches to all directories under root.
func (w *spoolWatcher) addWatchesRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() {
			return nil
		}

		// Skip hidden directories
		base := filepath.Base(path)
		if strings.HasPrefix(base, ".") && path != root {
			return filepath.SkipDir
		}

		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("Failed to watch directory",
				"path", path,
				"error", err)
		} else {
			w.logger.Debug("Watching directory", "path", path)
		}

		return nil
	})
}

// sweepExisting queues every matching file already in the spool.
func (w *spoolWatcher) sweepExisting() error {
	return filepath.Walk(w.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			base := filepath.Base(path)
			if strings.HasPrefix(base, ".") && path != w.root {
				return filepath.SkipDir
			}
			return nil
		}

		relPath, err := filepath.Rel(w.root, path)
		if err != nil || !w.matches(relPath) {
			return nil
		}

		w.pendingMu.Lock()
		w.pending[path] = struct{}{}
		w.pendingMu.Unlock()
		return nil
	})
}

// processEvents handles fsnotify events with debouncing.
func (w *spoolWatcher) processEvents(ctx context.Context) {
	defer close(w.events) // Close events channel when goroutine exits
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)

		case <-ticker.C:
			w.flushPending(ctx)
		}
	}
}

// handleFSEvent processes a single fsnotify event.
func (w *spoolWatcher) handleFSEvent(event fsnotify.Event) {
	path := event.Name

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			w.handleNewDirectory(path)
			return
		}
	}

	// Deletions and renames are spool cleanup, not registry changes
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		return
	}

	relPath, err := filepath.Rel(w.root, path)
	if err != nil || !w.matches(relPath) {
		return
	}

	// Accumulate pending changes
	w.pendingMu.Lock()
	w.pending[path] = struct{}{}
	w.pendingMu.Unlock()

	w.logger.Debug("Spool change detected",
		"path", relPath,
		"op", event.Op.String())
}

// handleNewDirectory adds a watch to a newly created directory. Exports
// often arrive as unpacked directory trees.
func (w *spoolWatcher) handleNewDirectory(path string) {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return
	}

	if err := w.watcher.Add(path); err != nil {
		w.logger.Warn("Failed to watch new directory",
			"path", path,
			"error", err)
	} else {
		w.logger.Debug("Added watch for new directory", "path", path)
	}
}

// flushPending processes accumulated changes.
func (w *spoolWatcher) flushPending(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}

	toProcess := make([]string, 0, len(w.pending))
	for path := range w.pending {
		toProcess = append(toProcess, path)
	}
	w.pending = make(map[string]struct{})
	w.pendingMu.Unlock()

	for _, path := range toProcess {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// A file can disappear between the event and the flush; writers
		// still mid-copy surface again on their next write event.
		content, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				w.logger.Warn("Failed to read spool file",
					"path", path,
					"error", err)
			}
			continue
		}

		relPath, err := filepath.Rel(w.root, path)
		if err != nil {
			continue
		}

		hash := storage.HashContent(content)

		w.hashMu.RLock()
		oldHash, hadHash := w.hashes[relPath]
		w.hashMu.RUnlock()
		if hadHash && oldHash == hash {
			// Content unchanged, skip
			continue
		}

		w.hashMu.Lock()
		w.hashes[relPath] = hash
		w.hashMu.Unlock()

		w.sendEvent(spoolEvent{
			AbsPath:        path,
			RelPath:        relPath,
			Hash:           hash,
			PossibleUpdate: hadHash,
		})
	}
}

// sendEvent sends an event to the output channel.
func (w *spoolWatcher) sendEvent(event spoolEvent) {
	select {
	case w.events <- event:
		w.logger.Debug("Sent spool event",
			"path", event.RelPath,
			"possible_update", event.PossibleUpdate)
	default:
		dropped := w.droppedEvents.Add(1)
		w.logger.Warn("Event channel full, dropping event",
			"path", event.RelPath,
			"total_dropped", dropped)
	}
}

// DroppedEvents returns the number of events dropped due to channel overflow.
func (w *spoolWatcher) DroppedEvents() int64 {
	return w.droppedEvents.Load()
}
