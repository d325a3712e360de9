// Package watcher imports notes dropped into watched folders as knowledge
// items and keeps their index entries current.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noveldesk/kioku/internal/indexing"
	"github.com/noveldesk/kioku/internal/models"
	"github.com/noveldesk/kioku/internal/repository"
)

const debounceDelay = 500 * time.Millisecond

// Watcher monitors notes directories and mirrors file changes into the
// knowledge repository and the vector index.
type Watcher struct {
	fsw         *fsnotify.Watcher
	knowledge   repository.KnowledgeRepository
	coordinator *indexing.Coordinator
	logger      *zap.Logger

	directories []string
	extensions  map[string]bool
	projectID   int64

	mu      sync.Mutex
	pending map[string]*time.Timer

	done chan struct{}
}

// New creates a Watcher over the given directories. Only files whose
// extension appears in extensions are imported.
func New(
	directories []string,
	extensions []string,
	projectID int64,
	knowledge repository.KnowledgeRepository,
	coordinator *indexing.Coordinator,
	logger *zap.Logger,
) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	exts := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		exts[strings.ToLower(e)] = true
	}

	return &Watcher{
		fsw:         fsw,
		knowledge:   knowledge,
		coordinator: coordinator,
		logger:      logger,
		directories: directories,
		extensions:  exts,
		projectID:   projectID,
		pending:     make(map[string]*time.Timer),
		done:        make(chan struct{}),
	}, nil
}

// Start imports existing files, then watches for changes until ctx is
// cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	for _, dir := range w.directories {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create notes directory %s: %w", dir, err)
		}
		if err := w.fsw.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		w.importExisting(ctx, dir)
	}

	go w.loop(ctx)
	return nil
}

// Stop stops watching. Pending debounce timers are discarded.
func (w *Watcher) Stop() error {
	close(w.done)
	w.mu.Lock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	return w.fsw.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !w.extensions[strings.ToLower(filepath.Ext(event.Name))] {
		return
	}

	switch {
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		w.debounce(ctx, event.Name)
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		if err := w.removeNote(ctx, event.Name); err != nil {
			w.logger.Warn("failed to remove note", zap.String("path", event.Name), zap.Error(err))
		}
	}
}

// debounce delays import until writes to the file settle.
func (w *Watcher) debounce(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(debounceDelay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		if err := w.importNote(ctx, path); err != nil {
			w.logger.Warn("failed to import note", zap.String("path", path), zap.Error(err))
		}
	})
}

func (w *Watcher) importExisting(ctx context.Context, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		w.logger.Warn("failed to read notes directory", zap.String("dir", dir), zap.Error(err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if !w.extensions[strings.ToLower(filepath.Ext(path))] {
			continue
		}
		if err := w.importNote(ctx, path); err != nil {
			w.logger.Warn("failed to import note", zap.String("path", path), zap.Error(err))
		}
	}
}

// importNote upserts the file as a knowledge item and indexes it. The note id
// is derived from the path so re-imports update in place.
func (w *Watcher) importNote(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	k := &models.Knowledge{
		ID:        noteID(path),
		ProjectID: w.projectID,
		Title:     title,
		Content:   string(data),
	}
	if err := w.knowledge.Upsert(ctx, k); err != nil {
		return fmt.Errorf("failed to save note: %w", err)
	}
	if err := w.coordinator.IndexKnowledge(ctx, k.ID); err != nil {
		return fmt.Errorf("failed to index note: %w", err)
	}

	w.logger.Info("imported note",
		zap.String("path", path),
		zap.String("id", k.ID),
		zap.Int64("project_id", w.projectID))
	return nil
}

func (w *Watcher) removeNote(ctx context.Context, path string) error {
	id := noteID(path)
	if err := w.coordinator.RemoveEntityIndex(ctx, models.EntityKnowledge, id, w.projectID); err != nil {
		return err
	}
	if err := w.knowledge.Delete(ctx, id); err != nil {
		return err
	}
	w.logger.Info("removed note", zap.String("path", path), zap.String("id", id))
	return nil
}

// noteID derives a stable id from the file path.
func noteID(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("kioku-note:"+abs)).String()
}
