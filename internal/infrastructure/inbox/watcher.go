// Package inbox ingests files dropped into a local directory.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/core/ports"
)

const (
	processedDir  = "ingested"
	failedDir     = "failed"
	defaultSettle = 2 * time.Second
)

type Options struct {
	// Settle is how long a file must stay unmodified before it is ingested.
	Settle time.Duration
	Logger *slog.Logger
}

// Watcher uploads every supported file appearing in dir, then moves it to dir/ingested
// or dir/failed.
type Watcher struct {
	dir      string
	ingestor ports.DocumentIngestor
	settle   time.Duration
	logger   *slog.Logger
	now      func() time.Time

	pending map[string]time.Time
}

func New(dir string, ingestor ports.DocumentIngestor, options Options) (*Watcher, error) {
	for _, sub := range []string{"", processedDir, failedDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create inbox dir: %w", err)
		}
	}
	settle := options.Settle
	if settle <= 0 {
		settle = defaultSettle
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		dir:      filepath.Clean(dir),
		ingestor: ingestor,
		settle:   settle,
		logger:   logger,
		now:      time.Now,
		pending:  make(map[string]time.Time),
	}, nil
}

// Run ingests files already present, then watches for new ones until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fs watcher: %w", err)
	}
	defer fsw.Close()
	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	if err := w.scan(); err != nil {
		return err
	}
	w.logger.Info("inbox_watching", "dir", w.dir, "pending", len(w.pending))

	ticker := time.NewTicker(w.settle / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if path, ok := w.handleEvent(event); ok {
				w.pending[path] = w.now()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("inbox_watch_error", "error", err)
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

// scan queues regular files already sitting in the inbox.
func (w *Watcher) scan() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read inbox: %w", err)
	}
	now := w.now()
	for _, e := range entries {
		if e.Type().IsRegular() && !isHidden(e.Name()) {
			w.pending[filepath.Join(w.dir, e.Name())] = now
		}
	}
	return nil
}

// handleEvent returns the path to queue for a create or write of a visible regular file.
func (w *Watcher) handleEvent(event fsnotify.Event) (string, bool) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return "", false
	}
	if filepath.Dir(event.Name) != w.dir || isHidden(filepath.Base(event.Name)) {
		return "", false
	}
	info, err := os.Stat(event.Name)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return event.Name, true
}

// flush ingests queued files that have settled, oldest path first.
func (w *Watcher) flush(ctx context.Context) {
	now := w.now()
	ready := make([]string, 0, len(w.pending))
	for path, seen := range w.pending {
		if now.Sub(seen) >= w.settle {
			ready = append(ready, path)
		}
	}
	sort.Strings(ready)
	for _, path := range ready {
		delete(w.pending, path)
		err := w.ingest(ctx, path)
		switch {
		case err == nil:
		case retryable(err):
			// Left in the inbox and retried after another settle period.
			w.pending[path] = now
			w.logger.Warn("inbox_ingest_deferred", "file", filepath.Base(path), "error", err)
		default:
			w.logger.Warn("inbox_ingest_failed", "file", filepath.Base(path), "error", err)
		}
	}
}

func (w *Watcher) ingest(ctx context.Context, path string) error {
	name := filepath.Base(path)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open inbox file: %w", err)
	}

	doc, uploadErr := w.ingestor.Upload(ctx, name, mime.TypeByExtension(strings.ToLower(filepath.Ext(name))), f)
	_ = f.Close()

	if uploadErr != nil {
		if retryable(uploadErr) {
			return uploadErr
		}
		if err := w.move(path, failedDir, name); err != nil {
			return errors.Join(uploadErr, err)
		}
		return uploadErr
	}
	w.logger.Info("inbox_document_ingested", "file", name, "document_id", doc.ID)
	return w.move(path, processedDir, doc.ID+"_"+name)
}

func (w *Watcher) move(path, sub, name string) error {
	if err := os.Rename(path, filepath.Join(w.dir, sub, name)); err != nil {
		return fmt.Errorf("move to %s: %w", sub, err)
	}
	return nil
}

// retryable reports failures that say nothing about the file itself.
func retryable(err error) bool {
	return errors.Is(err, domain.ErrTemporary) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~")
}

