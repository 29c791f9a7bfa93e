// Package watch submits lecture PDFs dropped into an inbox directory.
//
// The inbox is either bound to one scope, in which case files are placed
// directly in it, or laid out as <inbox>/<subject>/<lecture>/<file>.pdf.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
	"github.com/custodia-labs/lectern/internal/logger"
)

// DefaultSettle is how long a file must go unmodified before it is submitted.
const DefaultSettle = 2 * time.Second

// Config configures an inbox watcher.
type Config struct {
	// Root is the inbox directory.
	Root string

	// Scope binds the inbox to one lecture. Zero derives the scope from
	// the two directory levels below Root.
	Scope domain.Scope

	// Settle is the quiet period after the last write.
	Settle time.Duration

	// ScanExisting submits files already present when the watch starts.
	ScanExisting bool
}

// Watcher turns file system events into uploads.
type Watcher struct {
	upload driving.UploadService
	cfg    Config

	mu      sync.Mutex
	timers  map[string]*time.Timer
	closed  bool
	pending chan string
	done    chan struct{}
}

// New creates a watcher.
func New(upload driving.UploadService, cfg Config) *Watcher {
	if cfg.Settle <= 0 {
		cfg.Settle = DefaultSettle
	}
	return &Watcher{
		upload:  upload,
		cfg:     cfg,
		timers:  make(map[string]*time.Timer),
		pending: make(chan string, 64),
		done:    make(chan struct{}),
	}
}

// Run watches the inbox until ctx is cancelled. A Watcher runs once.
func (w *Watcher) Run(ctx context.Context) error {
	info, err := os.Stat(w.cfg.Root)
	if err != nil {
		return fmt.Errorf("inbox error: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("inbox error: %s is not a directory", w.cfg.Root)
	}
	if w.cfg.Scope != (domain.Scope{}) {
		if err := w.cfg.Scope.Validate(); err != nil {
			return err
		}
		if w.cfg.Scope.IsSubjectWide() {
			return fmt.Errorf("%w: inbox scope needs a lecture", domain.ErrInvalidInput)
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fsw.Close()

	if err := w.addTree(fsw, w.cfg.Root, w.cfg.ScanExisting); err != nil {
		return err
	}
	logger.Info("Watching %s for lecture PDFs", w.cfg.Root)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.process(ctx)
	}()
	defer func() {
		w.stopTimers()
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(fsw, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Inbox watcher: %v", err)
		}
	}
}

// handleEvent schedules a file for submission or starts watching a new
// directory. It reports whether the event scheduled a file.
func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return false
	}
	if isHidden(ev.Name) {
		return false
	}

	info, err := os.Stat(ev.Name)
	if err != nil {
		return false
	}
	if info.IsDir() {
		if ev.Has(fsnotify.Create) {
			if err := w.addTree(fsw, ev.Name, true); err != nil {
				logger.Warn("Inbox watcher: %v", err)
			}
		}
		return false
	}
	return w.schedule(ev.Name)
}

// addTree watches dir and the scope directories below it. With scan set,
// files already present are scheduled.
func (w *Watcher) addTree(fsw *fsnotify.Watcher, dir string, scan bool) error {
	depth := w.depth(dir)
	if depth < 0 || depth > w.maxDepth() {
		return nil
	}
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", dir, err)
	}
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if isHidden(path) {
			continue
		}
		if e.IsDir() {
			if err := w.addTree(fsw, path, scan); err != nil {
				return err
			}
			continue
		}
		if scan {
			w.schedule(path)
		}
	}
	return nil
}

// schedule (re)starts the settle timer of path.
func (w *Watcher) schedule(path string) bool {
	if !w.upload.Accepts(path) {
		return false
	}
	if _, err := w.scopeFor(path); err != nil {
		logger.Debug("Inbox watcher: skipping %s: %v", path, err)
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	if t, ok := w.timers[path]; ok {
		t.Reset(w.cfg.Settle)
		return true
	}
	w.timers[path] = time.AfterFunc(w.cfg.Settle, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		select {
		case w.pending <- path:
		case <-w.done:
		}
	})
	return true
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.done)
	}
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}

// process submits settled files one at a time.
func (w *Watcher) process(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-w.pending:
			if err := w.submit(ctx, path); err != nil {
				if errors.Is(err, domain.ErrDuplicateSubmission) {
					logger.Info("Skipping %s: already being ingested", path)
					continue
				}
				logger.Error("Submitting %s: %v", path, err)
			}
		}
	}
}

func (w *Watcher) submit(ctx context.Context, path string) error {
	scope, err := w.scopeFor(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	res, err := w.upload.Upload(ctx, driving.UploadRequest{
		Scope:    scope,
		Filename: filepath.Base(path),
		Data:     data,
	})
	if err != nil {
		return err
	}
	logger.Info("Submitted %s to %s as job %s", filepath.Base(path), scope, res.JobID)
	return nil
}

// scopeFor derives the scope of a file in the inbox.
func (w *Watcher) scopeFor(path string) (domain.Scope, error) {
	rel, err := filepath.Rel(w.cfg.Root, filepath.Dir(path))
	if err != nil {
		return domain.Scope{}, err
	}
	rel = filepath.ToSlash(rel)

	if w.cfg.Scope.Subject != "" {
		if rel != "." {
			return domain.Scope{}, fmt.Errorf("%w: file outside inbox root", domain.ErrInvalidInput)
		}
		return w.cfg.Scope, nil
	}

	parts := strings.Split(rel, "/")
	if len(parts) != 2 {
		return domain.Scope{}, fmt.Errorf("%w: expected <subject>/<lecture>/<file>", domain.ErrInvalidInput)
	}
	return domain.NewScope(parts[0], parts[1])
}

// depth returns the directory level of dir below Root, or -1 outside it.
func (w *Watcher) depth(dir string) int {
	rel, err := filepath.Rel(w.cfg.Root, dir)
	if err != nil || strings.HasPrefix(rel, "..") {
		return -1
	}
	if rel == "." {
		return 0
	}
	return len(strings.Split(filepath.ToSlash(rel), "/"))
}

func (w *Watcher) maxDepth() int {
	if w.cfg.Scope.Subject != "" {
		return 0
	}
	return 2
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
