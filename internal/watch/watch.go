// Package watch reports image files that appear in a directory.
package watch

import (
	"context"
	"sync"
	"time"

	"github.com/andresmejia3/uncanny/internal/utils"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultSettle is how long a file must stay unwritten before it is reported.
const DefaultSettle = 500 * time.Millisecond

// Watcher monitors a directory and emits each new or rewritten image once its writes settle.
type Watcher struct {
	watcher *fsnotify.Watcher
	Files   chan string
	settle  time.Duration
	log     *zap.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New creates a watcher on dir. Nothing is reported until Run is called.
func New(dir string, settle time.Duration, log *zap.Logger) (*Watcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	return &Watcher{
		watcher: w,
		Files:   make(chan string, 100),
		settle:  settle,
		log:     log,
		pending: make(map[string]*time.Timer),
	}, nil
}

// Run processes events until ctx ends, then closes Files.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() {
		w.mu.Lock()
		for _, t := range w.pending {
			t.Stop()
		}
		w.pending = nil
		close(w.Files)
		w.mu.Unlock()
	}()
	defer w.watcher.Close()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue // removals, renames away and chmod
			}
			if !utils.IsImageFile(event.Name) {
				continue
			}
			w.schedule(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("filesystem watcher error", zap.Error(err))

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// schedule (re)starts the settle timer for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Reset(w.settle)
		return
	}
	w.pending[path] = time.AfterFunc(w.settle, func() { w.emit(path) })
}

func (w *Watcher) emit(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending == nil {
		return // stopped
	}
	delete(w.pending, path)

	select {
	case w.Files <- path:
	default:
		w.log.Warn("event buffer full, dropping file", zap.String("path", path))
	}
}
