package templates

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a changed file is loaded.
const DefaultDebounce = 200 * time.Millisecond

// Watcher registers template definitions as they are created or written in the
// loader's directory. Existing ids are never replaced.
type Watcher struct {
	loader   *Loader
	store    *Store
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	// onRegister is called after a template is registered; used by tests.
	onRegister func(id string)
}

// NewWatcher creates a Watcher feeding store from loader's directory.
func NewWatcher(loader *Loader, store *Store) *Watcher {
	return &Watcher{
		loader:   loader,
		store:    store,
		debounce: DefaultDebounce,
		pending:  make(map[string]*time.Timer),
	}
}

// Run watches until ctx is cancelled. The directory must exist.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.loader.Dir()); err != nil {
		return fmt.Errorf("watch %s: %w", w.loader.Dir(), err)
	}
	slog.Info("Watcher.Run: watching templates directory", "dir", w.loader.Dir())

	for {
		select {
		case <-ctx.Done():
			w.stopPending()
			slog.Debug("Watcher.Run: stopped", "dir", w.loader.Dir())
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !IsTemplateFile(event.Name) {
				continue
			}
			w.schedule(event.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Watcher.Run: fsnotify error", "error", err)
		}
	}
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.load(path)
	})
}

func (w *Watcher) load(path string) {
	t, err := w.loader.LoadFile(path)
	if err != nil {
		slog.Warn("Watcher.load: ignoring template file", "path", path, "error", err)
		return
	}
	if !w.store.Register(t) {
		return
	}
	slog.Info("Watcher.load: registered template", "templateID", t.ID, "path", path)
	if w.onRegister != nil {
		w.onRegister(t.ID)
	}
}

func (w *Watcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}
