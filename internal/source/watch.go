package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 100 * time.Millisecond

// ChangeHandler is called with the id of a diagram whose files changed.
type ChangeHandler func(id string)

// Watcher reports edits to <id>.svg and <id>.json files in a directory.
// Bursts of events for the same id are collapsed into one call.
type Watcher struct {
	dir      string
	handler  ChangeHandler
	debounce time.Duration
	logger   *slog.Logger

	watcher *fsnotify.Watcher
	changes chan string
	once    sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithWatchLogger sets the logger for watch errors.
func WithWatchLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// NewWatcher starts watching dir. Call Run to deliver changes and Close to
// release the underlying watch.
func NewWatcher(dir string, handler ChangeHandler, opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("source: creating watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("source: watching %s: %w", dir, err)
	}

	w := &Watcher{
		dir:      dir,
		handler:  handler,
		debounce: DefaultDebounce,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		watcher:  fw,
		changes:  make(chan string, 64),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run delivers debounced changes until ctx is done or the watcher is closed.
// It returns once the debounce loop has stopped.
func (w *Watcher) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		w.debounceLoop(ctx)
	}()
	defer func() {
		cancel()
		<-loopDone
	}()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("diagram watcher error", "dir", w.dir, "err", err)

		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	id, ok := diagramID(event.Name)
	if !ok {
		return
	}
	select {
	case w.changes <- id:
	default:
		// The debouncer is behind; this id will be picked up with the next event.
		w.logger.Debug("diagram watcher dropped change", "id", id)
	}
}

// debounceLoop collects ids until the debounce window passes without a new
// event, then reports each id once.
func (w *Watcher) debounceLoop(ctx context.Context) {
	pending := make(map[string]struct{})
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		for id := range pending {
			w.handler(id)
		}
		clear(pending)
		timer, timerC = nil, nil
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case id := <-w.changes:
			pending[id] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			flush()
		}
	}
}

// Close stops the underlying watch.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() { err = w.watcher.Close() })
	return err
}

// diagramID maps a watched file path to its diagram id.
func diagramID(path string) (string, bool) {
	base := filepath.Base(path)
	for _, ext := range []string{".svg", ".json"} {
		if id, ok := strings.CutSuffix(base, ext); ok && id != "" && !strings.HasPrefix(id, ".") {
			return id, true
		}
	}
	return "", false
}
