package daemon

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/ibeventd/internal/daemon/events"
	ferrors "git.home.luguber.info/inful/ibeventd/internal/foundation/errors"
	"git.home.luguber.info/inful/ibeventd/internal/logfields"
)

// HandlerWatcher monitors the handler search paths and publishes a
// HandlersChanged event when scripts are created, modified, or removed.
// Rapid bursts of file events collapse into a single notification.
type HandlerWatcher struct {
	paths      []string
	bus        *events.Bus
	watcher    *fsnotify.Watcher
	mu         sync.Mutex
	stopChan   chan struct{}
	changeChan chan string
	debounce   time.Duration
	stopped    bool
}

// NewHandlerWatcher creates a watcher over the given search paths. Paths
// that do not exist are skipped at Start.
func NewHandlerWatcher(paths []string, bus *events.Bus) (*HandlerWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, ferrors.FileSystemError("failed to create file watcher").
			WithCause(err).Build()
	}
	return &HandlerWatcher{
		paths:      paths,
		bus:        bus,
		watcher:    w,
		stopChan:   make(chan struct{}),
		changeChan: make(chan string, 1),
		debounce:   2 * time.Second,
	}, nil
}

// Start registers the search paths and begins watching. A file path is
// watched through its parent directory.
func (hw *HandlerWatcher) Start(ctx context.Context) error {
	added := 0
	for _, p := range hw.paths {
		info, err := os.Stat(p)
		if err != nil {
			slog.Warn("Handler path not watchable, skipping", logfields.Path(p))
			continue
		}
		target := p
		if !info.IsDir() {
			target = filepath.Dir(p)
		}
		if err := hw.watcher.Add(target); err != nil {
			slog.Warn("Failed to watch handler path", logfields.Path(target), logfields.Error(err))
			continue
		}
		added++
	}
	if added == 0 {
		return ferrors.FileSystemError("no handler paths could be watched").Build()
	}

	slog.Info("Starting handler watcher", logfields.Count(added))
	go hw.watchLoop(ctx)
	go hw.debounceLoop(ctx)
	return nil
}

// Stop stops the watcher and closes the underlying fsnotify handle.
func (hw *HandlerWatcher) Stop() {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	if hw.stopped {
		return
	}
	hw.stopped = true
	close(hw.stopChan)
	if err := hw.watcher.Close(); err != nil {
		slog.Error("Error closing handler watcher", logfields.Error(err))
	}
}

func (hw *HandlerWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-hw.stopChan:
			return
		case event, ok := <-hw.watcher.Events:
			if !ok {
				return
			}
			if !isScriptPath(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				slog.Debug("Handler script change detected",
					logfields.Path(event.Name), slog.String("op", event.Op.String()))
				hw.trigger(event.Name)
			}
		case err, ok := <-hw.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Handler watcher error", logfields.Error(err))
		}
	}
}

// debounceLoop collapses change bursts and publishes one HandlersChanged per
// quiet period.
func (hw *HandlerWatcher) debounceLoop(ctx context.Context) {
	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-hw.stopChan:
			if timer != nil {
				timer.Stop()
			}
			return
		case path := <-hw.changeChan:
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(hw.debounce, func() {
				if err := hw.bus.Publish(ctx, events.HandlersChanged{
					Path:      path,
					ChangedAt: time.Now(),
				}); err != nil {
					slog.Error("Failed to publish handler change", logfields.Error(err))
				}
			})
		}
	}
}

func (hw *HandlerWatcher) trigger(path string) {
	select {
	case hw.changeChan <- path:
	default:
		// A notification is already pending.
	}
}

func isScriptPath(path string) bool {
	return strings.HasSuffix(filepath.Base(path), ".lua")
}
