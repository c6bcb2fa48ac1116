// Package watch reloads YAML configuration (capability manifests, routing tables) when
// it changes on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/allisson/capvault/internal/clock"
)

// DefaultDebounce coalesces the burst of events an editor or an atomic rename produces.
const DefaultDebounce = 250 * time.Millisecond

// ErrWatcherFailed indicates the filesystem watcher could not be set up.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// Watcher calls a reload function after a file, or any YAML file of a directory, changed
// and then stayed quiet for the debounce interval.
type Watcher struct {
	path     string
	debounce time.Duration
	clock    clock.Clock
	logger   *slog.Logger
	reload   func(ctx context.Context) error
}

// New creates a watcher for path. reload runs on the goroutine that called Run.
func New(
	path string,
	debounce time.Duration,
	clk clock.Clock,
	logger *slog.Logger,
	reload func(ctx context.Context) error,
) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{path: path, debounce: debounce, clock: clk, logger: logger, reload: reload}
}

// Run watches until ctx is done. The parent directory of a file is watched rather than
// the file itself, so replacing the file by rename keeps being noticed. Reload errors
// are logged and watching continues.
func (w *Watcher) Run(ctx context.Context) error {
	dir, match, err := w.target()
	if err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	defer func() { _ = fsw.Close() }()

	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	fire := make(chan struct{}, 1)
	var pending clock.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !match(event.Name) || event.Op == fsnotify.Chmod {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = w.clock.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			pending = nil
			if err := w.reload(ctx); err != nil {
				w.logger.Warn("reload failed, keeping previous configuration",
					slog.String("path", w.path),
					slog.Any("error", err),
				)
				continue
			}
			w.logger.Info("configuration reloaded", slog.String("path", w.path))

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("filesystem watcher error", slog.String("path", w.path), slog.Any("error", err))
		}
	}
}

// target returns the directory to watch and a filter for the events that matter.
func (w *Watcher) target() (string, func(name string) bool, error) {
	abs, err := filepath.Abs(w.path)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	info, err := os.Stat(abs)
	if err == nil && info.IsDir() {
		return abs, func(name string) bool {
			base := filepath.Base(name)
			ext := strings.ToLower(filepath.Ext(base))
			return !strings.HasPrefix(base, ".") && (ext == ".yaml" || ext == ".yml")
		}, nil
	}
	// A file that does not exist yet is picked up once created.
	return filepath.Dir(abs), func(name string) bool {
		return filepath.Clean(name) == abs
	}, nil
}
