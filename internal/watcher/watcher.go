// Package watcher reloads the configuration file when it changes on disk.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/raoulx24/rec-pruner/internal/config"
	"github.com/raoulx24/rec-pruner/internal/fsprobe"
	"github.com/raoulx24/rec-pruner/internal/logging"
)

// Watcher observes the config file and calls onChange after it settles.
type Watcher struct {
	mu sync.RWMutex

	dir       string
	name      string
	interval  time.Duration
	mode      string
	debounce  time.Duration
	stability time.Duration

	log logging.Logger

	lastModTime time.Time

	onChange func()
}

// New creates a watcher for path. onChange runs on the watcher goroutine.
func New(path string, cfg config.ReloadConfig, log logging.Logger, onChange func()) *Watcher {
	return &Watcher{
		dir:       filepath.Dir(path),
		name:      filepath.Base(path),
		interval:  cfg.PollInterval,
		mode:      cfg.Method,
		debounce:  cfg.Debounce,
		stability: 100 * time.Millisecond,
		log:       log,
		onChange:  onChange,
	}
}

// Start chooses the watching strategy from the configured method.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	w.lastModTime = w.modTime()
	mode := w.mode
	dir := w.dir
	w.mu.Unlock()

	switch mode {
	case "fsnotify":
		return w.StartFsNotify(ctx)

	case "poll":
		w.StartPolling(ctx)
		return nil

	case "auto":
		res := fsprobe.Probe(dir, 200*time.Millisecond)
		if res.FsnotifySupported {
			return w.StartFsNotify(ctx)
		}
		w.log.Warn("fsnotify disabled, polling config", "reason", res.Reason)
		w.StartPolling(ctx)
		return nil

	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}
