package watcher

import (
	"github.com/raoulx24/rec-pruner/internal/config"
)

// UpdateConfig applies new poll and debounce settings. A method change takes
// effect on the next Start.
func (w *Watcher) UpdateConfig(cfg config.ReloadConfig) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.interval = cfg.PollInterval
	w.mode = cfg.Method
	w.debounce = cfg.Debounce
}
