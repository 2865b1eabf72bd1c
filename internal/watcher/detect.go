package watcher

import (
	"os"
	"path/filepath"
	"time"
)

// detect fires onChange if the config file is newer than the last reload.
func (w *Watcher) detect() {
	w.mu.RLock()
	last := w.lastModTime
	w.mu.RUnlock()

	mod := w.modTime()
	if mod.IsZero() || !mod.After(last) {
		return
	}
	if !w.isConfigStable() {
		w.log.Debug("config still being written, waiting for next event")
		return
	}

	w.mu.Lock()
	w.lastModTime = mod
	w.mu.Unlock()

	w.log.Info("config file changed", "path", filepath.Join(w.dir, w.name))
	w.onChange()
}

func (w *Watcher) modTime() time.Time {
	info, err := os.Stat(filepath.Join(w.dir, w.name))
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
