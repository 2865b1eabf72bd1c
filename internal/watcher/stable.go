package watcher

import (
	"os"
	"path/filepath"
	"time"
)

// isConfigStable reports whether the file size held still over the stability window.
func (w *Watcher) isConfigStable() bool {
	w.mu.RLock()
	path := filepath.Join(w.dir, w.name)
	stability := w.stability
	w.mu.RUnlock()

	before, err := os.Stat(path)
	if err != nil {
		return false
	}

	time.Sleep(stability)

	after, err := os.Stat(path)
	if err != nil {
		return false
	}

	return before.Size() == after.Size() && before.ModTime().Equal(after.ModTime())
}
