package watcher

import (
	"context"
	"time"
)

// StartPolling stats the config file every poll interval. It is the fallback
// for filesystems where fsnotify sees nothing (NFS, some container mounts).
func (w *Watcher) StartPolling(ctx context.Context) {
	for {
		w.mu.RLock()
		interval := w.interval
		w.mu.RUnlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
			w.safeDetect()
		}
	}
}
