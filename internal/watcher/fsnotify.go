package watcher

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// StartFsNotify watches the directory holding the config file. Editors often
// save by writing a temp file and renaming it over the original, which drops
// a watch placed on the file itself.
func (w *Watcher) StartFsNotify(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	w.mu.RLock()
	dir, name, debounce := w.dir, w.name, w.debounce
	w.mu.RUnlock()

	if err := fw.Add(dir); err != nil {
		return err
	}

	// settle fires once the file has been quiet for the debounce window
	settle := time.NewTimer(debounce)
	if !settle.Stop() {
		<-settle.C
	}
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				w.log.Error("fsnotify events channel closed")
				return nil
			}
			if filepath.Base(ev.Name) != name || ev.Op == fsnotify.Chmod {
				continue
			}
			w.log.Debug("config event", "name", ev.Name, "op", ev.Op.String())
			settle.Reset(debounce)

		case <-settle.C:
			w.safeDetect()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Error("fsnotify error", "error", err)
		}
	}
}

func (w *Watcher) safeDetect() {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("config reload panicked", "panic", r)
		}
	}()
	w.detect()
}
