// Package fsprobe checks whether fsnotify delivers events for a directory.
// It performs a real write+rename in the directory and waits for an event.
package fsprobe

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Result reports whether fsnotify is usable and why.
type Result struct {
	FsnotifySupported bool
	Reason            string // set when unsupported
}

func unsupported(format string, args ...any) Result {
	return Result{Reason: fmt.Sprintf(format, args...)}
}

// Probe tests dir, waiting up to timeout for the first event.
func Probe(dir string, timeout time.Duration) Result {
	st, err := os.Stat(dir)
	if err != nil {
		return unsupported("stat failed: %v", err)
	}
	if !st.IsDir() {
		return unsupported("%s is not a directory", dir)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return unsupported("fsnotify unavailable: %v", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return unsupported("cannot watch directory: %v", err)
	}

	tmp := filepath.Join(dir, ".rec-pruner-probe.tmp")
	final := filepath.Join(dir, ".rec-pruner-probe")

	if err := os.WriteFile(tmp, []byte("probe"), 0o600); err != nil {
		return unsupported("cannot create probe file: %v", err)
	}
	defer os.Remove(tmp)

	if err := os.Rename(tmp, final); err != nil {
		return unsupported("rename failed: %v", err)
	}
	defer os.Remove(final)

	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return unsupported("event channel closed")
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				return Result{FsnotifySupported: true}
			}
		case err := <-w.Errors:
			return unsupported("watch error: %v", err)
		case <-deadline:
			return unsupported("no events received within %s", timeout)
		}
	}
}
