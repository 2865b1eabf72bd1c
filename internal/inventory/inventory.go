// Package inventory lists the recording directories directly under a monitored path.
package inventory

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"

	"github.com/raoulx24/rec-pruner/internal/logging"
	"github.com/raoulx24/rec-pruner/internal/recording"
)

// ScanError means the monitored path exists but could not be listed.
type ScanError struct {
	Path string
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("inventory: scanning %s: %v", e.Path, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

type Scanner struct {
	log logging.Logger
}

func New(log logging.Logger) *Scanner {
	return &Scanner{log: log}
}

// Scan returns every readable immediate subdirectory of root, oldest first,
// each with its recursive size. A missing root yields an empty result.
func (s *Scanner) Scan(ctx context.Context, root string) ([]recording.Directory, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			s.log.Debug("monitored path does not exist", "path", root)
			return nil, nil
		}
		return nil, &ScanError{Path: root, Err: err}
	}

	dirs := make([]recording.Directory, 0, len(entries))
	for _, ent := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !ent.IsDir() {
			continue
		}

		full := filepath.Join(root, ent.Name())
		info, err := ent.Info()
		if err != nil {
			s.log.Warn("skipping unreadable directory", "path", full, "error", err)
			continue
		}

		size, err := s.dirSize(ctx, full)
		if err != nil {
			return nil, err
		}
		dirs = append(dirs, recording.FromFileInfo(full, info, size))
	}

	recording.SortOldestFirst(dirs)
	return dirs, nil
}

// dirSize sums regular file sizes below dir. Entries that vanish or cannot be
// read contribute zero. Only a cancelled ctx stops the walk.
func (s *Scanner) dirSize(ctx context.Context, dir string) (int64, error) {
	var total int64
	skipped := 0

	err := filepath.WalkDir(dir, func(path string, d iofs.DirEntry, err error) error {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err != nil {
			skipped++
			s.log.Debug("size walk error", "path", path, "error", err)
			return nil
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			skipped++
			return nil
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if skipped > 0 {
		s.log.Warn("directory size is partial", "path", dir, "unreadable_entries", skipped)
	}
	return total, nil
}
