// Package fs removes recording directories from the local filesystem,
// retrying errors that tend to clear up on their own.
package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrUnsafePath is returned for paths that must never be removed wholesale.
var ErrUnsafePath = errors.New("refusing to remove path")

// OSFS is the live deletion executor.
type OSFS struct {
	backoff Backoff
}

func New() *OSFS {
	return &OSFS{backoff: DefaultBackoff()}
}

// WithBackoff replaces the retry policy.
func (o *OSFS) WithBackoff(b Backoff) *OSFS {
	o.backoff = b
	return o
}

// RemoveAll deletes path and everything below it. A path that is already gone
// counts as removed.
func (o *OSFS) RemoveAll(ctx context.Context, path string) error {
	clean := filepath.Clean(path)
	if path == "" || clean == filepath.VolumeName(clean)+string(filepath.Separator) || clean == "." {
		return fmt.Errorf("%w %q", ErrUnsafePath, path)
	}
	return o.backoff.Do(ctx, "remove "+clean, func() error {
		return os.RemoveAll(clean)
	})
}
