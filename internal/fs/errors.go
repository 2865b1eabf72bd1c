package fs

import (
	"errors"
	"syscall"
)

// isTransient reports errors worth another removal attempt. ENOTEMPTY shows up
// when a camera is still writing into the directory being removed.
func isTransient(err error) bool {
	return errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.EBUSY) ||
		errors.Is(err, syscall.EINTR) ||
		errors.Is(err, syscall.ENOTEMPTY) ||
		errors.Is(err, syscall.ETIMEDOUT)
}
