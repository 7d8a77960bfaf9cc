package dirsync

import (
	"errors"
)

var (
	// ErrDirectoryUnavailable is returned when the directory service cannot be
	// reached or the service bind fails. It aborts a sync pass; per-entry
	// failures never do.
	ErrDirectoryUnavailable = errors.New("directory service unavailable")
)
