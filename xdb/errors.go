package xdb

import "errors"

var (
	// ErrNotFound marks a missing entry.
	ErrNotFound = errors.New("not found")

	// ErrInvalidMagic means the file does not start with the XDB tag.
	ErrInvalidMagic = errors.New("not an XDB file")

	// ErrVersionMismatch means the file was written by a different format
	// version than this library understands.
	ErrVersionMismatch = errors.New("unsupported XDB version")

	// ErrCorrupt means the file contradicts its own header or a record
	// pointer refers outside the recorded file size.
	ErrCorrupt = errors.New("corrupt XDB file")

	// ErrLocked means another process holds the write lock.
	ErrLocked = errors.New("XDB file is locked")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
