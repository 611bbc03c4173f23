//go:build unix

package xdb

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// lockFile takes an exclusive advisory lock without blocking; contention
// maps to ErrLocked so open can fail cleanly instead of stalling.
func lockFile(f *os.File) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if errors.Is(err, unix.EWOULDBLOCK) {
		return ErrLocked
	}
	return err
}

func unlockFile(f *os.File) {
	// Dropping the descriptor releases the lock anyway.
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
