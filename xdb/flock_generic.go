//go:build !unix

package xdb

import "os"

// Advisory locking is not available here; write sessions rely on the
// caller being the sole writer.
func lockFile(f *os.File) error { return nil }

func unlockFile(f *os.File) {}
