//go:build linux

package xdb

import (
	"log/slog"
	"os"

	"golang.org/x/sys/unix"
)

// fadviseRandom tells the kernel the whole file will see random point
// reads, so readahead does not flood the page cache with neighbors.
func fadviseRandom(f *os.File) {
	if err := unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_RANDOM); err != nil {
		slog.Warn("fadvise(RANDOM) failed", "error", err)
	}
}
