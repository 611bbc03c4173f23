package xdb

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/natefinch/atomic"
	"k8s.io/klog/v2"
)

// Compact rewrites the store at path without the orphaned records and dead
// tail bytes that append-then-relink puts leave behind. Entries are copied
// preorder into a temporary store, which then atomically replaces the
// original. The caller must ensure no writer holds the store during the
// swap; concurrent readers keep their view of the old file until they
// reopen.
func Compact(path string) error {
	src, err := Open(path, ModeRead)
	if err != nil {
		return fmt.Errorf("compact: %w", err)
	}
	defer src.Close()

	tmp := path + ".compact"
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("compact: failed to clear %s: %w", tmp, err)
	}
	dst, err := Create(tmp, src.base, src.prime)
	if err != nil {
		return fmt.Errorf("compact: %w", err)
	}
	if err := copyEntries(src, dst); err != nil {
		dst.Close()
		os.Remove(tmp)
		return fmt.Errorf("compact: %w", err)
	}
	newSize := dst.fsize
	if err := dst.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("compact: %w", err)
	}

	oldSize := src.fsize
	if err := src.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("compact: %w", err)
	}
	if err := atomic.ReplaceFile(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("compact: failed to swap in %s: %w", tmp, err)
	}
	klog.V(1).Infof("compacted %s: %s -> %s (reclaimed %s)", path,
		humanize.Bytes(uint64(oldSize)), humanize.Bytes(uint64(newSize)),
		humanize.Bytes(uint64(oldSize-newSize)))
	return nil
}

func copyEntries(src, dst *DB) error {
	var value []byte
	for b := uint32(0); b < src.prime; b++ {
		err := src.walkBucket(b, func(me Ptr, key []byte) error {
			vlen := int(me.Len) - recHdrSize - len(key)
			if vlen == 0 {
				return nil
			}
			if cap(value) < vlen {
				value = make([]byte, vlen)
			}
			value = value[:vlen]
			if err := src.readData(value, me.Off+recHdrSize+uint32(len(key))); err != nil {
				return err
			}
			return dst.Put(key, value)
		})
		if err != nil {
			return fmt.Errorf("bucket %d: %w", b, err)
		}
	}
	return nil
}
