package xdb

import (
	"bytes"
	"fmt"
	"sort"

	"k8s.io/klog/v2"
)

// fileNode is one bucket member collected for re-shaping: its record
// pointer and its key, the latter a slice into one contiguous buffer.
type fileNode struct {
	ptr Ptr
	key []byte
}

// Optimize re-shapes every bucket holding more than two records into the
// depth-optimal form described at reshape. Only the child-pointer bytes of
// affected records and the bucket's root table slot are written; keys and
// values stay where they are, so record offsets held elsewhere remain
// valid. Corruption encountered here is fatal, unlike on the read path.
//
// Optimize is an offline pass on a write-mode handle; on a read-only handle
// it is a no-op.
func (db *DB) Optimize() error {
	if !db.writable || db.file == nil {
		return nil
	}
	for b := uint32(0); b < db.prime; b++ {
		count, keyBytes := 0, 0
		err := db.walkBucket(b, func(me Ptr, key []byte) error {
			count++
			keyBytes += len(key) + 1
			return nil
		})
		if err != nil {
			return fmt.Errorf("optimize: %w", err)
		}
		if count <= 2 {
			continue
		}

		// One descriptor per node, all keys packed into a single buffer.
		nodes := make([]fileNode, 0, count)
		keys := make([]byte, 0, keyBytes)
		err = db.walkBucket(b, func(me Ptr, key []byte) error {
			start := len(keys)
			keys = append(keys, key...)
			keys = append(keys, 0)
			nodes = append(nodes, fileNode{ptr: me, key: keys[start : start+len(key)]})
			return nil
		})
		if err != nil {
			return fmt.Errorf("optimize: %w", err)
		}
		sort.Slice(nodes, func(i, j int) bool {
			return bytes.Compare(nodes[i].key, nodes[j].key) < 0
		})

		root, err := reshape(len(nodes), func(i, left, right int) error {
			var buf [2 * ptrSize]byte
			if left >= 0 {
				nodes[left].ptr.store(buf[0:ptrSize])
			}
			if right >= 0 {
				nodes[right].ptr.store(buf[ptrSize:])
			}
			if _, err := db.file.WriteAt(buf[:], int64(nodes[i].ptr.Off)); err != nil {
				return fmt.Errorf("failed to relink record at %d: %w", nodes[i].ptr.Off, err)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("optimize bucket %d: %w", b, err)
		}

		var slot [ptrSize]byte
		nodes[root].ptr.store(slot[:])
		if _, err := db.file.WriteAt(slot[:], int64(rootOff(b))); err != nil {
			return fmt.Errorf("failed to update root of bucket %d: %w", b, err)
		}
		klog.V(2).Infof("optimized bucket %d: %d nodes", b, count)
	}
	return nil
}
