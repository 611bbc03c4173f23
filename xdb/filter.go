package xdb

import (
	"fmt"

	"github.com/bits-and-blooms/bloom/v3"
)

// filterFalsePositiveRate trades filter size against wasted descents.
const filterFalsePositiveRate = 0.01

// LoadFilter builds an in-memory negative-lookup filter over every key in
// the store. Once loaded, Get answers misses without touching the file; a
// write-mode handle keeps the filter current as keys are inserted. The
// filter never hides a present key — false positives only cost the descent
// that would have happened anyway.
func (db *DB) LoadFilter() error {
	total := 0
	for b := uint32(0); b < db.prime; b++ {
		err := db.walkBucket(b, func(me Ptr, key []byte) error {
			total++
			return nil
		})
		if err != nil {
			return fmt.Errorf("load filter: %w", err)
		}
	}
	n := total
	if n == 0 {
		n = 1
	}
	f := bloom.NewWithEstimates(uint(n), filterFalsePositiveRate)
	for b := uint32(0); b < db.prime; b++ {
		err := db.walkBucket(b, func(me Ptr, key []byte) error {
			f.Add(key)
			return nil
		})
		if err != nil {
			return fmt.Errorf("load filter: %w", err)
		}
	}
	db.filter = f
	return nil
}

// DropFilter discards the negative-lookup filter.
func (db *DB) DropFilter() {
	db.filter = nil
}
