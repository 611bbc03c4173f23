package xdb

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// BucketStat describes one bucket: how many entries it holds and how deep
// its tree currently is. Depth is 0 for an empty bucket and 1 for a single
// node; after Optimize it is at most ceil(log2(nodes+1)).
type BucketStat struct {
	Nodes int
	Depth int
}

// Stats walks every bucket and reports its size and depth.
func (t *Tree) Stats() []BucketStat {
	out := make([]BucketStat, len(t.roots))
	for b := range t.roots {
		out[b] = t.bucketStat(t.roots[b])
	}
	return out
}

func (t *Tree) bucketStat(root int32) BucketStat {
	var st BucketStat
	type frame struct {
		id    int32
		depth int
	}
	stack := []frame{{root, 1}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.id == nullNode {
			continue
		}
		st.Nodes++
		if f.depth > st.Depth {
			st.Depth = f.depth
		}
		stack = append(stack,
			frame{t.nodes[f.id].right, f.depth + 1},
			frame{t.nodes[f.id].left, f.depth + 1})
	}
	return st
}

// Stats walks every bucket and reports its size and depth.
func (db *DB) Stats() ([]BucketStat, error) {
	out := make([]BucketStat, db.prime)
	for b := uint32(0); b < db.prime; b++ {
		st, err := db.bucketStat(b)
		if err != nil {
			return nil, fmt.Errorf("bucket %d: %w", b, err)
		}
		out[b] = st
	}
	return out, nil
}

func (db *DB) bucketStat(b uint32) (BucketStat, error) {
	var st BucketStat
	root, err := db.readPtr(rootOff(b))
	if err != nil {
		return st, err
	}
	maxNodes := int(db.fsize/(recHdrSize+1)) + 1
	type frame struct {
		ptr   Ptr
		depth int
	}
	stack := []frame{{root, 1}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.ptr.IsNull() {
			continue
		}
		if !db.validRecord(f.ptr) {
			return st, fmt.Errorf("record at %d+%d: %w", f.ptr.Off, f.ptr.Len, ErrCorrupt)
		}
		if st.Nodes++; st.Nodes > maxNodes {
			return st, fmt.Errorf("pointer cycle: %w", ErrCorrupt)
		}
		if f.depth > st.Depth {
			st.Depth = f.depth
		}
		var links [2 * ptrSize]byte
		if err := db.readData(links[:], f.ptr.Off); err != nil {
			return st, err
		}
		stack = append(stack,
			frame{loadPtr(links[ptrSize:]), f.depth + 1},
			frame{loadPtr(links[:ptrSize]), f.depth + 1})
	}
	return st, nil
}

// Summary renders totals for capacity diagnostics, such as
// "12,345 entries in 2,047 buckets, max depth 14, 1.2 MB".
func (db *DB) Summary() (string, error) {
	stats, err := db.Stats()
	if err != nil {
		return "", err
	}
	entries, maxDepth := 0, 0
	for _, st := range stats {
		entries += st.Nodes
		if st.Depth > maxDepth {
			maxDepth = st.Depth
		}
	}
	return fmt.Sprintf("%s entries in %s buckets, max depth %d, %s",
		humanize.Comma(int64(entries)), humanize.Comma(int64(db.prime)),
		maxDepth, humanize.Bytes(uint64(db.fsize))), nil
}
