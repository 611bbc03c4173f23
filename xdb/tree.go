package xdb

import (
	"bytes"
	"sort"

	"github.com/lexdict/xdb/pool"
)

// Tree is the in-memory form of a dictionary: an array of prime unordered
// binary search trees. Nodes are records in a dictionary-owned arena slice,
// addressed by index rather than pointer, and key bytes live in the
// dictionary's pool; neither outlives the Tree.
//
// A Tree is exclusively owned and must not be shared across goroutines.
type Tree struct {
	base  uint32
	prime uint32

	pool  *pool.Pool
	nodes []treeNode
	roots []int32 // per-bucket root node index, -1 when empty
	count int
}

type treeNode struct {
	key   []byte // pool-owned, NUL-terminated in the arena
	value []byte // opaque, held as given
	left  int32
	right int32
}

const nullNode = int32(-1)

// NewTree creates an empty dictionary. Zero base or prime select the
// defaults (0xF422F, 31).
func NewTree(base, prime uint32) *Tree {
	if base == 0 {
		base = defaultBase
	}
	if prime == 0 {
		prime = defaultTreePrime
	}
	t := &Tree{
		base:  base,
		prime: prime,
		pool:  pool.New(),
		roots: make([]int32, prime),
	}
	for i := range t.roots {
		t.roots[i] = nullNode
	}
	return t
}

// Base returns the hash seed.
func (t *Tree) Base() uint32 { return t.base }

// Prime returns the bucket count.
func (t *Tree) Prime() uint32 { return t.prime }

// Len returns the number of entries.
func (t *Tree) Len() int { return t.count }

// locate descends key's bucket. When found >= 0 the key exists at that node
// index. Otherwise parent and right describe the slot a new node would be
// linked into: the root slot of bucket b when parent is null, or the
// parent's left/right child field.
func (t *Tree) locate(key []byte) (found, parent int32, right bool, b uint32) {
	b = Bucket(t.base, t.prime, key)
	cur := t.roots[b]
	parent = nullNode
	for cur != nullNode {
		cmp := bytes.Compare(key, t.nodes[cur].key)
		if cmp == 0 {
			return cur, parent, right, b
		}
		parent = cur
		right = cmp > 0
		if right {
			cur = t.nodes[cur].right
		} else {
			cur = t.nodes[cur].left
		}
	}
	return nullNode, parent, right, b
}

// Put inserts or overwrites key. The key bytes are copied into the arena;
// value is held as passed and treated as opaque. An empty key is a no-op,
// and so is a nil value for a key that is not present. A zero-length but
// non-nil value is a legal entry.
func (t *Tree) Put(key, value []byte) {
	if len(key) == 0 {
		return
	}
	found, parent, right, b := t.locate(key)
	if found != nullNode {
		t.nodes[found].value = value
		return
	}
	if value == nil {
		return
	}
	idx := int32(len(t.nodes))
	t.nodes = append(t.nodes, treeNode{
		key:   t.pool.Dup(key),
		value: value,
		left:  nullNode,
		right: nullNode,
	})
	switch {
	case parent == nullNode:
		t.roots[b] = idx
	case right:
		t.nodes[parent].right = idx
	default:
		t.nodes[parent].left = idx
	}
	t.count++
}

// Get returns the value stored under key.
func (t *Tree) Get(key []byte) ([]byte, bool) {
	if len(key) == 0 {
		return nil, false
	}
	found, _, _, _ := t.locate(key)
	if found == nullNode {
		return nil, false
	}
	return t.nodes[found].value, true
}

// Optimize re-shapes every bucket holding more than two nodes into the
// depth-optimal form described at reshape, mutating child indices in place.
func (t *Tree) Optimize() {
	for b := range t.roots {
		ids := t.collect(t.roots[b])
		if len(ids) <= 2 {
			continue
		}
		sort.Slice(ids, func(i, j int) bool {
			return bytes.Compare(t.nodes[ids[i]].key, t.nodes[ids[j]].key) < 0
		})
		root, _ := reshape(len(ids), func(i, left, right int) error {
			n := &t.nodes[ids[i]]
			n.left, n.right = nullNode, nullNode
			if left >= 0 {
				n.left = ids[left]
			}
			if right >= 0 {
				n.right = ids[right]
			}
			return nil
		})
		t.roots[b] = ids[root]
	}
}

// collect gathers a bucket's node indices in preorder.
func (t *Tree) collect(root int32) []int32 {
	if root == nullNode {
		return nil
	}
	ids := make([]int32, 0, 8)
	stack := []int32{root}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == nullNode {
			continue
		}
		ids = append(ids, cur)
		stack = append(stack, t.nodes[cur].right, t.nodes[cur].left)
	}
	return ids
}

// walk visits every entry of bucket b in preorder.
func (t *Tree) walk(b uint32, fn func(key, value []byte)) {
	for _, id := range t.collect(t.roots[b]) {
		fn(t.nodes[id].key, t.nodes[id].value)
	}
}

// Free drops the arena and every node at once. The Tree and any key slices
// it handed out must not be used afterwards.
func (t *Tree) Free() {
	t.pool.Reset()
	t.nodes = nil
	t.roots = nil
	t.count = 0
}
