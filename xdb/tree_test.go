package xdb

import (
	"bytes"
	"fmt"
	"math/bits"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inorder returns bucket b's keys in BST order.
func inorder(t *Tree, b uint32) [][]byte {
	var out [][]byte
	var visit func(id int32)
	visit = func(id int32) {
		if id == nullNode {
			return
		}
		visit(t.nodes[id].left)
		out = append(out, t.nodes[id].key)
		visit(t.nodes[id].right)
	}
	visit(t.roots[b])
	return out
}

func requireBucketOrder(t *testing.T, tr *Tree) {
	t.Helper()
	for b := uint32(0); b < tr.prime; b++ {
		keys := inorder(tr, b)
		for i := 1; i < len(keys); i++ {
			require.Negative(t, bytes.Compare(keys[i-1], keys[i]),
				"bucket %d out of order at %d", b, i)
		}
	}
}

func TestTreeDefaults(t *testing.T) {
	tr := NewTree(0, 0)
	assert.Equal(t, uint32(defaultBase), tr.Base())
	assert.Equal(t, uint32(defaultTreePrime), tr.Prime())
}

func TestTreePutGet(t *testing.T) {
	tr := NewTree(0, 0)
	defer tr.Free()

	tr.Put([]byte("apple"), []byte("fruit"))
	tr.Put([]byte("banana"), []byte("yellow"))
	tr.Put([]byte("cherry"), []byte("red"))

	v, ok := tr.Get([]byte("apple"))
	require.True(t, ok)
	assert.Equal(t, []byte("fruit"), v)
	v, ok = tr.Get([]byte("banana"))
	require.True(t, ok)
	assert.Equal(t, []byte("yellow"), v)

	_, ok = tr.Get([]byte("date"))
	assert.False(t, ok)
	assert.Equal(t, 3, tr.Len())
	requireBucketOrder(t, tr)
}

func TestTreeOverwrite(t *testing.T) {
	tr := NewTree(0, 0)
	defer tr.Free()

	tr.Put([]byte("k"), []byte("one"))
	tr.Put([]byte("k"), []byte("two"))
	v, ok := tr.Get([]byte("k"))
	require.True(t, ok)
	assert.Equal(t, []byte("two"), v)
	assert.Equal(t, 1, tr.Len())
}

func TestTreeNoOps(t *testing.T) {
	tr := NewTree(0, 0)
	defer tr.Free()

	// Empty key.
	tr.Put(nil, []byte("x"))
	tr.Put([]byte{}, []byte("x"))
	assert.Zero(t, tr.Len())

	// Nil value for an absent key.
	tr.Put([]byte("gone"), nil)
	assert.Zero(t, tr.Len())
	_, ok := tr.Get([]byte("gone"))
	assert.False(t, ok)

	// A zero-length but non-nil value is a real entry in memory.
	tr.Put([]byte("empty"), []byte{})
	v, ok := tr.Get([]byte("empty"))
	require.True(t, ok)
	assert.Empty(t, v)
	assert.Equal(t, 1, tr.Len())
}

func TestTreeKeysAreCopied(t *testing.T) {
	tr := NewTree(0, 0)
	defer tr.Free()

	key := []byte("mutable")
	tr.Put(key, []byte("v"))
	key[0] = 'X'
	_, ok := tr.Get([]byte("mutable"))
	assert.True(t, ok)
	_, ok = tr.Get(key)
	assert.False(t, ok)
}

func TestTreeOptimizeFifteen(t *testing.T) {
	// All 15 keys in one bucket: depth must come out exactly 4 and the
	// in-order walk must stay sorted.
	tr := NewTree(0, 1)
	defer tr.Free()

	for c := byte('a'); c <= 'o'; c++ {
		tr.Put([]byte{c}, []byte{c, c})
	}
	tr.Optimize()

	stats := tr.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, 15, stats[0].Nodes)
	assert.Equal(t, 4, stats[0].Depth)
	requireBucketOrder(t, tr)

	for c := byte('a'); c <= 'o'; c++ {
		v, ok := tr.Get([]byte{c})
		require.True(t, ok, "key %q lost", c)
		assert.Equal(t, []byte{c, c}, v)
	}
}

func TestTreeOptimizeDepthBound(t *testing.T) {
	// Property: after optimize every bucket has depth ceil(log2(n+1)),
	// whatever n is.
	rng := rand.New(rand.NewSource(7))
	for n := 1; n <= 64; n++ {
		tr := NewTree(0, 1)
		keys := make([][]byte, n)
		for i := range keys {
			keys[i] = []byte(fmt.Sprintf("key-%04d", i))
		}
		rng.Shuffle(n, func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
		for _, k := range keys {
			tr.Put(k, []byte("v"))
		}
		tr.Optimize()

		st := tr.Stats()[0]
		require.Equal(t, n, st.Nodes)
		require.Equal(t, bits.Len(uint(n)), st.Depth, "n=%d", n)
		requireBucketOrder(t, tr)
		for _, k := range keys {
			_, ok := tr.Get(k)
			require.True(t, ok, "n=%d key %q lost", n, k)
		}
		tr.Free()
	}
}

func TestTreeOptimizePreservesMapping(t *testing.T) {
	tr := NewTree(0, 31)
	defer tr.Free()

	want := map[string]string{}
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		k := fmt.Sprintf("word-%03d", rng.Intn(300))
		v := fmt.Sprintf("def-%d", i)
		tr.Put([]byte(k), []byte(v))
		want[k] = v
	}
	tr.Optimize()

	for k, v := range want {
		got, ok := tr.Get([]byte(k))
		require.True(t, ok, "key %q lost", k)
		assert.Equal(t, []byte(v), got)
	}
	requireBucketOrder(t, tr)
}
