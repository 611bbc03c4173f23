package xdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsEmptyStore(t *testing.T) {
	db, _ := tempStore(t, 0, 7)
	defer db.Close()

	stats, err := db.Stats()
	require.NoError(t, err)
	require.Len(t, stats, 7)
	for _, st := range stats {
		assert.Zero(t, st.Nodes)
		assert.Zero(t, st.Depth)
	}
}

func TestStatsCountAndDepth(t *testing.T) {
	db, _ := tempStore(t, 0, 1)
	defer db.Close()

	// Ascending inserts build a pure right spine.
	for _, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, db.Put([]byte(k), []byte("v")))
	}
	stats, err := db.Stats()
	require.NoError(t, err)
	assert.Equal(t, 4, stats[0].Nodes)
	assert.Equal(t, 4, stats[0].Depth)

	tr, err := db.ToTree(nil)
	require.NoError(t, err)
	defer tr.Free()
	assert.Equal(t, BucketStat{Nodes: 4, Depth: 4}, tr.Stats()[0])
}

func TestSummary(t *testing.T) {
	db, _ := tempStore(t, 0, 7)
	defer db.Close()
	require.NoError(t, db.Put([]byte("apple"), []byte("fruit")))
	require.NoError(t, db.Put([]byte("banana"), []byte("yellow")))

	s, err := db.Summary()
	require.NoError(t, err)
	assert.Contains(t, s, "2 entries")
	assert.Contains(t, s, "7 buckets")
}
