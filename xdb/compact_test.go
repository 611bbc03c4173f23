package xdb

import (
	"fmt"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompactReclaimsOrphans(t *testing.T) {
	db, path := tempStore(t, 0, 7)
	want := map[string]string{}
	for i := 0; i < 50; i++ {
		k := fmt.Sprintf("k%02d", i)
		require.NoError(t, db.Put([]byte(k), []byte("tiny")))
	}
	// Growing every value orphans every original record.
	for i := 0; i < 50; i++ {
		k := fmt.Sprintf("k%02d", i)
		v := fmt.Sprintf("much-longer-value-%02d", i)
		require.NoError(t, db.Put([]byte(k), []byte(v)))
		want[k] = v
	}
	bloated := db.Size()
	require.NoError(t, db.Close())

	require.NoError(t, Compact(path))

	db, err := Open(path, ModeRead)
	require.NoError(t, err)
	defer db.Close()
	assert.Less(t, db.Size(), bloated)
	assert.Empty(t, cmp.Diff(want, dbAsMap(t, db)))

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(db.Size()), st.Size())
}

func TestCompactDropsShrunkToZeroKeys(t *testing.T) {
	db, path := tempStore(t, 0, 7)
	require.NoError(t, db.Put([]byte("keep"), []byte("v")))
	require.NoError(t, db.Put([]byte("drop"), []byte("v")))
	require.NoError(t, db.Put([]byte("drop"), []byte{}))
	require.NoError(t, db.Close())

	require.NoError(t, Compact(path))

	db, err := Open(path, ModeRead)
	require.NoError(t, err)
	defer db.Close()
	assert.Empty(t, cmp.Diff(map[string]string{"keep": "v"}, dbAsMap(t, db)))
}

func TestCompactIdempotent(t *testing.T) {
	db, path := tempStore(t, 0, 7)
	require.NoError(t, db.Put([]byte("a"), []byte("1")))
	require.NoError(t, db.Put([]byte("b"), []byte("2")))
	require.NoError(t, db.Close())

	require.NoError(t, Compact(path))
	db, err := Open(path, ModeRead)
	require.NoError(t, err)
	size1 := db.Size()
	require.NoError(t, db.Close())

	// Nothing left to reclaim.
	require.NoError(t, Compact(path))
	db, err = Open(path, ModeRead)
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, size1, db.Size())
	assert.Empty(t, cmp.Diff(map[string]string{"a": "1", "b": "2"}, dbAsMap(t, db)))
}
