package db_test

import (
	"path/filepath"
	"testing"

	"dag-ledger/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelDBPrefixIteration(t *testing.T) {
	ldb, err := db.NewLevelDB(filepath.Join(t.TempDir(), "kv"))
	require.NoError(t, err)
	defer ldb.Close()

	require.NoError(t, ldb.Put([]byte("block:1"), []byte("one")))
	require.NoError(t, ldb.Put([]byte("block:2"), []byte("two")))
	require.NoError(t, ldb.Put([]byte("meta:tip"), []byte("x")))

	got, err := ldb.Get([]byte("block:2"))
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), got)

	_, err = ldb.Get([]byte("block:3"))
	assert.Equal(t, db.ErrNotFound, err)

	iter := ldb.NewIterator([]byte("block:"))
	var keys []string
	for iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	iter.Release()
	require.NoError(t, iter.Error())
	assert.Equal(t, []string{"block:1", "block:2"}, keys)

	iter = ldb.NewIterator(nil)
	count := 0
	for iter.Next() {
		count++
	}
	iter.Release()
	assert.Equal(t, 3, count)
}
