// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package lvldb

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capstanfi/capstan/kv"
)

func newTestDBs(t *testing.T) []*LevelDB {
	fileDB, err := New(t.TempDir(), Options{16, 16})
	require.NoError(t, err)
	t.Cleanup(func() { fileDB.Close() })

	memDB, err := NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { memDB.Close() })

	return []*LevelDB{fileDB, memDB}
}

func TestLevelDB_GetPutDelete(t *testing.T) {
	var (
		key        = []byte("123")
		value      = []byte("456")
		invalidKey = []byte("abc")
	)

	for _, db := range newTestDBs(t) {
		require.NoError(t, db.Put(key, value))

		got, err := db.Get(key)
		require.NoError(t, err)
		assert.Equal(t, value, got)

		has, err := db.Has(key)
		require.NoError(t, err)
		assert.True(t, has)

		has, err = db.Has(invalidKey)
		require.NoError(t, err)
		assert.False(t, has)

		_, err = db.Get(invalidKey)
		assert.True(t, db.IsNotFound(err))

		require.NoError(t, db.Delete(key))
		has, err = db.Has(key)
		require.NoError(t, err)
		assert.False(t, has)
	}
}

func TestLevelDB_Snapshot(t *testing.T) {
	for _, db := range newTestDBs(t) {
		require.NoError(t, db.Put([]byte("k"), []byte("v1")))

		snap := db.Snapshot()

		// writes after the snapshot must be invisible to it
		require.NoError(t, db.Put([]byte("k"), []byte("v2")))

		got, err := snap.Get([]byte("k"))
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), got)
		snap.Release()

		got, err = db.Get([]byte("k"))
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), got)
	}
}

func TestLevelDB_Bulk(t *testing.T) {
	for _, db := range newTestDBs(t) {
		b := db.Bulk()
		for i := range 100 {
			require.NoError(t, b.Put(fmt.Appendf(nil, "key-%03d", i), []byte("v")))
		}

		// nothing visible before Write
		has, err := db.Has([]byte("key-000"))
		require.NoError(t, err)
		assert.False(t, has)

		require.NoError(t, b.Write())

		has, err = db.Has([]byte("key-099"))
		require.NoError(t, err)
		assert.True(t, has)
	}
}

func TestLevelDB_Iterate(t *testing.T) {
	for _, db := range newTestDBs(t) {
		for i := range 10 {
			require.NoError(t, db.Put(fmt.Appendf(nil, "p-%d", i), fmt.Appendf(nil, "%d", i)))
		}
		require.NoError(t, db.Put([]byte("q-0"), []byte("x")))

		iter := db.Iterate(kv.Range{Start: []byte("p-"), Limit: []byte("p.")})
		var count int
		for iter.Next() {
			count++
		}
		iter.Release()
		require.NoError(t, iter.Error())
		assert.Equal(t, 10, count)
	}
}

func TestLevelDB_Bucket(t *testing.T) {
	for _, db := range newTestDBs(t) {
		store := kv.Bucket("bkt-").NewStore(db)
		require.NoError(t, store.Put([]byte("k"), []byte("v")))

		// raw key carries the bucket prefix
		got, err := db.Get([]byte("bkt-k"))
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), got)

		got, err = store.Get([]byte("k"))
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), got)
	}
}
