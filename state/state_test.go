// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"testing"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/assert"

	"github.com/capstanfi/capstan/capstan"
	"github.com/capstanfi/capstan/lvldb"
)

var (
	ns   = capstan.BytesToAddress([]byte("ns"))
	key1 = capstan.BytesToBytes32([]byte("key1"))
	key2 = capstan.BytesToBytes32([]byte("key2"))
)

func TestStateReadWrite(t *testing.T) {
	db, _ := lvldb.NewMem()
	defer db.Close()

	st := New(db)
	defer st.Close()

	raw, err := st.GetRawStorage(ns, key1)
	assert.Nil(t, err)
	assert.Empty(t, raw)

	st.SetRawStorage(ns, key1, []byte("value"))
	raw, err = st.GetRawStorage(ns, key1)
	assert.Nil(t, err)
	assert.Equal(t, []byte("value"), raw)

	// unset
	st.SetRawStorage(ns, key1, nil)
	raw, err = st.GetRawStorage(ns, key1)
	assert.Nil(t, err)
	assert.Empty(t, raw)
}

func TestStateCheckpointRevert(t *testing.T) {
	db, _ := lvldb.NewMem()
	defer db.Close()

	st := New(db)
	defer st.Close()

	st.SetRawStorage(ns, key1, []byte("a"))

	cp := st.NewCheckpoint()
	st.SetRawStorage(ns, key1, []byte("b"))
	st.SetRawStorage(ns, key2, []byte("c"))

	st.RevertTo(cp)

	raw, err := st.GetRawStorage(ns, key1)
	assert.Nil(t, err)
	assert.Equal(t, []byte("a"), raw)

	raw, err = st.GetRawStorage(ns, key2)
	assert.Nil(t, err)
	assert.Empty(t, raw)
}

func TestStateNestedCheckpoints(t *testing.T) {
	db, _ := lvldb.NewMem()
	defer db.Close()

	st := New(db)
	defer st.Close()

	cp1 := st.NewCheckpoint()
	st.SetRawStorage(ns, key1, []byte("v1"))

	cp2 := st.NewCheckpoint()
	st.SetRawStorage(ns, key1, []byte("v2"))

	st.RevertTo(cp2)
	raw, _ := st.GetRawStorage(ns, key1)
	assert.Equal(t, []byte("v1"), raw)

	st.RevertTo(cp1)
	raw, _ = st.GetRawStorage(ns, key1)
	assert.Empty(t, raw)
}

func TestStateCommit(t *testing.T) {
	db, _ := lvldb.NewMem()
	defer db.Close()

	st := New(db)
	st.SetRawStorage(ns, key1, []byte("persisted"))
	st.SetRawStorage(ns, key2, []byte("dropped"))
	st.SetRawStorage(ns, key2, nil)
	assert.Nil(t, st.Commit())

	// journaled writes survive the commit
	raw, err := st.GetRawStorage(ns, key1)
	assert.Nil(t, err)
	assert.Equal(t, []byte("persisted"), raw)
	st.Close()

	// and are visible to a fresh state over the same store
	st2 := New(db)
	defer st2.Close()

	raw, err = st2.GetRawStorage(ns, key1)
	assert.Nil(t, err)
	assert.Equal(t, []byte("persisted"), raw)

	raw, err = st2.GetRawStorage(ns, key2)
	assert.Nil(t, err)
	assert.Empty(t, raw)
}

func TestStateEncodeDecode(t *testing.T) {
	db, _ := lvldb.NewMem()
	defer db.Close()

	st := New(db)
	defer st.Close()

	err := st.EncodeStorage(ns, key1, func() ([]byte, error) {
		return rlp.EncodeToBytes(uint64(42))
	})
	assert.Nil(t, err)

	var got uint64
	err = st.DecodeStorage(ns, key1, func(raw []byte) error {
		if len(raw) == 0 {
			return nil
		}
		return rlp.DecodeBytes(raw, &got)
	})
	assert.Nil(t, err)
	assert.Equal(t, uint64(42), got)

	// unset slot feeds the decoder a nil slice
	called := false
	err = st.DecodeStorage(ns, key2, func(raw []byte) error {
		called = true
		assert.Empty(t, raw)
		return nil
	})
	assert.Nil(t, err)
	assert.True(t, called)
}
