// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"fmt"

	"github.com/capstanfi/capstan/capstan"
	"github.com/capstanfi/capstan/kv"
	"github.com/capstanfi/capstan/stackedmap"
)

// Error is the error caused by state access failure.
// It separates store failures from protocol reverts.
type Error struct {
	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("state: %v", e.cause)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// State is the journaled ledger state.
//
// It maps (namespace address, key) pairs to raw storage values, read
// through a snapshot of the backing key-value store. Writes land in an
// in-memory journal with checkpoint/revert semantics and only reach the
// store on Commit. An empty value means the slot is unset.
//
// State is not safe for concurrent use.
type State struct {
	store kv.Store
	snap  kv.Snapshot
	sm    *stackedmap.StackedMap // keeps revisions of storage writes
}

// storageKey is the journal key of one storage slot.
type storageKey struct {
	addr capstan.Address
	key  capstan.Bytes32
}

// New creates a state over the given store.
func New(store kv.Store) *State {
	st := &State{
		store: store,
		snap:  store.Snapshot(),
	}
	st.sm = stackedmap.New(func(k interface{}) (interface{}, bool, error) {
		return st.cacheGetter(k.(storageKey))
	})
	return st
}

// cacheGetter reads a slot through to the store snapshot.
func (st *State) cacheGetter(k storageKey) (interface{}, bool, error) {
	raw, err := st.snap.Get(rawKey(k))
	if err != nil {
		if st.snap.IsNotFound(err) {
			return []byte(nil), true, nil
		}
		return nil, false, &Error{err}
	}
	return raw, true, nil
}

func rawKey(k storageKey) []byte {
	buf := make([]byte, 0, len(k.addr)+len(k.key))
	buf = append(buf, k.addr.Bytes()...)
	return append(buf, k.key.Bytes()...)
}

// GetRawStorage returns the raw value of the given slot, nil if unset.
func (st *State) GetRawStorage(addr capstan.Address, key capstan.Bytes32) ([]byte, error) {
	v, _, err := st.sm.Get(storageKey{addr, key})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// SetRawStorage sets the raw value of the given slot.
// An empty value unsets the slot.
func (st *State) SetRawStorage(addr capstan.Address, key capstan.Bytes32, raw []byte) {
	st.sm.Put(storageKey{addr, key}, raw)
}

// DecodeStorage decodes the slot value with the given decoder.
// The decoder is fed a nil slice if the slot is unset.
func (st *State) DecodeStorage(addr capstan.Address, key capstan.Bytes32, dec func([]byte) error) error {
	raw, err := st.GetRawStorage(addr, key)
	if err != nil {
		return err
	}
	return dec(raw)
}

// EncodeStorage encodes a value with the given encoder and writes it into the slot.
// Encoding to an empty slice unsets the slot.
func (st *State) EncodeStorage(addr capstan.Address, key capstan.Bytes32, enc func() ([]byte, error)) error {
	raw, err := enc()
	if err != nil {
		return err
	}
	st.SetRawStorage(addr, key, raw)
	return nil
}

// NewCheckpoint makes a checkpoint of the current state.
// It returns the checkpoint to be passed to RevertTo.
func (st *State) NewCheckpoint() int {
	return st.sm.Push()
}

// RevertTo reverts the state to the given checkpoint.
// Writes journaled after the checkpoint are discarded.
func (st *State) RevertTo(checkpoint int) {
	st.sm.PopTo(checkpoint)
}

// Commit flushes journaled writes into the backing store in a single
// batch, then restarts the journal over a fresh snapshot.
func (st *State) Commit() error {
	bulk := st.store.Bulk()
	var werr error
	st.sm.Journal(func(k, v interface{}) bool {
		sk := k.(storageKey)
		raw := v.([]byte)
		if len(raw) == 0 {
			werr = bulk.Delete(rawKey(sk))
		} else {
			werr = bulk.Put(rawKey(sk), raw)
		}
		return werr == nil
	})
	if werr != nil {
		return &Error{werr}
	}
	if err := bulk.Write(); err != nil {
		return &Error{err}
	}

	st.snap.Release()
	st.snap = st.store.Snapshot()
	st.sm = stackedmap.New(func(k interface{}) (interface{}, bool, error) {
		return st.cacheGetter(k.(storageKey))
	})
	return nil
}

// Close releases the snapshot held by the state.
// The state must not be used afterwards.
func (st *State) Close() {
	st.snap.Release()
}
