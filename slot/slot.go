// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package slot provides typed storage cells over ledger state, similar
// to storage variables and mappings of a Solidity contract. Values are
// RLP encoded; an empty slot decodes to the zero value.
package slot

import (
	"encoding/binary"
	"reflect"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/capstanfi/capstan/capstan"
	"github.com/capstanfi/capstan/state"
)

// Key is anything usable as a mapping key.
type Key interface {
	Bytes() []byte
}

// U64 adapts an unsigned integer into a mapping key.
type U64 uint64

// Bytes returns the big-endian form of the key.
func (u U64) Bytes() []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(u))
	return b[:]
}

// Pair is a composite key made of two keys.
type Pair struct {
	A, B Key
}

// Bytes concatenates both key parts.
func (p Pair) Bytes() []byte {
	a := p.A.Bytes()
	return append(append(make([]byte, 0, len(a)+8), a...), p.B.Bytes()...)
}

// Context binds cells to a namespace address of the ledger state.
type Context struct {
	Addr  capstan.Address
	State *state.State
}

// NewContext creates a context for the given namespace.
func NewContext(addr capstan.Address, st *state.State) *Context {
	return &Context{Addr: addr, State: st}
}

func decode[V any](raw []byte, pos capstan.Bytes32) (value V, err error) {
	if reflect.ValueOf(value).Kind() == reflect.Ptr {
		value = reflect.New(reflect.TypeOf(value).Elem()).Interface().(V)
	}
	if len(raw) == 0 {
		return value, nil
	}
	if err := rlp.DecodeBytes(raw, &value); err != nil {
		return value, errors.Wrapf(err, "decode slot %v", pos)
	}
	return value, nil
}

// Value is a single typed cell at a fixed position.
type Value[V any] struct {
	ctx *Context
	pos capstan.Bytes32
}

// NewValue creates a cell at the given position.
func NewValue[V any](ctx *Context, pos capstan.Bytes32) *Value[V] {
	return &Value[V]{ctx: ctx, pos: pos}
}

// Get reads the cell. An empty slot yields the zero value.
func (v *Value[V]) Get() (value V, err error) {
	err = v.ctx.State.DecodeStorage(v.ctx.Addr, v.pos, func(raw []byte) error {
		value, err = decode[V](raw, v.pos)
		return err
	})
	return
}

// Set writes the cell.
func (v *Value[V]) Set(value V) error {
	return v.ctx.State.EncodeStorage(v.ctx.Addr, v.pos, func() ([]byte, error) {
		raw, err := rlp.EncodeToBytes(value)
		if err != nil {
			return nil, errors.Wrapf(err, "encode slot %v", v.pos)
		}
		return raw, nil
	})
}

// Clear unsets the cell.
func (v *Value[V]) Clear() {
	v.ctx.State.SetRawStorage(v.ctx.Addr, v.pos, nil)
}

// Mapping is a hashed key/value storage region, the counterpart of a
// Solidity mapping. The slot of an entry is Blake2b(key, basePos).
type Mapping[K Key, V any] struct {
	ctx     *Context
	basePos capstan.Bytes32
}

// NewMapping creates a mapping rooted at the given position.
func NewMapping[K Key, V any](ctx *Context, pos capstan.Bytes32) *Mapping[K, V] {
	return &Mapping[K, V]{ctx: ctx, basePos: pos}
}

func (m *Mapping[K, V]) position(key K) capstan.Bytes32 {
	return capstan.Blake2b(key.Bytes(), m.basePos.Bytes())
}

// Get reads the entry of the key. A missing entry yields the zero value.
func (m *Mapping[K, V]) Get(key K) (value V, err error) {
	pos := m.position(key)
	err = m.ctx.State.DecodeStorage(m.ctx.Addr, pos, func(raw []byte) error {
		value, err = decode[V](raw, pos)
		return err
	})
	return
}

// Set writes the entry of the key.
func (m *Mapping[K, V]) Set(key K, value V) error {
	pos := m.position(key)
	return m.ctx.State.EncodeStorage(m.ctx.Addr, pos, func() ([]byte, error) {
		raw, err := rlp.EncodeToBytes(value)
		if err != nil {
			return nil, errors.Wrapf(err, "encode slot %v", pos)
		}
		return raw, nil
	})
}

// Delete unsets the entry of the key.
func (m *Mapping[K, V]) Delete(key K) {
	m.ctx.State.SetRawStorage(m.ctx.Addr, m.position(key), nil)
}

// NameToSlot derives a fixed cell position from a name.
func NameToSlot(name string) capstan.Bytes32 {
	return capstan.BytesToBytes32([]byte(name))
}
