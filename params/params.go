// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package params is the singleton key/value parameter store of the ledger.
package params

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/capstanfi/capstan/capstan"
	"github.com/capstanfi/capstan/state"
)

// Store binds the parameter slots of the ledger.
type Store struct {
	addr  capstan.Address
	state *state.State
}

// New creates a store over the params namespace.
func New(st *state.State) *Store {
	return &Store{addr: capstan.ParamsAddress, state: st}
}

// Get returns the value of the key, zero if unset.
func (s *Store) Get(key capstan.Bytes32) (*big.Int, error) {
	v := new(big.Int)
	err := s.state.DecodeStorage(s.addr, key, func(raw []byte) error {
		if len(raw) == 0 {
			return nil
		}
		v.SetBytes(raw)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get param")
	}
	return v, nil
}

// Set writes the value of the key.
func (s *Store) Set(key capstan.Bytes32, value *big.Int) error {
	err := s.state.EncodeStorage(s.addr, key, func() ([]byte, error) {
		return value.Bytes(), nil
	})
	return errors.Wrap(err, "failed to set param")
}

// GetAddress reads a key holding an address.
func (s *Store) GetAddress(key capstan.Bytes32) (capstan.Address, error) {
	v, err := s.Get(key)
	if err != nil {
		return capstan.Address{}, err
	}
	return capstan.BytesToAddress(v.Bytes()), nil
}

// SetAddress writes an address under the key.
func (s *Store) SetAddress(key capstan.Bytes32, addr capstan.Address) error {
	return s.Set(key, new(big.Int).SetBytes(addr.Bytes()))
}

// EpochLength returns the configured epoch length, or the default when unset.
func (s *Store) EpochLength() (uint64, error) {
	v, err := s.Get(capstan.KeyEpochLength)
	if err != nil {
		return 0, err
	}
	if v.Sign() == 0 {
		return capstan.DefaultEpochLength, nil
	}
	return v.Uint64(), nil
}

// Budget returns the per-call work budget stored under the key,
// falling back to the given default when unset.
func (s *Store) Budget(key capstan.Bytes32, def uint64) (uint64, error) {
	v, err := s.Get(key)
	if err != nil {
		return 0, err
	}
	if v.Sign() == 0 {
		return def, nil
	}
	return v.Uint64(), nil
}
