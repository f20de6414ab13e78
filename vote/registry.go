// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package vote

import (
	"github.com/pkg/errors"

	"github.com/capstanfi/capstan/capstan"
	"github.com/capstanfi/capstan/revert"
	"github.com/capstanfi/capstan/slot"
)

var (
	slotSourceCount = slot.NameToSlot("sources-counter")
	slotSourceAt    = slot.NameToSlot("sources-list")
	slotSourcePos   = slot.NameToSlot("sources-position")
)

// Registry keeps the ordered set of registered vote source addresses.
// Order is append order; removal swaps the tail in, which only happens
// between epochs so the aggregation cursor never observes it.
type Registry struct {
	count *slot.Value[uint64]
	at    *slot.Mapping[slot.U64, capstan.Address]
	pos   *slot.Mapping[capstan.Address, uint64] // index+1, 0 = absent
}

// NewRegistry creates the source registry in the given context.
func NewRegistry(ctx *slot.Context) *Registry {
	return &Registry{
		count: slot.NewValue[uint64](ctx, slotSourceCount),
		at:    slot.NewMapping[slot.U64, capstan.Address](ctx, slotSourceAt),
		pos:   slot.NewMapping[capstan.Address, uint64](ctx, slotSourcePos),
	}
}

// Count returns the number of registered sources.
func (r *Registry) Count() (uint64, error) {
	n, err := r.count.Get()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get source counter")
	}
	return n, nil
}

// At returns the source address at the given index.
func (r *Registry) At(i uint64) (capstan.Address, error) {
	addr, err := r.at.Get(slot.U64(i))
	if err != nil {
		return capstan.Address{}, errors.Wrap(err, "failed to get source")
	}
	return addr, nil
}

// Contains reports whether the address is registered.
func (r *Registry) Contains(addr capstan.Address) (bool, error) {
	p, err := r.pos.Get(addr)
	if err != nil {
		return false, errors.Wrap(err, "failed to get source position")
	}
	return p != 0, nil
}

// All returns the registered addresses in order.
func (r *Registry) All() ([]capstan.Address, error) {
	n, err := r.Count()
	if err != nil {
		return nil, err
	}
	out := make([]capstan.Address, 0, n)
	for i := uint64(0); i < n; i++ {
		addr, err := r.At(i)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

// Register appends the address.
func (r *Registry) Register(addr capstan.Address) error {
	known, err := r.Contains(addr)
	if err != nil {
		return err
	}
	if known {
		return revert.ErrAlreadyRegistered
	}
	n, err := r.Count()
	if err != nil {
		return err
	}
	if err := r.at.Set(slot.U64(n), addr); err != nil {
		return errors.Wrap(err, "failed to set source")
	}
	if err := r.pos.Set(addr, n+1); err != nil {
		return errors.Wrap(err, "failed to set source position")
	}
	if err := r.count.Set(n + 1); err != nil {
		return errors.Wrap(err, "failed to set source counter")
	}
	return nil
}

// Remove drops the address, swapping the last entry into its place.
func (r *Registry) Remove(addr capstan.Address) error {
	p, err := r.pos.Get(addr)
	if err != nil {
		return errors.Wrap(err, "failed to get source position")
	}
	if p == 0 {
		return revert.ErrSourceNotFound
	}
	n, err := r.Count()
	if err != nil {
		return err
	}
	idx, last := p-1, n-1
	if idx != last {
		tail, err := r.At(last)
		if err != nil {
			return err
		}
		if err := r.at.Set(slot.U64(idx), tail); err != nil {
			return errors.Wrap(err, "failed to set source")
		}
		if err := r.pos.Set(tail, idx+1); err != nil {
			return errors.Wrap(err, "failed to set source position")
		}
	}
	r.at.Delete(slot.U64(last))
	r.pos.Delete(addr)
	if err := r.count.Set(last); err != nil {
		return errors.Wrap(err, "failed to set source counter")
	}
	return nil
}
