// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package gauge keeps the registry of gauges: the named targets vote
// power can be directed at and bribes attached to. Ids are dense,
// start at 1 and are never reused; gauges are paused, never deleted.
package gauge

import (
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/capstanfi/capstan/capstan"
	"github.com/capstanfi/capstan/revert"
	"github.com/capstanfi/capstan/slot"
	"github.com/capstanfi/capstan/state"
)

var (
	slotCounter = slot.NameToSlot("gauges-counter")
	slotGauges  = slot.NameToSlot("gauges")
)

// Gauge is one registry entry. The rate parameter is 1e18 fixed point
// and is consumed by the premium stage only.
type Gauge struct {
	Name   string
	Active bool
	Rate   *uint256.Int
}

// Entry pairs a gauge with its id, for list queries.
type Entry struct {
	ID uint64
	*Gauge
}

// Registry is the gauge registry over ledger state.
type Registry struct {
	counter *slot.Value[uint64]
	gauges  *slot.Mapping[slot.U64, *Gauge]
}

// New creates the registry over the gauges namespace.
func New(st *state.State) *Registry {
	ctx := slot.NewContext(capstan.GaugesAddress, st)
	return &Registry{
		counter: slot.NewValue[uint64](ctx, slotCounter),
		gauges:  slot.NewMapping[slot.U64, *Gauge](ctx, slotGauges),
	}
}

// Count returns the number of gauges ever added.
func (r *Registry) Count() (uint64, error) {
	n, err := r.counter.Get()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get gauge counter")
	}
	return n, nil
}

// Get returns the gauge of the id.
func (r *Registry) Get(id uint64) (*Gauge, error) {
	n, err := r.Count()
	if err != nil {
		return nil, err
	}
	if id == 0 || id > n {
		return nil, revert.ErrNonExistentGauge
	}
	g, err := r.gauges.Get(slot.U64(id))
	if err != nil {
		return nil, errors.Wrap(err, "failed to get gauge")
	}
	return g, nil
}

// IsActive returns whether the gauge of the id is active.
func (r *Registry) IsActive(id uint64) (bool, error) {
	g, err := r.Get(id)
	if err != nil {
		return false, err
	}
	return g.Active, nil
}

// All returns every gauge with its id, in id order.
func (r *Registry) All() ([]*Entry, error) {
	n, err := r.Count()
	if err != nil {
		return nil, err
	}
	out := make([]*Entry, 0, n)
	for id := uint64(1); id <= n; id++ {
		g, err := r.gauges.Get(slot.U64(id))
		if err != nil {
			return nil, errors.Wrap(err, "failed to get gauge")
		}
		out = append(out, &Entry{ID: id, Gauge: g})
	}
	return out, nil
}

// Add appends a gauge, active, and returns its id.
func (r *Registry) Add(name string, rate *uint256.Int) (uint64, error) {
	n, err := r.Count()
	if err != nil {
		return 0, err
	}
	id := n + 1
	if err := r.gauges.Set(slot.U64(id), &Gauge{Name: name, Active: true, Rate: rate}); err != nil {
		return 0, errors.Wrap(err, "failed to set gauge")
	}
	if err := r.counter.Set(id); err != nil {
		return 0, errors.Wrap(err, "failed to set gauge counter")
	}
	return id, nil
}

// Pause deactivates the gauge of the id.
func (r *Registry) Pause(id uint64) error {
	g, err := r.Get(id)
	if err != nil {
		return err
	}
	if !g.Active {
		return revert.ErrAlreadyPaused
	}
	g.Active = false
	return errors.Wrap(r.gauges.Set(slot.U64(id), g), "failed to set gauge")
}

// Unpause reactivates the gauge of the id.
func (r *Registry) Unpause(id uint64) error {
	g, err := r.Get(id)
	if err != nil {
		return err
	}
	if g.Active {
		return revert.ErrAlreadyUnpaused
	}
	g.Active = true
	return errors.Wrap(r.gauges.Set(slot.U64(id), g), "failed to set gauge")
}

// SetRate updates the rate parameter of the gauge of the id.
func (r *Registry) SetRate(id uint64, rate *uint256.Int) error {
	g, err := r.Get(id)
	if err != nil {
		return err
	}
	g.Rate = rate
	return errors.Wrap(r.gauges.Set(slot.U64(id), g), "failed to set gauge")
}
