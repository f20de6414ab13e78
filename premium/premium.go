// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package premium carries the stage-2 gate contract of the pipeline and
// a reference in-state tracker. Monetary premium flow is external; only
// the completion gate and the informational accrual live here.
package premium

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/capstanfi/capstan/capstan"
	"github.com/capstanfi/capstan/gauge"
	"github.com/capstanfi/capstan/log"
	"github.com/capstanfi/capstan/meter"
	"github.com/capstanfi/capstan/revert"
	"github.com/capstanfi/capstan/slot"
	"github.com/capstanfi/capstan/state"
	"github.com/capstanfi/capstan/vote"
)

var logger = log.WithContext("pkg", "premium")

var (
	slotProcessing = slot.NameToSlot("premiums-processing")
	slotDue        = slot.NameToSlot("premiums-due")
)

// ProcessingState is the resumable cursor of the premium stage.
type ProcessingState struct {
	LastEpoch uint64
	WorkEpoch uint64
	Cursor    uint64 // next gauge id to accrue
}

// Tracker is the reference premium-accrual stage. Per epoch it records
// due[epoch][gauge] = weight × rate / 1e18 for every gauge, bounded
// work per call.
type Tracker struct {
	gauges     *gauge.Registry
	weights    *vote.Aggregator
	processing *slot.Value[*ProcessingState]
	due        *slot.Mapping[slot.Pair, *big.Int] // (epoch, gauge)
}

// New creates the tracker over the premiums namespace.
func New(st *state.State, gauges *gauge.Registry, weights *vote.Aggregator) *Tracker {
	ctx := slot.NewContext(capstan.PremiumsAddress, st)
	return &Tracker{
		gauges:     gauges,
		weights:    weights,
		processing: slot.NewValue[*ProcessingState](ctx, slotProcessing),
		due:        slot.NewMapping[slot.Pair, *big.Int](ctx, slotDue),
	}
}

// Initialize marks the stage closed for the given epoch start.
// Genesis only.
func (t *Tracker) Initialize(epochStart uint64) error {
	return t.save(&ProcessingState{LastEpoch: epochStart})
}

// State returns the current processing state.
func (t *Tracker) State() (*ProcessingState, error) {
	ps, err := t.processing.Get()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get processing state")
	}
	return ps, nil
}

// LastChargedEpoch returns the epoch start the stage last closed for.
// This is the gate the distributor checks.
func (t *Tracker) LastChargedEpoch() (uint64, error) {
	ps, err := t.State()
	if err != nil {
		return 0, err
	}
	return ps.LastEpoch, nil
}

// DueOf returns the premium accrued for the gauge in the epoch.
func (t *Tracker) DueOf(epochStart, gaugeID uint64) (*big.Int, error) {
	due, err := t.due.Get(slot.Pair{A: slot.U64(epochStart), B: slot.U64(gaugeID)})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get due")
	}
	return due, nil
}

func (t *Tracker) save(ps *ProcessingState) error {
	return errors.Wrap(t.processing.Set(ps), "failed to set processing state")
}

// Charge advances the premium accrual for the epoch containing now,
// one budget unit per gauge. The weight stage must have closed first.
func (t *Tracker) Charge(epochLength, now uint64, m *meter.Meter) (bool, *ProcessingState, error) {
	epochStart := capstan.EpochStart(epochLength, now)
	ps, err := t.State()
	if err != nil {
		return false, nil, err
	}
	if ps.LastEpoch == epochStart {
		return false, nil, revert.ErrAlreadyChargedThisEpoch
	}
	weightsClosed, err := t.weights.Closed(epochLength, now)
	if err != nil {
		return false, nil, err
	}
	if !weightsClosed {
		return false, nil, revert.ErrPriorStageNotComplete
	}
	if ps.WorkEpoch != epochStart {
		ps = &ProcessingState{LastEpoch: ps.LastEpoch, WorkEpoch: epochStart, Cursor: 1}
	}

	count, err := t.gauges.Count()
	if err != nil {
		return false, nil, err
	}
	for gi := ps.Cursor; gi <= count; gi++ {
		if !m.Spend("gauge", 1) {
			ps.Cursor = gi
			return false, ps, t.save(ps)
		}
		g, err := t.gauges.Get(gi)
		if err != nil {
			return false, nil, err
		}
		if !g.Active {
			continue
		}
		rec, err := t.weights.WeightOf(gi)
		if err != nil {
			return false, nil, err
		}
		// informational accrual: weight × rate / 1e18
		due := new(big.Int).Mul(rec.Weight.ToBig(), g.Rate.ToBig())
		due.Div(due, capstan.WeightScale.ToBig())
		if due.Sign() == 0 {
			continue
		}
		key := slot.Pair{A: slot.U64(epochStart), B: slot.U64(gi)}
		if err := t.due.Set(key, due); err != nil {
			return false, nil, errors.Wrap(err, "failed to set due")
		}
	}

	ps = &ProcessingState{LastEpoch: epochStart}
	if err := t.save(ps); err != nil {
		return false, nil, err
	}
	logger.Info("premiums charged", "epoch", epochStart, "work", m.Breakdown())
	return true, ps, nil
}
