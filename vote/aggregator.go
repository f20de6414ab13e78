// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package vote

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/capstanfi/capstan/capstan"
	"github.com/capstanfi/capstan/gauge"
	"github.com/capstanfi/capstan/log"
	"github.com/capstanfi/capstan/meter"
	"github.com/capstanfi/capstan/revert"
	"github.com/capstanfi/capstan/slot"
	"github.com/capstanfi/capstan/state"
)

var logger = log.WithContext("pkg", "vote")

var (
	slotProcessing = slot.NameToSlot("weights-processing")
	slotGaugePower = slot.NameToSlot("weights-gauge-power")
	slotTotalPower = slot.NameToSlot("weights-total-power")
	slotWeights    = slot.NameToSlot("weights-published")
)

// Phases of the weight stage.
const (
	PhaseTally uint64 = iota
	PhasePublish
)

// ProcessingState is the resumable cursor of the weight stage.
// The stage is closed for an epoch exactly when LastEpoch equals that
// epoch's start; a fresh cursor is laid down at the first call of a
// new epoch.
type ProcessingState struct {
	LastEpoch  uint64
	WorkEpoch  uint64
	Phase      uint64
	SourceIdx  uint64
	VoterIdx   uint64
	PublishIdx uint64
}

// Cursor flattens the phase-local position for signals and queries.
func (ps *ProcessingState) Cursor() uint64 {
	if ps.Phase == PhasePublish {
		return ps.PublishIdx
	}
	return ps.VoterIdx
}

// WeightRecord is a published per-gauge weight, 1e18 fixed point,
// stamped with the epoch it was computed for.
type WeightRecord struct {
	Epoch  uint64
	Weight *uint256.Int
}

// Aggregator sums vote power per gauge over every registered source's
// every voter, once per epoch, bounded work per call.
type Aggregator struct {
	sources    *Registry
	gauges     *gauge.Registry
	resolver   Resolver
	processing *slot.Value[*ProcessingState]
	gaugePower *slot.Mapping[slot.Pair, *big.Int] // (epoch, gauge) -> tallied power
	totalPower *slot.Mapping[slot.U64, *big.Int]  // epoch -> total tallied power
	weights    *slot.Mapping[slot.U64, *WeightRecord]
}

// NewAggregator creates the aggregator over the votes namespace.
func NewAggregator(st *state.State, gauges *gauge.Registry, resolver Resolver) *Aggregator {
	ctx := slot.NewContext(capstan.VotesAddress, st)
	return &Aggregator{
		sources:    NewRegistry(ctx),
		gauges:     gauges,
		resolver:   resolver,
		processing: slot.NewValue[*ProcessingState](ctx, slotProcessing),
		gaugePower: slot.NewMapping[slot.Pair, *big.Int](ctx, slotGaugePower),
		totalPower: slot.NewMapping[slot.U64, *big.Int](ctx, slotTotalPower),
		weights:    slot.NewMapping[slot.U64, *WeightRecord](ctx, slotWeights),
	}
}

// Sources returns the source registry.
func (a *Aggregator) Sources() *Registry {
	return a.sources
}

// Initialize marks the stage closed for the given epoch start.
// Genesis only; the first live epoch then opens at the next boundary.
func (a *Aggregator) Initialize(epochStart uint64) error {
	return a.save(&ProcessingState{LastEpoch: epochStart})
}

// State returns the current processing state.
func (a *Aggregator) State() (*ProcessingState, error) {
	ps, err := a.processing.Get()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get processing state")
	}
	return ps, nil
}

// LastEpoch returns the epoch start the stage last closed for.
func (a *Aggregator) LastEpoch() (uint64, error) {
	ps, err := a.State()
	if err != nil {
		return 0, err
	}
	return ps.LastEpoch, nil
}

// Closed reports whether the stage is closed for the epoch containing now.
func (a *Aggregator) Closed(epochLength, now uint64) (bool, error) {
	last, err := a.LastEpoch()
	if err != nil {
		return false, err
	}
	return last == capstan.EpochStart(epochLength, now), nil
}

// InProgress reports whether the stage has advanced its cursor for the
// epoch containing now without closing yet. Source removal is frozen
// while this holds, to keep the iteration order stable.
func (a *Aggregator) InProgress(epochLength, now uint64) (bool, error) {
	ps, err := a.State()
	if err != nil {
		return false, err
	}
	epochStart := capstan.EpochStart(epochLength, now)
	if ps.LastEpoch == epochStart {
		return false, nil
	}
	return ps.WorkEpoch == epochStart &&
		(ps.Phase != PhaseTally || ps.SourceIdx > 0 || ps.VoterIdx > 0), nil
}

// WeightOf returns the published weight record of the gauge.
// A never-published gauge yields a zero record.
func (a *Aggregator) WeightOf(gaugeID uint64) (*WeightRecord, error) {
	if _, err := a.gauges.Get(gaugeID); err != nil {
		return nil, err
	}
	rec, err := a.weights.Get(slot.U64(gaugeID))
	if err != nil {
		return nil, errors.Wrap(err, "failed to get weight record")
	}
	if rec.Weight == nil {
		rec.Weight = new(uint256.Int)
	}
	return rec, nil
}

// GaugePower returns the power tallied for the gauge in the epoch.
func (a *Aggregator) GaugePower(epochStart, gaugeID uint64) (*big.Int, error) {
	p, err := a.gaugePower.Get(slot.Pair{A: slot.U64(epochStart), B: slot.U64(gaugeID)})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get gauge power")
	}
	return p, nil
}

// TotalPower returns the total power tallied in the epoch.
func (a *Aggregator) TotalPower(epochStart uint64) (*big.Int, error) {
	p, err := a.totalPower.Get(slot.U64(epochStart))
	if err != nil {
		return nil, errors.Wrap(err, "failed to get total power")
	}
	return p, nil
}

// Update advances the weight stage for the epoch containing now,
// spending at most the meter's budget. It returns true when the stage
// closed for the epoch; false means more calls are needed. Sources and
// voters are visited in registered order so chunking never changes the
// outcome.
func (a *Aggregator) Update(epochLength, now uint64, m *meter.Meter) (bool, *ProcessingState, error) {
	epochStart := capstan.EpochStart(epochLength, now)
	ps, err := a.State()
	if err != nil {
		return false, nil, err
	}
	if ps.LastEpoch == epochStart {
		return false, nil, revert.ErrAlreadyUpdatedThisEpoch
	}
	if ps.WorkEpoch != epochStart {
		// first call of a new epoch lays down a fresh cursor
		ps = &ProcessingState{LastEpoch: ps.LastEpoch, WorkEpoch: epochStart}
	}

	if ps.Phase == PhaseTally {
		done, err := a.tally(epochStart, ps, m)
		if err != nil {
			return false, nil, err
		}
		if !done {
			return false, ps, a.save(ps)
		}
		ps.Phase = PhasePublish
		ps.PublishIdx = 1
	}

	done, err := a.publish(epochStart, ps, m)
	if err != nil {
		return false, nil, err
	}
	if !done {
		return false, ps, a.save(ps)
	}

	ps = &ProcessingState{LastEpoch: epochStart}
	if err := a.save(ps); err != nil {
		return false, nil, err
	}
	logger.Info("weights updated", "epoch", epochStart, "work", m.Breakdown())
	return true, ps, nil
}

func (a *Aggregator) save(ps *ProcessingState) error {
	return errors.Wrap(a.processing.Set(ps), "failed to set processing state")
}

// tally visits (source, voter) pairs from the cursor, accumulating
// power×bps per active gauge. One budget unit per voter.
func (a *Aggregator) tally(epochStart uint64, ps *ProcessingState, m *meter.Meter) (bool, error) {
	sourceCount, err := a.sources.Count()
	if err != nil {
		return false, err
	}
	for si := ps.SourceIdx; si < sourceCount; si++ {
		addr, err := a.sources.At(si)
		if err != nil {
			return false, err
		}
		src, err := a.resolver.Resolve(addr)
		if err != nil {
			return false, errors.WithMessagef(err, "resolve source %v", addr)
		}
		voterCount, err := src.VoterCount()
		if err != nil {
			return false, errors.Wrap(err, "failed to count voters")
		}
		for vi := ps.VoterIdx; vi < voterCount; vi++ {
			if !m.Spend("voter", 1) {
				ps.SourceIdx, ps.VoterIdx = si, vi
				return false, nil
			}
			voter, err := src.VoterAt(vi)
			if err != nil {
				return false, errors.Wrap(err, "failed to get voter")
			}
			if err := a.tallyVoter(epochStart, src, voter); err != nil {
				return false, err
			}
		}
		ps.VoterIdx = 0
	}
	return true, nil
}

func (a *Aggregator) tallyVoter(epochStart uint64, src Source, voter capstan.Address) error {
	power, err := src.PowerOf(voter, epochStart)
	if err != nil {
		return errors.Wrap(err, "failed to get vote power")
	}
	if power.Sign() == 0 {
		return nil
	}
	votes, err := src.VotesOf(voter)
	if err != nil {
		return errors.Wrap(err, "failed to get votes")
	}
	for _, v := range votes {
		if v.BPS == 0 {
			continue
		}
		active, err := a.gauges.IsActive(v.Gauge)
		if err != nil {
			if revert.Is(err) {
				// source reported a gauge this registry never had
				logger.Warn("skipping vote on unknown gauge", "gauge", v.Gauge, "voter", voter)
				continue
			}
			return err
		}
		if !active {
			continue
		}
		contribution := new(big.Int).Mul(power, new(big.Int).SetUint64(v.BPS))

		key := slot.Pair{A: slot.U64(epochStart), B: slot.U64(v.Gauge)}
		acc, err := a.gaugePower.Get(key)
		if err != nil {
			return errors.Wrap(err, "failed to get gauge power")
		}
		if err := a.gaugePower.Set(key, acc.Add(acc, contribution)); err != nil {
			return errors.Wrap(err, "failed to set gauge power")
		}

		total, err := a.totalPower.Get(slot.U64(epochStart))
		if err != nil {
			return errors.Wrap(err, "failed to get total power")
		}
		if err := a.totalPower.Set(slot.U64(epochStart), total.Add(total, contribution)); err != nil {
			return errors.Wrap(err, "failed to set total power")
		}
	}
	return nil
}

// publish writes the normalized weight of every active gauge from the
// cursor. One budget unit per gauge. Paused gauges keep their previous
// record, which is why published weights need not sum to 100%.
func (a *Aggregator) publish(epochStart uint64, ps *ProcessingState, m *meter.Meter) (bool, error) {
	gaugeCount, err := a.gauges.Count()
	if err != nil {
		return false, err
	}
	total, err := a.TotalPower(epochStart)
	if err != nil {
		return false, err
	}
	for gi := ps.PublishIdx; gi <= gaugeCount; gi++ {
		if !m.Spend("gauge", 1) {
			ps.PublishIdx = gi
			return false, nil
		}
		g, err := a.gauges.Get(gi)
		if err != nil {
			return false, err
		}
		if !g.Active {
			continue
		}
		weight := new(big.Int)
		if total.Sign() > 0 {
			power, err := a.GaugePower(epochStart, gi)
			if err != nil {
				return false, err
			}
			weight.Div(new(big.Int).Mul(power, capstan.WeightScale.ToBig()), total)
		}
		w, overflow := uint256.FromBig(weight)
		if overflow {
			return false, errors.New("weight overflows uint256")
		}
		if err := a.weights.Set(slot.U64(gi), &WeightRecord{Epoch: epochStart, Weight: w}); err != nil {
			return false, errors.Wrap(err, "failed to set weight record")
		}
	}
	return true, nil
}
