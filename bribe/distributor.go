// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package bribe

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/capstanfi/capstan/capstan"
	"github.com/capstanfi/capstan/claim"
	"github.com/capstanfi/capstan/meter"
	"github.com/capstanfi/capstan/revert"
	"github.com/capstanfi/capstan/slot"
)

// WeightStage is the completion surface of the weight aggregation stage.
type WeightStage interface {
	Closed(epochLength, now uint64) (bool, error)
}

// Gate is the completion surface of the external premium-charging
// stage. The stage is closed for an epoch when LastChargedEpoch equals
// that epoch's start.
type Gate interface {
	LastChargedEpoch() (uint64, error)
}

// TreasuryRouting reports a zero-contribution pool routed to the
// treasury during settlement.
type TreasuryRouting struct {
	Gauge  uint64
	Token  capstan.Address
	Amount *big.Int
}

// Distributor is the settlement stage: it splits every open bribe pool
// pro-rata over the gauge's voters by vote power × allocated bps,
// credits the claim ledger, and consumes the window's pools and
// allocations.
type Distributor struct {
	ledger *Ledger
	claims *claim.Ledger
	weight WeightStage
	gate   Gate
}

// NewDistributor creates the distributor over the ledger's storage.
func NewDistributor(ledger *Ledger, claims *claim.Ledger, weight WeightStage, gate Gate) *Distributor {
	return &Distributor{
		ledger: ledger,
		claims: claims,
		weight: weight,
		gate:   gate,
	}
}

// State returns the current processing state.
func (d *Distributor) State() (*ProcessingState, error) {
	return d.ledger.store.getProcessing()
}

// Process advances the settlement for the epoch containing now,
// spending one budget unit per gauge; a gauge's whole pool settles in
// one step. It returns true when the stage closed for the epoch, along
// with the treasury routings performed during this call. Both
// prerequisite stages must have closed first.
func (d *Distributor) Process(epochLength, now uint64, treasury capstan.Address, m *meter.Meter) (bool, *ProcessingState, []*TreasuryRouting, error) {
	epochStart := capstan.EpochStart(epochLength, now)
	s := d.ledger.store

	ps, err := s.getProcessing()
	if err != nil {
		return false, nil, nil, err
	}
	if ps.LastEpoch == epochStart {
		return false, nil, nil, revert.ErrAlreadySettledThisEpoch
	}
	weightsClosed, err := d.weight.Closed(epochLength, now)
	if err != nil {
		return false, nil, nil, err
	}
	charged, err := d.gate.LastChargedEpoch()
	if err != nil {
		return false, nil, nil, errors.Wrap(err, "failed to get premium gate")
	}
	if !weightsClosed || charged != epochStart {
		return false, nil, nil, revert.ErrPriorStageNotComplete
	}
	if ps.WorkEpoch != epochStart {
		ps = &ProcessingState{LastEpoch: ps.LastEpoch, WorkEpoch: epochStart}
	}

	count, err := s.openCount.Get()
	if err != nil {
		return false, nil, nil, errors.Wrap(err, "failed to get open counter")
	}

	var routed []*TreasuryRouting
	for i := ps.Cursor; i < count; i++ {
		if !m.Spend("gauge", 1) {
			ps.Cursor = i
			if err := s.setProcessing(ps); err != nil {
				return false, nil, nil, err
			}
			return false, ps, routed, nil
		}
		gaugeID, err := s.openAt.Get(slot.U64(i))
		if err != nil {
			return false, nil, nil, errors.Wrap(err, "failed to get open list")
		}
		r, err := d.settleGauge(epochStart, gaugeID, treasury)
		if err != nil {
			return false, nil, nil, err
		}
		routed = append(routed, r...)
		s.openAt.Delete(slot.U64(i))
		s.openFlag.Delete(slot.U64(gaugeID))
	}

	s.openCount.Clear()
	ps = &ProcessingState{LastEpoch: epochStart}
	if err := s.setProcessing(ps); err != nil {
		return false, nil, nil, err
	}
	logger.Info("bribes processed", "epoch", epochStart, "work", m.Breakdown())
	return true, ps, routed, nil
}

// settleGauge distributes one gauge's pool and consumes it, along
// with every allocation on the gauge: settlement clears the
// allocations and returns their bps to each voter's budget.
func (d *Distributor) settleGauge(epochStart, gaugeID uint64, treasury capstan.Address) ([]*TreasuryRouting, error) {
	s := d.ledger.store

	voters, err := s.votersOn(gaugeID)
	if err != nil {
		return nil, err
	}

	// contribution = vote power at the settled epoch × allocated bps
	contributions := make([]*big.Int, len(voters))
	total := new(big.Int)
	for i, voter := range voters {
		bps, err := s.dropAlloc(voter, gaugeID)
		if err != nil {
			return nil, err
		}
		power, err := d.ledger.power.PowerOf(voter, epochStart)
		if err != nil {
			return nil, errors.Wrap(err, "failed to get vote power")
		}
		contributions[i] = new(big.Int).Mul(power, new(big.Int).SetUint64(bps))
		total.Add(total, contributions[i])
	}

	toks, amounts, err := s.poolTokens(gaugeID)
	if err != nil {
		return nil, err
	}

	var routed []*TreasuryRouting
	if total.Sign() == 0 {
		// unclaimed incentive: the whole pool goes to the treasury
		for i, token := range toks {
			if amounts[i].Sign() == 0 {
				continue
			}
			if err := d.ledger.vault.TransferOut(token, treasury, amounts[i]); err != nil {
				return nil, err
			}
			routed = append(routed, &TreasuryRouting{Gauge: gaugeID, Token: token, Amount: amounts[i]})
		}
	} else {
		for i, token := range toks {
			for j, voter := range voters {
				if contributions[j].Sign() == 0 {
					continue
				}
				// floor division; the dust stays in the vault and is
				// reachable only through Rescue
				credited := new(big.Int).Mul(amounts[i], contributions[j])
				credited.Div(credited, total)
				if err := d.claims.Credit(voter, token, credited); err != nil {
					return nil, err
				}
			}
		}
	}
	return routed, s.clearPool(gaugeID)
}
