// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package engine

import (
	"math/big"

	"github.com/holiman/uint256"

	"github.com/capstanfi/capstan/capstan"
	"github.com/capstanfi/capstan/event"
	"github.com/capstanfi/capstan/meter"
	"github.com/capstanfi/capstan/revert"
)

// AddGauge registers a new gauge. Admin only.
func (e *Engine) AddGauge(caller capstan.Address, name string, rate *uint256.Int) (uint64, error) {
	var id uint64
	err := e.run(func(c *opCtx) error {
		if err := e.requireAdmin(caller); err != nil {
			return err
		}
		var err error
		if id, err = e.gauges.Add(name, rate); err != nil {
			return err
		}
		c.emit(&event.GaugeAdded{ID: id, Gauge: name, Rate: rate, Admin: caller})
		return nil
	})
	return id, err
}

// PauseGauge deactivates a gauge. Admin only.
func (e *Engine) PauseGauge(caller capstan.Address, id uint64) error {
	return e.run(func(c *opCtx) error {
		if err := e.requireAdmin(caller); err != nil {
			return err
		}
		if err := e.gauges.Pause(id); err != nil {
			return err
		}
		c.emit(&event.GaugePaused{ID: id, Admin: caller})
		return nil
	})
}

// UnpauseGauge reactivates a gauge. Admin only.
func (e *Engine) UnpauseGauge(caller capstan.Address, id uint64) error {
	return e.run(func(c *opCtx) error {
		if err := e.requireAdmin(caller); err != nil {
			return err
		}
		if err := e.gauges.Unpause(id); err != nil {
			return err
		}
		c.emit(&event.GaugeUnpaused{ID: id, Admin: caller})
		return nil
	})
}

// SetRateParams updates the rate parameter of several gauges at once.
// Admin only, all-or-nothing.
func (e *Engine) SetRateParams(caller capstan.Address, ids []uint64, rates []*uint256.Int) error {
	return e.run(func(c *opCtx) error {
		if err := e.requireAdmin(caller); err != nil {
			return err
		}
		if len(ids) != len(rates) {
			return revert.ErrLengthMismatch
		}
		for i, id := range ids {
			if err := e.gauges.SetRate(id, rates[i]); err != nil {
				return err
			}
			c.emit(&event.GaugeRate{ID: id, Rate: rates[i], Admin: caller})
		}
		return nil
	})
}

// AddBribeToken whitelists a token for bribe deposits. Admin only.
func (e *Engine) AddBribeToken(caller, token capstan.Address) error {
	return e.run(func(c *opCtx) error {
		if err := e.requireAdmin(caller); err != nil {
			return err
		}
		if err := e.bribes.AddToken(token); err != nil {
			return err
		}
		c.emit(&event.TokenListed{Token: token, Admin: caller})
		return nil
	})
}

// RemoveBribeToken delists a token. Admin only. Already-deposited
// funds still settle and remain claimable.
func (e *Engine) RemoveBribeToken(caller, token capstan.Address) error {
	return e.run(func(c *opCtx) error {
		if err := e.requireAdmin(caller); err != nil {
			return err
		}
		if err := e.bribes.RemoveToken(token); err != nil {
			return err
		}
		c.emit(&event.TokenDelisted{Token: token, Admin: caller})
		return nil
	})
}

// RegisterSource adds a vote source to the aggregation set. Admin only.
func (e *Engine) RegisterSource(caller, source capstan.Address) error {
	return e.run(func(c *opCtx) error {
		if err := e.requireAdmin(caller); err != nil {
			return err
		}
		if err := e.weights.Sources().Register(source); err != nil {
			return err
		}
		c.emit(&event.SourceRegistered{Source: source, Admin: caller})
		return nil
	})
}

// RemoveSource drops a vote source. Admin only. Rejected while the
// weight stage is mid-cursor, to keep the iteration order stable.
func (e *Engine) RemoveSource(caller, source capstan.Address) error {
	return e.run(func(c *opCtx) error {
		if err := e.requireAdmin(caller); err != nil {
			return err
		}
		inProgress, err := e.weights.InProgress(c.epochLength, c.now)
		if err != nil {
			return err
		}
		if inProgress {
			return revert.ErrSettlementPending
		}
		if err := e.weights.Sources().Remove(source); err != nil {
			return err
		}
		c.emit(&event.SourceRemoved{Source: source, Admin: caller})
		return nil
	})
}

// SetParam writes a protocol parameter. Admin only. The epoch length
// is immutable after genesis.
func (e *Engine) SetParam(caller capstan.Address, key capstan.Bytes32, value *big.Int) error {
	return e.run(func(_ *opCtx) error {
		if err := e.requireAdmin(caller); err != nil {
			return err
		}
		if key == capstan.KeyEpochLength {
			return revert.ErrInvalidParam
		}
		return e.params.Set(key, value)
	})
}

// ProvideBribes deposits bribes on a gauge for the currently
// accumulating window.
func (e *Engine) ProvideBribes(caller capstan.Address, gaugeID uint64, toks []capstan.Address, amounts []*big.Int) error {
	return e.run(func(c *opCtx) error {
		if err := e.bribes.Deposit(caller, gaugeID, toks, amounts, c.epochLength, c.now); err != nil {
			return err
		}
		for i, token := range toks {
			c.emit(&event.BribeProvided{Gauge: gaugeID, Briber: caller, Token: token, Amount: amounts[i]})
		}
		return nil
	})
}

func (e *Engine) allocate(c *opCtx, caller, voter capstan.Address, gaugeID, bps uint64) error {
	prev, err := e.bribes.Allocate(caller, voter, gaugeID, bps, c.epochLength, c.now)
	if err != nil {
		return err
	}
	if prev == 0 {
		c.emit(&event.AllocAdded{Voter: voter, Caller: caller, Gauge: gaugeID, BPS: bps})
	} else {
		c.emit(&event.AllocChanged{Voter: voter, Caller: caller, Gauge: gaugeID, BPS: bps, Prev: prev})
	}
	return nil
}

func (e *Engine) removeAllocation(c *opCtx, caller, voter capstan.Address, gaugeID uint64) error {
	prev, err := e.bribes.Remove(caller, voter, gaugeID, c.epochLength, c.now)
	if err != nil {
		return err
	}
	c.emit(&event.AllocRemoved{Voter: voter, Caller: caller, Gauge: gaugeID, Prev: prev})
	return nil
}

// Allocate dedicates bps of the voter's budget to a gauge's bribe pool.
// Callable by the voter or an authorized delegate.
func (e *Engine) Allocate(caller, voter capstan.Address, gaugeID, bps uint64) error {
	return e.run(func(c *opCtx) error {
		return e.allocate(c, caller, voter, gaugeID, bps)
	})
}

// AllocateBatch applies several allocations for one voter,
// all-or-nothing.
func (e *Engine) AllocateBatch(caller, voter capstan.Address, gaugeIDs []uint64, bps []uint64) error {
	return e.run(func(c *opCtx) error {
		if len(gaugeIDs) != len(bps) {
			return revert.ErrLengthMismatch
		}
		for i, id := range gaugeIDs {
			if err := e.allocate(c, caller, voter, id, bps[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// AllocateMany lets one delegate allocate for several voters in one
// call, all-or-nothing.
func (e *Engine) AllocateMany(caller capstan.Address, voters []capstan.Address, gaugeIDs []uint64, bps []uint64) error {
	return e.run(func(c *opCtx) error {
		if len(voters) != len(gaugeIDs) || len(voters) != len(bps) {
			return revert.ErrLengthMismatch
		}
		for i, voter := range voters {
			if err := e.allocate(c, caller, voter, gaugeIDs[i], bps[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// RemoveAllocation drops the voter's allocation on a gauge.
func (e *Engine) RemoveAllocation(caller, voter capstan.Address, gaugeID uint64) error {
	return e.run(func(c *opCtx) error {
		return e.removeAllocation(c, caller, voter, gaugeID)
	})
}

// RemoveBatch drops several allocations of one voter, all-or-nothing.
func (e *Engine) RemoveBatch(caller, voter capstan.Address, gaugeIDs []uint64) error {
	return e.run(func(c *opCtx) error {
		for _, id := range gaugeIDs {
			if err := e.removeAllocation(c, caller, voter, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// RemoveMany drops allocations for several voters, all-or-nothing.
func (e *Engine) RemoveMany(caller capstan.Address, voters []capstan.Address, gaugeIDs []uint64) error {
	return e.run(func(c *opCtx) error {
		if len(voters) != len(gaugeIDs) {
			return revert.ErrLengthMismatch
		}
		for i, voter := range voters {
			if err := e.removeAllocation(c, caller, voter, gaugeIDs[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateWeights advances the weight aggregation stage. Callable by
// anyone; an incomplete batch is success-with-more-work-remaining.
func (e *Engine) UpdateWeights(_ capstan.Address) error {
	return e.run(func(c *opCtx) error {
		budget, err := e.params.Budget(capstan.KeyWeightBatch, capstan.DefaultWeightBatch)
		if err != nil {
			return err
		}
		done, ps, err := e.weights.Update(c.epochLength, c.now, meter.New(budget))
		if err != nil {
			return err
		}
		if done {
			c.emit(&event.WeightsUpdated{Epoch: c.epochStart})
		} else {
			c.emit(&event.WeightsIncomplete{Epoch: c.epochStart, Cursor: ps.Cursor()})
		}
		return nil
	})
}

// ChargePremiums advances the reference premium stage. Callable by
// anyone.
func (e *Engine) ChargePremiums(_ capstan.Address) error {
	return e.run(func(c *opCtx) error {
		budget, err := e.params.Budget(capstan.KeyPremiumBatch, capstan.DefaultPremiumBatch)
		if err != nil {
			return err
		}
		done, ps, err := e.premiums.Charge(c.epochLength, c.now, meter.New(budget))
		if err != nil {
			return err
		}
		if done {
			c.emit(&event.PremiumsCharged{Epoch: c.epochStart})
		} else {
			c.emit(&event.PremiumsIncomplete{Epoch: c.epochStart, Cursor: ps.Cursor})
		}
		return nil
	})
}

// ProcessBribes advances the distribution stage. Callable by anyone
// once both prerequisite stages have closed for the epoch.
func (e *Engine) ProcessBribes(_ capstan.Address) error {
	return e.run(func(c *opCtx) error {
		budget, err := e.params.Budget(capstan.KeyBribeBatch, capstan.DefaultBribeBatch)
		if err != nil {
			return err
		}
		treasury, err := e.params.GetAddress(capstan.KeyTreasury)
		if err != nil {
			return err
		}
		done, ps, routed, err := e.dist.Process(c.epochLength, c.now, treasury, meter.New(budget))
		if err != nil {
			return err
		}
		for _, r := range routed {
			c.emit(&event.BribesTreasury{Gauge: r.Gauge, Token: r.Token, Amount: r.Amount, Treasury: treasury})
		}
		if done {
			c.emit(&event.BribesProcessed{Epoch: c.epochStart})
		} else {
			c.emit(&event.BribesIncomplete{Epoch: c.epochStart, Cursor: ps.Cursor})
		}
		return nil
	})
}

// Claim drains every claimable balance of the caller out of the vault.
func (e *Engine) Claim(caller capstan.Address) error {
	return e.run(func(c *opCtx) error {
		closed, err := e.bribes.Closed(c.epochLength, c.now)
		if err != nil {
			return err
		}
		if !closed {
			return revert.ErrSettlementPending
		}
		drained, err := e.claims.Drain(caller)
		if err != nil {
			return err
		}
		for _, ta := range drained {
			if err := e.vault.TransferOut(ta.Token, caller, ta.Amount); err != nil {
				return err
			}
			c.emit(&event.ClaimClaimed{Voter: caller, Token: ta.Token, Amount: ta.Amount})
		}
		return nil
	})
}

// Rescue sweeps the vault's entire balance of the named tokens to an
// arbitrary destination. Admin only; it bypasses the claim ledger, so
// distribution dust and never-allocated funds are reachable here and
// nowhere else.
func (e *Engine) Rescue(caller capstan.Address, toks []capstan.Address, to capstan.Address) error {
	return e.run(func(c *opCtx) error {
		if err := e.requireAdmin(caller); err != nil {
			return err
		}
		if to.IsZero() {
			return revert.ErrInvalidRecipient
		}
		for _, token := range toks {
			balance, err := e.vault.Balance(token)
			if err != nil {
				return err
			}
			if balance.Sign() == 0 {
				continue
			}
			if err := e.vault.TransferOut(token, to, balance); err != nil {
				return err
			}
			c.emit(&event.RescueSwept{Admin: caller, Token: token, Amount: balance, To: to})
		}
		return nil
	})
}
