// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package engine

import (
	"math/big"

	"github.com/capstanfi/capstan/bribe"
	"github.com/capstanfi/capstan/capstan"
	"github.com/capstanfi/capstan/claim"
	"github.com/capstanfi/capstan/gauge"
	"github.com/capstanfi/capstan/vote"
)

// StageStatus reports one settlement stage of the current epoch.
type StageStatus struct {
	LastEpoch uint64 `json:"lastEpoch"`
	Cursor    uint64 `json:"cursor"`
	Closed    bool   `json:"closed"`
}

// Status reports the engine clock and the three settlement stages.
type Status struct {
	Now         uint64      `json:"now"`
	EpochLength uint64      `json:"epochLength"`
	EpochStart  uint64      `json:"epochStart"`
	Weights     StageStatus `json:"weights"`
	Premiums    StageStatus `json:"premiums"`
	Bribes      StageStatus `json:"bribes"`
}

// Status snapshots the clock and stage cursors.
func (e *Engine) Status() (*Status, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	epochLength, err := e.params.EpochLength()
	if err != nil {
		return nil, err
	}
	now := e.now()
	epochStart := capstan.EpochStart(epochLength, now)

	s := &Status{
		Now:         now,
		EpochLength: epochLength,
		EpochStart:  epochStart,
	}

	wps, err := e.weights.State()
	if err != nil {
		return nil, err
	}
	s.Weights = StageStatus{LastEpoch: wps.LastEpoch, Cursor: wps.Cursor(), Closed: wps.LastEpoch == epochStart}

	pps, err := e.premiums.State()
	if err != nil {
		return nil, err
	}
	s.Premiums = StageStatus{LastEpoch: pps.LastEpoch, Cursor: pps.Cursor, Closed: pps.LastEpoch == epochStart}

	bps, err := e.dist.State()
	if err != nil {
		return nil, err
	}
	s.Bribes = StageStatus{LastEpoch: bps.LastEpoch, Cursor: bps.Cursor, Closed: bps.LastEpoch == epochStart}
	return s, nil
}

// Gauge returns one gauge by id.
func (e *Engine) Gauge(id uint64) (*gauge.Gauge, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.gauges.Get(id)
}

// Gauges returns all gauges in id order.
func (e *Engine) Gauges() ([]*gauge.Entry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.gauges.All()
}

// WeightOf returns the last published weight record of a gauge.
func (e *Engine) WeightOf(gaugeID uint64) (*vote.WeightRecord, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.weights.WeightOf(gaugeID)
}

// PremiumDue returns the premium accrued on a gauge for an epoch.
func (e *Engine) PremiumDue(epochStart, gaugeID uint64) (*big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.premiums.DueOf(epochStart, gaugeID)
}

// Whitelist returns the listed bribe tokens.
func (e *Engine) Whitelist() ([]capstan.Address, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.bribes.Whitelist()
}

// IsWhitelisted reports whether a token may be deposited.
func (e *Engine) IsWhitelisted(token capstan.Address) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.bribes.IsWhitelisted(token)
}

// Sources returns the registered vote sources.
func (e *Engine) Sources() ([]capstan.Address, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.weights.Sources().All()
}

// PoolOf returns the accumulating bribe pool of a gauge.
func (e *Engine) PoolOf(gaugeID uint64) ([]*bribe.TokenAmount, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.bribes.PoolOf(gaugeID)
}

// OpenGauges returns the gauges still holding an unsettled pool.
func (e *Engine) OpenGauges() ([]uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.bribes.OpenGauges()
}

// LifetimeOf returns the all-time deposit totals of a briber.
func (e *Engine) LifetimeOf(briber capstan.Address) ([]*bribe.TokenAmount, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.bribes.LifetimeOf(briber)
}

// AllocationOf returns the voter's bps on one gauge, zero if none.
func (e *Engine) AllocationOf(voter capstan.Address, gaugeID uint64) (uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.bribes.AllocationOf(voter, gaugeID)
}

// AllocationsOf returns all allocations of a voter.
func (e *Engine) AllocationsOf(voter capstan.Address) ([]*bribe.Allocation, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.bribes.AllocationsOf(voter)
}

// VotersOn returns the voters allocated to a gauge.
func (e *Engine) VotersOn(gaugeID uint64) ([]capstan.Address, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.bribes.VotersOn(gaugeID)
}

// UsedBPS returns the voter's bribe-side budget usage.
func (e *Engine) UsedBPS(voter capstan.Address) (uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.bribes.UsedBPS(voter)
}

// Claimable returns the voter's settled, not-yet-claimed balances.
func (e *Engine) Claimable(voter capstan.Address) ([]*claim.TokenAmount, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.claims.Of(voter)
}

// VaultBalance returns the core's holding of a token.
func (e *Engine) VaultBalance(token capstan.Address) (*big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.vault.Balance(token)
}

// Param reads a raw protocol parameter.
func (e *Engine) Param(key capstan.Bytes32) (*big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.params.Get(key)
}
