// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package bribe tracks per-window bribe pools, the token whitelist,
// lifetime briber stats, voters' bribe-side allocations, and runs the
// pro-rata distribution stage at epoch turnover.
package bribe

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/capstanfi/capstan/capstan"
	"github.com/capstanfi/capstan/gauge"
	"github.com/capstanfi/capstan/log"
	"github.com/capstanfi/capstan/revert"
	"github.com/capstanfi/capstan/slot"
	"github.com/capstanfi/capstan/state"
	"github.com/capstanfi/capstan/tokens"
	"github.com/capstanfi/capstan/vote"
)

var logger = log.WithContext("pkg", "bribe")

// TokenAmount pairs a token with an amount.
type TokenAmount struct {
	Token  capstan.Address `json:"token"`
	Amount *big.Int        `json:"amount"`
}

// Allocation is one bribe-side allocation of a voter.
type Allocation struct {
	Gauge uint64 `json:"gauge"`
	BPS   uint64 `json:"bps"`
}

// Ledger is the bribe deposit and allocation book.
type Ledger struct {
	store  *storage
	gauges *gauge.Registry
	power  vote.PowerSource
	vault  tokens.Vault
}

// NewLedger creates the ledger over the bribes namespace.
func NewLedger(st *state.State, gauges *gauge.Registry, power vote.PowerSource, vault tokens.Vault) *Ledger {
	return &Ledger{
		store:  newStorage(st),
		gauges: gauges,
		power:  power,
		vault:  vault,
	}
}

// Initialize marks the distributor stage closed for the given epoch
// start. Genesis only.
func (l *Ledger) Initialize(epochStart uint64) error {
	return l.store.setProcessing(&ProcessingState{LastEpoch: epochStart})
}

// Closed reports whether the distributor stage is closed for the epoch
// containing now. Deposits, allocation writes and claims are frozen
// while it is open.
func (l *Ledger) Closed(epochLength, now uint64) (bool, error) {
	ps, err := l.store.getProcessing()
	if err != nil {
		return false, err
	}
	return ps.LastEpoch == capstan.EpochStart(epochLength, now), nil
}

func (l *Ledger) requireClosed(epochLength, now uint64) error {
	closed, err := l.Closed(epochLength, now)
	if err != nil {
		return err
	}
	if !closed {
		return revert.ErrSettlementPending
	}
	return nil
}

// IsWhitelisted reports whether the token may be deposited.
func (l *Ledger) IsWhitelisted(token capstan.Address) (bool, error) {
	p, err := l.store.whitelistPos.Get(token)
	if err != nil {
		return false, errors.Wrap(err, "failed to get whitelist position")
	}
	return p != 0, nil
}

// Whitelist returns the whitelisted tokens in listing order.
func (l *Ledger) Whitelist() ([]capstan.Address, error) {
	n, err := l.store.whitelistCount.Get()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get whitelist counter")
	}
	out := make([]capstan.Address, 0, n)
	for i := uint64(0); i < n; i++ {
		token, err := l.store.whitelistAt.Get(slot.U64(i))
		if err != nil {
			return nil, errors.Wrap(err, "failed to get whitelist list")
		}
		out = append(out, token)
	}
	return out, nil
}

// AddToken whitelists the token for bribe deposits.
func (l *Ledger) AddToken(token capstan.Address) error {
	listed, err := l.IsWhitelisted(token)
	if err != nil {
		return err
	}
	if listed {
		return revert.ErrAlreadyWhitelisted
	}
	n, err := l.store.whitelistCount.Get()
	if err != nil {
		return errors.Wrap(err, "failed to get whitelist counter")
	}
	if err := l.store.whitelistAt.Set(slot.U64(n), token); err != nil {
		return errors.Wrap(err, "failed to set whitelist list")
	}
	if err := l.store.whitelistPos.Set(token, n+1); err != nil {
		return errors.Wrap(err, "failed to set whitelist position")
	}
	return errors.Wrap(l.store.whitelistCount.Set(n+1), "failed to set whitelist counter")
}

// RemoveToken delists the token. Already-deposited funds still settle
// and remain claimable.
func (l *Ledger) RemoveToken(token capstan.Address) error {
	p, err := l.store.whitelistPos.Get(token)
	if err != nil {
		return errors.Wrap(err, "failed to get whitelist position")
	}
	if p == 0 {
		return revert.ErrNonWhitelistedToken
	}
	n, err := l.store.whitelistCount.Get()
	if err != nil {
		return errors.Wrap(err, "failed to get whitelist counter")
	}
	idx, last := p-1, n-1
	if idx != last {
		tail, err := l.store.whitelistAt.Get(slot.U64(last))
		if err != nil {
			return errors.Wrap(err, "failed to get whitelist list")
		}
		if err := l.store.whitelistAt.Set(slot.U64(idx), tail); err != nil {
			return errors.Wrap(err, "failed to set whitelist list")
		}
		if err := l.store.whitelistPos.Set(tail, idx+1); err != nil {
			return errors.Wrap(err, "failed to set whitelist position")
		}
	}
	l.store.whitelistAt.Delete(slot.U64(last))
	l.store.whitelistPos.Delete(token)
	return errors.Wrap(l.store.whitelistCount.Set(last), "failed to set whitelist counter")
}

// Deposit posts bribes on the gauge for the currently accumulating
// window, pulling each token amount from the briber into the vault.
// Zero-length input is a no-op.
func (l *Ledger) Deposit(briber capstan.Address, gaugeID uint64, toks []capstan.Address, amounts []*big.Int, epochLength, now uint64) error {
	if len(toks) != len(amounts) {
		return revert.ErrLengthMismatch
	}
	if len(toks) == 0 {
		return nil
	}
	active, err := l.gauges.IsActive(gaugeID)
	if err != nil {
		return err
	}
	if !active {
		return revert.ErrInactiveGauge
	}
	for i, token := range toks {
		listed, err := l.IsWhitelisted(token)
		if err != nil {
			return err
		}
		if !listed {
			return revert.ErrNonWhitelistedToken
		}
		if amounts[i] == nil || amounts[i].Sign() <= 0 {
			return revert.ErrInvalidAmount
		}
	}
	if err := l.requireClosed(epochLength, now); err != nil {
		return err
	}

	for i, token := range toks {
		if err := l.vault.TransferIn(token, briber, amounts[i]); err != nil {
			return err
		}
		if err := l.store.addPool(gaugeID, token, amounts[i]); err != nil {
			return err
		}
		if err := l.store.addLifetime(briber, token, amounts[i]); err != nil {
			return err
		}
	}
	return l.store.addOpen(gaugeID)
}

// Allocate upserts the voter's bribe-side allocation on the gauge.
// It returns the previous bps, 0 when this is a first write.
func (l *Ledger) Allocate(caller, voter capstan.Address, gaugeID, bps uint64, epochLength, now uint64) (uint64, error) {
	ok, err := l.power.IsOwnerOrDelegate(caller, voter)
	if err != nil {
		return 0, errors.Wrap(err, "failed to check delegate")
	}
	if !ok {
		return 0, revert.ErrNotOwnerNorDelegate
	}
	locked, err := l.power.HasLock(voter)
	if err != nil {
		return 0, errors.Wrap(err, "failed to check lock")
	}
	if !locked {
		return 0, revert.ErrVoterHasNoLocks
	}
	if bps == 0 || bps > capstan.FullBPS {
		return 0, revert.ErrInvalidBPS
	}
	open, err := l.store.isOpen(gaugeID)
	if err != nil {
		return 0, err
	}
	if !open {
		return 0, revert.ErrNoBribesForSelectedGauge
	}
	active, err := l.gauges.IsActive(gaugeID)
	if err != nil {
		return 0, err
	}
	if !active {
		return 0, revert.ErrInactiveGauge
	}
	if err := l.requireClosed(epochLength, now); err != nil {
		return 0, err
	}

	prev, err := l.store.getAlloc(voter, gaugeID)
	if err != nil {
		return 0, err
	}
	used, err := l.store.getUsedBPS(voter)
	if err != nil {
		return 0, err
	}
	mainUsed, err := l.power.UsedBPS(voter)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get main-vote usage")
	}
	// the bribe-side and main-vote budgets share one 10000 bps ceiling
	if used-prev+bps+mainUsed > capstan.FullBPS {
		return 0, revert.ErrBudgetExceeded
	}
	return l.store.putAlloc(voter, gaugeID, bps)
}

// Remove drops the voter's allocation on the gauge. Paused and
// settled-away gauges remain removable. It returns the removed bps.
func (l *Ledger) Remove(caller, voter capstan.Address, gaugeID, epochLength, now uint64) (uint64, error) {
	ok, err := l.power.IsOwnerOrDelegate(caller, voter)
	if err != nil {
		return 0, errors.Wrap(err, "failed to check delegate")
	}
	if !ok {
		return 0, revert.ErrNotOwnerNorDelegate
	}
	prev, err := l.store.getAlloc(voter, gaugeID)
	if err != nil {
		return 0, err
	}
	if prev == 0 {
		return 0, revert.ErrAllocationNotFound
	}
	if err := l.requireClosed(epochLength, now); err != nil {
		return 0, err
	}
	return l.store.dropAlloc(voter, gaugeID)
}

// PoolOf returns the gauge's open bribe pool in deposit order.
func (l *Ledger) PoolOf(gaugeID uint64) ([]*TokenAmount, error) {
	toks, amounts, err := l.store.poolTokens(gaugeID)
	if err != nil {
		return nil, err
	}
	out := make([]*TokenAmount, 0, len(toks))
	for i, token := range toks {
		out = append(out, &TokenAmount{Token: token, Amount: amounts[i]})
	}
	return out, nil
}

// OpenGauges returns the ids of gauges with an open bribe pool, in the
// order the distributor will visit them.
func (l *Ledger) OpenGauges() ([]uint64, error) {
	n, err := l.store.openCount.Get()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get open counter")
	}
	ps, err := l.store.getProcessing()
	if err != nil {
		return nil, err
	}
	var out []uint64
	for i := ps.Cursor; i < n; i++ {
		id, err := l.store.openAt.Get(slot.U64(i))
		if err != nil {
			return nil, errors.Wrap(err, "failed to get open list")
		}
		out = append(out, id)
	}
	return out, nil
}

// LifetimeOf returns the briber's lifetime deposit totals per token.
func (l *Ledger) LifetimeOf(briber capstan.Address) ([]*TokenAmount, error) {
	n, err := l.store.lifetimeTokCount.Get(briber)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get lifetime token counter")
	}
	out := make([]*TokenAmount, 0, n)
	for i := uint64(0); i < n; i++ {
		token, err := l.store.lifetimeTokAt.Get(slot.Pair{A: briber, B: slot.U64(i)})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get lifetime token list")
		}
		total, err := l.store.lifetime.Get(slot.Pair{A: briber, B: token})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get lifetime total")
		}
		out = append(out, &TokenAmount{Token: token, Amount: total})
	}
	return out, nil
}

// AllocationOf returns the voter's bps on the gauge, 0 if none.
func (l *Ledger) AllocationOf(voter capstan.Address, gaugeID uint64) (uint64, error) {
	return l.store.getAlloc(voter, gaugeID)
}

// AllocationsOf returns every allocation of the voter.
func (l *Ledger) AllocationsOf(voter capstan.Address) ([]*Allocation, error) {
	n, err := l.store.voterCount.Get(voter)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get voter index counter")
	}
	out := make([]*Allocation, 0, n)
	for i := uint64(0); i < n; i++ {
		gaugeID, err := l.store.voterAt.Get(slot.Pair{A: voter, B: slot.U64(i)})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get voter index")
		}
		bps, err := l.store.getAlloc(voter, gaugeID)
		if err != nil {
			return nil, err
		}
		out = append(out, &Allocation{Gauge: gaugeID, BPS: bps})
	}
	return out, nil
}

// VotersOn returns the voters allocated on the gauge.
func (l *Ledger) VotersOn(gaugeID uint64) ([]capstan.Address, error) {
	return l.store.votersOn(gaugeID)
}

// UsedBPS returns the voter's bribe-side budget usage.
func (l *Ledger) UsedBPS(voter capstan.Address) (uint64, error) {
	return l.store.getUsedBPS(voter)
}
