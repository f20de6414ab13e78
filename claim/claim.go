// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package claim keeps the per-voter, per-token claimable balances
// credited by the distributor and drained by voters.
package claim

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/capstanfi/capstan/capstan"
	"github.com/capstanfi/capstan/revert"
	"github.com/capstanfi/capstan/slot"
	"github.com/capstanfi/capstan/state"
)

var (
	slotBalances   = slot.NameToSlot("claims-balances")
	slotTokenCount = slot.NameToSlot("claims-token-count")
	slotTokenAt    = slot.NameToSlot("claims-token-list")
	slotTokenSeen  = slot.NameToSlot("claims-token-seen")
)

// TokenAmount pairs a token with an amount.
type TokenAmount struct {
	Token  capstan.Address `json:"token"`
	Amount *big.Int        `json:"amount"`
}

// Ledger is the claimable balance book. Rows are written only by the
// distributor and zeroed only by the owning voter's drain.
type Ledger struct {
	balances   *slot.Mapping[slot.Pair, *big.Int] // (voter, token)
	tokenCount *slot.Mapping[capstan.Address, uint64]
	tokenAt    *slot.Mapping[slot.Pair, capstan.Address] // (voter, idx)
	tokenSeen  *slot.Mapping[slot.Pair, bool]            // (voter, token)
}

// New creates the ledger over the claims namespace.
func New(st *state.State) *Ledger {
	ctx := slot.NewContext(capstan.ClaimsAddress, st)
	return &Ledger{
		balances:   slot.NewMapping[slot.Pair, *big.Int](ctx, slotBalances),
		tokenCount: slot.NewMapping[capstan.Address, uint64](ctx, slotTokenCount),
		tokenAt:    slot.NewMapping[slot.Pair, capstan.Address](ctx, slotTokenAt),
		tokenSeen:  slot.NewMapping[slot.Pair, bool](ctx, slotTokenSeen),
	}
}

// Credit adds amount of token to the voter's claimable balance.
func (l *Ledger) Credit(voter, token capstan.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	key := slot.Pair{A: voter, B: token}
	b, err := l.balances.Get(key)
	if err != nil {
		return errors.Wrap(err, "failed to get claimable")
	}
	if err := l.balances.Set(key, b.Add(b, amount)); err != nil {
		return errors.Wrap(err, "failed to set claimable")
	}

	seen, err := l.tokenSeen.Get(key)
	if err != nil {
		return errors.Wrap(err, "failed to get token flag")
	}
	if seen {
		return nil
	}
	n, err := l.tokenCount.Get(voter)
	if err != nil {
		return errors.Wrap(err, "failed to get token count")
	}
	if err := l.tokenAt.Set(slot.Pair{A: voter, B: slot.U64(n)}, token); err != nil {
		return errors.Wrap(err, "failed to set token list")
	}
	if err := l.tokenCount.Set(voter, n+1); err != nil {
		return errors.Wrap(err, "failed to set token count")
	}
	if err := l.tokenSeen.Set(key, true); err != nil {
		return errors.Wrap(err, "failed to set token flag")
	}
	return nil
}

// Of returns the voter's nonzero claimable balances, in credit order.
func (l *Ledger) Of(voter capstan.Address) ([]*TokenAmount, error) {
	n, err := l.tokenCount.Get(voter)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get token count")
	}
	var out []*TokenAmount
	for i := uint64(0); i < n; i++ {
		token, err := l.tokenAt.Get(slot.Pair{A: voter, B: slot.U64(i)})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get token list")
		}
		b, err := l.balances.Get(slot.Pair{A: voter, B: token})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get claimable")
		}
		if b.Sign() > 0 {
			out = append(out, &TokenAmount{Token: token, Amount: b})
		}
	}
	return out, nil
}

// Drain zeroes and returns every nonzero balance of the voter.
// It fails with NothingToClaim when no balance exists. The caller is
// responsible for moving the drained value out of the vault.
func (l *Ledger) Drain(voter capstan.Address) ([]*TokenAmount, error) {
	drained, err := l.Of(voter)
	if err != nil {
		return nil, err
	}
	if len(drained) == 0 {
		return nil, revert.ErrNothingToClaim
	}
	n, err := l.tokenCount.Get(voter)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get token count")
	}
	for i := uint64(0); i < n; i++ {
		key := slot.Pair{A: voter, B: slot.U64(i)}
		token, err := l.tokenAt.Get(key)
		if err != nil {
			return nil, errors.Wrap(err, "failed to get token list")
		}
		l.balances.Delete(slot.Pair{A: voter, B: token})
		l.tokenSeen.Delete(slot.Pair{A: voter, B: token})
		l.tokenAt.Delete(key)
	}
	l.tokenCount.Delete(voter)
	return drained, nil
}
