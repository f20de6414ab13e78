// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package tokens holds the multi-token balance book and the Vault
// interface the settlement core moves value through. The in-state
// ledger is the reference implementation; production embedders bind
// the Vault to real token transfer mechanics.
package tokens

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/capstanfi/capstan/capstan"
	"github.com/capstanfi/capstan/revert"
	"github.com/capstanfi/capstan/slot"
	"github.com/capstanfi/capstan/state"
)

// Vault is the opaque reliable transfer capability of the core.
// Implementations must either fully apply a transfer or fail it.
type Vault interface {
	// TransferIn pulls amount of token from the given holder into the core.
	TransferIn(token, from capstan.Address, amount *big.Int) error
	// TransferOut pushes amount of token from the core to the given holder.
	TransferOut(token, to capstan.Address, amount *big.Int) error
	// Balance returns the core's holding of the token.
	Balance(token capstan.Address) (*big.Int, error)
}

var slotBalances = slot.NameToSlot("balances")

// Ledger is the in-state multi-token balance book.
type Ledger struct {
	balances *slot.Mapping[slot.Pair, *big.Int]
}

// NewLedger creates the ledger over the tokens namespace.
func NewLedger(st *state.State) *Ledger {
	ctx := slot.NewContext(capstan.TokensAddress, st)
	return &Ledger{
		balances: slot.NewMapping[slot.Pair, *big.Int](ctx, slotBalances),
	}
}

func balanceKey(token, holder capstan.Address) slot.Pair {
	return slot.Pair{A: token, B: holder}
}

// BalanceOf returns the holder's balance of the token.
func (l *Ledger) BalanceOf(token, holder capstan.Address) (*big.Int, error) {
	b, err := l.balances.Get(balanceKey(token, holder))
	if err != nil {
		return nil, errors.Wrap(err, "failed to get balance")
	}
	return b, nil
}

// Mint credits the holder with amount of token out of thin air.
// Genesis and dev tooling only.
func (l *Ledger) Mint(token, to capstan.Address, amount *big.Int) error {
	b, err := l.BalanceOf(token, to)
	if err != nil {
		return err
	}
	return l.setBalance(token, to, new(big.Int).Add(b, amount))
}

// Transfer moves amount of token between holders.
func (l *Ledger) Transfer(token, from, to capstan.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	fromBal, err := l.BalanceOf(token, from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return revert.ErrInsufficientBalance
	}
	toBal, err := l.BalanceOf(token, to)
	if err != nil {
		return err
	}
	if err := l.setBalance(token, from, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return l.setBalance(token, to, new(big.Int).Add(toBal, amount))
}

func (l *Ledger) setBalance(token, holder capstan.Address, b *big.Int) error {
	key := balanceKey(token, holder)
	if b.Sign() == 0 {
		l.balances.Delete(key)
		return nil
	}
	if err := l.balances.Set(key, b); err != nil {
		return errors.Wrap(err, "failed to set balance")
	}
	return nil
}

// CoreVault adapts the ledger into the Vault of the settlement core,
// holding deposited value under the core's own address.
type CoreVault struct {
	ledger *Ledger
}

// NewVault creates the core vault over the ledger.
func NewVault(ledger *Ledger) *CoreVault {
	return &CoreVault{ledger: ledger}
}

// TransferIn implements Vault.
func (v *CoreVault) TransferIn(token, from capstan.Address, amount *big.Int) error {
	return v.ledger.Transfer(token, from, capstan.CoreAddress, amount)
}

// TransferOut implements Vault.
func (v *CoreVault) TransferOut(token, to capstan.Address, amount *big.Int) error {
	return v.ledger.Transfer(token, capstan.CoreAddress, to, amount)
}

// Balance implements Vault.
func (v *CoreVault) Balance(token capstan.Address) (*big.Int, error) {
	return v.ledger.BalanceOf(token, capstan.CoreAddress)
}
