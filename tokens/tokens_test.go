// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package tokens

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capstanfi/capstan/capstan"
	"github.com/capstanfi/capstan/lvldb"
	"github.com/capstanfi/capstan/revert"
	"github.com/capstanfi/capstan/state"
)

var (
	tokenA = capstan.Address{0x0a}
	alice  = capstan.Address{0xa1}
	bob    = capstan.Address{0xb0}
)

func newLedger(t *testing.T) *Ledger {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	return NewLedger(state.New(db))
}

func TestLedger_MintTransfer(t *testing.T) {
	l := newLedger(t)

	require.NoError(t, l.Mint(tokenA, alice, big.NewInt(1000)))
	require.NoError(t, l.Transfer(tokenA, alice, bob, big.NewInt(400)))

	a, err := l.BalanceOf(tokenA, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(600), a.Int64())

	b, err := l.BalanceOf(tokenA, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(400), b.Int64())
}

func TestLedger_InsufficientBalance(t *testing.T) {
	l := newLedger(t)

	require.NoError(t, l.Mint(tokenA, alice, big.NewInt(10)))
	err := l.Transfer(tokenA, alice, bob, big.NewInt(11))
	assert.ErrorIs(t, err, revert.ErrInsufficientBalance)

	// nothing moved
	a, err := l.BalanceOf(tokenA, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(10), a.Int64())
}

func TestVault_RoundTrip(t *testing.T) {
	l := newLedger(t)
	v := NewVault(l)

	require.NoError(t, l.Mint(tokenA, alice, big.NewInt(500)))
	require.NoError(t, v.TransferIn(tokenA, alice, big.NewInt(500)))

	held, err := v.Balance(tokenA)
	require.NoError(t, err)
	assert.Equal(t, int64(500), held.Int64())

	require.NoError(t, v.TransferOut(tokenA, bob, big.NewInt(200)))
	held, err = v.Balance(tokenA)
	require.NoError(t, err)
	assert.Equal(t, int64(300), held.Int64())

	b, err := l.BalanceOf(tokenA, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(200), b.Int64())
}
