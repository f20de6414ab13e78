// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package claim

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
	voter  = capstan.Address{0x01}
	tokenA = capstan.Address{0x0a}
	tokenB = capstan.Address{0x0b}
)

func newLedger(t *testing.T) *Ledger {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	return New(state.New(db))
}

func TestLedger_CreditAccumulates(t *testing.T) {
	l := newLedger(t)

	require.NoError(t, l.Credit(voter, tokenA, big.NewInt(100)))
	require.NoError(t, l.Credit(voter, tokenA, big.NewInt(50)))
	require.NoError(t, l.Credit(voter, tokenB, big.NewInt(7)))
	require.NoError(t, l.Credit(voter, tokenB, big.NewInt(0))) // no-op

	out, err := l.Of(voter)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, tokenA, out[0].Token)
	assert.Equal(t, int64(150), out[0].Amount.Int64())
	assert.Equal(t, tokenB, out[1].Token)
	assert.Equal(t, int64(7), out[1].Amount.Int64())
}

func TestLedger_DrainZeroesAtomically(t *testing.T) {
	l := newLedger(t)

	require.NoError(t, l.Credit(voter, tokenA, big.NewInt(100)))
	require.NoError(t, l.Credit(voter, tokenB, big.NewInt(7)))

	drained, err := l.Drain(voter)
	require.NoError(t, err)
	require.Len(t, drained, 2)

	out, err := l.Of(voter)
	require.NoError(t, err)
	assert.Empty(t, out)

	// second drain finds nothing
	_, err = l.Drain(voter)
	assert.ErrorIs(t, err, revert.ErrNothingToClaim)

	// credit after drain starts over
	require.NoError(t, l.Credit(voter, tokenB, big.NewInt(3)))
	out, err = l.Of(voter)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, tokenB, out[0].Token)
}

func TestLedger_DrainEmpty(t *testing.T) {
	l := newLedger(t)
	_, err := l.Drain(voter)
	assert.ErrorIs(t, err, revert.ErrNothingToClaim)
}
