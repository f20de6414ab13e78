// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package genesis_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capstanfi/capstan/capstan"
	"github.com/capstanfi/capstan/gauge"
	"github.com/capstanfi/capstan/genesis"
	"github.com/capstanfi/capstan/lvldb"
	"github.com/capstanfi/capstan/params"
	"github.com/capstanfi/capstan/state"
	"github.com/capstanfi/capstan/tokens"
)

func TestNewCustomNet_Validation(t *testing.T) {
	_, err := genesis.NewCustomNet(&genesis.CustomGenesis{})
	assert.EqualError(t, err, "launchTime must not be 0")

	_, err = genesis.NewCustomNet(&genesis.CustomGenesis{LaunchTime: 1})
	assert.EqualError(t, err, "epochLength must not be 0")

	_, err = genesis.NewCustomNet(&genesis.CustomGenesis{LaunchTime: 1, EpochLength: 60})
	assert.EqualError(t, err, "admin must be set")
}

func TestDevnetBuild(t *testing.T) {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	st := state.New(db)

	g := genesis.NewDevnet(capstan.DefaultEpochLength * 10)
	require.NoError(t, g.Build(st))
	assert.Equal(t, "devnet", g.Name())
	assert.False(t, g.ID().IsZero())

	ps := params.New(st)
	admin, err := ps.GetAddress(capstan.KeyAdmin)
	require.NoError(t, err)
	assert.Equal(t, genesis.DevAdmin, admin)

	length, err := ps.EpochLength()
	require.NoError(t, err)
	assert.Equal(t, uint64(capstan.DefaultEpochLength), length)

	gauges := gauge.New(st)
	count, err := gauges.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
	g1, err := gauges.Get(1)
	require.NoError(t, err)
	assert.Equal(t, "stable-pool", g1.Name)
	assert.True(t, g1.Active)

	bal, err := tokens.NewLedger(st).BalanceOf(genesis.DevToken, genesis.DevBriber)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1_000_000_000), bal)
}

func TestIDDeterministic(t *testing.T) {
	a := genesis.NewDevnet(1000)
	b := genesis.NewDevnet(1000)
	c := genesis.NewDevnet(2000)
	assert.Equal(t, a.ID(), b.ID())
	assert.NotEqual(t, a.ID(), c.ID())
}
