// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package solo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capstanfi/capstan/capstan"
	"github.com/capstanfi/capstan/engine"
	"github.com/capstanfi/capstan/genesis"
	"github.com/capstanfi/capstan/lvldb"
	"github.com/capstanfi/capstan/state"
)

func newSolo(t *testing.T) (*Solo, *engine.Engine, *uint64) {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	st := state.New(db)

	launch := uint64(capstan.DefaultEpochLength) * 100
	gene := genesis.NewDevnet(launch)
	require.NoError(t, gene.Build(st))

	src := NewSource(gene.Config().Voters)
	now := launch
	e := engine.New(engine.Config{
		State:    st,
		Resolver: src,
		Power:    src,
		Now:      func() uint64 { return now },
	})
	return New(e, Options{}), e, &now
}

func TestSourceFromGenesis(t *testing.T) {
	gene := genesis.NewDevnet(1000)
	src := NewSource(gene.Config().Voters)

	n, err := src.VoterCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)

	power, err := src.PowerOf(genesis.DevVoters[1], 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), power.Int64())

	used, err := src.UsedBPS(genesis.DevVoters[0])
	require.NoError(t, err)
	assert.Equal(t, uint64(4000), used)

	ok, err := src.HasLock(capstan.Address{0xff})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = src.IsOwnerOrDelegate(genesis.DevVoters[0], genesis.DevVoters[0])
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStepDrivesStages(t *testing.T) {
	s, e, now := newSolo(t)

	// launch epoch starts fully settled
	done, err := s.Step()
	require.NoError(t, err)
	assert.True(t, done)

	*now = capstan.EpochNext(capstan.DefaultEpochLength, *now)

	for i := 0; i < 3; i++ {
		done, err = s.Step()
		require.NoError(t, err)
		assert.False(t, done)
	}
	done, err = s.Step()
	require.NoError(t, err)
	assert.True(t, done)

	// devnet voter powers published as weights
	w, err := e.WeightOf(2)
	require.NoError(t, err)
	epoch := capstan.EpochStart(capstan.DefaultEpochLength, *now)
	assert.Equal(t, epoch, w.Epoch)
	assert.True(t, w.Weight.Sign() > 0)
}
