// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package bribe

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capstanfi/capstan/capstan"
	"github.com/capstanfi/capstan/claim"
	"github.com/capstanfi/capstan/meter"
	"github.com/capstanfi/capstan/revert"
)

var treasury = capstan.Address{0x77}

// stageStub stands in for the two prerequisite stages.
type stageStub struct {
	weightsClosed bool
	chargedEpoch  uint64
}

func (s *stageStub) Closed(_, _ uint64) (bool, error) { return s.weightsClosed, nil }

func (s *stageStub) LastChargedEpoch() (uint64, error) { return s.chargedEpoch, nil }

type distFixture struct {
	*fixture
	claims *claim.Ledger
	stages *stageStub
	dist   *Distributor
}

func newDistFixture(t *testing.T) *distFixture {
	f := newFixture(t)
	claims := claim.New(f.st)
	stages := &stageStub{}
	return &distFixture{
		fixture: f,
		claims:  claims,
		stages:  stages,
		dist:    NewDistributor(f.ledger, claims, stages, stages),
	}
}

// turnEpoch crosses the boundary and marks both prerequisite stages
// closed for the new epoch.
func (f *distFixture) turnEpoch() {
	f.now += epochLength
	f.stages.weightsClosed = true
	f.stages.chargedEpoch = capstan.EpochStart(epochLength, f.now)
}

func (f *distFixture) process(budget uint64) (bool, []*TreasuryRouting) {
	done, _, routed, err := f.dist.Process(epochLength, f.now, treasury, meter.New(budget))
	require.NoError(f.t, err)
	return done, routed
}

func (f *distFixture) claimable(voter, token capstan.Address) int64 {
	out, err := f.claims.Of(voter)
	require.NoError(f.t, err)
	for _, ta := range out {
		if ta.Token == token {
			return ta.Amount.Int64()
		}
	}
	return 0
}

func TestProcess_StageGating(t *testing.T) {
	f := newDistFixture(t)
	g := f.addGauge("pool")
	f.deposit(g, 1000)

	// same epoch: already settled (genesis closed it)
	_, _, _, err := f.dist.Process(epochLength, f.now, treasury, meter.New(0))
	assert.ErrorIs(t, err, revert.ErrAlreadySettledThisEpoch)

	f.now += epochLength

	// prerequisite stages still open
	_, _, _, err = f.dist.Process(epochLength, f.now, treasury, meter.New(0))
	assert.ErrorIs(t, err, revert.ErrPriorStageNotComplete)

	f.stages.weightsClosed = true
	_, _, _, err = f.dist.Process(epochLength, f.now, treasury, meter.New(0))
	assert.ErrorIs(t, err, revert.ErrPriorStageNotComplete)

	f.stages.chargedEpoch = capstan.EpochStart(epochLength, f.now)
	done, _ := f.process(0)
	assert.True(t, done)

	// idempotence within the epoch
	_, _, _, err = f.dist.Process(epochLength, f.now, treasury, meter.New(0))
	assert.ErrorIs(t, err, revert.ErrAlreadySettledThisEpoch)
}

func TestProcess_ProRata(t *testing.T) {
	f := newDistFixture(t)
	g := f.addGauge("pool")
	f.power.power[alice] = 500
	f.power.power[bob] = 500
	f.deposit(g, 1000)

	// equal power, 10% vs 90% allocation
	_, err := f.ledger.Allocate(alice, alice, g, 1000, epochLength, f.now)
	require.NoError(t, err)
	_, err = f.ledger.Allocate(bob, bob, g, 9000, epochLength, f.now)
	require.NoError(t, err)

	f.turnEpoch()
	done, routed := f.process(0)
	require.True(t, done)
	assert.Empty(t, routed)

	assert.Equal(t, int64(100), f.claimable(alice, tokenA))
	assert.Equal(t, int64(900), f.claimable(bob, tokenA))

	// pool cleared, open set empty
	pool, err := f.ledger.PoolOf(g)
	require.NoError(t, err)
	assert.Empty(t, pool)
	open, err := f.ledger.OpenGauges()
	require.NoError(t, err)
	assert.Empty(t, open)

	// settlement consumed the allocations and freed the budgets
	bps, err := f.ledger.AllocationOf(alice, g)
	require.NoError(t, err)
	assert.Zero(t, bps)
	used, err := f.ledger.UsedBPS(bob)
	require.NoError(t, err)
	assert.Zero(t, used)
	voters, err := f.ledger.VotersOn(g)
	require.NoError(t, err)
	assert.Empty(t, voters)
}

func TestProcess_PowerWeighting(t *testing.T) {
	f := newDistFixture(t)
	g := f.addGauge("pool")
	// same bps, 3x the power -> 3x the share
	f.power.power[alice] = 300
	f.power.power[bob] = 100
	f.deposit(g, 1000)

	_, err := f.ledger.Allocate(alice, alice, g, 5000, epochLength, f.now)
	require.NoError(t, err)
	_, err = f.ledger.Allocate(bob, bob, g, 5000, epochLength, f.now)
	require.NoError(t, err)

	f.turnEpoch()
	done, _ := f.process(0)
	require.True(t, done)

	assert.Equal(t, int64(750), f.claimable(alice, tokenA))
	assert.Equal(t, int64(250), f.claimable(bob, tokenA))
}

func TestProcess_ZeroContributionRoutesToTreasury(t *testing.T) {
	f := newDistFixture(t)
	g := f.addGauge("pool")
	f.deposit(g, 1000)

	f.turnEpoch()
	done, routed := f.process(0)
	require.True(t, done)

	require.Len(t, routed, 1)
	assert.Equal(t, g, routed[0].Gauge)
	assert.Equal(t, int64(1000), routed[0].Amount.Int64())

	b, err := f.toks.BalanceOf(tokenA, treasury)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), b.Int64())

	open, err := f.ledger.OpenGauges()
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestProcess_RemovedAllocationContributesNothing(t *testing.T) {
	f := newDistFixture(t)
	g := f.addGauge("pool")
	f.power.power[alice] = 100
	f.power.power[bob] = 100
	f.deposit(g, 1000)

	_, err := f.ledger.Allocate(alice, alice, g, 5000, epochLength, f.now)
	require.NoError(t, err)
	_, err = f.ledger.Allocate(bob, bob, g, 5000, epochLength, f.now)
	require.NoError(t, err)
	_, err = f.ledger.Remove(bob, bob, g, epochLength, f.now)
	require.NoError(t, err)

	f.turnEpoch()
	done, _ := f.process(0)
	require.True(t, done)

	assert.Equal(t, int64(1000), f.claimable(alice, tokenA))
	assert.Equal(t, int64(0), f.claimable(bob, tokenA))
}

func TestProcess_AllRemovedSweepsToTreasury(t *testing.T) {
	f := newDistFixture(t)
	g := f.addGauge("pool")
	f.power.power[alice] = 100
	f.deposit(g, 1000)

	_, err := f.ledger.Allocate(alice, alice, g, 5000, epochLength, f.now)
	require.NoError(t, err)
	_, err = f.ledger.Remove(alice, alice, g, epochLength, f.now)
	require.NoError(t, err)

	f.turnEpoch()
	done, routed := f.process(0)
	require.True(t, done)
	require.Len(t, routed, 1)

	b, err := f.toks.BalanceOf(tokenA, treasury)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), b.Int64())
}

func TestProcess_DustConservation(t *testing.T) {
	f := newDistFixture(t)
	g := f.addGauge("pool")
	// 1000 split over three voters with prime-ish contributions
	f.power.power[alice] = 7
	f.power.power[bob] = 11
	f.power.power[carol] = 13
	f.deposit(g, 1000)

	for _, v := range []capstan.Address{alice, bob, carol} {
		_, err := f.ledger.Allocate(v, v, g, 10000, epochLength, f.now)
		require.NoError(t, err)
	}

	f.turnEpoch()
	done, _ := f.process(0)
	require.True(t, done)

	credited := f.claimable(alice, tokenA) + f.claimable(bob, tokenA) + f.claimable(carol, tokenA)
	assert.LessOrEqual(t, credited, int64(1000))
	// dust bounded by (numVoters - 1)
	assert.GreaterOrEqual(t, credited, int64(1000-2))

	// credits stay in the vault until claimed; only the dust,
	// balance minus outstanding credits, is unreachable except via rescue
	held, err := f.vault.Balance(tokenA)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), held.Int64())
	dust := held.Int64() - credited
	assert.GreaterOrEqual(t, dust, int64(0))
	assert.LessOrEqual(t, dust, int64(2))
}

func TestProcess_ResumableChunking(t *testing.T) {
	run := func(t *testing.T, budget uint64) (*distFixture, int) {
		f := newDistFixture(t)
		f.power.power[alice] = 100
		f.power.power[bob] = 300

		for i := 0; i < 7; i++ {
			g := f.addGauge("pool")
			f.deposit(g, int64(1000*(i+1)))
			_, err := f.ledger.Allocate(alice, alice, g, 1000, epochLength, f.now)
			require.NoError(t, err)
			_, err = f.ledger.Allocate(bob, bob, g, 1000, epochLength, f.now)
			require.NoError(t, err)
		}

		f.turnEpoch()
		calls := 0
		for {
			calls++
			done, _ := f.process(budget)
			if done {
				break
			}
			require.Less(t, calls, 100, "stage must converge")
		}
		return f, calls
	}

	whole, oneCalls := run(t, 0)
	require.Equal(t, 1, oneCalls)
	chunked, manyCalls := run(t, 2)
	assert.Equal(t, 4, manyCalls) // ceil(7/2)

	// identical credits regardless of chunking
	assert.Equal(t, whole.claimable(alice, tokenA), chunked.claimable(alice, tokenA))
	assert.Equal(t, whole.claimable(bob, tokenA), chunked.claimable(bob, tokenA))
}

func TestProcess_FreezesWritesMidSettlement(t *testing.T) {
	f := newDistFixture(t)
	g1, g2 := f.addGauge("one"), f.addGauge("two")
	f.power.power[alice] = 100
	f.deposit(g1, 100)
	f.deposit(g2, 100)
	_, err := f.ledger.Allocate(alice, alice, g1, 1000, epochLength, f.now)
	require.NoError(t, err)

	f.turnEpoch()
	done, _ := f.process(1) // settles g1 only
	require.False(t, done)

	// the window is frozen until the stage closes
	err = f.ledger.Deposit(briber, g2, []capstan.Address{tokenA}, []*big.Int{big.NewInt(1)}, epochLength, f.now)
	assert.ErrorIs(t, err, revert.ErrSettlementPending)
	_, err = f.ledger.Allocate(alice, alice, g2, 1000, epochLength, f.now)
	assert.ErrorIs(t, err, revert.ErrSettlementPending)

	done, _ = f.process(1)
	require.True(t, done)

	// next window reopens
	f.deposit(g2, 50)
}

func TestProcess_SettlementClearsAllocations(t *testing.T) {
	f := newDistFixture(t)
	g := f.addGauge("pool")
	f.power.power[alice] = 100
	f.deposit(g, 1000)
	_, err := f.ledger.Allocate(alice, alice, g, 2500, epochLength, f.now)
	require.NoError(t, err)

	f.turnEpoch()
	done, _ := f.process(0)
	require.True(t, done)
	assert.Equal(t, int64(1000), f.claimable(alice, tokenA))

	bps, err := f.ledger.AllocationOf(alice, g)
	require.NoError(t, err)
	assert.Zero(t, bps)
	used, err := f.ledger.UsedBPS(alice)
	require.NoError(t, err)
	assert.Zero(t, used)
	voters, err := f.ledger.VotersOn(g)
	require.NoError(t, err)
	assert.Empty(t, voters)

	// new window, new pool: without a fresh allocation the pool has no
	// contributions and routes to the treasury
	f.deposit(g, 500)
	f.turnEpoch()
	done, routed := f.process(0)
	require.True(t, done)
	require.Len(t, routed, 1)
	assert.Equal(t, int64(500), routed[0].Amount.Int64())
	assert.Equal(t, int64(1000), f.claimable(alice, tokenA))

	// re-allocating restores the claim path
	f.deposit(g, 400)
	_, err = f.ledger.Allocate(alice, alice, g, 2500, epochLength, f.now)
	require.NoError(t, err)
	f.turnEpoch()
	done, routed = f.process(0)
	require.True(t, done)
	assert.Empty(t, routed)
	assert.Equal(t, int64(1400), f.claimable(alice, tokenA))
}
