// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package bribe

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capstanfi/capstan/capstan"
	"github.com/capstanfi/capstan/gauge"
	"github.com/capstanfi/capstan/lvldb"
	"github.com/capstanfi/capstan/revert"
	"github.com/capstanfi/capstan/state"
	"github.com/capstanfi/capstan/tokens"
)

const epochLength = capstan.DefaultEpochLength

var (
	tokenA = capstan.Address{0x0a}
	tokenB = capstan.Address{0x0b}
	briber = capstan.Address{0xbb}
	alice  = capstan.Address{0xa1}
	bob    = capstan.Address{0xb2}
	carol  = capstan.Address{0xc3}
)

// fakePower is a static vote-power collaborator.
type fakePower struct {
	power     map[capstan.Address]int64
	delegates map[capstan.Address]capstan.Address
	mainUsed  map[capstan.Address]uint64
}

func (p *fakePower) PowerOf(voter capstan.Address, _ uint64) (*big.Int, error) {
	return big.NewInt(p.power[voter]), nil
}

func (p *fakePower) HasLock(voter capstan.Address) (bool, error) {
	return p.power[voter] > 0, nil
}

func (p *fakePower) IsOwnerOrDelegate(caller, voter capstan.Address) (bool, error) {
	return caller == voter || p.delegates[voter] == caller, nil
}

func (p *fakePower) UsedBPS(voter capstan.Address) (uint64, error) {
	return p.mainUsed[voter], nil
}

type fixture struct {
	t      *testing.T
	st     *state.State
	gauges *gauge.Registry
	toks   *tokens.Ledger
	vault  *tokens.CoreVault
	power  *fakePower
	ledger *Ledger
	now    uint64
}

func newFixture(t *testing.T) *fixture {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	st := state.New(db)

	f := &fixture{
		t:      t,
		st:     st,
		gauges: gauge.New(st),
		toks:   tokens.NewLedger(st),
		power: &fakePower{
			power:     make(map[capstan.Address]int64),
			delegates: make(map[capstan.Address]capstan.Address),
			mainUsed:  make(map[capstan.Address]uint64),
		},
		now: epochLength * 100,
	}
	f.vault = tokens.NewVault(f.toks)
	f.ledger = NewLedger(st, f.gauges, f.power, f.vault)
	require.NoError(t, f.ledger.Initialize(capstan.EpochStart(epochLength, f.now)))

	require.NoError(t, f.ledger.AddToken(tokenA))
	require.NoError(t, f.ledger.AddToken(tokenB))
	require.NoError(t, f.toks.Mint(tokenA, briber, big.NewInt(1_000_000)))
	require.NoError(t, f.toks.Mint(tokenB, briber, big.NewInt(1_000_000)))
	return f
}

func (f *fixture) addGauge(name string) uint64 {
	id, err := f.gauges.Add(name, uint256.NewInt(1e16))
	require.NoError(f.t, err)
	return id
}

func (f *fixture) deposit(gaugeID uint64, amount int64) {
	err := f.ledger.Deposit(briber, gaugeID,
		[]capstan.Address{tokenA}, []*big.Int{big.NewInt(amount)}, epochLength, f.now)
	require.NoError(f.t, err)
}

func TestDeposit_Validations(t *testing.T) {
	f := newFixture(t)
	g := f.addGauge("pool")

	one := []*big.Int{big.NewInt(1)}

	err := f.ledger.Deposit(briber, g, []capstan.Address{tokenA, tokenB}, one, epochLength, f.now)
	assert.ErrorIs(t, err, revert.ErrLengthMismatch)

	err = f.ledger.Deposit(briber, 99, []capstan.Address{tokenA}, one, epochLength, f.now)
	assert.ErrorIs(t, err, revert.ErrNonExistentGauge)

	require.NoError(t, f.gauges.Pause(g))
	err = f.ledger.Deposit(briber, g, []capstan.Address{tokenA}, one, epochLength, f.now)
	assert.ErrorIs(t, err, revert.ErrInactiveGauge)
	require.NoError(t, f.gauges.Unpause(g))

	err = f.ledger.Deposit(briber, g, []capstan.Address{{0xee}}, one, epochLength, f.now)
	assert.ErrorIs(t, err, revert.ErrNonWhitelistedToken)

	err = f.ledger.Deposit(briber, g, []capstan.Address{tokenA}, []*big.Int{big.NewInt(0)}, epochLength, f.now)
	assert.ErrorIs(t, err, revert.ErrInvalidAmount)

	// zero-length input is a no-op success
	require.NoError(t, f.ledger.Deposit(briber, g, nil, nil, epochLength, f.now))

	open, err := f.ledger.OpenGauges()
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestDeposit_Effects(t *testing.T) {
	f := newFixture(t)
	g := f.addGauge("pool")

	err := f.ledger.Deposit(briber, g,
		[]capstan.Address{tokenA, tokenB},
		[]*big.Int{big.NewInt(300), big.NewInt(40)}, epochLength, f.now)
	require.NoError(t, err)
	f.deposit(g, 200) // second deposit merges by sum

	pool, err := f.ledger.PoolOf(g)
	require.NoError(t, err)
	require.Len(t, pool, 2)
	assert.Equal(t, tokenA, pool[0].Token)
	assert.Equal(t, int64(500), pool[0].Amount.Int64())
	assert.Equal(t, int64(40), pool[1].Amount.Int64())

	open, err := f.ledger.OpenGauges()
	require.NoError(t, err)
	assert.Equal(t, []uint64{g}, open)

	life, err := f.ledger.LifetimeOf(briber)
	require.NoError(t, err)
	require.Len(t, life, 2)
	assert.Equal(t, int64(500), life[0].Amount.Int64())

	// value moved into the vault
	held, err := f.vault.Balance(tokenA)
	require.NoError(t, err)
	assert.Equal(t, int64(500), held.Int64())
}

func TestDeposit_SettlementPending(t *testing.T) {
	f := newFixture(t)
	g := f.addGauge("pool")

	// crossing the boundary without settling freezes deposits
	f.now += epochLength
	err := f.ledger.Deposit(briber, g, []capstan.Address{tokenA}, []*big.Int{big.NewInt(1)}, epochLength, f.now)
	assert.ErrorIs(t, err, revert.ErrSettlementPending)
}

func TestWhitelist_AddRemove(t *testing.T) {
	f := newFixture(t)

	list, err := f.ledger.Whitelist()
	require.NoError(t, err)
	assert.Equal(t, []capstan.Address{tokenA, tokenB}, list)

	assert.ErrorIs(t, f.ledger.AddToken(tokenA), revert.ErrAlreadyWhitelisted)
	assert.ErrorIs(t, f.ledger.RemoveToken(capstan.Address{0xee}), revert.ErrNonWhitelistedToken)

	require.NoError(t, f.ledger.RemoveToken(tokenA))
	listed, err := f.ledger.IsWhitelisted(tokenA)
	require.NoError(t, err)
	assert.False(t, listed)

	list, err = f.ledger.Whitelist()
	require.NoError(t, err)
	assert.Equal(t, []capstan.Address{tokenB}, list)
}

func TestAllocate_Checks(t *testing.T) {
	f := newFixture(t)
	g := f.addGauge("pool")
	f.power.power[alice] = 100

	alloc := func(caller, voter capstan.Address, gaugeID, bps uint64) error {
		_, err := f.ledger.Allocate(caller, voter, gaugeID, bps, epochLength, f.now)
		return err
	}

	assert.ErrorIs(t, alloc(bob, alice, g, 100), revert.ErrNotOwnerNorDelegate)
	assert.ErrorIs(t, alloc(bob, bob, g, 100), revert.ErrVoterHasNoLocks)
	assert.ErrorIs(t, alloc(alice, alice, g, 0), revert.ErrInvalidBPS)
	assert.ErrorIs(t, alloc(alice, alice, g, 10001), revert.ErrInvalidBPS)
	assert.ErrorIs(t, alloc(alice, alice, g, 100), revert.ErrNoBribesForSelectedGauge)

	f.deposit(g, 1000)
	require.NoError(t, f.gauges.Pause(g))
	assert.ErrorIs(t, alloc(alice, alice, g, 100), revert.ErrInactiveGauge)
	require.NoError(t, f.gauges.Unpause(g))

	// shared budget with the main vote
	f.power.mainUsed[alice] = 4000
	assert.ErrorIs(t, alloc(alice, alice, g, 6001), revert.ErrBudgetExceeded)
	require.NoError(t, alloc(alice, alice, g, 6000))

	used, err := f.ledger.UsedBPS(alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(6000), used)

	// upsert replaces, not adds
	require.NoError(t, alloc(alice, alice, g, 5000))
	used, err = f.ledger.UsedBPS(alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), used)

	// a delegate may act for the voter
	f.power.delegates[alice] = carol
	prev, err := f.ledger.Allocate(carol, alice, g, 4000, epochLength, f.now)
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), prev)
}

func TestAllocate_Indexes(t *testing.T) {
	f := newFixture(t)
	g1, g2 := f.addGauge("one"), f.addGauge("two")
	f.power.power[alice] = 100
	f.power.power[bob] = 100
	f.deposit(g1, 100)
	f.deposit(g2, 100)

	_, err := f.ledger.Allocate(alice, alice, g1, 1000, epochLength, f.now)
	require.NoError(t, err)
	_, err = f.ledger.Allocate(alice, alice, g2, 2000, epochLength, f.now)
	require.NoError(t, err)
	_, err = f.ledger.Allocate(bob, bob, g1, 3000, epochLength, f.now)
	require.NoError(t, err)

	allocs, err := f.ledger.AllocationsOf(alice)
	require.NoError(t, err)
	assert.Equal(t, []*Allocation{{Gauge: g1, BPS: 1000}, {Gauge: g2, BPS: 2000}}, allocs)

	voters, err := f.ledger.VotersOn(g1)
	require.NoError(t, err)
	assert.Equal(t, []capstan.Address{alice, bob}, voters)

	// removal swaps the tail into the gap in both indexes
	prev, err := f.ledger.Remove(alice, alice, g1, epochLength, f.now)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), prev)

	allocs, err = f.ledger.AllocationsOf(alice)
	require.NoError(t, err)
	assert.Equal(t, []*Allocation{{Gauge: g2, BPS: 2000}}, allocs)

	voters, err = f.ledger.VotersOn(g1)
	require.NoError(t, err)
	assert.Equal(t, []capstan.Address{bob}, voters)

	used, err := f.ledger.UsedBPS(alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), used)

	_, err = f.ledger.Remove(alice, alice, g1, epochLength, f.now)
	assert.ErrorIs(t, err, revert.ErrAllocationNotFound)
}

func TestRemove_PausedGaugeStillRemovable(t *testing.T) {
	f := newFixture(t)
	g := f.addGauge("pool")
	f.power.power[alice] = 100
	f.deposit(g, 100)

	_, err := f.ledger.Allocate(alice, alice, g, 1000, epochLength, f.now)
	require.NoError(t, err)

	require.NoError(t, f.gauges.Pause(g))
	_, err = f.ledger.Remove(alice, alice, g, epochLength, f.now)
	require.NoError(t, err)
}
