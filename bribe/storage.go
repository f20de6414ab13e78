// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package bribe

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/capstanfi/capstan/capstan"
	"github.com/capstanfi/capstan/slot"
	"github.com/capstanfi/capstan/state"
)

// token whitelist
var (
	slotWhitelistCount = slot.NameToSlot("whitelist-counter")
	slotWhitelistAt    = slot.NameToSlot("whitelist-list")
	slotWhitelistPos   = slot.NameToSlot("whitelist-position")
)

// per-window pools and the open-bribe gauge set
var (
	slotPools        = slot.NameToSlot("pools")
	slotPoolTokCount = slot.NameToSlot("pools-token-counter")
	slotPoolTokAt    = slot.NameToSlot("pools-token-list")
	slotPoolTokSeen  = slot.NameToSlot("pools-token-seen")
	slotOpenCount    = slot.NameToSlot("open-counter")
	slotOpenAt       = slot.NameToSlot("open-list")
	slotOpenFlag     = slot.NameToSlot("open-flags")
)

// lifetime briber stats
var (
	slotLifetime         = slot.NameToSlot("lifetime")
	slotLifetimeTokCount = slot.NameToSlot("lifetime-token-counter")
	slotLifetimeTokAt    = slot.NameToSlot("lifetime-token-list")
)

// allocations with their by-voter and by-gauge indexes
var (
	slotAllocs     = slot.NameToSlot("allocations")
	slotVoterCount = slot.NameToSlot("allocations-voter-counter")
	slotVoterAt    = slot.NameToSlot("allocations-voter-list")
	slotVoterPos   = slot.NameToSlot("allocations-voter-position")
	slotGaugeCount = slot.NameToSlot("allocations-gauge-counter")
	slotGaugeAt    = slot.NameToSlot("allocations-gauge-list")
	slotGaugePos   = slot.NameToSlot("allocations-gauge-position")
	slotUsedBPS    = slot.NameToSlot("allocations-used-bps")
)

// distributor cursor
var slotProcessing = slot.NameToSlot("distribution-processing")

// ProcessingState is the resumable cursor of the distributor stage.
type ProcessingState struct {
	LastEpoch uint64
	WorkEpoch uint64
	Cursor    uint64 // next open-set position to settle
}

// storage is the root storage of the bribe subsystem. The allocation
// records form an arena with a by-voter and a by-gauge index kept in
// sync on every write and remove.
type storage struct {
	whitelistCount *slot.Value[uint64]
	whitelistAt    *slot.Mapping[slot.U64, capstan.Address]
	whitelistPos   *slot.Mapping[capstan.Address, uint64] // index+1, 0 = absent

	pools        *slot.Mapping[slot.Pair, *big.Int] // (gauge, token) -> open pool
	poolTokCount *slot.Mapping[slot.U64, uint64]
	poolTokAt    *slot.Mapping[slot.Pair, capstan.Address] // (gauge, idx)
	poolTokSeen  *slot.Mapping[slot.Pair, bool]            // (gauge, token)

	openCount *slot.Value[uint64]
	openAt    *slot.Mapping[slot.U64, uint64]
	openFlag  *slot.Mapping[slot.U64, bool]

	lifetime         *slot.Mapping[slot.Pair, *big.Int] // (briber, token), append-only
	lifetimeTokCount *slot.Mapping[capstan.Address, uint64]
	lifetimeTokAt    *slot.Mapping[slot.Pair, capstan.Address] // (briber, idx)

	allocs     *slot.Mapping[slot.Pair, uint64] // (voter, gauge) -> bps, 0 = absent
	voterCount *slot.Mapping[capstan.Address, uint64]
	voterAt    *slot.Mapping[slot.Pair, uint64] // (voter, idx) -> gauge
	voterPos   *slot.Mapping[slot.Pair, uint64] // (voter, gauge) -> idx+1
	gaugeCount *slot.Mapping[slot.U64, uint64]
	gaugeAt    *slot.Mapping[slot.Pair, capstan.Address] // (gauge, idx) -> voter
	gaugePos   *slot.Mapping[slot.Pair, uint64]          // (gauge, voter) -> idx+1
	usedBPS    *slot.Mapping[capstan.Address, uint64]

	processing *slot.Value[*ProcessingState]
}

func newStorage(st *state.State) *storage {
	ctx := slot.NewContext(capstan.BribesAddress, st)
	return &storage{
		whitelistCount: slot.NewValue[uint64](ctx, slotWhitelistCount),
		whitelistAt:    slot.NewMapping[slot.U64, capstan.Address](ctx, slotWhitelistAt),
		whitelistPos:   slot.NewMapping[capstan.Address, uint64](ctx, slotWhitelistPos),

		pools:        slot.NewMapping[slot.Pair, *big.Int](ctx, slotPools),
		poolTokCount: slot.NewMapping[slot.U64, uint64](ctx, slotPoolTokCount),
		poolTokAt:    slot.NewMapping[slot.Pair, capstan.Address](ctx, slotPoolTokAt),
		poolTokSeen:  slot.NewMapping[slot.Pair, bool](ctx, slotPoolTokSeen),

		openCount: slot.NewValue[uint64](ctx, slotOpenCount),
		openAt:    slot.NewMapping[slot.U64, uint64](ctx, slotOpenAt),
		openFlag:  slot.NewMapping[slot.U64, bool](ctx, slotOpenFlag),

		lifetime:         slot.NewMapping[slot.Pair, *big.Int](ctx, slotLifetime),
		lifetimeTokCount: slot.NewMapping[capstan.Address, uint64](ctx, slotLifetimeTokCount),
		lifetimeTokAt:    slot.NewMapping[slot.Pair, capstan.Address](ctx, slotLifetimeTokAt),

		allocs:     slot.NewMapping[slot.Pair, uint64](ctx, slotAllocs),
		voterCount: slot.NewMapping[capstan.Address, uint64](ctx, slotVoterCount),
		voterAt:    slot.NewMapping[slot.Pair, uint64](ctx, slotVoterAt),
		voterPos:   slot.NewMapping[slot.Pair, uint64](ctx, slotVoterPos),
		gaugeCount: slot.NewMapping[slot.U64, uint64](ctx, slotGaugeCount),
		gaugeAt:    slot.NewMapping[slot.Pair, capstan.Address](ctx, slotGaugeAt),
		gaugePos:   slot.NewMapping[slot.Pair, uint64](ctx, slotGaugePos),
		usedBPS:    slot.NewMapping[capstan.Address, uint64](ctx, slotUsedBPS),

		processing: slot.NewValue[*ProcessingState](ctx, slotProcessing),
	}
}

func (s *storage) getProcessing() (*ProcessingState, error) {
	ps, err := s.processing.Get()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get processing state")
	}
	return ps, nil
}

func (s *storage) setProcessing(ps *ProcessingState) error {
	return errors.Wrap(s.processing.Set(ps), "failed to set processing state")
}

// addOpen registers the gauge in the open set, once per window.
func (s *storage) addOpen(gaugeID uint64) error {
	flagged, err := s.openFlag.Get(slot.U64(gaugeID))
	if err != nil {
		return errors.Wrap(err, "failed to get open flag")
	}
	if flagged {
		return nil
	}
	n, err := s.openCount.Get()
	if err != nil {
		return errors.Wrap(err, "failed to get open counter")
	}
	if err := s.openAt.Set(slot.U64(n), gaugeID); err != nil {
		return errors.Wrap(err, "failed to set open list")
	}
	if err := s.openCount.Set(n + 1); err != nil {
		return errors.Wrap(err, "failed to set open counter")
	}
	return errors.Wrap(s.openFlag.Set(slot.U64(gaugeID), true), "failed to set open flag")
}

func (s *storage) isOpen(gaugeID uint64) (bool, error) {
	flagged, err := s.openFlag.Get(slot.U64(gaugeID))
	return flagged, errors.Wrap(err, "failed to get open flag")
}

// addPool grows the (gauge, token) pool, registering the token in the
// gauge's pool token list on first sight this window.
func (s *storage) addPool(gaugeID uint64, token capstan.Address, amount *big.Int) error {
	key := slot.Pair{A: slot.U64(gaugeID), B: token}
	p, err := s.pools.Get(key)
	if err != nil {
		return errors.Wrap(err, "failed to get pool")
	}
	if err := s.pools.Set(key, p.Add(p, amount)); err != nil {
		return errors.Wrap(err, "failed to set pool")
	}

	seen, err := s.poolTokSeen.Get(key)
	if err != nil {
		return errors.Wrap(err, "failed to get pool token flag")
	}
	if seen {
		return nil
	}
	n, err := s.poolTokCount.Get(slot.U64(gaugeID))
	if err != nil {
		return errors.Wrap(err, "failed to get pool token counter")
	}
	if err := s.poolTokAt.Set(slot.Pair{A: slot.U64(gaugeID), B: slot.U64(n)}, token); err != nil {
		return errors.Wrap(err, "failed to set pool token list")
	}
	if err := s.poolTokCount.Set(slot.U64(gaugeID), n+1); err != nil {
		return errors.Wrap(err, "failed to set pool token counter")
	}
	return errors.Wrap(s.poolTokSeen.Set(key, true), "failed to set pool token flag")
}

// poolTokens returns the gauge's open pool as (token, amount) rows, in
// deposit order.
func (s *storage) poolTokens(gaugeID uint64) ([]capstan.Address, []*big.Int, error) {
	n, err := s.poolTokCount.Get(slot.U64(gaugeID))
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to get pool token counter")
	}
	tokens := make([]capstan.Address, 0, n)
	amounts := make([]*big.Int, 0, n)
	for i := uint64(0); i < n; i++ {
		token, err := s.poolTokAt.Get(slot.Pair{A: slot.U64(gaugeID), B: slot.U64(i)})
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to get pool token list")
		}
		amount, err := s.pools.Get(slot.Pair{A: slot.U64(gaugeID), B: token})
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to get pool")
		}
		tokens = append(tokens, token)
		amounts = append(amounts, amount)
	}
	return tokens, amounts, nil
}

// clearPool consumes the gauge's pool rows and token list.
func (s *storage) clearPool(gaugeID uint64) error {
	n, err := s.poolTokCount.Get(slot.U64(gaugeID))
	if err != nil {
		return errors.Wrap(err, "failed to get pool token counter")
	}
	for i := uint64(0); i < n; i++ {
		key := slot.Pair{A: slot.U64(gaugeID), B: slot.U64(i)}
		token, err := s.poolTokAt.Get(key)
		if err != nil {
			return errors.Wrap(err, "failed to get pool token list")
		}
		s.pools.Delete(slot.Pair{A: slot.U64(gaugeID), B: token})
		s.poolTokSeen.Delete(slot.Pair{A: slot.U64(gaugeID), B: token})
		s.poolTokAt.Delete(key)
	}
	s.poolTokCount.Delete(slot.U64(gaugeID))
	return nil
}

// addLifetime grows the briber's lifetime total of the token.
func (s *storage) addLifetime(briber, token capstan.Address, amount *big.Int) error {
	key := slot.Pair{A: briber, B: token}
	total, err := s.lifetime.Get(key)
	if err != nil {
		return errors.Wrap(err, "failed to get lifetime total")
	}
	first := total.Sign() == 0
	if err := s.lifetime.Set(key, total.Add(total, amount)); err != nil {
		return errors.Wrap(err, "failed to set lifetime total")
	}
	if !first {
		return nil
	}
	n, err := s.lifetimeTokCount.Get(briber)
	if err != nil {
		return errors.Wrap(err, "failed to get lifetime token counter")
	}
	if err := s.lifetimeTokAt.Set(slot.Pair{A: briber, B: slot.U64(n)}, token); err != nil {
		return errors.Wrap(err, "failed to set lifetime token list")
	}
	return errors.Wrap(s.lifetimeTokCount.Set(briber, n+1), "failed to set lifetime token counter")
}

// getAlloc returns the voter's allocation bps on the gauge, 0 if none.
func (s *storage) getAlloc(voter capstan.Address, gaugeID uint64) (uint64, error) {
	bps, err := s.allocs.Get(slot.Pair{A: voter, B: slot.U64(gaugeID)})
	return bps, errors.Wrap(err, "failed to get allocation")
}

// putAlloc upserts the allocation and keeps both indexes and the
// voter's used-bps sum in sync. It returns the previous bps, 0 when
// this is a first write.
func (s *storage) putAlloc(voter capstan.Address, gaugeID, bps uint64) (uint64, error) {
	prev, err := s.getAlloc(voter, gaugeID)
	if err != nil {
		return 0, err
	}
	if err := s.allocs.Set(slot.Pair{A: voter, B: slot.U64(gaugeID)}, bps); err != nil {
		return 0, errors.Wrap(err, "failed to set allocation")
	}

	used, err := s.getUsedBPS(voter)
	if err != nil {
		return 0, err
	}
	if err := s.usedBPS.Set(voter, used-prev+bps); err != nil {
		return 0, errors.Wrap(err, "failed to set used bps")
	}
	if prev != 0 {
		return prev, nil
	}

	// first write: append to both indexes
	vn, err := s.voterCount.Get(voter)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get voter index counter")
	}
	if err := s.voterAt.Set(slot.Pair{A: voter, B: slot.U64(vn)}, gaugeID); err != nil {
		return 0, errors.Wrap(err, "failed to set voter index")
	}
	if err := s.voterPos.Set(slot.Pair{A: voter, B: slot.U64(gaugeID)}, vn+1); err != nil {
		return 0, errors.Wrap(err, "failed to set voter index position")
	}
	if err := s.voterCount.Set(voter, vn+1); err != nil {
		return 0, errors.Wrap(err, "failed to set voter index counter")
	}

	gn, err := s.gaugeCount.Get(slot.U64(gaugeID))
	if err != nil {
		return 0, errors.Wrap(err, "failed to get gauge index counter")
	}
	if err := s.gaugeAt.Set(slot.Pair{A: slot.U64(gaugeID), B: slot.U64(gn)}, voter); err != nil {
		return 0, errors.Wrap(err, "failed to set gauge index")
	}
	if err := s.gaugePos.Set(slot.Pair{A: slot.U64(gaugeID), B: voter}, gn+1); err != nil {
		return 0, errors.Wrap(err, "failed to set gauge index position")
	}
	if err := s.gaugeCount.Set(slot.U64(gaugeID), gn+1); err != nil {
		return 0, errors.Wrap(err, "failed to set gauge index counter")
	}
	return 0, nil
}

// dropAlloc removes the allocation and swap-removes it from both
// indexes. It returns the removed bps.
func (s *storage) dropAlloc(voter capstan.Address, gaugeID uint64) (uint64, error) {
	prev, err := s.getAlloc(voter, gaugeID)
	if err != nil {
		return 0, err
	}
	if prev == 0 {
		return 0, nil
	}
	s.allocs.Delete(slot.Pair{A: voter, B: slot.U64(gaugeID)})

	used, err := s.getUsedBPS(voter)
	if err != nil {
		return 0, err
	}
	if used == prev {
		s.usedBPS.Delete(voter)
	} else if err := s.usedBPS.Set(voter, used-prev); err != nil {
		return 0, errors.Wrap(err, "failed to set used bps")
	}

	// by-voter index: swap the tail gauge into the gap
	vp, err := s.voterPos.Get(slot.Pair{A: voter, B: slot.U64(gaugeID)})
	if err != nil {
		return 0, errors.Wrap(err, "failed to get voter index position")
	}
	vn, err := s.voterCount.Get(voter)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get voter index counter")
	}
	idx, last := vp-1, vn-1
	if idx != last {
		tail, err := s.voterAt.Get(slot.Pair{A: voter, B: slot.U64(last)})
		if err != nil {
			return 0, errors.Wrap(err, "failed to get voter index")
		}
		if err := s.voterAt.Set(slot.Pair{A: voter, B: slot.U64(idx)}, tail); err != nil {
			return 0, errors.Wrap(err, "failed to set voter index")
		}
		if err := s.voterPos.Set(slot.Pair{A: voter, B: slot.U64(tail)}, idx+1); err != nil {
			return 0, errors.Wrap(err, "failed to set voter index position")
		}
	}
	s.voterAt.Delete(slot.Pair{A: voter, B: slot.U64(last)})
	s.voterPos.Delete(slot.Pair{A: voter, B: slot.U64(gaugeID)})
	if last == 0 {
		s.voterCount.Delete(voter)
	} else if err := s.voterCount.Set(voter, last); err != nil {
		return 0, errors.Wrap(err, "failed to set voter index counter")
	}

	// by-gauge index: same swap-remove
	gp, err := s.gaugePos.Get(slot.Pair{A: slot.U64(gaugeID), B: voter})
	if err != nil {
		return 0, errors.Wrap(err, "failed to get gauge index position")
	}
	gn, err := s.gaugeCount.Get(slot.U64(gaugeID))
	if err != nil {
		return 0, errors.Wrap(err, "failed to get gauge index counter")
	}
	idx, last = gp-1, gn-1
	if idx != last {
		tail, err := s.gaugeAt.Get(slot.Pair{A: slot.U64(gaugeID), B: slot.U64(last)})
		if err != nil {
			return 0, errors.Wrap(err, "failed to get gauge index")
		}
		if err := s.gaugeAt.Set(slot.Pair{A: slot.U64(gaugeID), B: slot.U64(idx)}, tail); err != nil {
			return 0, errors.Wrap(err, "failed to set gauge index")
		}
		if err := s.gaugePos.Set(slot.Pair{A: slot.U64(gaugeID), B: tail}, idx+1); err != nil {
			return 0, errors.Wrap(err, "failed to set gauge index position")
		}
	}
	s.gaugeAt.Delete(slot.Pair{A: slot.U64(gaugeID), B: slot.U64(last)})
	s.gaugePos.Delete(slot.Pair{A: slot.U64(gaugeID), B: voter})
	if last == 0 {
		s.gaugeCount.Delete(slot.U64(gaugeID))
	} else if err := s.gaugeCount.Set(slot.U64(gaugeID), last); err != nil {
		return 0, errors.Wrap(err, "failed to set gauge index counter")
	}

	return prev, nil
}

func (s *storage) getUsedBPS(voter capstan.Address) (uint64, error) {
	used, err := s.usedBPS.Get(voter)
	return used, errors.Wrap(err, "failed to get used bps")
}

// votersOn returns the voters holding an allocation on the gauge, in
// index order.
func (s *storage) votersOn(gaugeID uint64) ([]capstan.Address, error) {
	n, err := s.gaugeCount.Get(slot.U64(gaugeID))
	if err != nil {
		return nil, errors.Wrap(err, "failed to get gauge index counter")
	}
	out := make([]capstan.Address, 0, n)
	for i := uint64(0); i < n; i++ {
		voter, err := s.gaugeAt.Get(slot.Pair{A: slot.U64(gaugeID), B: slot.U64(i)})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get gauge index")
		}
		out = append(out, voter)
	}
	return out, nil
}
