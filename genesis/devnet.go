// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package genesis

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common/math"

	"github.com/capstanfi/capstan/capstan"
)

// Well-known devnet parties.
var (
	DevAdmin    = capstan.MustParseAddress("0xf077b491b355e64048ce21e3a6fc4751eeea77fa")
	DevTreasury = capstan.MustParseAddress("0x435933c8064b4ae76be665428e0307ef2ccfbd68")
	DevSource   = capstan.MustParseAddress("0x0f872421dc479f3c11edd89512731814d0598db5")
	DevToken    = capstan.MustParseAddress("0xf370940abdbd2583bc80bfc19d19bc216c88ccf0")
	DevBriber   = capstan.MustParseAddress("0x99602e4bbc0503b8ff4432bb1857f916c3653b85")
)

// DevVoters is the static voter population served by the solo source.
var DevVoters = []capstan.Address{
	capstan.MustParseAddress("0x61e7d0c2b25706be3485980f39a3a994a8207acf"),
	capstan.MustParseAddress("0x361277d1b27504f36a3b33d3a52d1f8270331b8c"),
	capstan.MustParseAddress("0xd7f75a0a1287ab2916848909c8531a0ea9412800"),
}

func dec(v int64) *math.HexOrDecimal256 {
	return (*math.HexOrDecimal256)(big.NewInt(v))
}

// NewDevnet creates the local sandbox genesis: a whitelisted dev token,
// two gauges, one vote source and a static voter population.
func NewDevnet(launchTime uint64) *Genesis {
	gen := &CustomGenesis{
		LaunchTime:  launchTime,
		EpochLength: capstan.DefaultEpochLength,
		Admin:       DevAdmin,
		Treasury:    DevTreasury,
		Tokens:      []capstan.Address{DevToken},
		Gauges: []Gauge{
			{Name: "stable-pool", Rate: dec(1e16)},
			{Name: "volatile-pool", Rate: dec(4e16)},
		},
		Sources: []capstan.Address{DevSource},
		Accounts: []Account{
			{Address: DevBriber, Token: DevToken, Balance: dec(1_000_000_000)},
		},
		Voters: []Voter{
			// the first voter keeps budget headroom so devnet
			// bribe allocations are possible out of the box
			{Address: DevVoters[0], Power: dec(1000), Votes: []VoterVote{{Gauge: 1, BPS: 3000}, {Gauge: 2, BPS: 1000}}},
			{Address: DevVoters[1], Power: dec(3000), Votes: []VoterVote{{Gauge: 2, BPS: 10000}}},
			{Address: DevVoters[2], Power: dec(500), Votes: []VoterVote{{Gauge: 1, BPS: 2500}}},
		},
	}

	g, err := NewCustomNet(gen)
	if err != nil {
		// the devnet preset is fixed; a failure here is a programming error
		panic(err)
	}
	g.name = "devnet"
	return g
}
