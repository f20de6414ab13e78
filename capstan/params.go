// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package capstan

import "github.com/holiman/uint256"

// Constants of the incentive settlement protocol.
const (
	// FullBPS is the vote power budget of a voter, in basis points.
	FullBPS uint64 = 10000

	// DefaultEpochLength is one week, in seconds.
	DefaultEpochLength uint64 = 7 * 24 * 3600

	// Default per-call work budgets of the settlement stages.
	// A budget of zero lifts the bound.
	DefaultWeightBatch  uint64 = 500
	DefaultPremiumBatch uint64 = 200
	DefaultBribeBatch   uint64 = 50
)

// WeightScale is the denominator of 1e18 fixed point gauge weights and rates.
var WeightScale = uint256.NewInt(1e18)

// Keys of the param store.
var (
	KeyAdmin        = BytesToBytes32([]byte("admin"))
	KeyTreasury     = BytesToBytes32([]byte("treasury"))
	KeyEpochLength  = BytesToBytes32([]byte("epoch-length"))
	KeyWeightBatch  = BytesToBytes32([]byte("weight-batch"))
	KeyPremiumBatch = BytesToBytes32([]byte("premium-batch"))
	KeyBribeBatch   = BytesToBytes32([]byte("bribe-batch"))
)

// Ledger namespaces. Each subsystem keeps its storage under a
// well-known address whose trailing bytes spell its name.
var (
	// CoreAddress is the holder account of the settlement core itself.
	// Deposited bribes sit under it in the token ledger until claimed.
	CoreAddress = MustParseAddress("0x000000000000000000000000004361707374616e") // "Capstan"

	GaugesAddress   = MustParseAddress("0x0000000000000000000000000000476175676573") // "Gauges"
	VotesAddress    = MustParseAddress("0x000000000000000000000000000000566f746573") // "Votes"
	BribesAddress   = MustParseAddress("0x0000000000000000000000000000427269626573") // "Bribes"
	ClaimsAddress   = MustParseAddress("0x0000000000000000000000000000436c61696d73") // "Claims"
	ParamsAddress   = MustParseAddress("0x0000000000000000000000000000506172616d73") // "Params"
	TokensAddress   = MustParseAddress("0x0000000000000000000000000000546f6b656e73") // "Tokens"
	PremiumsAddress = MustParseAddress("0x0000000000000000000000005072656d69756d73") // "Premiums"
)
