// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package genesis

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/holiman/uint256"

	"github.com/capstanfi/capstan/bribe"
	"github.com/capstanfi/capstan/capstan"
	"github.com/capstanfi/capstan/gauge"
	"github.com/capstanfi/capstan/params"
	"github.com/capstanfi/capstan/premium"
	"github.com/capstanfi/capstan/state"
	"github.com/capstanfi/capstan/tokens"
	"github.com/capstanfi/capstan/vote"
)

// CustomGenesis is a user customized genesis.
type CustomGenesis struct {
	LaunchTime  uint64            `json:"launchTime"`
	EpochLength uint64            `json:"epochLength"`
	Admin       capstan.Address   `json:"admin"`
	Treasury    capstan.Address   `json:"treasury"`
	Budgets     *Budgets          `json:"budgets"`
	Tokens      []capstan.Address `json:"tokens"`
	Gauges      []Gauge           `json:"gauges"`
	Sources     []capstan.Address `json:"sources"`
	Accounts    []Account         `json:"accounts"`
	Voters      []Voter           `json:"voters"`
}

// Budgets overrides the per-call work budgets of the settlement stages.
// Zero means unbounded.
type Budgets struct {
	Weight  uint64 `json:"weight"`
	Premium uint64 `json:"premium"`
	Bribe   uint64 `json:"bribe"`
}

// Gauge is a gauge registered at genesis.
type Gauge struct {
	Name string                `json:"name"`
	Rate *math.HexOrDecimal256 `json:"rate"`
}

// Account is a dev token balance minted at genesis.
type Account struct {
	Address capstan.Address       `json:"address"`
	Token   capstan.Address       `json:"token"`
	Balance *math.HexOrDecimal256 `json:"balance"`
}

// Voter is a dev voter served by the solo vote source. It is carried
// in the genesis content but lives outside ledger state.
type Voter struct {
	Address  capstan.Address       `json:"address"`
	Power    *math.HexOrDecimal256 `json:"power"`
	Delegate *capstan.Address      `json:"delegate"`
	Votes    []VoterVote           `json:"votes"`
}

// VoterVote is a dev voter's main-protocol gauge vote.
type VoterVote struct {
	Gauge uint64 `json:"gauge"`
	BPS   uint64 `json:"bps"`
}

// NewCustomNet creates a custom network genesis.
func NewCustomNet(gen *CustomGenesis) (*Genesis, error) {
	if gen.LaunchTime == 0 {
		return nil, errors.New("launchTime must not be 0")
	}
	if gen.EpochLength == 0 {
		return nil, errors.New("epochLength must not be 0")
	}
	if gen.Admin.IsZero() {
		return nil, errors.New("admin must be set")
	}
	if gen.Treasury.IsZero() {
		return nil, errors.New("treasury must be set")
	}

	builder := new(Builder).
		Timestamp(gen.LaunchTime).
		State(func(st *state.State) error {
			ps := params.New(st)
			if err := ps.Set(capstan.KeyEpochLength, new(big.Int).SetUint64(gen.EpochLength)); err != nil {
				return err
			}
			if err := ps.SetAddress(capstan.KeyAdmin, gen.Admin); err != nil {
				return err
			}
			if err := ps.SetAddress(capstan.KeyTreasury, gen.Treasury); err != nil {
				return err
			}
			if gen.Budgets != nil {
				for _, b := range []struct {
					key capstan.Bytes32
					val uint64
				}{
					{capstan.KeyWeightBatch, gen.Budgets.Weight},
					{capstan.KeyPremiumBatch, gen.Budgets.Premium},
					{capstan.KeyBribeBatch, gen.Budgets.Bribe},
				} {
					if err := ps.Set(b.key, new(big.Int).SetUint64(b.val)); err != nil {
						return err
					}
				}
			}

			gauges := gauge.New(st)
			for _, g := range gen.Gauges {
				if g.Name == "" {
					return errors.New("gauge name must be set")
				}
				if g.Rate == nil {
					return fmt.Errorf("%s: rate must be set", g.Name)
				}
				rate, overflow := uint256.FromBig((*big.Int)(g.Rate))
				if overflow {
					return fmt.Errorf("%s: rate out of range", g.Name)
				}
				if _, err := gauges.Add(g.Name, rate); err != nil {
					return err
				}
			}

			bribes := bribe.NewLedger(st, gauges, nil, nil)
			for _, token := range gen.Tokens {
				if err := bribes.AddToken(token); err != nil {
					return err
				}
			}

			weights := vote.NewAggregator(st, gauges, nil)
			for _, source := range gen.Sources {
				if err := weights.Sources().Register(source); err != nil {
					return err
				}
			}

			ledger := tokens.NewLedger(st)
			for _, a := range gen.Accounts {
				if a.Balance == nil {
					return fmt.Errorf("%s: balance must be set", a.Address)
				}
				balance := (*big.Int)(a.Balance)
				if balance.Sign() < 1 {
					return fmt.Errorf("%s: balance must be a non-zero integer", a.Address)
				}
				if err := ledger.Mint(a.Token, a.Address, balance); err != nil {
					return err
				}
			}

			// the launch epoch starts with every settlement stage closed
			epochStart := capstan.EpochStart(gen.EpochLength, gen.LaunchTime)
			if err := weights.Initialize(epochStart); err != nil {
				return err
			}
			if err := premium.New(st, gauges, weights).Initialize(epochStart); err != nil {
				return err
			}
			return bribes.Initialize(epochStart)
		})

	normalized, err := json.Marshal(gen)
	if err != nil {
		return nil, err
	}

	return &Genesis{
		builder: builder,
		id:      capstan.Blake2b(normalized),
		name:    "customnet",
		gen:     gen,
	}, nil
}
