// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package event defines the protocol events emitted by the engine and
// the flat row projection consumed by the event index and subscribers.
package event

import (
	"math/big"

	"github.com/holiman/uint256"

	"github.com/capstanfi/capstan/capstan"
)

// Event is a protocol event.
type Event interface {
	Name() string
	Row() Row
}

// Row is the flat projection of an event. Unused fields stay zero.
// Seq, Epoch and At are stamped by the engine at commit time.
type Row struct {
	Seq     uint64          `json:"seq"`
	At      uint64          `json:"at"`
	Epoch   uint64          `json:"epoch"`
	Name    string          `json:"name"`
	Gauge   uint64          `json:"gauge,omitempty"`
	Actor   capstan.Address `json:"actor,omitempty"`
	Subject capstan.Address `json:"subject,omitempty"`
	Token   capstan.Address `json:"token,omitempty"`
	Amount  *big.Int        `json:"amount,omitempty"`
	Aux     uint64          `json:"aux,omitempty"`
	Label   string          `json:"label,omitempty"`
}

// Sink receives finalized event rows.
type Sink interface {
	Post(rows []Row) error
}

// GaugeAdded signals a new gauge in the registry.
type GaugeAdded struct {
	ID    uint64
	Gauge string
	Rate  *uint256.Int
	Admin capstan.Address
}

func (e *GaugeAdded) Name() string { return "gauge.added" }

func (e *GaugeAdded) Row() Row {
	return Row{Name: e.Name(), Gauge: e.ID, Actor: e.Admin, Amount: e.Rate.ToBig(), Label: e.Gauge}
}

// GaugePaused signals a gauge leaving the active set.
type GaugePaused struct {
	ID    uint64
	Admin capstan.Address
}

func (e *GaugePaused) Name() string { return "gauge.paused" }

func (e *GaugePaused) Row() Row {
	return Row{Name: e.Name(), Gauge: e.ID, Actor: e.Admin}
}

// GaugeUnpaused signals a gauge rejoining the active set.
type GaugeUnpaused struct {
	ID    uint64
	Admin capstan.Address
}

func (e *GaugeUnpaused) Name() string { return "gauge.unpaused" }

func (e *GaugeUnpaused) Row() Row {
	return Row{Name: e.Name(), Gauge: e.ID, Actor: e.Admin}
}

// GaugeRate signals a rate parameter change.
type GaugeRate struct {
	ID    uint64
	Rate  *uint256.Int
	Admin capstan.Address
}

func (e *GaugeRate) Name() string { return "gauge.rate" }

func (e *GaugeRate) Row() Row {
	return Row{Name: e.Name(), Gauge: e.ID, Actor: e.Admin, Amount: e.Rate.ToBig()}
}

// TokenListed signals a token joining the bribe whitelist.
type TokenListed struct {
	Token capstan.Address
	Admin capstan.Address
}

func (e *TokenListed) Name() string { return "token.listed" }

func (e *TokenListed) Row() Row {
	return Row{Name: e.Name(), Token: e.Token, Actor: e.Admin}
}

// TokenDelisted signals a token leaving the bribe whitelist.
type TokenDelisted struct {
	Token capstan.Address
	Admin capstan.Address
}

func (e *TokenDelisted) Name() string { return "token.delisted" }

func (e *TokenDelisted) Row() Row {
	return Row{Name: e.Name(), Token: e.Token, Actor: e.Admin}
}

// SourceRegistered signals a vote source joining the aggregation set.
type SourceRegistered struct {
	Source capstan.Address
	Admin  capstan.Address
}

func (e *SourceRegistered) Name() string { return "source.registered" }

func (e *SourceRegistered) Row() Row {
	return Row{Name: e.Name(), Subject: e.Source, Actor: e.Admin}
}

// SourceRemoved signals a vote source leaving the aggregation set.
type SourceRemoved struct {
	Source capstan.Address
	Admin  capstan.Address
}

func (e *SourceRemoved) Name() string { return "source.removed" }

func (e *SourceRemoved) Row() Row {
	return Row{Name: e.Name(), Subject: e.Source, Actor: e.Admin}
}

// BribeProvided signals a bribe deposit on a gauge.
type BribeProvided struct {
	Gauge  uint64
	Briber capstan.Address
	Token  capstan.Address
	Amount *big.Int
}

func (e *BribeProvided) Name() string { return "bribe.provided" }

func (e *BribeProvided) Row() Row {
	return Row{Name: e.Name(), Gauge: e.Gauge, Actor: e.Briber, Token: e.Token, Amount: e.Amount}
}

// AllocAdded signals a first-time bribe allocation of a voter on a gauge.
type AllocAdded struct {
	Voter  capstan.Address
	Caller capstan.Address
	Gauge  uint64
	BPS    uint64
}

func (e *AllocAdded) Name() string { return "alloc.added" }

func (e *AllocAdded) Row() Row {
	return Row{Name: e.Name(), Gauge: e.Gauge, Actor: e.Caller, Subject: e.Voter, Amount: new(big.Int).SetUint64(e.BPS)}
}

// AllocChanged signals an updated allocation; Prev carries the pre-state.
type AllocChanged struct {
	Voter  capstan.Address
	Caller capstan.Address
	Gauge  uint64
	BPS    uint64
	Prev   uint64
}

func (e *AllocChanged) Name() string { return "alloc.changed" }

func (e *AllocChanged) Row() Row {
	return Row{Name: e.Name(), Gauge: e.Gauge, Actor: e.Caller, Subject: e.Voter, Amount: new(big.Int).SetUint64(e.BPS), Aux: e.Prev}
}

// AllocRemoved signals a removed allocation; Prev carries the pre-state.
type AllocRemoved struct {
	Voter  capstan.Address
	Caller capstan.Address
	Gauge  uint64
	Prev   uint64
}

func (e *AllocRemoved) Name() string { return "alloc.removed" }

func (e *AllocRemoved) Row() Row {
	return Row{Name: e.Name(), Gauge: e.Gauge, Actor: e.Caller, Subject: e.Voter, Aux: e.Prev}
}

// WeightsIncomplete signals partial weight-stage progress.
type WeightsIncomplete struct {
	Epoch  uint64
	Cursor uint64
}

func (e *WeightsIncomplete) Name() string { return "weights.incomplete" }

func (e *WeightsIncomplete) Row() Row {
	return Row{Name: e.Name(), Epoch: e.Epoch, Aux: e.Cursor}
}

// WeightsUpdated signals the weight stage closing for an epoch.
type WeightsUpdated struct {
	Epoch uint64
}

func (e *WeightsUpdated) Name() string { return "weights.updated" }

func (e *WeightsUpdated) Row() Row {
	return Row{Name: e.Name(), Epoch: e.Epoch}
}

// PremiumsIncomplete signals partial premium-stage progress.
type PremiumsIncomplete struct {
	Epoch  uint64
	Cursor uint64
}

func (e *PremiumsIncomplete) Name() string { return "premiums.incomplete" }

func (e *PremiumsIncomplete) Row() Row {
	return Row{Name: e.Name(), Epoch: e.Epoch, Aux: e.Cursor}
}

// PremiumsCharged signals the premium stage closing for an epoch.
type PremiumsCharged struct {
	Epoch uint64
}

func (e *PremiumsCharged) Name() string { return "premiums.charged" }

func (e *PremiumsCharged) Row() Row {
	return Row{Name: e.Name(), Epoch: e.Epoch}
}

// BribesIncomplete signals partial distributor progress.
type BribesIncomplete struct {
	Epoch  uint64
	Cursor uint64
}

func (e *BribesIncomplete) Name() string { return "bribes.incomplete" }

func (e *BribesIncomplete) Row() Row {
	return Row{Name: e.Name(), Epoch: e.Epoch, Aux: e.Cursor}
}

// BribesProcessed signals the distributor closing for an epoch.
type BribesProcessed struct {
	Epoch uint64
}

func (e *BribesProcessed) Name() string { return "bribes.processed" }

func (e *BribesProcessed) Row() Row {
	return Row{Name: e.Name(), Epoch: e.Epoch}
}

// BribesTreasury signals a zero-contribution pool routed to the treasury.
type BribesTreasury struct {
	Gauge    uint64
	Token    capstan.Address
	Amount   *big.Int
	Treasury capstan.Address
}

func (e *BribesTreasury) Name() string { return "bribes.treasury" }

func (e *BribesTreasury) Row() Row {
	return Row{Name: e.Name(), Gauge: e.Gauge, Token: e.Token, Amount: e.Amount, Subject: e.Treasury}
}

// ClaimClaimed signals a voter draining one claimable token balance.
type ClaimClaimed struct {
	Voter  capstan.Address
	Token  capstan.Address
	Amount *big.Int
}

func (e *ClaimClaimed) Name() string { return "claim.claimed" }

func (e *ClaimClaimed) Row() Row {
	return Row{Name: e.Name(), Actor: e.Voter, Token: e.Token, Amount: e.Amount}
}

// RescueSwept signals an admin sweep of a token's full vault balance.
type RescueSwept struct {
	Admin  capstan.Address
	Token  capstan.Address
	Amount *big.Int
	To     capstan.Address
}

func (e *RescueSwept) Name() string { return "rescue.swept" }

func (e *RescueSwept) Row() Row {
	return Row{Name: e.Name(), Actor: e.Admin, Token: e.Token, Amount: e.Amount, Subject: e.To}
}
