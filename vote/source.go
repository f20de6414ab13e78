// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package vote defines the external vote-power interfaces and the
// resumable gauge-weight aggregation stage.
package vote

import (
	"math/big"

	"github.com/capstanfi/capstan/capstan"
)

// GaugeVote is one entry of a voter's main-vote split.
type GaugeVote struct {
	Gauge uint64
	BPS   uint64
}

// PowerSource supplies vote-power facts about voters. It is consumed
// by allocation checks and the distributor, never reimplemented here.
type PowerSource interface {
	// PowerOf returns the voter's total vote power snapshotted at the
	// given epoch start.
	PowerOf(voter capstan.Address, epochStart uint64) (*big.Int, error)
	// HasLock reports whether the voter holds any lock at all.
	HasLock(voter capstan.Address) (bool, error)
	// IsOwnerOrDelegate reports whether the caller may act for the voter.
	IsOwnerOrDelegate(caller, voter capstan.Address) (bool, error)
	// UsedBPS returns the voter's main-vote budget usage in basis points.
	UsedBPS(voter capstan.Address) (uint64, error)
}

// Source is one registered voting population. Enumeration order must be
// stable between calls within an epoch; the aggregation cursor depends
// on it.
type Source interface {
	PowerSource

	VoterCount() (uint64, error)
	VoterAt(i uint64) (capstan.Address, error)
	// VotesOf returns the voter's main-vote gauge split.
	VotesOf(voter capstan.Address) ([]GaugeVote, error)
}

// Resolver binds registered source addresses to implementations.
type Resolver interface {
	Resolve(addr capstan.Address) (Source, error)
}

// ResolverFunc adapts a function into a Resolver.
type ResolverFunc func(addr capstan.Address) (Source, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(addr capstan.Address) (Source, error) {
	return f(addr)
}
