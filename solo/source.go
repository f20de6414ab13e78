// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package solo

import (
	"math/big"

	"github.com/capstanfi/capstan/capstan"
	"github.com/capstanfi/capstan/genesis"
	"github.com/capstanfi/capstan/vote"
)

// Source serves a static voter population from the genesis content. It
// stands in for the external locker system in solo mode, implementing
// both the per-source voter enumeration and the main-protocol power
// queries.
type Source struct {
	voters    []capstan.Address
	power     map[capstan.Address]*big.Int
	votes     map[capstan.Address][]vote.GaugeVote
	delegates map[capstan.Address]capstan.Address
	used      map[capstan.Address]uint64
}

// NewSource builds a source from genesis dev voters.
func NewSource(voters []genesis.Voter) *Source {
	s := &Source{
		power:     make(map[capstan.Address]*big.Int),
		votes:     make(map[capstan.Address][]vote.GaugeVote),
		delegates: make(map[capstan.Address]capstan.Address),
		used:      make(map[capstan.Address]uint64),
	}
	for _, v := range voters {
		s.voters = append(s.voters, v.Address)
		if v.Power != nil {
			s.power[v.Address] = (*big.Int)(v.Power)
		}
		if v.Delegate != nil {
			s.delegates[v.Address] = *v.Delegate
		}
		var used uint64
		for _, gv := range v.Votes {
			s.votes[v.Address] = append(s.votes[v.Address], vote.GaugeVote{Gauge: gv.Gauge, BPS: gv.BPS})
			used += gv.BPS
		}
		s.used[v.Address] = used
	}
	return s
}

// Resolve implements vote.Resolver; every source address maps to this
// static population.
func (s *Source) Resolve(capstan.Address) (vote.Source, error) {
	return s, nil
}

func (s *Source) VoterCount() (uint64, error) {
	return uint64(len(s.voters)), nil
}

func (s *Source) VoterAt(i uint64) (capstan.Address, error) {
	return s.voters[i], nil
}

func (s *Source) VotesOf(voter capstan.Address) ([]vote.GaugeVote, error) {
	return s.votes[voter], nil
}

func (s *Source) PowerOf(voter capstan.Address, _ uint64) (*big.Int, error) {
	if p, ok := s.power[voter]; ok {
		return p, nil
	}
	return new(big.Int), nil
}

func (s *Source) HasLock(voter capstan.Address) (bool, error) {
	p, ok := s.power[voter]
	return ok && p.Sign() > 0, nil
}

func (s *Source) IsOwnerOrDelegate(caller, voter capstan.Address) (bool, error) {
	return caller == voter || s.delegates[voter] == caller, nil
}

func (s *Source) UsedBPS(voter capstan.Address) (uint64, error) {
	return s.used[voter], nil
}
