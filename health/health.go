// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package health reports whether the settlement pipeline keeps up with
// the epoch clock.
package health

import (
	"sync"

	"github.com/capstanfi/capstan/engine"
)

// DefaultGracePeriod is how long after an epoch turn the stages may
// remain open before the node is considered unhealthy, in seconds.
const DefaultGracePeriod uint64 = 3600

// StatusProvider supplies the engine clock and stage cursors.
type StatusProvider interface {
	Status() (*engine.Status, error)
}

type Status struct {
	Healthy        bool   `json:"healthy"`
	EpochStart     uint64 `json:"epochStart"`
	WeightsClosed  bool   `json:"weightsClosed"`
	PremiumsClosed bool   `json:"premiumsClosed"`
	BribesClosed   bool   `json:"bribesClosed"`
}

type Health struct {
	lock        sync.RWMutex
	provider    StatusProvider
	gracePeriod uint64
}

func New(provider StatusProvider, gracePeriod uint64) *Health {
	if gracePeriod == 0 {
		gracePeriod = DefaultGracePeriod
	}
	return &Health{
		provider:    provider,
		gracePeriod: gracePeriod,
	}
}

// Status derives health from the stage cursors: all stages closed for
// the current epoch, or the epoch turned recently enough that open
// stages are expected.
func (h *Health) Status() (*Status, error) {
	h.lock.RLock()
	defer h.lock.RUnlock()

	s, err := h.provider.Status()
	if err != nil {
		return nil, err
	}

	allClosed := s.Weights.Closed && s.Premiums.Closed && s.Bribes.Closed
	inGrace := s.Now-s.EpochStart < h.gracePeriod

	return &Status{
		Healthy:        allClosed || inGrace,
		EpochStart:     s.EpochStart,
		WeightsClosed:  s.Weights.Closed,
		PremiumsClosed: s.Premiums.Closed,
		BribesClosed:   s.Bribes.Closed,
	}, nil
}
