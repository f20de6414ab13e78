// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package solo provides the standalone sandbox collaborators: a static
// vote source and the housekeeping driver that advances the settlement
// stages without external callers.
package solo

import (
	"context"
	"time"

	"github.com/capstanfi/capstan/capstan"
	"github.com/capstanfi/capstan/co"
	"github.com/capstanfi/capstan/engine"
	"github.com/capstanfi/capstan/log"
	"github.com/capstanfi/capstan/revert"
)

var logger = log.WithContext("pkg", "solo")

type Options struct {
	// OnDemand disables the background loop; stages advance only via
	// the settlement API.
	OnDemand bool
	// Interval is the poll interval in seconds, default 1.
	Interval uint64
}

// Solo drives the settlement pipeline on a local clock.
type Solo struct {
	engine  *engine.Engine
	options Options
}

// New returns a Solo instance.
func New(engine *engine.Engine, options Options) *Solo {
	if options.Interval == 0 {
		options.Interval = 1
	}
	return &Solo{
		engine:  engine,
		options: options,
	}
}

// Run starts the housekeeping loop until the context is done.
func (s *Solo) Run(ctx context.Context) error {
	goes := &co.Goes{}

	defer func() {
		<-ctx.Done()
		goes.Wait()
	}()

	if s.options.OnDemand {
		logger.Info("settlement driving is on-demand")
		return nil
	}

	logger.Info("prepared to drive settlement stages")
	goes.Go(func() {
		s.loop(ctx)
	})
	return nil
}

func (s *Solo) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("stopping housekeeping service......")
			return
		case <-time.After(time.Duration(s.options.Interval) * time.Second):
			if done, err := s.Step(); err != nil {
				logger.Error("failed to advance settlement", "err", err)
			} else if done {
				continue
			}
		}
	}
}

// Step advances at most one settlement stage call. It returns true
// when all three stages are closed for the current epoch.
func (s *Solo) Step() (bool, error) {
	status, err := s.engine.Status()
	if err != nil {
		return false, err
	}
	switch {
	case !status.Weights.Closed:
		err = s.engine.UpdateWeights(capstan.Address{})
	case !status.Premiums.Closed:
		err = s.engine.ChargePremiums(capstan.Address{})
	case !status.Bribes.Closed:
		err = s.engine.ProcessBribes(capstan.Address{})
	default:
		return true, nil
	}
	if err != nil {
		// another caller may have advanced the same stage concurrently
		if revert.Is(err) {
			return false, nil
		}
		return false, err
	}
	return false, nil
}
