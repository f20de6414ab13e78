// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package engine wires the settlement subsystems together and exposes
// every protocol operation behind a single atomic, event-emitting
// facade. One mutating call either fully commits with its events or
// leaves no trace.
package engine

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/capstanfi/capstan/bribe"
	"github.com/capstanfi/capstan/capstan"
	"github.com/capstanfi/capstan/claim"
	"github.com/capstanfi/capstan/event"
	"github.com/capstanfi/capstan/gauge"
	"github.com/capstanfi/capstan/log"
	"github.com/capstanfi/capstan/params"
	"github.com/capstanfi/capstan/premium"
	"github.com/capstanfi/capstan/revert"
	"github.com/capstanfi/capstan/slot"
	"github.com/capstanfi/capstan/state"
	"github.com/capstanfi/capstan/tokens"
	"github.com/capstanfi/capstan/vote"
)

var logger = log.WithContext("pkg", "engine")

var slotEventSeq = slot.NameToSlot("event-sequence")

// Config assembles an engine. State, Resolver and Power are required;
// Vault and Gate default to the in-state reference implementations;
// Now defaults to wall-clock seconds.
type Config struct {
	State    *state.State
	Vault    tokens.Vault
	Gate     bribe.Gate
	Resolver vote.Resolver
	Power    vote.PowerSource
	Now      func() uint64
	Sinks    []event.Sink
}

// Engine is the settlement core facade.
type Engine struct {
	mu sync.RWMutex

	state    *state.State
	now      func() uint64
	sinks    []event.Sink
	eventSeq *slot.Value[uint64]

	params   *params.Store
	gauges   *gauge.Registry
	weights  *vote.Aggregator
	ledger   *tokens.Ledger
	vault    tokens.Vault
	power    vote.PowerSource
	bribes   *bribe.Ledger
	claims   *claim.Ledger
	premiums *premium.Tracker
	gate     bribe.Gate
	dist     *bribe.Distributor
}

// New assembles an engine from the config.
func New(cfg Config) *Engine {
	st := cfg.State
	e := &Engine{
		state:    st,
		now:      cfg.Now,
		sinks:    cfg.Sinks,
		eventSeq: slot.NewValue[uint64](slot.NewContext(capstan.CoreAddress, st), slotEventSeq),
		params:   params.New(st),
		gauges:   gauge.New(st),
		ledger:   tokens.NewLedger(st),
		power:    cfg.Power,
		claims:   claim.New(st),
	}
	if e.now == nil {
		e.now = func() uint64 { return uint64(time.Now().Unix()) }
	}
	e.vault = cfg.Vault
	if e.vault == nil {
		e.vault = tokens.NewVault(e.ledger)
	}
	e.weights = vote.NewAggregator(st, e.gauges, cfg.Resolver)
	e.premiums = premium.New(st, e.gauges, e.weights)
	e.gate = cfg.Gate
	if e.gate == nil {
		e.gate = e.premiums
	}
	e.bribes = bribe.NewLedger(st, e.gauges, e.power, e.vault)
	e.dist = bribe.NewDistributor(e.bribes, e.claims, e.weights, e.gate)
	return e
}

// Bootstrap marks all three settlement stages closed for the current
// epoch. Called once at genesis, before any settlement traffic.
func (e *Engine) Bootstrap() error {
	return e.run(func(c *opCtx) error {
		if err := e.weights.Initialize(c.epochStart); err != nil {
			return err
		}
		if err := e.premiums.Initialize(c.epochStart); err != nil {
			return err
		}
		return e.bribes.Initialize(c.epochStart)
	})
}

// AddSink registers an extra event sink. Rows committed after the
// call are posted to it; it never sees earlier rows.
func (e *Engine) AddSink(sink event.Sink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, sink)
}

// TokenLedger returns the in-state reference token ledger.
func (e *Engine) TokenLedger() *tokens.Ledger {
	return e.ledger
}

// Premiums returns the reference premium tracker.
func (e *Engine) Premiums() *premium.Tracker {
	return e.premiums
}

// opCtx carries the per-call context of one mutating operation.
type opCtx struct {
	now         uint64
	epochLength uint64
	epochStart  uint64
	events      []event.Event
}

func (c *opCtx) emit(ev event.Event) {
	c.events = append(c.events, ev)
}

// run executes one mutating operation atomically: on error the state
// reverts to the checkpoint and buffered events are discarded; on
// success the journal commits and events flush to the sinks.
func (e *Engine) run(fn func(c *opCtx) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	epochLength, err := e.params.EpochLength()
	if err != nil {
		return err
	}
	now := e.now()
	c := &opCtx{
		now:         now,
		epochLength: epochLength,
		epochStart:  capstan.EpochStart(epochLength, now),
	}

	checkpoint := e.state.NewCheckpoint()
	if err := fn(c); err != nil {
		e.state.RevertTo(checkpoint)
		return err
	}

	rows, err := e.stampRows(c)
	if err != nil {
		e.state.RevertTo(checkpoint)
		return err
	}
	if err := e.state.Commit(); err != nil {
		// the journal is in an unknown shape after a failed flush;
		// drop the staged writes so the next op starts clean
		e.state.RevertTo(checkpoint)
		return err
	}
	e.post(rows)
	return nil
}

// stampRows projects buffered events to rows, assigning the persistent
// event sequence inside the same atomic scope as the operation itself.
func (e *Engine) stampRows(c *opCtx) ([]event.Row, error) {
	if len(c.events) == 0 {
		return nil, nil
	}
	seq, err := e.eventSeq.Get()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get event sequence")
	}
	rows := make([]event.Row, 0, len(c.events))
	for _, ev := range c.events {
		seq++
		row := ev.Row()
		row.Seq = seq
		row.At = c.now
		row.Epoch = c.epochStart
		rows = append(rows, row)
	}
	if err := e.eventSeq.Set(seq); err != nil {
		return nil, errors.Wrap(err, "failed to set event sequence")
	}
	return rows, nil
}

func (e *Engine) post(rows []event.Row) {
	if len(rows) == 0 {
		return
	}
	for _, sink := range e.sinks {
		if err := sink.Post(rows); err != nil {
			logger.Warn("event sink failed", "err", err)
		}
	}
}

// requireAdmin checks the caller against the admin param.
func (e *Engine) requireAdmin(caller capstan.Address) error {
	admin, err := e.params.GetAddress(capstan.KeyAdmin)
	if err != nil {
		return err
	}
	if admin.IsZero() || admin != caller {
		return revert.ErrNotAdmin
	}
	return nil
}
