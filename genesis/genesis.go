// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package genesis builds the initial ledger state of a Capstan network.
package genesis

import (
	"github.com/pkg/errors"

	"github.com/capstanfi/capstan/capstan"
	"github.com/capstanfi/capstan/state"
)

// Genesis describes a network's initial state.
type Genesis struct {
	builder *Builder
	id      capstan.Bytes32
	name    string
	gen     *CustomGenesis
}

// Build applies the initial state and commits it.
func (g *Genesis) Build(st *state.State) error {
	return g.builder.Build(st)
}

// ID returns the network id, the hash of the normalized genesis content.
func (g *Genesis) ID() capstan.Bytes32 {
	return g.id
}

func (g *Genesis) Name() string {
	return g.name
}

// Config returns the underlying genesis content. Solo collaborators
// read the dev voter set from here.
func (g *Genesis) Config() *CustomGenesis {
	return g.gen
}

// Builder accumulates state processes to apply at genesis.
type Builder struct {
	timestamp  uint64
	stateProcs []func(st *state.State) error
}

// Timestamp sets the launch time.
func (b *Builder) Timestamp(t uint64) *Builder {
	b.timestamp = t
	return b
}

// State adds a state process.
func (b *Builder) State(proc func(st *state.State) error) *Builder {
	b.stateProcs = append(b.stateProcs, proc)
	return b
}

// Build runs the state processes and commits.
func (b *Builder) Build(st *state.State) error {
	for _, proc := range b.stateProcs {
		if err := proc(st); err != nil {
			return errors.Wrap(err, "state process")
		}
	}
	return st.Commit()
}
