// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package allocations

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/capstanfi/capstan/api/utils"
	"github.com/capstanfi/capstan/capstan"
	"github.com/capstanfi/capstan/engine"
)

type Allocations struct {
	engine *engine.Engine
}

func New(engine *engine.Engine) *Allocations {
	return &Allocations{engine}
}

// Allocation is one voter-to-gauge dedication.
type Allocation struct {
	Voter capstan.Address `json:"voter"`
	Gauge uint64          `json:"gauge"`
	BPS   uint64          `json:"bps"`
}

// Used is a voter's consumed bribe-side budget.
type Used struct {
	Voter capstan.Address `json:"voter"`
	BPS   uint64          `json:"bps"`
}

func parseVoter(r *http.Request) (capstan.Address, error) {
	voter, err := capstan.ParseAddress(mux.Vars(r)["address"])
	if err != nil {
		return capstan.Address{}, utils.BadRequest(errors.WithMessage(err, "address"))
	}
	return voter, nil
}

func (a *Allocations) handleGetByVoter(w http.ResponseWriter, r *http.Request) error {
	voter, err := parseVoter(r)
	if err != nil {
		return err
	}
	allocs, err := a.engine.AllocationsOf(voter)
	if err != nil {
		return err
	}
	out := make([]*Allocation, len(allocs))
	for i, alloc := range allocs {
		out[i] = &Allocation{Voter: voter, Gauge: alloc.Gauge, BPS: alloc.BPS}
	}
	return utils.WriteJSON(w, out)
}

func (a *Allocations) handleGetByGauge(w http.ResponseWriter, r *http.Request) error {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "id"))
	}
	if _, err := a.engine.Gauge(id); err != nil {
		return utils.EngineError(err)
	}
	voters, err := a.engine.VotersOn(id)
	if err != nil {
		return err
	}
	out := make([]*Allocation, len(voters))
	for i, voter := range voters {
		bps, err := a.engine.AllocationOf(voter, id)
		if err != nil {
			return err
		}
		out[i] = &Allocation{Voter: voter, Gauge: id, BPS: bps}
	}
	return utils.WriteJSON(w, out)
}

func (a *Allocations) handleGetUsed(w http.ResponseWriter, r *http.Request) error {
	voter, err := parseVoter(r)
	if err != nil {
		return err
	}
	bps, err := a.engine.UsedBPS(voter)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, &Used{Voter: voter, BPS: bps})
}

func (a *Allocations) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/voter/{address}").
		Methods(http.MethodGet).
		Name("GET /allocations/voter/{address}").
		HandlerFunc(utils.WrapHandlerFunc(a.handleGetByVoter))
	sub.Path("/voter/{address}/used").
		Methods(http.MethodGet).
		Name("GET /allocations/voter/{address}/used").
		HandlerFunc(utils.WrapHandlerFunc(a.handleGetUsed))
	sub.Path("/gauge/{id}").
		Methods(http.MethodGet).
		Name("GET /allocations/gauge/{id}").
		HandlerFunc(utils.WrapHandlerFunc(a.handleGetByGauge))
}
