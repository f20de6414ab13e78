// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package transact exposes the mutating protocol operations over HTTP.
// It is solo-only: callers are taken from the request body unverified,
// which only makes sense in a local sandbox.
package transact

import (
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/capstanfi/capstan/api/utils"
	"github.com/capstanfi/capstan/capstan"
	"github.com/capstanfi/capstan/engine"
)

type Transact struct {
	engine *engine.Engine
}

func New(engine *engine.Engine) *Transact {
	return &Transact{engine}
}

type depositRequest struct {
	Briber  capstan.Address         `json:"briber"`
	Gauge   uint64                  `json:"gauge"`
	Tokens  []capstan.Address       `json:"tokens"`
	Amounts []*math.HexOrDecimal256 `json:"amounts"`
}

type allocateRequest struct {
	Caller capstan.Address `json:"caller"`
	Voter  capstan.Address `json:"voter"`
	Gauge  uint64          `json:"gauge"`
	BPS    uint64          `json:"bps"`
}

type removeRequest struct {
	Caller capstan.Address `json:"caller"`
	Voter  capstan.Address `json:"voter"`
	Gauge  uint64          `json:"gauge"`
}

type claimRequest struct {
	Voter capstan.Address `json:"voter"`
}

type addGaugeRequest struct {
	Admin capstan.Address       `json:"admin"`
	Name  string                `json:"name"`
	Rate  *math.HexOrDecimal256 `json:"rate"`
}

type gaugeActionRequest struct {
	Admin capstan.Address `json:"admin"`
	Gauge uint64          `json:"gauge"`
}

type tokenActionRequest struct {
	Admin capstan.Address `json:"admin"`
	Token capstan.Address `json:"token"`
}

type sourceActionRequest struct {
	Admin  capstan.Address `json:"admin"`
	Source capstan.Address `json:"source"`
}

type rescueRequest struct {
	Admin  capstan.Address   `json:"admin"`
	Tokens []capstan.Address `json:"tokens"`
	To     capstan.Address   `json:"to"`
}

func parse[T any](r *http.Request) (*T, error) {
	var req T
	if err := utils.ParseJSON(r.Body, &req); err != nil {
		return nil, utils.BadRequest(errors.WithMessage(err, "body"))
	}
	return &req, nil
}

func ok(w http.ResponseWriter, err error) error {
	if err != nil {
		return utils.EngineError(err)
	}
	return utils.WriteJSON(w, utils.M{"ok": true})
}

func (t *Transact) handleDeposit(w http.ResponseWriter, r *http.Request) error {
	req, err := parse[depositRequest](r)
	if err != nil {
		return err
	}
	amounts := make([]*big.Int, len(req.Amounts))
	for i, a := range req.Amounts {
		if a == nil {
			return utils.BadRequest(errors.New("amounts: null not allowed"))
		}
		amounts[i] = (*big.Int)(a)
	}
	return ok(w, t.engine.ProvideBribes(req.Briber, req.Gauge, req.Tokens, amounts))
}

func (t *Transact) handleAllocate(w http.ResponseWriter, r *http.Request) error {
	req, err := parse[allocateRequest](r)
	if err != nil {
		return err
	}
	return ok(w, t.engine.Allocate(req.Caller, req.Voter, req.Gauge, req.BPS))
}

func (t *Transact) handleRemove(w http.ResponseWriter, r *http.Request) error {
	req, err := parse[removeRequest](r)
	if err != nil {
		return err
	}
	return ok(w, t.engine.RemoveAllocation(req.Caller, req.Voter, req.Gauge))
}

func (t *Transact) handleClaim(w http.ResponseWriter, r *http.Request) error {
	req, err := parse[claimRequest](r)
	if err != nil {
		return err
	}
	return ok(w, t.engine.Claim(req.Voter))
}

func (t *Transact) handleAddGauge(w http.ResponseWriter, r *http.Request) error {
	req, err := parse[addGaugeRequest](r)
	if err != nil {
		return err
	}
	if req.Rate == nil {
		return utils.BadRequest(errors.New("rate: must be set"))
	}
	rate, overflow := uint256.FromBig((*big.Int)(req.Rate))
	if overflow {
		return utils.BadRequest(errors.New("rate: out of range"))
	}
	id, err := t.engine.AddGauge(req.Admin, req.Name, rate)
	if err != nil {
		return utils.EngineError(err)
	}
	return utils.WriteJSON(w, utils.M{"id": id})
}

func (t *Transact) handlePauseGauge(w http.ResponseWriter, r *http.Request) error {
	req, err := parse[gaugeActionRequest](r)
	if err != nil {
		return err
	}
	return ok(w, t.engine.PauseGauge(req.Admin, req.Gauge))
}

func (t *Transact) handleUnpauseGauge(w http.ResponseWriter, r *http.Request) error {
	req, err := parse[gaugeActionRequest](r)
	if err != nil {
		return err
	}
	return ok(w, t.engine.UnpauseGauge(req.Admin, req.Gauge))
}

func (t *Transact) handleAddToken(w http.ResponseWriter, r *http.Request) error {
	req, err := parse[tokenActionRequest](r)
	if err != nil {
		return err
	}
	return ok(w, t.engine.AddBribeToken(req.Admin, req.Token))
}

func (t *Transact) handleRemoveToken(w http.ResponseWriter, r *http.Request) error {
	req, err := parse[tokenActionRequest](r)
	if err != nil {
		return err
	}
	return ok(w, t.engine.RemoveBribeToken(req.Admin, req.Token))
}

func (t *Transact) handleRegisterSource(w http.ResponseWriter, r *http.Request) error {
	req, err := parse[sourceActionRequest](r)
	if err != nil {
		return err
	}
	return ok(w, t.engine.RegisterSource(req.Admin, req.Source))
}

func (t *Transact) handleRemoveSource(w http.ResponseWriter, r *http.Request) error {
	req, err := parse[sourceActionRequest](r)
	if err != nil {
		return err
	}
	return ok(w, t.engine.RemoveSource(req.Admin, req.Source))
}

func (t *Transact) handleRescue(w http.ResponseWriter, r *http.Request) error {
	req, err := parse[rescueRequest](r)
	if err != nil {
		return err
	}
	return ok(w, t.engine.Rescue(req.Admin, req.Tokens, req.To))
}

func (t *Transact) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	post := func(path, name string, h utils.HandlerFunc) {
		sub.Path(path).Methods(http.MethodPost).Name(name).HandlerFunc(utils.WrapHandlerFunc(h))
	}
	post("/deposit", "POST /transact/deposit", t.handleDeposit)
	post("/allocate", "POST /transact/allocate", t.handleAllocate)
	post("/remove", "POST /transact/remove", t.handleRemove)
	post("/claim", "POST /transact/claim", t.handleClaim)
	post("/admin/gauge", "POST /transact/admin/gauge", t.handleAddGauge)
	post("/admin/gauge/pause", "POST /transact/admin/gauge/pause", t.handlePauseGauge)
	post("/admin/gauge/unpause", "POST /transact/admin/gauge/unpause", t.handleUnpauseGauge)
	post("/admin/token", "POST /transact/admin/token", t.handleAddToken)
	post("/admin/token/remove", "POST /transact/admin/token/remove", t.handleRemoveToken)
	post("/admin/source", "POST /transact/admin/source", t.handleRegisterSource)
	post("/admin/source/remove", "POST /transact/admin/source/remove", t.handleRemoveSource)
	post("/admin/rescue", "POST /transact/admin/rescue", t.handleRescue)
}
