// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package bribes

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/capstanfi/capstan/api/utils"
	"github.com/capstanfi/capstan/bribe"
	"github.com/capstanfi/capstan/capstan"
	"github.com/capstanfi/capstan/engine"
)

type Bribes struct {
	engine *engine.Engine
}

func New(engine *engine.Engine) *Bribes {
	return &Bribes{engine}
}

// TokenAmount is one token position of a pool or lifetime total.
type TokenAmount struct {
	Token  capstan.Address `json:"token"`
	Amount string          `json:"amount"`
}

// Pool is the unsettled deposit pool of one gauge.
type Pool struct {
	Gauge  uint64         `json:"gauge"`
	Tokens []*TokenAmount `json:"tokens"`
}

func convertTokens(rows []*bribe.TokenAmount) []*TokenAmount {
	out := make([]*TokenAmount, len(rows))
	for i, row := range rows {
		out[i] = &TokenAmount{Token: row.Token, Amount: row.Amount.String()}
	}
	return out
}

func (b *Bribes) handleGetPools(w http.ResponseWriter, _ *http.Request) error {
	open, err := b.engine.OpenGauges()
	if err != nil {
		return err
	}
	out := make([]*Pool, len(open))
	for i, id := range open {
		tokens, err := b.engine.PoolOf(id)
		if err != nil {
			return err
		}
		out[i] = &Pool{Gauge: id, Tokens: convertTokens(tokens)}
	}
	return utils.WriteJSON(w, out)
}

func (b *Bribes) handleGetPool(w http.ResponseWriter, r *http.Request) error {
	id, err := strconv.ParseUint(mux.Vars(r)["gauge"], 10, 64)
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "gauge"))
	}
	if _, err := b.engine.Gauge(id); err != nil {
		return utils.EngineError(err)
	}
	tokens, err := b.engine.PoolOf(id)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, &Pool{Gauge: id, Tokens: convertTokens(tokens)})
}

func (b *Bribes) handleGetWhitelist(w http.ResponseWriter, _ *http.Request) error {
	tokens, err := b.engine.Whitelist()
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, tokens)
}

func (b *Bribes) handleGetLifetime(w http.ResponseWriter, r *http.Request) error {
	briber, err := capstan.ParseAddress(mux.Vars(r)["briber"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "briber"))
	}
	totals, err := b.engine.LifetimeOf(briber)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, convertTokens(totals))
}

func (b *Bribes) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/pools").
		Methods(http.MethodGet).
		Name("GET /bribes/pools").
		HandlerFunc(utils.WrapHandlerFunc(b.handleGetPools))
	sub.Path("/pools/{gauge}").
		Methods(http.MethodGet).
		Name("GET /bribes/pools/{gauge}").
		HandlerFunc(utils.WrapHandlerFunc(b.handleGetPool))
	sub.Path("/whitelist").
		Methods(http.MethodGet).
		Name("GET /bribes/whitelist").
		HandlerFunc(utils.WrapHandlerFunc(b.handleGetWhitelist))
	sub.Path("/lifetime/{briber}").
		Methods(http.MethodGet).
		Name("GET /bribes/lifetime/{briber}").
		HandlerFunc(utils.WrapHandlerFunc(b.handleGetLifetime))
}
