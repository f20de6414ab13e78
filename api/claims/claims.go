// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package claims

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/capstanfi/capstan/api/utils"
	"github.com/capstanfi/capstan/capstan"
	"github.com/capstanfi/capstan/engine"
)

type Claims struct {
	engine *engine.Engine
}

func New(engine *engine.Engine) *Claims {
	return &Claims{engine}
}

// Claimable is one settled, unclaimed token balance.
type Claimable struct {
	Token  capstan.Address `json:"token"`
	Amount string          `json:"amount"`
}

func (c *Claims) handleGetClaims(w http.ResponseWriter, r *http.Request) error {
	voter, err := capstan.ParseAddress(mux.Vars(r)["voter"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "voter"))
	}
	rows, err := c.engine.Claimable(voter)
	if err != nil {
		return err
	}
	out := make([]*Claimable, len(rows))
	for i, row := range rows {
		out[i] = &Claimable{Token: row.Token, Amount: row.Amount.String()}
	}
	return utils.WriteJSON(w, out)
}

func (c *Claims) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/{voter}").
		Methods(http.MethodGet).
		Name("GET /claims/{voter}").
		HandlerFunc(utils.WrapHandlerFunc(c.handleGetClaims))
}
