// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package settlement

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/capstanfi/capstan/api/utils"
	"github.com/capstanfi/capstan/capstan"
	"github.com/capstanfi/capstan/engine"
)

// Settlement exposes the stage cursors and the permissionless
// stage-driving calls.
type Settlement struct {
	engine *engine.Engine
}

func New(engine *engine.Engine) *Settlement {
	return &Settlement{engine}
}

func (s *Settlement) handleGetStatus(w http.ResponseWriter, _ *http.Request) error {
	status, err := s.engine.Status()
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, status)
}

func (s *Settlement) drive(fn func(capstan.Address) error) utils.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) error {
		if err := fn(capstan.Address{}); err != nil {
			return utils.EngineError(err)
		}
		status, err := s.engine.Status()
		if err != nil {
			return err
		}
		return utils.WriteJSON(w, status)
	}
}

func (s *Settlement) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/status").
		Methods(http.MethodGet).
		Name("GET /settlement/status").
		HandlerFunc(utils.WrapHandlerFunc(s.handleGetStatus))
	sub.Path("/weights").
		Methods(http.MethodPost).
		Name("POST /settlement/weights").
		HandlerFunc(utils.WrapHandlerFunc(s.drive(s.engine.UpdateWeights)))
	sub.Path("/premiums").
		Methods(http.MethodPost).
		Name("POST /settlement/premiums").
		HandlerFunc(utils.WrapHandlerFunc(s.drive(s.engine.ChargePremiums)))
	sub.Path("/bribes").
		Methods(http.MethodPost).
		Name("POST /settlement/bribes").
		HandlerFunc(utils.WrapHandlerFunc(s.drive(s.engine.ProcessBribes)))
}
