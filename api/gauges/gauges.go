// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package gauges

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/capstanfi/capstan/api/utils"
	"github.com/capstanfi/capstan/engine"
)

type Gauges struct {
	engine *engine.Engine
}

func New(engine *engine.Engine) *Gauges {
	return &Gauges{engine}
}

// Gauge is the response shape of one gauge.
type Gauge struct {
	ID     uint64 `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
	Rate   string `json:"rate"`
}

// Weight is the last published weight of one gauge, 1e18 scaled.
type Weight struct {
	Gauge  uint64 `json:"gauge"`
	Epoch  uint64 `json:"epoch"`
	Weight string `json:"weight"`
}

func parseID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, utils.BadRequest(errors.WithMessage(err, "id"))
	}
	return id, nil
}

func (g *Gauges) handleGetGauges(w http.ResponseWriter, _ *http.Request) error {
	entries, err := g.engine.Gauges()
	if err != nil {
		return err
	}
	out := make([]*Gauge, len(entries))
	for i, e := range entries {
		out[i] = &Gauge{
			ID:     e.ID,
			Name:   e.Name,
			Active: e.Active,
			Rate:   e.Rate.Dec(),
		}
	}
	return utils.WriteJSON(w, out)
}

func (g *Gauges) handleGetGauge(w http.ResponseWriter, r *http.Request) error {
	id, err := parseID(r)
	if err != nil {
		return err
	}
	gauge, err := g.engine.Gauge(id)
	if err != nil {
		return utils.EngineError(err)
	}
	return utils.WriteJSON(w, &Gauge{
		ID:     id,
		Name:   gauge.Name,
		Active: gauge.Active,
		Rate:   gauge.Rate.Dec(),
	})
}

func (g *Gauges) handleGetWeight(w http.ResponseWriter, r *http.Request) error {
	id, err := parseID(r)
	if err != nil {
		return err
	}
	if _, err := g.engine.Gauge(id); err != nil {
		return utils.EngineError(err)
	}
	rec, err := g.engine.WeightOf(id)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, &Weight{
		Gauge:  id,
		Epoch:  rec.Epoch,
		Weight: rec.Weight.Dec(),
	})
}

func (g *Gauges) handleGetWeights(w http.ResponseWriter, _ *http.Request) error {
	entries, err := g.engine.Gauges()
	if err != nil {
		return err
	}
	out := make([]*Weight, len(entries))
	for i, e := range entries {
		rec, err := g.engine.WeightOf(e.ID)
		if err != nil {
			return err
		}
		out[i] = &Weight{
			Gauge:  e.ID,
			Epoch:  rec.Epoch,
			Weight: rec.Weight.Dec(),
		}
	}
	return utils.WriteJSON(w, out)
}

func (g *Gauges) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("").
		Methods(http.MethodGet).
		Name("GET /gauges").
		HandlerFunc(utils.WrapHandlerFunc(g.handleGetGauges))
	sub.Path("/weights").
		Methods(http.MethodGet).
		Name("GET /gauges/weights").
		HandlerFunc(utils.WrapHandlerFunc(g.handleGetWeights))
	sub.Path("/{id}").
		Methods(http.MethodGet).
		Name("GET /gauges/{id}").
		HandlerFunc(utils.WrapHandlerFunc(g.handleGetGauge))
	sub.Path("/{id}/weight").
		Methods(http.MethodGet).
		Name("GET /gauges/{id}/weight").
		HandlerFunc(utils.WrapHandlerFunc(g.handleGetWeight))
}
