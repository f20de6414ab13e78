// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capstanfi/capstan/api"
	"github.com/capstanfi/capstan/capstan"
	"github.com/capstanfi/capstan/engine"
	"github.com/capstanfi/capstan/event"
	"github.com/capstanfi/capstan/eventdb"
	"github.com/capstanfi/capstan/genesis"
	"github.com/capstanfi/capstan/lvldb"
	"github.com/capstanfi/capstan/solo"
	"github.com/capstanfi/capstan/state"
)

type fixture struct {
	t   *testing.T
	srv *httptest.Server
	now uint64
}

func newFixture(t *testing.T) *fixture {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	st := state.New(db)

	launch := uint64(capstan.DefaultEpochLength) * 100
	gene := genesis.NewDevnet(launch)
	require.NoError(t, gene.Build(st))

	eventDB, err := eventdb.NewMem()
	require.NoError(t, err)
	t.Cleanup(eventDB.Close)

	f := &fixture{t: t, now: launch}
	src := solo.NewSource(gene.Config().Voters)
	eng := engine.New(engine.Config{
		State:    st,
		Resolver: src,
		Power:    src,
		Now:      func() uint64 { return f.now },
		Sinks:    []event.Sink{eventDB},
	})

	handler, _, closer := api.New(eng, eventDB, api.Options{
		AllowedOrigins: "*",
		EventsLimit:    100,
		SoloAPI:        true,
	})
	t.Cleanup(closer)

	f.srv = httptest.NewServer(handler)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) get(path string, out any) *http.Response {
	res, err := http.Get(f.srv.URL + path)
	require.NoError(f.t, err)
	defer res.Body.Close()
	if out != nil && res.StatusCode == http.StatusOK {
		require.NoError(f.t, json.NewDecoder(res.Body).Decode(out))
	}
	return res
}

func (f *fixture) post(path string, body any, out any) *http.Response {
	b, err := json.Marshal(body)
	require.NoError(f.t, err)
	res, err := http.Post(f.srv.URL+path, "application/json", bytes.NewReader(b))
	require.NoError(f.t, err)
	defer res.Body.Close()
	if out != nil && res.StatusCode == http.StatusOK {
		require.NoError(f.t, json.NewDecoder(res.Body).Decode(out))
	}
	return res
}

func TestGetGauges(t *testing.T) {
	f := newFixture(t)

	var gauges []map[string]any
	res := f.get("/gauges", &gauges)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	require.Len(t, gauges, 2)
	assert.Equal(t, "stable-pool", gauges[0]["name"])

	res = f.get("/gauges/99", nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res = f.get("/gauges/notanumber", nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestSettlementDriving(t *testing.T) {
	f := newFixture(t)

	var status map[string]any
	res := f.get("/settlement/status", &status)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.True(t, status["weights"].(map[string]any)["closed"].(bool))

	// stage call in a settled epoch reverts
	res = f.post("/settlement/weights", nil, nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	f.now = capstan.EpochNext(capstan.DefaultEpochLength, f.now)
	res = f.post("/settlement/weights", nil, &status)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.True(t, status["weights"].(map[string]any)["closed"].(bool))
}

func TestSoloTransactAndEvents(t *testing.T) {
	f := newFixture(t)

	res := f.post("/transact/deposit", map[string]any{
		"briber":  genesis.DevBriber.String(),
		"gauge":   1,
		"tokens":  []string{genesis.DevToken.String()},
		"amounts": []string{"1000"},
	}, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	voter := genesis.DevVoters[0]
	res = f.post("/transact/allocate", map[string]any{
		"caller": voter.String(),
		"voter":  voter.String(),
		"gauge":  1,
		"bps":    5000,
	}, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	var allocs []map[string]any
	res = f.get("/allocations/voter/"+voter.String(), &allocs)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	require.Len(t, allocs, 1)
	assert.Equal(t, float64(5000), allocs[0]["bps"])

	var pools []map[string]any
	f.get("/bribes/pools", &pools)
	require.Len(t, pools, 1)

	var rows []map[string]any
	res = f.post("/events", map[string]any{
		"criteriaSet": []map[string]any{{"name": "bribe.provided"}},
	}, &rows)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	require.Len(t, rows, 1)
	assert.Equal(t, "bribe.provided", rows[0]["name"])
}
