// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package api assembles the REST and websocket surface of a node.
package api

import (
	"net/http"
	"net/http/pprof"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/capstanfi/capstan/api/allocations"
	"github.com/capstanfi/capstan/api/bribes"
	"github.com/capstanfi/capstan/api/claims"
	"github.com/capstanfi/capstan/api/events"
	"github.com/capstanfi/capstan/api/gauges"
	"github.com/capstanfi/capstan/api/settlement"
	"github.com/capstanfi/capstan/api/subscriptions"
	"github.com/capstanfi/capstan/api/transact"
	"github.com/capstanfi/capstan/engine"
	"github.com/capstanfi/capstan/eventdb"
	"github.com/capstanfi/capstan/log"
)

var logger = log.WithContext("pkg", "api")

type Options struct {
	AllowedOrigins  string
	EventsLimit     uint64
	CacheSize       int
	PprofOn         bool
	EnableReqLogger bool
	EnableMetrics   bool
	SoloAPI         bool
}

// New returns the api handler, the subscription sink to register with
// the engine, and a close func for hijacked connections.
func New(
	eng *engine.Engine,
	eventDB *eventdb.EventDB,
	opts Options,
) (http.HandlerFunc, *subscriptions.Subscriptions, func()) {
	origins := strings.Split(strings.TrimSpace(opts.AllowedOrigins), ",")
	for i, o := range origins {
		origins[i] = strings.ToLower(strings.TrimSpace(o))
	}

	router := mux.NewRouter()

	gauges.New(eng).
		Mount(router, "/gauges")
	bribes.New(eng).
		Mount(router, "/bribes")
	allocations.New(eng).
		Mount(router, "/allocations")
	claims.New(eng).
		Mount(router, "/claims")
	settlement.New(eng).
		Mount(router, "/settlement")
	events.New(eventDB, opts.EventsLimit).
		Mount(router, "/events")
	subs := subscriptions.New(eventDB, origins, opts.CacheSize)
	subs.Mount(router, "/subscriptions")

	if opts.SoloAPI {
		logger.Warn("solo transaction API enabled, callers are unverified")
		transact.New(eng).
			Mount(router, "/transact")
	}

	if opts.PprofOn {
		router.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		router.HandleFunc("/debug/pprof/profile", pprof.Profile)
		router.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		router.HandleFunc("/debug/pprof/trace", pprof.Trace)
		router.PathPrefix("/debug/pprof/").HandlerFunc(pprof.Index)
	}

	if opts.EnableMetrics {
		router.Use(metricsMiddleware)
	}

	handler := handlers.CompressHandler(router)
	handler = handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedHeaders([]string{"content-type", "x-genesis-id"}),
		handlers.ExposedHeaders([]string{"x-genesis-id", "x-request-id"}),
	)(handler)

	if opts.EnableReqLogger {
		handler = RequestLoggerHandler(handler, logger)
	}

	// subscriptions handles hijacked conns, which need to be closed
	return handler.ServeHTTP, subs, subs.Close
}
