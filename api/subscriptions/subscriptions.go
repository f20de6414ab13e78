// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package subscriptions streams committed event rows over websocket.
package subscriptions

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/capstanfi/capstan/api/utils"
	"github.com/capstanfi/capstan/co"
	"github.com/capstanfi/capstan/event"
	"github.com/capstanfi/capstan/eventdb"
)

const (
	pingPeriod       = 2 * time.Second
	readBatch        = 256
	defaultCacheSize = 1024
)

type Subscriptions struct {
	db       *eventdb.EventDB
	upgrader *websocket.Upgrader
	cache    *messageCache
	sig      co.Signal
	done     chan struct{}
	wg       sync.WaitGroup
}

// New creates the subscription hub. It implements event.Sink, so the
// engine's committed rows reach live subscribers without polling.
func New(db *eventdb.EventDB, allowedOrigins []string, cacheSize int) *Subscriptions {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	return &Subscriptions{
		db: db,
		upgrader: &websocket.Upgrader{
			EnableCompression: true,
			CheckOrigin:       checkOrigin(allowedOrigins),
		},
		cache: newMessageCache(cacheSize),
		done:  make(chan struct{}),
	}
}

func checkOrigin(allowedOrigins []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, allowed := range allowedOrigins {
			if allowed == "*" || allowed == origin {
				return true
			}
		}
		return false
	}
}

// Post implements event.Sink: cache the rows and wake subscribers.
func (s *Subscriptions) Post(rows []event.Row) error {
	for i := range rows {
		s.cache.Add(&rows[i])
	}
	s.sig.Broadcast()
	return nil
}

// Close waits for hijacked connections to wind down.
func (s *Subscriptions) Close() {
	close(s.done)
	s.wg.Wait()
}

// read returns rows after pos, from the cache when it still holds
// them, otherwise from the index.
func (s *Subscriptions) read(req *http.Request, pos uint64) ([]*event.Row, error) {
	if rows, ok := s.cache.After(pos, readBatch); ok {
		return rows, nil
	}
	return s.db.Filter(req.Context(), &eventdb.Filter{
		Options: &eventdb.Options{Offset: pos, Limit: readBatch},
	})
}

func (s *Subscriptions) handleSubscribeEvents(w http.ResponseWriter, req *http.Request) error {
	pos := uint64(0)
	if posStr := req.URL.Query().Get("pos"); posStr != "" {
		parsed, err := strconv.ParseUint(posStr, 10, 64)
		if err != nil {
			return utils.BadRequest(errors.WithMessage(err, "pos"))
		}
		pos = parsed
	} else {
		// no resume position: start from the live edge
		max, err := s.db.MaxSeq(req.Context())
		if err != nil {
			return err
		}
		pos = max
	}

	conn, err := s.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return err
	}
	s.wg.Add(1)
	defer s.wg.Done()
	defer conn.Close()

	// drain client frames to notice the peer going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pinger := time.NewTicker(pingPeriod)
	defer pinger.Stop()

	for {
		rows, err := s.read(req, pos)
		if err != nil {
			return err
		}
		for _, row := range rows {
			if err := conn.WriteJSON(row); err != nil {
				return err
			}
			pos = row.Seq
		}
		if len(rows) > 0 {
			continue
		}

		select {
		case <-s.done:
			return nil
		case <-closed:
			return nil
		case <-req.Context().Done():
			return req.Context().Err()
		case <-s.sig.NewWaiter().C():
		case <-pinger.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

func (s *Subscriptions) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/events").
		Methods(http.MethodGet).
		Name("GET /subscriptions/events").
		HandlerFunc(utils.WrapHandlerFunc(s.handleSubscribeEvents))
}
