// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package subscriptions

import (
	"math/big"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capstanfi/capstan/event"
	"github.com/capstanfi/capstan/eventdb"
)

func sampleRows(from, n uint64) []event.Row {
	rows := make([]event.Row, 0, n)
	for seq := from; seq < from+n; seq++ {
		rows = append(rows, event.Row{
			Seq:    seq,
			At:     seq * 10,
			Epoch:  100,
			Name:   "bribe.provided",
			Gauge:  1,
			Amount: big.NewInt(int64(seq)),
		})
	}
	return rows
}

func TestMessageCacheAfter(t *testing.T) {
	c := newMessageCache(16)
	for _, row := range sampleRows(5, 4) {
		c.Add(&row)
	}

	rows, ok := c.After(5, 10)
	require.True(t, ok)
	require.Len(t, rows, 3)
	assert.Equal(t, uint64(6), rows[0].Seq)

	// position at the live edge
	rows, ok = c.After(8, 10)
	require.True(t, ok)
	assert.Empty(t, rows)

	// position before the cached run
	_, ok = c.After(1, 10)
	assert.False(t, ok)
}

func TestSubscribeEvents(t *testing.T) {
	db, err := eventdb.NewMem()
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Write(sampleRows(1, 5)))

	subs := New(db, []string{"*"}, 16)
	defer subs.Close()

	router := mux.NewRouter()
	subs.Mount(router, "/subscriptions")
	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/subscriptions/events?pos=0"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	for seq := uint64(1); seq <= 5; seq++ {
		var row event.Row
		require.NoError(t, conn.ReadJSON(&row))
		assert.Equal(t, seq, row.Seq)
	}

	// a live row posted through the sink reaches the subscriber
	live := sampleRows(6, 1)
	require.NoError(t, db.Write(live))
	require.NoError(t, subs.Post(live))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var row event.Row
	require.NoError(t, conn.ReadJSON(&row))
	assert.Equal(t, uint64(6), row.Seq)
}
