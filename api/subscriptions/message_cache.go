// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package subscriptions

import (
	"github.com/capstanfi/capstan/cache"
	"github.com/capstanfi/capstan/event"
)

// messageCache keeps recent rows keyed by sequence, so resuming
// subscribers near the live edge skip the index.
type messageCache struct {
	lru *cache.LRU
}

func newMessageCache(size int) *messageCache {
	lru, err := cache.NewLRU(size)
	if err != nil {
		panic(err)
	}
	return &messageCache{lru}
}

func (c *messageCache) Add(row *event.Row) {
	c.lru.Add(row.Seq, row)
}

// After returns cached rows with seq > pos, up to limit. It reports
// false when the run is broken, meaning the caller must read the
// index instead; an empty true result means the caller is at the
// live edge.
func (c *messageCache) After(pos uint64, limit int) ([]*event.Row, bool) {
	var rows []*event.Row
	for len(rows) < limit {
		v, ok := c.lru.Get(pos + 1)
		if !ok {
			if len(rows) == 0 && c.lru.Len() > 0 {
				if _, any := c.lru.Get(pos); !any {
					return nil, false
				}
			}
			break
		}
		rows = append(rows, v.(*event.Row))
		pos++
	}
	return rows, true
}
