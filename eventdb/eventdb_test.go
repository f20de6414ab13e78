// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package eventdb

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capstanfi/capstan/capstan"
	"github.com/capstanfi/capstan/event"
)

func newDB(t *testing.T) *EventDB {
	db, err := NewMem()
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func sampleRows() []event.Row {
	briber := capstan.Address{0xbb}
	alice := capstan.Address{0xa1}
	token := capstan.Address{0x0a}
	return []event.Row{
		{Seq: 1, At: 100, Epoch: 100, Name: "gauge.added", Gauge: 1, Label: "pool"},
		{Seq: 2, At: 110, Epoch: 100, Name: "bribe.provided", Gauge: 1, Actor: briber, Token: token, Amount: big.NewInt(1000)},
		{Seq: 3, At: 120, Epoch: 100, Name: "alloc.added", Gauge: 1, Actor: alice, Subject: alice, Amount: big.NewInt(5000)},
		{Seq: 4, At: 700, Epoch: 700, Name: "weights.updated"},
		{Seq: 5, At: 710, Epoch: 700, Name: "claim.claimed", Actor: alice, Token: token, Amount: big.NewInt(250)},
	}
}

func TestWriteAndFilterAll(t *testing.T) {
	db := newDB(t)
	require.NoError(t, db.Write(sampleRows()))

	got, err := db.Filter(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, got, 5)

	assert.Equal(t, "bribe.provided", got[1].Name)
	assert.Equal(t, big.NewInt(1000), got[1].Amount)
	assert.Equal(t, capstan.Address{0xbb}, got[1].Actor)
	assert.True(t, got[0].Actor.IsZero())
	assert.Nil(t, got[3].Amount)

	seq, err := db.MaxSeq(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(5), seq)
}

func TestDuplicateSeqRejected(t *testing.T) {
	db := newDB(t)
	rows := sampleRows()
	require.NoError(t, db.Write(rows))
	assert.Error(t, db.Write(rows[:1]))
}

func TestFilterCriteria(t *testing.T) {
	db := newDB(t)
	require.NoError(t, db.Write(sampleRows()))

	alice := capstan.Address{0xa1}
	name := "claim.claimed"
	got, err := db.Filter(context.Background(), &Filter{
		CriteriaSet: []*Criteria{{Actor: &alice, Name: &name}},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(5), got[0].Seq)

	// OR across criteria
	bribeName := "bribe.provided"
	got, err = db.Filter(context.Background(), &Filter{
		CriteriaSet: []*Criteria{{Name: &name}, {Name: &bribeName}},
	})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestFilterRangeAndOrder(t *testing.T) {
	db := newDB(t)
	require.NoError(t, db.Write(sampleRows()))

	got, err := db.Filter(context.Background(), &Filter{
		Range: &Range{Unit: Epoch, From: 700, To: 700},
		Order: DESC,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(5), got[0].Seq)
	assert.Equal(t, uint64(4), got[1].Seq)

	got, err = db.Filter(context.Background(), &Filter{
		Range:   &Range{Unit: Time, From: 0, To: 1000},
		Options: &Options{Offset: 1, Limit: 2},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(2), got[0].Seq)
}
