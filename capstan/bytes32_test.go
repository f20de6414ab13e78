// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package capstan

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBytes32(t *testing.T) {
	want := Blake2b([]byte("capstan"))

	parsed, err := ParseBytes32(want.String())
	require.NoError(t, err)
	assert.Equal(t, want, parsed)

	parsed, err = ParseBytes32(want.String()[2:])
	require.NoError(t, err)
	assert.Equal(t, want, parsed)

	_, err = ParseBytes32("0x00")
	assert.Error(t, err)
	_, err = ParseBytes32("zx" + want.String()[2:])
	assert.Error(t, err)
}

func TestBytes32JSON(t *testing.T) {
	b32 := Blake2b([]byte("gauge"))
	data, err := json.Marshal(&b32)
	require.NoError(t, err)

	var decoded Bytes32
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, b32, decoded)
}

func TestBlake2b(t *testing.T) {
	// chunking must not matter
	assert.Equal(t, Blake2b([]byte("capstan")), Blake2b([]byte("cap"), []byte("stan")))
	assert.NotEqual(t, Blake2b([]byte("a")), Blake2b([]byte("b")))
	assert.False(t, Blake2b(nil).IsZero())
}

func TestEpochMath(t *testing.T) {
	const week = DefaultEpochLength

	start := EpochStart(week, 1700000000)
	assert.Equal(t, uint64(0), start%week)
	assert.LessOrEqual(t, start, uint64(1700000000))
	assert.Less(t, uint64(1700000000)-start, week)

	assert.Equal(t, start, EpochStart(week, start))
	assert.Equal(t, start+week, EpochNext(week, start))
	assert.Equal(t, start+week-1, EpochEnd(week, start))
	assert.Equal(t, start, EpochStart(week, EpochEnd(week, start)))
}
