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

func TestParseAddress(t *testing.T) {
	tests := []struct {
		input string
		ok    bool
	}{
		{"0x0000000000000000000000000000476175676573", true},
		{"0000000000000000000000000000476175676573", true},
		{"0X0000000000000000000000000000476175676573", true},
		{"0x00000000000000000000000000004761756765", false},  // short
		{"zx0000000000000000000000000000476175676573", false}, // bad prefix
		{"0x000000000000000000000000000047617567657g", false}, // bad hex
		{"", false},
	}
	for _, tt := range tests {
		addr, err := ParseAddress(tt.input)
		if tt.ok {
			require.NoError(t, err, tt.input)
			assert.Equal(t, GaugesAddress, addr)
		} else {
			assert.Error(t, err, tt.input)
		}
	}
}

func TestAddressJSON(t *testing.T) {
	addr := BytesToAddress([]byte("holder"))
	data, err := json.Marshal(&addr)
	require.NoError(t, err)
	assert.Equal(t, `"`+addr.String()+`"`, string(data))

	var decoded Address
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, addr, decoded)
}

func TestAddressIsZero(t *testing.T) {
	assert.True(t, Address{}.IsZero())
	assert.False(t, CoreAddress.IsZero())
}

func TestBytesToAddress(t *testing.T) {
	// cropped from the left
	long := make([]byte, 32)
	long[11] = 0xff
	long[31] = 0x01
	assert.Equal(t, byte(0x01), BytesToAddress(long)[19])
	assert.Equal(t, byte(0x00), BytesToAddress(long)[0])

	// extended from the left
	assert.Equal(t, MustParseAddress("0x0000000000000000000000000000000000000001"), BytesToAddress([]byte{1}))
}
