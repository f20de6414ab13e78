// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package meter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeter_Budget(t *testing.T) {
	m := New(3)

	assert.True(t, m.Spend("voter", 1))
	assert.True(t, m.Spend("voter", 1))
	assert.False(t, m.Exhausted())
	assert.True(t, m.Spend("gauge", 1))
	assert.True(t, m.Exhausted())

	// exceeding spends nothing
	assert.False(t, m.Spend("gauge", 1))
	assert.Equal(t, uint64(3), m.Spent())
}

func TestMeter_Unbounded(t *testing.T) {
	m := New(0)
	for i := 0; i < 10000; i++ {
		assert.True(t, m.Spend("voter", 1))
	}
	assert.False(t, m.Exhausted())
	assert.Equal(t, uint64(10000), m.Spent())
}

func TestMeter_Breakdown(t *testing.T) {
	m := New(10)
	m.Spend("voter", 2)
	m.Spend("gauge", 1)
	assert.Equal(t, "gauge: 1 | voter: 2 | TOTAL: 3", m.Breakdown())
}
