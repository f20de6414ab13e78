// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package cache

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestGetOrLoad(t *testing.T) {
	c, err := NewLRU(2)
	assert.Nil(t, err)

	loads := 0
	loader := func(key interface{}) (interface{}, error) {
		loads++
		return key.(int) * 10, nil
	}

	v, err := c.GetOrLoad(1, loader)
	assert.Nil(t, err)
	assert.Equal(t, 10, v)

	v, err = c.GetOrLoad(1, loader)
	assert.Nil(t, err)
	assert.Equal(t, 10, v)
	assert.Equal(t, 1, loads)

	_, err = c.GetOrLoad(2, func(interface{}) (interface{}, error) {
		return nil, errors.New("load failed")
	})
	assert.Error(t, err)
	_, ok := c.Get(2)
	assert.False(t, ok)
}
