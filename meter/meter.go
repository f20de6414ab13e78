// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package meter bounds the work a single stage call may perform.
package meter

import (
	"fmt"
	"sort"
	"strings"
)

// Meter tracks units of work spent against a per-call budget.
// A budget of zero lifts the bound.
type Meter struct {
	budget  uint64
	spent   uint64
	byLabel map[string]uint64
}

// New creates a meter with the given budget.
func New(budget uint64) *Meter {
	return &Meter{
		budget:  budget,
		byLabel: make(map[string]uint64),
	}
}

// Spend consumes units of work under the given label. It returns false,
// spending nothing, if the budget would be exceeded.
func (m *Meter) Spend(label string, units uint64) bool {
	if m.budget > 0 && m.spent+units > m.budget {
		return false
	}
	m.spent += units
	m.byLabel[label] += units
	return true
}

// Spent returns the units consumed so far.
func (m *Meter) Spent() uint64 {
	return m.spent
}

// Exhausted reports whether not even one more unit fits.
func (m *Meter) Exhausted() bool {
	return m.budget > 0 && m.spent >= m.budget
}

// Breakdown renders the per-label spending for logs.
func (m *Meter) Breakdown() string {
	labels := make([]string, 0, len(m.byLabel))
	for l := range m.byLabel {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	var b strings.Builder
	for _, l := range labels {
		fmt.Fprintf(&b, "%s: %d | ", l, m.byLabel[l])
	}
	fmt.Fprintf(&b, "TOTAL: %d", m.spent)
	return b.String()
}
