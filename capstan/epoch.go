// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package capstan

// Epochs are fixed-length windows over unix time. Every stage of the
// settlement pipeline keys its bookkeeping by the start timestamp of
// the window it ran in. length must be positive.

// EpochStart returns the start timestamp of the epoch containing ts.
func EpochStart(length, ts uint64) uint64 {
	return ts - ts%length
}

// EpochNext returns the start timestamp of the epoch after the one containing ts.
func EpochNext(length, ts uint64) uint64 {
	return EpochStart(length, ts) + length
}

// EpochEnd returns the last second of the epoch containing ts.
func EpochEnd(length, ts uint64) uint64 {
	return EpochNext(length, ts) - 1
}
