// Copyright 2021 The go-ethereum Authors
// (original work)
// Copyright 2024 The Erigon Authors
// (modifications)
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package bloom

import "math"

// DefaultFPR is the false-positive target used when a caller does not
// override it (§6 configuration table).
const DefaultFPR = 0.01

// sizeParams approximates the standard closed-form bit-length (m) and
// hash-count (k) for a Bloom filter holding up to capacity keys at false
// positive rate fpr:
//
//	m = ceil(-capacity * ln(fpr) / ln(2)^2)
//	k = max(1, round(m/capacity * ln(2)))
func sizeParams(capacity uint64, fpr float64) (m, k uint64) {
	if capacity == 0 {
		capacity = 1
	}
	if fpr <= 0 || fpr >= 1 {
		fpr = DefaultFPR
	}
	ln2 := math.Ln2
	mf := math.Ceil(-float64(capacity) * math.Log(fpr) / (ln2 * ln2))
	if mf < 1 {
		mf = 1
	}
	kf := math.Round(mf / float64(capacity) * ln2)
	if kf < 1 {
		kf = 1
	}
	return uint64(mf), uint64(kf)
}
