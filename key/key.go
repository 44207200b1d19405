// Copyright 2024 The Erigon Authors
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

// Package key implements the totally ordered, byte-lexicographic record key
// used throughout the partition engine (C1).
package key

import "bytes"

// Key is an opaque, totally ordered byte string. Two keys are equal iff
// their byte sequences are equal; all comparisons are lexicographic.
type Key []byte

// Compare returns -1, 0, or 1 as a is less than, equal to, or greater than b.
// A shorter key that is a prefix of a longer one sorts first.
func Compare(a, b Key) int {
	return bytes.Compare(a, b)
}

// Equal reports whether a and b are the same byte sequence.
func Equal(a, b Key) bool {
	return bytes.Equal(a, b)
}

// Less reports whether a sorts strictly before b.
func Less(a, b Key) bool {
	return Compare(a, b) < 0
}

// Before is an alias of Less kept for parity with the spec's `before?`.
func Before(a, b Key) bool { return Less(a, b) }

// After reports whether a sorts strictly after b.
func After(a, b Key) bool { return Less(b, a) }

// Min returns the smallest key among ks. Panics if ks is empty.
func Min(ks ...Key) Key {
	m := ks[0]
	for _, k := range ks[1:] {
		if Less(k, m) {
			m = k
		}
	}
	return m
}

// Max returns the largest key among ks. Panics if ks is empty.
func Max(ks ...Key) Key {
	m := ks[0]
	for _, k := range ks[1:] {
		if Less(m, k) {
			m = k
		}
	}
	return m
}

// Clone returns an independent copy of k.
func Clone(k Key) Key {
	if k == nil {
		return nil
	}
	out := make(Key, len(k))
	copy(out, k)
	return out
}
