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

// Package bloom implements the membership filter (C3): a probabilistic set
// over record keys used to prune reads. It has one-sided error: it never
// reports a present key as absent, but may report an absent key as present.
package bloom

import (
	"fmt"
	"hash/fnv"

	"github.com/holiman/bloomfilter/v2"

	"github.com/erigontech/merkledb/key"
)

// Filter is a Bloom-style membership set over record keys.
type Filter struct {
	f *bloomfilter.Filter
}

// New creates a filter sized for capacity keys at the given false-positive
// rate (pass DefaultFPR for the configured default).
func New(capacity uint64, fpr float64) (*Filter, error) {
	m, k := sizeParams(capacity, fpr)
	// Fixed, distinct hash keys (instead of bloomfilter.New's random ones)
	// so that filters over the same keys serialize to the same bytes.
	keys := make([]uint64, k)
	for i := range keys {
		keys[i] = (uint64(i) + 1) * 0x9E3779B97F4A7C15
	}
	f, err := bloomfilter.NewWithKeys(m, keys)
	if err != nil {
		return nil, fmt.Errorf("bloom: %w", err)
	}
	return &Filter{f: f}, nil
}

// Insert adds k to the filter.
func (f *Filter) Insert(k key.Key) {
	f.f.Add(hashable(k))
}

// Contains reports whether k may be a member: false is a reliable
// negative, true is not a reliable positive.
func (f *Filter) Contains(k key.Key) bool {
	return f.f.Contains(hashable(k))
}

// MarshalBinary serializes the filter deterministically, so identical
// contents produce identical content addresses.
func (f *Filter) MarshalBinary() ([]byte, error) {
	return f.f.MarshalBinary()
}

// UnmarshalBinary restores a filter previously produced by MarshalBinary.
func UnmarshalBinary(data []byte) (*Filter, error) {
	f := &bloomfilter.Filter{}
	if err := f.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("bloom: %w", err)
	}
	return &Filter{f: f}, nil
}

// hashable adapts a Key to bloomfilter.Hashable (hash.Hash64) via FNV-1a,
// which is what the library double-hashes internally to derive its k
// index positions.
func hashable(k key.Key) bloomfilter.Hashable {
	h := fnv.New64a()
	_, _ = h.Write(k)
	return h
}
