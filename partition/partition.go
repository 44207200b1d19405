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

// Package partition implements the partition node (C6) and the partition
// update engine (C7) — the core of this module: given an ordered sequence
// of existing partitions and per-partition patch changes, it produces a
// new ordered sequence of valid partitions, merging, splitting, and
// borrowing records as needed to keep every partition at least half full
// and at most full.
package partition

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/erigontech/merkledb/bloom"
	"github.com/erigontech/merkledb/family"
	"github.com/erigontech/merkledb/key"
	"github.com/erigontech/merkledb/store"
)

// Partition is the immutable node described in §3: metadata plus links to
// the per-family tablets that hold its records.
type Partition struct {
	Limit      int
	Tablets    map[string]store.Link
	Membership *bloom.Filter
	Count      int
	Families   family.Layout
	FirstKey   key.Key
	LastKey    key.Key
}

// Emitted pairs a persisted partition with the content address it was
// stored at.
type Emitted struct {
	Link      store.Link
	Partition *Partition
}

// Params configures the engine (§6).
type Params struct {
	// Limit is the maximum number of records a partition may hold. Must be >= 2.
	Limit int
	// Families is the field-family partitioning used when building tablets.
	Families family.Layout
	// BloomFPR is the false-positive target for the membership filter.
	BloomFPR float64
	// Logger receives debug-level engine decisions; nil uses a no-op logger.
	Logger *zap.SugaredLogger
}

// DefaultParams returns Limit: 10000, BloomFPR: bloom.DefaultFPR, no families
// (everything in base), matching §6's configuration defaults.
func DefaultParams() Params {
	return Params{Limit: 10000, BloomFPR: bloom.DefaultFPR}
}

func (p Params) halfFull() int       { return key.CeilDiv(p.Limit, 2) }
func (p Params) emitThreshold() int  { return p.Limit + p.halfFull() }
func (p Params) emitSize() int       { return p.Limit }
func (p Params) log() *zap.SugaredLogger {
	if p.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return p.Logger
}

func (p Params) validate() error {
	if p.Limit < 2 {
		return fmt.Errorf("partition: limit must be >= 2, got %d", p.Limit)
	}
	return nil
}

// OverflowError is returned when a caller attempts to build a partition
// holding more than Limit records (§7 PartitionOverflow).
type OverflowError struct {
	Count int
	Limit int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("partition: overflow: %d records exceeds limit %d", e.Count, e.Limit)
}
