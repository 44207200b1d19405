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

// Package rebuild drives a bulk build of an entire table from a full record
// source: it chunks the source into partition-sized groups and calls the
// partition engine on each, logging progress as it goes.
package rebuild

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/erigontech/merkledb/partition"
	"github.com/erigontech/merkledb/record"
	"github.com/erigontech/merkledb/store"
)

// Source yields every surviving record of a table in no particular order;
// Build sorts and de-duplicates internally. Implementations typically wrap
// a full table scan of an upstream data source.
type Source interface {
	Next() (record.Entry, bool, error)
}

// SliceSource adapts an in-memory slice to Source, mainly for tests and
// small one-shot rebuilds.
type SliceSource struct {
	entries []record.Entry
	pos     int
}

// NewSliceSource wraps entries as a Source.
func NewSliceSource(entries []record.Entry) *SliceSource {
	return &SliceSource{entries: entries}
}

func (s *SliceSource) Next() (record.Entry, bool, error) {
	if s.pos >= len(s.entries) {
		return record.Entry{}, false, nil
	}
	e := s.entries[s.pos]
	s.pos++
	return e, true, nil
}

// Result is a completed rebuild: the ordered list of emitted partitions
// covering the whole key range, plus how many non-tombstone records the
// source yielded (duplicate keys are each counted).
type Result struct {
	Partitions []partition.Emitted
	Records    int
}

const progressInterval = 5 * time.Second

// Build drains src fully into memory, then builds the table from scratch via
// the partition engine (§4.6), logging progress periodically. It is meant
// for cold starts and full rebuilds, not incremental updates — callers with
// an existing tree should drive partition.UpdatePartitions instead.
func Build(ctx context.Context, st store.Store, p partition.Params, src Source) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log := p.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	var entries []record.Entry
	lastLog := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		e, ok, err := src.Next()
		if err != nil {
			return nil, fmt.Errorf("rebuild: read source: %w", err)
		}
		if !ok {
			break
		}
		entries = append(entries, e)
		if time.Since(lastLog) > progressInterval {
			log.Infow("rebuild: scanning source", "records", len(entries))
			lastLog = time.Now()
		}
	}
	log.Infow("rebuild: source scan complete", "records", len(entries))

	parts, err := partition.PartitionRecords(st, p, entries, false)
	if err != nil {
		return nil, fmt.Errorf("rebuild: partition records: %w", err)
	}
	log.Infow("rebuild: complete", "partitions", len(parts))

	return &Result{Partitions: parts, Records: len(record.RemoveTombstones(entries))}, nil
}
