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

package partition

import (
	"fmt"

	"github.com/erigontech/merkledb/bloom"
	"github.com/erigontech/merkledb/family"
	"github.com/erigontech/merkledb/key"
	"github.com/erigontech/merkledb/record"
	"github.com/erigontech/merkledb/store"
	"github.com/erigontech/merkledb/tablet"
)

// FromRecords builds a single partition from records (§4.6): tombstones
// are stripped, records sorted and de-duplicated (last write wins) unless
// presorted is true, then split into per-family tablets and persisted.
// Returns (nil, nil) if records contains no surviving records — callers
// suppress a nil result rather than emit an empty partition.
func FromRecords(st store.Store, p Params, records []record.Entry, presorted bool) (*Emitted, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	keyed := record.RemoveTombstones(records)
	if !presorted {
		keyed = sortDedup(keyed)
	}
	return fromKeyed(st, p, keyed)
}

// fromKeyed is FromRecords from step 2 onward (§4.6 steps 2-7): keyed is
// assumed already tombstone-free, sorted, and de-duplicated.
func fromKeyed(st store.Store, p Params, keyed []record.Keyed) (*Emitted, error) {
	if len(keyed) > p.Limit {
		return nil, &OverflowError{Count: len(keyed), Limit: p.Limit}
	}
	if len(keyed) == 0 {
		return nil, nil
	}

	perFamily := family.SplitData(p.Families, keyed)
	tablets := make(map[string]store.Link, len(p.Families.Families)+1)
	for _, name := range p.Families.Names() {
		frags := perFamily[name]
		t := tablet.FromRecords(frags, true)
		if name != family.Base {
			t = t.Prune()
			if t.IsEmpty() {
				continue
			}
		}
		link, err := persistTablet(st, t)
		if err != nil {
			return nil, fmt.Errorf("partition: from records: %w", err)
		}
		tablets[name] = link
	}

	membership, err := bloom.New(uint64(p.Limit), p.BloomFPR)
	if err != nil {
		return nil, fmt.Errorf("partition: from records: %w", err)
	}
	for _, k := range keyed {
		membership.Insert(k.Key)
	}

	part := &Partition{
		Limit:      p.Limit,
		Tablets:    tablets,
		Membership: membership,
		Count:      len(keyed),
		Families:   p.Families,
		FirstKey:   keyed[0].Key,
		LastKey:    keyed[len(keyed)-1].Key,
	}
	link, err := persistPartition(st, part)
	if err != nil {
		return nil, fmt.Errorf("partition: from records: %w", err)
	}
	return &Emitted{Link: link, Partition: part}, nil
}

// PartitionRecords splits records into the fewest approximately-equal
// chunks no larger than p.Limit (PartitionLimited) and calls FromRecords
// on each.
func PartitionRecords(st store.Store, p Params, records []record.Entry, presorted bool) ([]Emitted, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	keyed := record.RemoveTombstones(records)
	if !presorted {
		keyed = sortDedup(keyed)
	}
	return partitionKeyed(st, p, keyed)
}

func partitionKeyed(st store.Store, p Params, keyed []record.Keyed) ([]Emitted, error) {
	chunks := PartitionLimited(p.Limit, keyed)
	out := make([]Emitted, 0, len(chunks))
	for _, chunk := range chunks {
		em, err := fromKeyed(st, p, chunk)
		if err != nil {
			return nil, err
		}
		if em != nil {
			out = append(out, *em)
		}
	}
	return out, nil
}

// PartitionLimited returns the fewest approximately-equal groups of coll
// such that no group exceeds limit: with n = ceil(len(coll)/limit), group
// boundaries fall at floor(i*len(coll)/n) for i in 0..n. Group sizes
// differ by at most 1; order is preserved.
func PartitionLimited[T any](limit int, coll []T) [][]T {
	count := len(coll)
	if count == 0 {
		return nil
	}
	n := key.CeilDiv(count, limit)
	groups := make([][]T, 0, n)
	for i := 0; i < n; i++ {
		lo := i * count / n
		hi := (i + 1) * count / n
		groups = append(groups, coll[lo:hi])
	}
	return groups
}

// sortDedup sorts keyed by key and drops earlier duplicates (last write
// wins), reusing tablet's own ordering logic rather than duplicating it.
func sortDedup(keyed []record.Keyed) []record.Keyed {
	return tablet.FromRecords(keyed, false).Entries()
}
