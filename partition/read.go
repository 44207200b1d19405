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
	"container/heap"
	"fmt"
	"iter"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/erigontech/merkledb/family"
	"github.com/erigontech/merkledb/key"
	"github.com/erigontech/merkledb/record"
	"github.com/erigontech/merkledb/store"
	"github.com/erigontech/merkledb/tablet"
)

// chooseTablets implements §4.8 step 1: which family tablets must be read
// to answer a projection onto fields. An empty fields set means "every
// field", which reads every tablet the partition has.
func chooseTablets(layout family.Layout, fields mapset.Set[string]) []string {
	if fields == nil || fields.Cardinality() == 0 {
		return layout.Names()
	}
	chosen := mapset.NewThreadUnsafeSet[string]()
	covered := mapset.NewThreadUnsafeSet[string]()
	for _, name := range layout.Names() {
		if name == family.Base {
			continue
		}
		famFields := layout.Fields(name)
		if famFields == nil {
			continue
		}
		if famFields.Intersect(fields).Cardinality() > 0 {
			chosen.Add(name)
			covered = covered.Union(famFields)
		}
	}
	if !fields.IsSubset(covered) {
		chosen.Add(family.Base)
	}
	return chosen.ToSlice()
}

// loadChosenTablets loads every tablet in names that part actually stores
// (a family with no surviving records in this partition has no tablet).
func loadChosenTablets(st store.Store, part *Partition, names []string) (map[string]tablet.Tablet, error) {
	out := make(map[string]tablet.Tablet, len(names))
	for _, name := range names {
		link, ok := part.Tablets[name]
		if !ok {
			continue
		}
		t, err := loadTablet(st, link)
		if err != nil {
			return nil, fmt.Errorf("partition: read: %w", err)
		}
		out[name] = t
	}
	return out, nil
}

// mergeSeqs performs the k-way streaming merge of §4.8 step 3: at each
// step it finds the minimum current key across every non-exhausted
// sequence and unions the fragments from every sequence whose head is at
// that key. The order in which those families are unioned is not defined,
// so on a field-name collision either value may win (§4.8 notes this
// cannot happen in practice since families partition fields).
func mergeSeqs(seqs map[string]iter.Seq2[key.Key, record.Record]) iter.Seq2[key.Key, record.Record] {
	return func(yield func(key.Key, record.Record) bool) {
		h := &mergeHeap{}
		pulls := make(map[string]func() (key.Key, record.Record, bool))
		stops := make([]func(), 0, len(seqs))
		for name, seq := range seqs {
			next, stop := iter.Pull2(seq)
			stops = append(stops, stop)
			pulls[name] = next
			if k, frag, ok := next(); ok {
				heap.Push(h, headItem{name: name, key: k, frag: frag})
			}
		}
		defer func() {
			for _, stop := range stops {
				stop()
			}
		}()

		for h.Len() > 0 {
			minKey := (*h)[0].key
			merged := make(record.Record)
			var names []string
			for h.Len() > 0 && key.Equal((*h)[0].key, minKey) {
				item := heap.Pop(h).(headItem)
				names = append(names, item.name)
				for f, v := range item.frag {
					merged[f] = v
				}
			}
			if !yield(minKey, merged) {
				return
			}
			for _, name := range names {
				if k, frag, ok := pulls[name](); ok {
					heap.Push(h, headItem{name: name, key: k, frag: frag})
				}
			}
		}
	}
}

type headItem struct {
	name string
	key  key.Key
	frag record.Record
}

type mergeHeap []headItem

func (h mergeHeap) Len() int            { return len(h) }
func (h mergeHeap) Less(i, j int) bool  { return key.Less(h[i].key, h[j].key) }
func (h mergeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x any)         { *h = append(*h, x.(headItem)) }
func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func project(seq iter.Seq2[key.Key, record.Record], fields mapset.Set[string]) iter.Seq2[key.Key, record.Record] {
	if fields == nil || fields.Cardinality() == 0 {
		return seq
	}
	return func(yield func(key.Key, record.Record) bool) {
		for k, frag := range seq {
			projected := make(record.Record)
			for f, v := range frag {
				if fields.Contains(f) {
					projected[f] = v
				}
			}
			if projected.Empty() {
				continue
			}
			if !yield(k, projected) {
				return
			}
		}
	}
}

// ReadAll implements §4.8's read_all: every record, optionally projected
// onto fields (empty/nil fields means every field).
func ReadAll(st store.Store, part *Partition, fields mapset.Set[string]) (iter.Seq2[key.Key, record.Record], error) {
	names := chooseTablets(part.Families, fields)
	tablets, err := loadChosenTablets(st, part, names)
	if err != nil {
		return nil, err
	}
	seqs := make(map[string]iter.Seq2[key.Key, record.Record], len(tablets))
	for name, t := range tablets {
		seqs[name] = t.ReadAll()
	}
	return project(mergeSeqs(seqs), fields), nil
}

// ReadRange implements read_range: like ReadAll but restricted to [lo, hi]
// (inclusive; nil bound is open).
func ReadRange(st store.Store, part *Partition, fields mapset.Set[string], lo, hi key.Key) (iter.Seq2[key.Key, record.Record], error) {
	names := chooseTablets(part.Families, fields)
	tablets, err := loadChosenTablets(st, part, names)
	if err != nil {
		return nil, err
	}
	seqs := make(map[string]iter.Seq2[key.Key, record.Record], len(tablets))
	for name, t := range tablets {
		seqs[name] = t.ReadRange(lo, hi)
	}
	return project(mergeSeqs(seqs), fields), nil
}

// ReadBatch implements read_batch: like ReadAll but restricted to keys.
// Keys are pre-filtered through the membership filter (one-sided negative
// pruning) before any tablet is consulted.
func ReadBatch(st store.Store, part *Partition, fields mapset.Set[string], keys []key.Key) (iter.Seq2[key.Key, record.Record], error) {
	possible := make([]key.Key, 0, len(keys))
	for _, k := range keys {
		if part.Membership.Contains(k) {
			possible = append(possible, k)
		}
	}
	names := chooseTablets(part.Families, fields)
	tablets, err := loadChosenTablets(st, part, names)
	if err != nil {
		return nil, err
	}
	seqs := make(map[string]iter.Seq2[key.Key, record.Record], len(tablets))
	for name, t := range tablets {
		seqs[name] = t.ReadBatch(possible)
	}
	return project(mergeSeqs(seqs), fields), nil
}

// ReadAllMerged reads every field of every family and returns the result
// as a single virtual tablet of whole records — the representation the
// update engine (§4.7) works with when it loads a linked partition.
func ReadAllMerged(st store.Store, part *Partition) (tablet.Tablet, error) {
	seq, err := ReadAll(st, part, nil)
	if err != nil {
		return tablet.Tablet{}, err
	}
	var entries []record.Keyed
	for k, rec := range seq {
		entries = append(entries, record.Keyed{Key: key.Clone(k), Fields: rec})
	}
	return tablet.FromRecords(entries, true), nil
}
