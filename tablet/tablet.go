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

// Package tablet implements the immutable, sorted key->fragment map (C2)
// that backs a single column family of a partition.
//
// A Tablet wraps a tidwall/btree.BTreeG, whose O(1) Copy() gives Update
// and Join the "returns a new value, the old one is untouched" semantics
// §3/§9 require without a full rebuild; Prune builds a fresh tree instead.
package tablet

import (
	"errors"
	"iter"
	"sort"

	"github.com/tidwall/btree"

	"github.com/erigontech/merkledb/key"
	"github.com/erigontech/merkledb/record"
)

// ErrCorrupt is returned when a deserialized tablet violates key ordering.
var ErrCorrupt = errors.New("tablet: corrupt (ordering violated)")

type entry struct {
	key  key.Key
	data record.Record
}

func less(a, b entry) bool { return key.Less(a.key, b.key) }

// Tablet is an immutable, sorted mapping from key to partial record.
type Tablet struct {
	tr *btree.BTreeG[entry]
}

// Empty returns a Tablet with no entries.
func Empty() Tablet {
	return Tablet{tr: btree.NewBTreeG(less)}
}

// FromRecords builds a tablet from an iterable of (key, fragment) pairs,
// sorting and de-duplicating (last write wins per key) unless presorted is
// true, in which case the caller attests entries already arrive in
// strictly ascending key order with no duplicates.
func FromRecords(entries []record.Keyed, presorted bool) Tablet {
	if !presorted {
		entries = sortAndDedup(entries)
	}
	tr := btree.NewBTreeG(less)
	for _, e := range entries {
		tr.Set(entry{key: e.Key, data: e.Fields})
	}
	return Tablet{tr: tr}
}

func sortAndDedup(entries []record.Keyed) []record.Keyed {
	sorted := make([]record.Keyed, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return key.Less(sorted[i].Key, sorted[j].Key) })
	out := sorted[:0:0]
	for i, e := range sorted {
		if i+1 < len(sorted) && key.Equal(sorted[i+1].Key, e.Key) {
			continue // a later duplicate wins
		}
		out = append(out, e)
	}
	return out
}

// Count returns the number of keys in the tablet.
func (t Tablet) Count() int {
	if t.tr == nil {
		return 0
	}
	return t.tr.Len()
}

// IsEmpty reports whether the tablet has no entries.
func (t Tablet) IsEmpty() bool { return t.Count() == 0 }

// Entries dumps the tablet's contents in ascending key order, for callers
// (the object store codec boundary) that need a flat, serializable form.
func (t Tablet) Entries() []record.Keyed {
	if t.Count() == 0 {
		return nil
	}
	out := make([]record.Keyed, 0, t.tr.Len())
	t.tr.Scan(func(e entry) bool {
		out = append(out, record.Keyed{Key: e.key, Fields: e.data})
		return true
	})
	return out
}

// ReadAll returns a lazy, ordered sequence over every (key, fragment) pair.
func (t Tablet) ReadAll() iter.Seq2[key.Key, record.Record] {
	return func(yield func(key.Key, record.Record) bool) {
		if t.tr == nil {
			return
		}
		t.tr.Scan(func(e entry) bool {
			return yield(e.key, e.data)
		})
	}
}

// ReadRange returns a lazy, ordered sequence over keys in [lo, hi]
// (inclusive); nil lo/hi means an open bound on that side.
func (t Tablet) ReadRange(lo, hi key.Key) iter.Seq2[key.Key, record.Record] {
	return func(yield func(key.Key, record.Record) bool) {
		if t.tr == nil {
			return
		}
		pivot := entry{key: lo}
		emit := func(e entry) bool {
			if hi != nil && key.Less(hi, e.key) {
				return false
			}
			return yield(e.key, e.data)
		}
		if lo == nil {
			t.tr.Scan(emit)
		} else {
			t.tr.Ascend(pivot, emit)
		}
	}
}

// ReadBatch returns a lazy, ordered sequence restricted to keys, in
// ascending key order regardless of the order keys was given in.
func (t Tablet) ReadBatch(keys []key.Key) iter.Seq2[key.Key, record.Record] {
	sorted := make([]key.Key, len(keys))
	copy(sorted, keys)
	sort.Slice(sorted, func(i, j int) bool { return key.Less(sorted[i], sorted[j]) })
	return func(yield func(key.Key, record.Record) bool) {
		if t.tr == nil {
			return
		}
		for _, k := range sorted {
			if e, ok := t.tr.Get(entry{key: k}); ok {
				if !yield(e.key, e.data) {
					return
				}
			}
		}
	}
}

// Update returns a tablet equal to deleting deletedKeys then unioning
// additions (additions win on collision), without mutating the receiver.
func (t Tablet) Update(additions []record.Keyed, deletedKeys []key.Key) Tablet {
	tr := t.tr
	if tr == nil {
		tr = btree.NewBTreeG(less)
	} else {
		tr = tr.Copy()
	}
	for _, k := range deletedKeys {
		tr.Delete(entry{key: k})
	}
	for _, a := range additions {
		tr.Set(entry{key: a.Key, data: a.Fields})
	}
	return Tablet{tr: tr}
}

// Join unions a and b; on key collision b's fragment wins.
func Join(a, b Tablet) Tablet {
	if a.tr == nil {
		return b
	}
	out := a.tr.Copy()
	if b.tr != nil {
		b.tr.Scan(func(e entry) bool {
			out.Set(e)
			return true
		})
	}
	return Tablet{tr: out}
}

// Prune removes fragments that are empty mappings. Intended for use on
// every non-base family tablet before persistence; the base tablet is left
// untouched so it remains authoritative on key existence.
func (t Tablet) Prune() Tablet {
	if t.tr == nil {
		return t
	}
	out := btree.NewBTreeG(less)
	t.tr.Scan(func(e entry) bool {
		if !e.data.Empty() {
			out.Set(e)
		}
		return true
	})
	return Tablet{tr: out}
}

// Equal reports whether t and other contain bitwise-identical (key,
// fragment) pairs, used to detect a no-op merge (t' == t).
func (t Tablet) Equal(other Tablet) bool {
	if t.Count() != other.Count() {
		return false
	}
	next, stop := iter.Pull2(other.ReadAll())
	defer stop()
	for k, frag := range t.ReadAll() {
		otherKey, otherFrag, valid := next()
		if !valid || !key.Equal(k, otherKey) || !recordEqual(frag, otherFrag) {
			return false
		}
	}
	_, _, hasMore := next()
	return !hasMore
}

func recordEqual(a, b record.Record) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		bv, ok := b[k]
		if !ok || bv != v {
			return false
		}
	}
	return true
}
