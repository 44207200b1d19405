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
	"encoding/gob"
	"fmt"

	"github.com/erigontech/merkledb/bloom"
	"github.com/erigontech/merkledb/family"
	"github.com/erigontech/merkledb/key"
	"github.com/erigontech/merkledb/record"
	"github.com/erigontech/merkledb/store"
	"github.com/erigontech/merkledb/tablet"
)

// The partition node wire shape (§6): a flat, gob-safe projection of
// Partition. Partition itself holds live values (*bloom.Filter,
// family.Layout) that are not directly gob-encodable, so persistence goes
// through this type at the store boundary.
type wireNode struct {
	Limit      int
	Tablets    map[string]store.Link
	Membership []byte
	Count      int
	Families   map[string][]string
	FirstKey   []byte
	LastKey    []byte
}

type wireTablet struct {
	Entries []wireEntry
}

type wireEntry struct {
	Key    []byte
	Fields map[string]any
}

func init() {
	gob.Register(wireNode{})
	gob.Register(wireTablet{})
	gob.Register(store.Link{})
	gob.Register(int(0))
	gob.Register(int64(0))
	gob.Register(uint64(0))
	gob.Register("")
	gob.Register(float64(0))
	gob.Register(false)
	gob.Register([]byte(nil))
}

func persistTablet(st store.Store, t tablet.Tablet) (store.Link, error) {
	entries := t.Entries()
	wireEntries := make([]wireEntry, len(entries))
	for i, e := range entries {
		wireEntries[i] = wireEntry{Key: []byte(e.Key), Fields: map[string]any(e.Fields)}
	}
	return st.StoreNode(nil, wireTablet{Entries: wireEntries})
}

func loadTablet(st store.Store, link store.Link) (tablet.Tablet, error) {
	data, err := st.GetData(link)
	if err != nil {
		return tablet.Tablet{}, fmt.Errorf("partition: load tablet: %w", err)
	}
	wt, ok := data.(wireTablet)
	if !ok {
		return tablet.Tablet{}, fmt.Errorf("partition: load tablet: %w", store.ErrCorruptNode)
	}
	entries := make([]record.Keyed, len(wt.Entries))
	for i, e := range wt.Entries {
		if i > 0 && !key.Less(key.Key(wt.Entries[i-1].Key), key.Key(e.Key)) {
			return tablet.Tablet{}, fmt.Errorf("partition: load tablet: %w", tablet.ErrCorrupt)
		}
		entries[i] = record.Keyed{Key: key.Key(e.Key), Fields: record.Record(e.Fields)}
	}
	return tablet.FromRecords(entries, true), nil
}

func persistPartition(st store.Store, part *Partition) (store.Link, error) {
	membershipBytes, err := part.Membership.MarshalBinary()
	if err != nil {
		return store.Link{}, fmt.Errorf("partition: marshal membership: %w", err)
	}
	links := make([]store.Link, 0, len(part.Tablets))
	for name, l := range part.Tablets {
		links = append(links, st.Link(name, l))
	}
	wire := wireNode{
		Limit:      part.Limit,
		Tablets:    part.Tablets,
		Membership: membershipBytes,
		Count:      part.Count,
		Families:   part.Families.ToWire(),
		FirstKey:   []byte(part.FirstKey),
		LastKey:    []byte(part.LastKey),
	}
	return st.StoreNode(links, wire)
}

func loadPartition(st store.Store, link store.Link) (*Partition, error) {
	data, err := st.GetData(link)
	if err != nil {
		return nil, fmt.Errorf("partition: load: %w", err)
	}
	w, ok := data.(wireNode)
	if !ok {
		return nil, fmt.Errorf("partition: load: %w", store.ErrCorruptNode)
	}
	membership, err := bloom.UnmarshalBinary(w.Membership)
	if err != nil {
		return nil, fmt.Errorf("partition: load: membership: %w", err)
	}
	if _, ok := w.Tablets[family.Base]; !ok {
		return nil, fmt.Errorf("partition: load: %w: missing base tablet", store.ErrCorruptNode)
	}
	return &Partition{
		Limit:      w.Limit,
		Tablets:    w.Tablets,
		Membership: membership,
		Count:      w.Count,
		Families:   family.FromWire(w.Families),
		FirstKey:   key.Key(w.FirstKey),
		LastKey:    key.Key(w.LastKey),
	}, nil
}
