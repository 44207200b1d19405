// Copyright 2021 The Erigon Authors
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

// Package family implements the record/family layout (C4): splitting a
// record into the per-column-family fragments a partition stores as
// separate tablets.
//
// Naming mirrors erigon-lib/kv's table-name constants: each family is a
// plain string name, with one reserved name (Base) that collects every
// field not claimed by another family.
package family

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/erigontech/merkledb/record"
)

// Base is the reserved family that holds any field not claimed by a named
// family. A base tablet is required on every partition (invariant 4).
const Base = "base"

// Layout is the family -> set<field> mapping used when a partition was
// built (record/families, wire field `record/families`).
type Layout struct {
	Families map[string]mapset.Set[string]
}

// NewLayout builds a Layout from a plain field-name mapping, e.g.
//
//	NewLayout(map[string][]string{"ab": {"a", "b"}, "cd": {"c", "d"}})
func NewLayout(families map[string][]string) Layout {
	l := Layout{Families: make(map[string]mapset.Set[string], len(families))}
	for name, fields := range families {
		if name == Base {
			continue // base is implicit, never declared explicitly
		}
		l.Families[name] = mapset.NewThreadUnsafeSet(fields...)
	}
	return l
}

// FamilyOf returns the family that owns field, or Base if no named family
// claims it.
func (l Layout) FamilyOf(field string) string {
	for name, fields := range l.Families {
		if fields.Contains(field) {
			return name
		}
	}
	return Base
}

// Names returns every family name this layout may produce, Base included,
// sorted for deterministic iteration.
func (l Layout) Names() []string {
	names := make([]string, 0, len(l.Families)+1)
	names = append(names, Base)
	for name := range l.Families {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Fields returns the field set claimed by family (nil for Base: Base's
// membership is computed, not declared).
func (l Layout) Fields(familyName string) mapset.Set[string] {
	return l.Families[familyName]
}

// ToWire returns the plain-slice form of the layout (record/families on
// the wire, §6), suitable for a gob-safe partition node representation.
func (l Layout) ToWire() map[string][]string {
	out := make(map[string][]string, len(l.Families))
	for name, fields := range l.Families {
		list := fields.ToSlice()
		sort.Strings(list)
		out[name] = list
	}
	return out
}

// FromWire reconstructs a Layout from its wire form.
func FromWire(w map[string][]string) Layout {
	return NewLayout(w)
}

// SplitData splits each surviving record into one fragment per family: for
// each record, every non-base family gets exactly the fields it claims,
// and base collects whatever is left over. A fragment that would be empty
// is omitted, except base, which is always emitted for any surviving key.
func SplitData(layout Layout, records []record.Keyed) map[string][]record.Keyed {
	out := make(map[string][]record.Keyed, len(layout.Families)+1)
	for _, rec := range records {
		baseFields := make(record.Record)
		byFamily := make(map[string]record.Record, len(layout.Families))

		for field, value := range rec.Fields {
			name := layout.FamilyOf(field)
			if name == Base {
				baseFields[field] = value
				continue
			}
			frag, ok := byFamily[name]
			if !ok {
				frag = make(record.Record)
				byFamily[name] = frag
			}
			frag[field] = value
		}

		out[Base] = append(out[Base], record.Keyed{Key: rec.Key, Fields: baseFields})
		for name, frag := range byFamily {
			if frag.Empty() {
				continue
			}
			out[name] = append(out[name], record.Keyed{Key: rec.Key, Fields: frag})
		}
	}
	return out
}
