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

	"github.com/erigontech/merkledb/patch"
	"github.com/erigontech/merkledb/store"
	"github.com/erigontech/merkledb/tablet"
)

// Ref is the tagged "partition-or-virtual-tablet" variant of §9: a
// reference is either a link to a stored partition, or an in-memory
// virtual tablet that has not yet been persisted.
type Ref struct {
	link *store.Link
	virt *tablet.Tablet
}

// LinkRef wraps a stored partition's link.
func LinkRef(l store.Link) Ref { return Ref{link: &l} }

// VirtualRef wraps an in-memory, unpersisted tablet.
func VirtualRef(t tablet.Tablet) Ref { return Ref{virt: &t} }

// IsLink reports whether the ref points at a stored partition.
func (r Ref) IsLink() bool { return r.link != nil }

// IsVirtual reports whether the ref holds an in-memory tablet.
func (r Ref) IsVirtual() bool { return r.virt != nil }

// Input is one (partition-or-virtual-tablet, changes) tuple consumed by
// UpdatePartitions, in ascending first-key order.
type Input struct {
	Part    Ref
	Changes []patch.Change
}

// Result is the engine's output (§4.7): either the updated partition list
// (Partitions, possibly empty if every record was deleted), or — only
// when there is no result partition to carry it and the table's total
// surviving records fall below half_full — a single virtual tablet the
// caller must merge with a sibling subtree.
type Result struct {
	Partitions []Emitted
	Pending    *tablet.Tablet
}

// UpdatePartitions is the partition update engine (C7), the core of this
// module (§4.7). carry is an optional partition-or-virtual-tablet produced
// by a sibling subtree; inputs arrive in ascending first-key order.
func UpdatePartitions(st store.Store, p Params, carry *Ref, inputs []Input) (*Result, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	halfFull := p.halfFull()
	emitThreshold := p.emitThreshold()
	emitSize := p.emitSize()
	log := p.log()

	var result []Emitted
	var pending *tablet.Tablet

	if carry != nil {
		switch {
		case carry.IsVirtual():
			pending = carry.virt
		case carry.IsLink():
			emitted, pend, err := passThroughLink(st, p, halfFull, *carry.link)
			if err != nil {
				return nil, err
			}
			result = append(result, emitted...)
			pending = pend
		}
	}

	for i, in := range inputs {
		if pending == nil && len(in.Changes) == 0 {
			switch {
			case in.Part.IsLink():
				emitted, pend, err := passThroughLink(st, p, halfFull, *in.Part.link)
				if err != nil {
					return nil, err
				}
				result = append(result, emitted...)
				pending = pend
			case in.Part.IsVirtual():
				pending = in.Part.virt
			}
			continue
		}

		t, part, link, err := loadAsVirtual(st, in.Part)
		if err != nil {
			return nil, fmt.Errorf("partition: update: input %d: %w", i, err)
		}

		patched, changed := patch.Apply(t, in.Changes)
		if !changed {
			patched = t
		}

		var joined tablet.Tablet
		if pending != nil {
			joined = tablet.Join(*pending, patched)
		} else {
			joined = patched
		}

		switch {
		case joined.IsEmpty():
			log.Debugw("update: tablet emptied by merge", "input", i)
			pending = nil

		case link != nil && pending == nil && joined.Equal(t):
			// The merge was a no-op: re-emit the original stored partition
			// unchanged rather than rewriting it (§4.7, §9 rationale).
			log.Debugw("update: no-op merge, preserving linkage", "input", i)
			emitted, pend, err := checkPartition(st, p, halfFull, *link, part)
			if err != nil {
				return nil, err
			}
			result = append(result, emitted...)
			pending = pend

		case joined.Count() >= emitThreshold:
			log.Debugw("update: emitting full partitions", "input", i, "count", joined.Count())
			emitted, pend, err := emitParts(st, p, emitThreshold, emitSize, joined)
			if err != nil {
				return nil, err
			}
			result = append(result, emitted...)
			pending = pend

		default:
			pending = &joined
		}
	}

	return finishUpdate(st, p, halfFull, result, pending)
}

// passThroughLink implements the link branch of the pass-through step
// (§4.7 step 1) via checkPartition.
func passThroughLink(st store.Store, p Params, halfFull int, link store.Link) ([]Emitted, *tablet.Tablet, error) {
	part, err := loadPartition(st, link)
	if err != nil {
		return nil, nil, fmt.Errorf("partition: update: %w", err)
	}
	return checkPartition(st, p, halfFull, link, part)
}

// loadAsVirtual resolves a Ref to a virtual tablet of its full records. If
// ref is a link, it also returns the loaded partition and the link itself
// (both nil for a virtual ref), so callers can detect a no-op merge and
// re-emit the original partition unchanged.
func loadAsVirtual(st store.Store, ref Ref) (tablet.Tablet, *Partition, *store.Link, error) {
	if ref.IsVirtual() {
		return *ref.virt, nil, nil, nil
	}
	part, err := loadPartition(st, *ref.link)
	if err != nil {
		return tablet.Tablet{}, nil, nil, fmt.Errorf("load: %w", err)
	}
	full, err := ReadAllMerged(st, part)
	if err != nil {
		return tablet.Tablet{}, nil, nil, fmt.Errorf("load: %w", err)
	}
	return full, part, ref.link, nil
}

// checkPartition decides what to do with an unchanged linked partition
// (§4.7): underflow absorbs it into pending, overflow splits it, otherwise
// it is re-emitted unchanged.
func checkPartition(st store.Store, p Params, halfFull int, link store.Link, part *Partition) ([]Emitted, *tablet.Tablet, error) {
	switch {
	case part.Count < halfFull:
		full, err := ReadAllMerged(st, part)
		if err != nil {
			return nil, nil, err
		}
		return nil, &full, nil

	case part.Count > p.Limit:
		full, err := ReadAllMerged(st, part)
		if err != nil {
			return nil, nil, err
		}
		emitted, err := partitionKeyed(st, p, full.Entries())
		if err != nil {
			return nil, nil, err
		}
		return emitted, nil, nil

	default:
		return []Emitted{{Link: link, Partition: part}}, nil, nil
	}
}

// emitParts iteratively takes the first emitSize records, builds a
// partition from them, and repeats until fewer than emitThreshold records
// remain; the remainder becomes the new pending virtual tablet.
func emitParts(st store.Store, p Params, emitThreshold, emitSize int, t tablet.Tablet) ([]Emitted, *tablet.Tablet, error) {
	entries := t.Entries()
	var out []Emitted
	for len(entries) >= emitThreshold {
		chunk := entries[:emitSize]
		em, err := fromKeyed(st, p, chunk)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, *em)
		entries = entries[emitSize:]
	}
	remainder := tablet.FromRecords(entries, true)
	return out, &remainder, nil
}

// finishUpdate implements §4.7's post-loop disposition of a leftover
// pending tablet.
func finishUpdate(st store.Store, p Params, halfFull int, result []Emitted, pending *tablet.Tablet) (*Result, error) {
	if pending == nil {
		return &Result{Partitions: result}, nil
	}

	if pending.Count() < halfFull {
		if len(result) > 0 {
			last := result[len(result)-1]
			rest := result[:len(result)-1]
			lastFull, err := ReadAllMerged(st, last.Partition)
			if err != nil {
				return nil, err
			}
			combined := tablet.Join(lastFull, *pending)
			emitted, err := partitionKeyed(st, p, combined.Entries())
			if err != nil {
				return nil, err
			}
			return &Result{Partitions: append(rest, emitted...)}, nil
		}
		// No result partition exists to borrow from: surface the pending
		// tablet upward so an outer (index) layer can borrow from a
		// sibling subtree (§9 carry-backward case).
		return &Result{Pending: pending}, nil
	}

	emitted, err := partitionKeyed(st, p, pending.Entries())
	if err != nil {
		return nil, err
	}
	return &Result{Partitions: append(result, emitted...)}, nil
}
