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

// Package validate implements the structural validator (C8) used by tests
// and integrity audits. Violations are collected rather than returned as
// an error, so an audit can report every rule a partition breaks at once.
package validate

import (
	"fmt"

	"github.com/go-test/deep"

	"github.com/erigontech/merkledb/family"
	"github.com/erigontech/merkledb/key"
	"github.com/erigontech/merkledb/partition"
	"github.com/erigontech/merkledb/store"
)

// Failure is one violated rule (§7 ValidationFailure).
type Failure struct {
	Rule   string
	Detail string
}

func (f Failure) String() string { return fmt.Sprintf("%s: %s", f.Rule, f.Detail) }

// Bounds restricts first_key/last_key to a subtree's expected key range,
// as a recursive caller (the upper index tree, out of scope) would supply.
type Bounds struct {
	Lo, Hi key.Key // nil means open on that side
}

func (b Bounds) contains(k key.Key) bool {
	if b.Lo != nil && key.Less(k, b.Lo) {
		return false
	}
	if b.Hi != nil && key.Less(b.Hi, k) {
		return false
	}
	return true
}

// Context carries the expected family layout, size bounds, and key bounds
// a partition is validated against. The count checks use the limit stored
// in the partition itself; Context.Limit is not consulted.
type Context struct {
	Families            family.Layout
	Limit               int
	TreeHasReachedLimit bool // true once the tree holds >= limit records overall
	Bounds              Bounds
}

// Partition performs every structural check of §4.9/§8 against part,
// recursively validating each referenced tablet via st, and returns every
// violated rule (empty slice means valid).
func Partition(st store.Store, ctx Context, part *partition.Partition) []Failure {
	var failures []Failure

	if part.Count > part.Limit {
		failures = append(failures, Failure{"count<=limit",
			fmt.Sprintf("count %d exceeds limit %d", part.Count, part.Limit)})
	}
	halfFull := (part.Limit + 1) / 2
	if ctx.TreeHasReachedLimit && part.Count < halfFull {
		failures = append(failures, Failure{"count>=half_full",
			fmt.Sprintf("count %d below half_full %d", part.Count, halfFull)})
	}
	if !ctx.Bounds.contains(part.FirstKey) {
		failures = append(failures, Failure{"first_key in bounds",
			fmt.Sprintf("first_key %x outside subtree bounds", part.FirstKey)})
	}
	if !ctx.Bounds.contains(part.LastKey) {
		failures = append(failures, Failure{"last_key in bounds",
			fmt.Sprintf("last_key %x outside subtree bounds", part.LastKey)})
	}
	if key.Less(part.LastKey, part.FirstKey) {
		failures = append(failures, Failure{"first_key<=last_key",
			fmt.Sprintf("first_key %x > last_key %x", part.FirstKey, part.LastKey)})
	}
	if _, ok := part.Tablets[family.Base]; !ok {
		failures = append(failures, Failure{"base tablet present", "no base tablet link"})
	}
	if diff := deep.Equal(part.Families.ToWire(), ctx.Families.ToWire()); diff != nil {
		failures = append(failures, Failure{"families match expected", fmt.Sprint(diff)})
	}

	full, err := partition.ReadAllMerged(st, part)
	if err != nil {
		failures = append(failures, Failure{"tablets readable", err.Error()})
		return failures
	}
	entries := full.Entries()
	if len(entries) != part.Count {
		failures = append(failures, Failure{"count matches stored records",
			fmt.Sprintf("count field says %d, tablets hold %d", part.Count, len(entries))})
	}
	var prev key.Key
	for i, e := range entries {
		if !ctx.Bounds.contains(e.Key) {
			failures = append(failures, Failure{"record key in bounds",
				fmt.Sprintf("key %x outside subtree bounds", e.Key)})
		}
		if !part.Membership.Contains(e.Key) {
			failures = append(failures, Failure{"membership no false negatives",
				fmt.Sprintf("key %x absent from membership filter", e.Key)})
		}
		if i > 0 && !key.Less(prev, e.Key) {
			failures = append(failures, Failure{"strictly ascending keys",
				fmt.Sprintf("key %x does not strictly follow %x", e.Key, prev)})
		}
		prev = e.Key
	}

	return failures
}
