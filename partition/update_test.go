package partition_test

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/erigontech/merkledb/family"
	"github.com/erigontech/merkledb/key"
	"github.com/erigontech/merkledb/patch"
	"github.com/erigontech/merkledb/partition"
	"github.com/erigontech/merkledb/record"
	"github.com/erigontech/merkledb/store"
	"github.com/erigontech/merkledb/tablet"
)

func smallParams(limit int) partition.Params {
	return partition.Params{Limit: limit, Families: family.NewLayout(nil), BloomFPR: 0.01}
}

func TestUpdateIdentityPassThrough(t *testing.T) {
	st := store.NewMemStore()
	p := smallParams(4)
	emitted, err := partition.FromRecords(st, p, entries(3), false) // half_full=2, within bounds
	require.NoError(t, err)

	result, err := partition.UpdatePartitions(st, p, nil, []partition.Input{
		{Part: partition.LinkRef(emitted.Link), Changes: nil},
	})
	require.NoError(t, err)
	require.Len(t, result.Partitions, 1)
	require.Equal(t, emitted.Link.Addr, result.Partitions[0].Link.Addr)
	require.Nil(t, result.Pending)
}

func TestUpdateNoOpMergePreservesLink(t *testing.T) {
	st := store.NewMemStore()
	p := smallParams(4)
	emitted, err := partition.FromRecords(st, p, entries(3), false)
	require.NoError(t, err)

	changes := []patch.Change{
		{Key: key.Key("a"), Value: record.Record{"v": 0}}, // identical to what's already there
	}
	result, err := partition.UpdatePartitions(st, p, nil, []partition.Input{
		{Part: partition.LinkRef(emitted.Link), Changes: changes},
	})
	require.NoError(t, err)
	require.Len(t, result.Partitions, 1)
	require.Equal(t, emitted.Link.Addr, result.Partitions[0].Link.Addr,
		"a no-op merge must re-emit the original link unchanged")
}

func TestUpdateOverflowEmitsMultiplePartitions(t *testing.T) {
	st := store.NewMemStore()
	p := smallParams(4) // half_full=2, emit_threshold=6
	emitted, err := partition.FromRecords(st, p, entries(3), false) // a, b, c
	require.NoError(t, err)

	changes := []patch.Change{
		{Key: key.Key("d"), Value: record.Record{"v": 3}},
		{Key: key.Key("e"), Value: record.Record{"v": 4}},
		{Key: key.Key("f"), Value: record.Record{"v": 5}},
	}
	result, err := partition.UpdatePartitions(st, p, nil, []partition.Input{
		{Part: partition.LinkRef(emitted.Link), Changes: changes},
	})
	require.NoError(t, err)
	require.Nil(t, result.Pending)

	total := 0
	for _, e := range result.Partitions {
		require.LessOrEqual(t, e.Partition.Count, p.Limit)
		total += e.Partition.Count
	}
	require.Equal(t, 6, total)
	require.GreaterOrEqual(t, len(result.Partitions), 2)
}

func TestUpdateUnderflowSurfacesPending(t *testing.T) {
	st := store.NewMemStore()
	p := smallParams(4) // half_full=2
	emitted, err := partition.FromRecords(st, p, entries(1), false)
	require.NoError(t, err)

	result, err := partition.UpdatePartitions(st, p, nil, []partition.Input{
		{Part: partition.LinkRef(emitted.Link), Changes: nil},
	})
	require.NoError(t, err)
	require.Empty(t, result.Partitions)
	require.NotNil(t, result.Pending)
	require.Equal(t, 1, result.Pending.Count())
}

func TestUpdateBorrowsFromLastResultWhenPendingUnderflows(t *testing.T) {
	st := store.NewMemStore()
	p := smallParams(4) // half_full=2
	full, err := partition.FromRecords(st, p, entries(4), false)
	require.NoError(t, err)

	tiny := tablet.FromRecords([]record.Keyed{{Key: key.Key("z"), Fields: record.Record{"v": 99}}}, true)

	result, err := partition.UpdatePartitions(st, p, nil, []partition.Input{
		{Part: partition.LinkRef(full.Link), Changes: nil},
		{Part: partition.VirtualRef(tiny), Changes: nil},
	})
	require.NoError(t, err)
	require.Nil(t, result.Pending)

	total := 0
	for _, e := range result.Partitions {
		require.GreaterOrEqual(t, e.Partition.Count, 2, "every resulting partition must be at least half_full")
		require.LessOrEqual(t, e.Partition.Count, p.Limit)
		total += e.Partition.Count
	}
	require.Equal(t, 5, total)
}

func TestUpdateVirtualCarryIsConsumed(t *testing.T) {
	st := store.NewMemStore()
	p := smallParams(4) // half_full=2
	virt := tablet.FromRecords([]record.Keyed{
		{Key: key.Key("a"), Fields: record.Record{"v": 1}},
		{Key: key.Key("b"), Fields: record.Record{"v": 2}},
	}, true)
	carry := partition.VirtualRef(virt)

	// The carried tablet already meets half_full, so it is emitted as its
	// own partition rather than surfaced as pending.
	result, err := partition.UpdatePartitions(st, p, &carry, nil)
	require.NoError(t, err)
	require.Nil(t, result.Pending)
	require.Len(t, result.Partitions, 1)
	require.Equal(t, 2, result.Partitions[0].Partition.Count)
}

// partitionWidth is the size of the disjoint byte range assigned to each
// generated partition in the property tests below; it must comfortably
// exceed the largest limit drawn so there is room for both the initial
// record set and additional inserted keys within the same range.
const partitionWidth = 12

// genChange is one property-test-generated patch change: either a tombstone
// of an existing key or an insert/update carrying an int value.
type genChange struct {
	key       byte
	tombstone bool
	value     int
}

// genPartition is one property-test-generated input partition: its disjoint
// byte key range, the records it starts with, and the changes applied to it.
type genPartition struct {
	initial map[byte]int
	changes []genChange
}

// drawPartitions generates 1-3 disjoint, ascending byte-range partitions,
// each with a random non-overflowing initial record set and a random set of
// inserts/updates/tombstones confined to its own range.
func drawPartitions(rt *rapid.T, limit int) []genPartition {
	numParts := rapid.IntRange(1, 3).Draw(rt, "numParts")
	parts := make([]genPartition, numParts)
	for i := 0; i < numParts; i++ {
		start := i * partitionWidth
		avail := make([]byte, partitionWidth)
		for j := range avail {
			avail[j] = byte(start + j)
		}

		initCount := rapid.IntRange(1, limit).Draw(rt, fmt.Sprintf("initCount%d", i))
		offset := rapid.IntRange(0, partitionWidth-initCount).Draw(rt, fmt.Sprintf("offset%d", i))
		initial := make(map[byte]int, initCount)
		for _, k := range avail[offset : offset+initCount] {
			initial[k] = int(k)
		}

		var changes []genChange
		for _, k := range avail {
			touched := rapid.Bool().Draw(rt, fmt.Sprintf("touch%d_%d", i, k))
			if !touched {
				continue
			}
			if _, present := initial[k]; present {
				if rapid.Bool().Draw(rt, fmt.Sprintf("del%d_%d", i, k)) {
					changes = append(changes, genChange{key: k, tombstone: true})
					continue
				}
			}
			v := rapid.IntRange(-1000, 1000).Draw(rt, fmt.Sprintf("val%d_%d", i, k))
			changes = append(changes, genChange{key: k, value: v})
		}
		sort.Slice(changes, func(a, b int) bool { return changes[a].key < changes[b].key })
		parts[i] = genPartition{initial: initial, changes: changes}
	}
	return parts
}

// expectedFinal computes apply_patches(read_all(inputs)) directly against
// the generated partitions, independent of the engine: a plain map of
// surviving key -> value.
func expectedFinal(parts []genPartition) map[byte]int {
	out := make(map[byte]int)
	for _, gp := range parts {
		for k, v := range gp.initial {
			out[k] = v
		}
		for _, c := range gp.changes {
			if c.tombstone {
				delete(out, c.key)
				continue
			}
			out[c.key] = c.value
		}
	}
	return out
}

// buildInputs persists each generated partition's initial records via
// FromRecords and turns its changes into a patch.Change list, ready to feed
// UpdatePartitions.
func buildInputs(t *rapid.T, st store.Store, p partition.Params, parts []genPartition) ([]partition.Input, []store.Link) {
	inputs := make([]partition.Input, len(parts))
	links := make([]store.Link, len(parts))
	for i, gp := range parts {
		recs := make([]record.Entry, 0, len(gp.initial))
		for k, v := range gp.initial {
			recs = append(recs, record.Entry{Key: key.Key([]byte{k}), Value: record.Record{"v": v}})
		}
		emitted, err := partition.FromRecords(st, p, recs, false)
		require.NoError(t, err)
		require.NotNil(t, emitted)

		changes := make([]patch.Change, len(gp.changes))
		for j, c := range gp.changes {
			if c.tombstone {
				changes[j] = patch.Change{Key: key.Key([]byte{c.key}), Value: record.Tombstone}
				continue
			}
			changes[j] = patch.Change{Key: key.Key([]byte{c.key}), Value: record.Record{"v": c.value}}
		}
		inputs[i] = partition.Input{Part: partition.LinkRef(emitted.Link), Changes: changes}
		links[i] = emitted.Link
	}
	return inputs, links
}

// readActualFinal flattens every output partition plus a trailing pending
// tablet (if any) into the same key -> value shape as expectedFinal, for the
// round-trip comparison.
func readActualFinal(t *rapid.T, st store.Store, result *partition.Result) map[byte]int {
	out := make(map[byte]int)
	for _, e := range result.Partitions {
		full, err := partition.ReadAllMerged(st, e.Partition)
		require.NoError(t, err)
		for _, kv := range full.Entries() {
			v, _ := kv.Fields["v"].(int)
			out[kv.Key[0]] = v
		}
	}
	if result.Pending != nil {
		for _, kv := range result.Pending.Entries() {
			v, _ := kv.Fields["v"].(int)
			out[kv.Key[0]] = v
		}
	}
	return out
}

// TestUpdatePartitionsInvariantsProperty checks §8's quantified invariants
// together against arbitrary multi-partition inputs with arbitrary
// insert/update/tombstone changes: global key sortedness, size bounds,
// membership no-false-negatives, and the read_all/apply_patches round-trip.
func TestUpdatePartitionsInvariantsProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		limit := rapid.IntRange(2, 6).Draw(rt, "limit")
		halfFull := (limit + 1) / 2
		parts := drawPartitions(rt, limit)

		st := store.NewMemStore()
		p := partition.Params{Limit: limit, Families: family.NewLayout(nil), BloomFPR: 0.01}
		inputs, _ := buildInputs(rt, st, p, parts)

		result, err := partition.UpdatePartitions(st, p, nil, inputs)
		require.NoError(rt, err)

		// Sortedness (invariant 6): ascending, strictly non-overlapping ranges.
		for i, e := range result.Partitions {
			require.True(rt, key.Less(e.Partition.FirstKey, e.Partition.LastKey) ||
				key.Equal(e.Partition.FirstKey, e.Partition.LastKey))
			if i > 0 {
				require.True(rt, key.Less(result.Partitions[i-1].Partition.LastKey, e.Partition.FirstKey))
			}
		}
		if result.Pending != nil && len(result.Partitions) > 0 {
			last := result.Partitions[len(result.Partitions)-1].Partition.LastKey
			for _, kv := range result.Pending.Entries() {
				require.True(rt, key.Less(last, kv.Key))
			}
		}

		// Size bounds (invariant 1): every partition respects limit; interior
		// partitions (excluding the two at the list's edges) respect half_full
		// too once the whole tree holds at least limit records.
		total := len(expectedFinal(parts))
		for i, e := range result.Partitions {
			require.LessOrEqual(rt, e.Partition.Count, limit)
			interior := i > 0 && i < len(result.Partitions)-1
			if interior && total >= limit {
				require.GreaterOrEqual(rt, e.Partition.Count, halfFull)
			}
		}

		// Membership (invariant 3): no false negatives.
		for _, e := range result.Partitions {
			full, err := partition.ReadAllMerged(st, e.Partition)
			require.NoError(rt, err)
			for _, kv := range full.Entries() {
				require.True(rt, e.Partition.Membership.Contains(kv.Key))
			}
		}

		// Round-trip: read_all(update_partitions(inputs)) == apply_patches(read_all(inputs)).
		require.Equal(rt, expectedFinal(parts), readActualFinal(rt, st, result))
	})
}

// TestUpdatePartitionsPassThroughProperty checks §8's unchanged pass-through
// property: when every input's changes are empty, UpdatePartitions returns
// the input links unmodified and performs no new store writes.
func TestUpdatePartitionsPassThroughProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		limit := rapid.IntRange(2, 6).Draw(rt, "limit")
		parts := drawPartitions(rt, limit)
		for i := range parts {
			parts[i].changes = nil
		}

		st := store.NewMemStore()
		p := partition.Params{Limit: limit, Families: family.NewLayout(nil), BloomFPR: 0.01}
		inputs, links := buildInputs(rt, st, p, parts)
		before := st.Len()

		result, err := partition.UpdatePartitions(st, p, nil, inputs)
		require.NoError(rt, err)
		require.Nil(rt, result.Pending)
		require.Equal(rt, len(links), len(result.Partitions))
		for i, l := range links {
			require.Equal(rt, l.Addr, result.Partitions[i].Link.Addr)
		}

		after := st.Len()
		require.Equal(rt, before, after, "pass-through must not write any new nodes")
	})
}
