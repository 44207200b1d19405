// Package patch implements patch application (C5): merging a key-ordered
// sequence of (key, value-or-tombstone) changes into a tablet.
package patch

import (
	"github.com/erigontech/merkledb/key"
	"github.com/erigontech/merkledb/record"
	"github.com/erigontech/merkledb/tablet"
)

// Change is a single pending mutation: a record.Entry whose Value is
// either a fragment/record (insert or update) or record.Tombstone
// (delete). Changes arrive key-ordered from the patch log (out of scope,
// §6) and are consumed in that order.
type Change = record.Entry

// Apply merges changes into t and returns the resulting tablet, or false
// if changes is empty (the caller should then treat t as unchanged).
func Apply(t tablet.Tablet, changes []Change) (tablet.Tablet, bool) {
	if len(changes) == 0 {
		return t, false
	}

	additions := make([]record.Keyed, 0, len(changes))
	var deletedKeys []key.Key
	for _, c := range changes {
		if record.IsTombstone(c.Value) {
			deletedKeys = append(deletedKeys, c.Key)
			continue
		}
		rec, _ := c.Value.(record.Record)
		additions = append(additions, record.Keyed{Key: c.Key, Fields: rec})
	}
	return t.Update(additions, deletedKeys), true
}
