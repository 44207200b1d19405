// Package record defines the record/fragment value types shared by the
// tablet, family, and patch packages: a record is a map from field name to
// value, addressed by a key.Key; a tombstone is a distinguished value
// marking a deletion rather than an absence of a value.
package record

import "github.com/erigontech/merkledb/key"

// Record is a mapping from field name to value.
type Record map[string]any

// Clone returns a shallow copy of r (field values are not deep-copied).
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Empty reports whether r has no fields.
func (r Record) Empty() bool { return len(r) == 0 }

// tombstone is the distinguished deletion marker. It is a named, non-nil
// type so that a field whose value is legitimately nil is never confused
// with a deletion.
type tombstone struct{}

// Tombstone is the sentinel value representing a deleted record.
var Tombstone any = tombstone{}

// IsTombstone reports whether v is the deletion marker.
func IsTombstone(v any) bool {
	_, ok := v.(tombstone)
	return ok
}

// Entry pairs a key with a value that is either a Record (present) or
// Tombstone (absent/deleted). It is the shape of a patch change (C5) and of
// a raw, not-yet-filtered record stream.
type Entry struct {
	Key   key.Key
	Value any
}

// Keyed is a record known to be present (tombstones already stripped),
// ready to be split into per-family fragments (C4).
type Keyed struct {
	Key    key.Key
	Fields Record
}

// RemoveTombstones filters out tombstoned entries and returns the
// surviving records, keyed. Order is preserved.
func RemoveTombstones(entries []Entry) []Keyed {
	out := make([]Keyed, 0, len(entries))
	for _, e := range entries {
		if IsTombstone(e.Value) {
			continue
		}
		rec, _ := e.Value.(Record)
		out = append(out, Keyed{Key: e.Key, Fields: rec})
	}
	return out
}
