package record_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/merkledb/key"
	"github.com/erigontech/merkledb/record"
)

func TestCloneIsIndependent(t *testing.T) {
	r := record.Record{"a": 1}
	c := r.Clone()
	c["a"] = 2
	require.Equal(t, 1, r["a"])
	require.Nil(t, record.Record(nil).Clone())
}

func TestEmpty(t *testing.T) {
	require.True(t, record.Record{}.Empty())
	require.False(t, record.Record{"a": 1}.Empty())
}

func TestTombstone(t *testing.T) {
	require.True(t, record.IsTombstone(record.Tombstone))
	require.False(t, record.IsTombstone(nil))
	require.False(t, record.IsTombstone(record.Record{}))
}

func TestRemoveTombstones(t *testing.T) {
	entries := []record.Entry{
		{Key: key.Key("a"), Value: record.Record{"x": 1}},
		{Key: key.Key("b"), Value: record.Tombstone},
		{Key: key.Key("c"), Value: record.Record{"y": 2}},
	}
	kept := record.RemoveTombstones(entries)
	require.Len(t, kept, 2)
	require.Equal(t, key.Key("a"), kept[0].Key)
	require.Equal(t, key.Key("c"), kept[1].Key)
}
