package family_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/merkledb/family"
	"github.com/erigontech/merkledb/key"
	"github.com/erigontech/merkledb/record"
)

func layout() family.Layout {
	return family.NewLayout(map[string][]string{
		"ab": {"a", "b"},
		"cd": {"c", "d"},
	})
}

func TestFamilyOf(t *testing.T) {
	l := layout()
	require.Equal(t, "ab", l.FamilyOf("a"))
	require.Equal(t, "cd", l.FamilyOf("d"))
	require.Equal(t, family.Base, l.FamilyOf("z"))
}

func TestNamesIncludesBase(t *testing.T) {
	names := layout().Names()
	require.Contains(t, names, family.Base)
	require.Len(t, names, 3)
}

func TestNamesIsSorted(t *testing.T) {
	l := family.NewLayout(map[string][]string{
		"zz": {"z"},
		"aa": {"a"},
		"mm": {"m"},
	})
	names := l.Names()
	require.True(t, sort.StringsAreSorted(names))
}

func TestWireRoundTrip(t *testing.T) {
	l := layout()
	w := l.ToWire()
	require.ElementsMatch(t, []string{"a", "b"}, w["ab"])
	back := family.FromWire(w)
	require.ElementsMatch(t, l.Names(), back.Names())
}

func TestSplitDataBaseAlwaysEmitted(t *testing.T) {
	l := layout()
	records := []record.Keyed{
		{Key: key.Key("k1"), Fields: record.Record{"a": 1, "z": 9}},
		{Key: key.Key("k2"), Fields: record.Record{"c": 2}},
	}
	split := family.SplitData(l, records)

	require.Len(t, split[family.Base], 2)
	require.Equal(t, record.Record{"z": 9}, split[family.Base][0].Fields)

	require.Len(t, split["ab"], 1)
	require.Equal(t, record.Record{"a": 1}, split["ab"][0].Fields)

	require.Len(t, split["cd"], 1)
	require.Equal(t, record.Record{"c": 2}, split["cd"][0].Fields)
}

func TestSplitDataOmitsEmptyNonBaseFragments(t *testing.T) {
	l := layout()
	records := []record.Keyed{
		{Key: key.Key("k1"), Fields: record.Record{"z": 9}},
	}
	split := family.SplitData(l, records)
	require.Len(t, split[family.Base], 1)
	require.NotContains(t, split, "ab")
	require.NotContains(t, split, "cd")
}
