package object_test

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"sv6tool/errdefs"
	"sv6tool/object"
)

func TestEquals(t *testing.T) {
	custom := object.NewEntry(object.Ride, "WOODRC", 0x11111111)
	other := custom
	other.Checksum = 0x22222222
	require.True(t, object.Equals(custom, custom))
	require.False(t, object.Equals(custom, other))
	require.False(t, object.Equals(other, custom))

	expansion := custom
	expansion.Flags |= 0x80
	changed := expansion
	changed.Checksum = 0x22222222
	require.True(t, object.Equals(expansion, changed))
	require.True(t, object.Equals(changed, expansion))

	// Only the first entry decides whether the checksum is ignored.
	require.True(t, object.Equals(expansion, other))
	require.False(t, object.Equals(other, expansion))

	renamed := expansion
	renamed.Name[0] = 'X'
	require.False(t, object.Equals(expansion, renamed))

	retyped := expansion
	retyped.Flags = retyped.Flags&^0x0F | uint32(object.Walls)
	require.False(t, object.Equals(expansion, retyped))
}

func TestParseEntry(t *testing.T) {
	want := object.Entry{Flags: 0x00008000, Name: [8]byte{'A', 'R', 'R', 'T', '1', ' ', ' ', ' '}, Checksum: 0xCAFEBABE}
	b := want.Bytes()
	require.Equal(t, []byte{0x00, 0x80, 0, 0, 'A', 'R', 'R', 'T', '1', ' ', ' ', ' ', 0xBE, 0xBA, 0xFE, 0xCA}, b)
	got, err := object.ParseEntry(b)
	require.NoError(t, err)
	if !cmp.Equal(want, got) {
		t.Errorf("Diff: %v", cmp.Diff(want, got))
	}

	_, err = object.ParseEntry(b[:15])
	require.True(t, errdefs.IsCorruptChunk(err))
}

func TestEntryProperties(t *testing.T) {
	e := object.NewEntry(object.SmallScenery, "TREE 1", 0xA1B2C3D4)
	require.Equal(t, object.SmallScenery, e.Type())
	require.Equal(t, "TREE 1", e.NameString())
	require.Equal(t, "TREE1/00000001A1B2C3D4", e.Identifier())
	require.True(t, e.IsCustom())
	require.False(t, e.IsEmpty())
	require.True(t, object.EmptyEntry.IsEmpty())

	require.Zero(t, e.Source())

	e.Flags |= 0x80
	require.False(t, e.IsCustom())
	require.Equal(t, uint8(8), e.Source())
}

func TestChecksum(t *testing.T) {
	e := object.NewEntry(object.Paths, "TARMAC", 0)
	data := []byte("some payload bytes")

	// Only the low byte of the flags takes part.
	shifted := e
	shifted.Flags |= 0x1200
	require.Equal(t, object.Checksum(e, data), object.Checksum(shifted, data))

	e.Checksum = object.Checksum(e, data)
	require.NoError(t, object.VerifyChecksum(e, data))
	err := object.VerifyChecksum(e, append([]byte{0}, data...))
	require.True(t, errdefs.IsChecksumMismatch(err))

	require.NotEqual(t, object.Checksum(e, nil), object.Checksum(e, []byte{0}))
}

func TestFixChecksum(t *testing.T) {
	for _, target := range []uint32{0, 0xFFFFFFFF, 0x12345678, 0xF369A75B} {
		e := object.NewEntry(object.Walls, "WALL1", target)
		data := bytes.Repeat([]byte{1, 2, 3}, 50)
		fixed := object.FixChecksum(e, data)
		require.Len(t, fixed, len(data)+11)
		require.Equal(t, data, fixed[:len(data)])
		require.Equal(t, target, object.Checksum(e, fixed))
	}
}

func TestNextEntry(t *testing.T) {
	entries := []*object.ExtendedEntry{
		{
			Entry:       object.NewEntry(object.Ride, "WOODRC", 1),
			Filename:    "WOODRC.DAT",
			Reserved:    0xDEADBEEF,
			DisplayName: "Wooden Roller Coaster",
			ChunkSize:   1234,
			Extra:       99,
		},
		{
			Entry:           object.NewEntry(object.SceneryGroup, "SCGTREES", 2),
			Filename:        "SCGTREES.DAT",
			DisplayName:     "Trees",
			RequiredObjects: []object.Entry{object.NewEntry(object.SmallScenery, "TREE1", 3)},
			ThemeObjects: []object.Entry{
				object.NewEntry(object.SmallScenery, "TREE1", 3),
				object.NewEntry(object.SmallScenery, "TREE2", 4),
			},
		},
		{
			Entry: object.NewEntry(object.Water, "WTRCYAN", 5),
		},
	}
	var table []byte
	var lengths []int
	for _, e := range entries {
		before := len(table)
		var err error
		table, err = e.AppendBinary(table)
		require.NoError(t, err)
		lengths = append(lengths, len(table)-before)
	}
	// Entry, two terminators, three u32 fields and two count bytes.
	require.Equal(t, 16+len("WOODRC.DAT")+1+4+len("Wooden Roller Coaster")+1+4+1+1+4, lengths[0])
	require.Equal(t, 16+1+4+1+4+1+1+4, lengths[2])

	n, err := object.NextEntry(table)
	require.NoError(t, err)
	require.Equal(t, lengths[0], n)

	c := object.NewCursor(table)
	var got []*object.ExtendedEntry
	for !c.Done() {
		e, err := c.NextEntry()
		require.NoError(t, err)
		got = append(got, e)
	}
	if !cmp.Equal(entries, got) {
		t.Errorf("Diff: %v", cmp.Diff(entries, got))
	}

	t.Run("Truncated", func(t *testing.T) {
		for i := 0; i < lengths[0]; i++ {
			_, err := object.NextEntry(table[:i])
			require.True(t, errdefs.IsCorruptChunk(err), "length %d: %v", i, err)
		}
	})
	t.Run("CursorUnchangedOnError", func(t *testing.T) {
		c := object.NewCursor(table[:lengths[0]+20])
		_, err := c.NextEntry()
		require.NoError(t, err)
		_, err = c.NextEntry()
		require.Error(t, err)
		require.Equal(t, lengths[0], c.Offset())
	})
}

func TestSlotType(t *testing.T) {
	for _, tc := range []struct {
		slot  int
		t     object.Type
		index int
	}{
		{0, object.Ride, 0},
		{127, object.Ride, 127},
		{128, object.SmallScenery, 0},
		{380, object.LargeScenery, 0},
		{718, object.ParkEntrance, 0},
		{719, object.Water, 0},
		{720, object.ScenarioText, 0},
	} {
		typ, index, ok := object.SlotType(tc.slot)
		require.True(t, ok)
		require.Equal(t, tc.t, typ)
		require.Equal(t, tc.index, index)
		require.Equal(t, tc.slot, object.GroupOffset(typ)+index)
	}
	_, _, ok := object.SlotType(object.NumSlots)
	require.False(t, ok)
}
