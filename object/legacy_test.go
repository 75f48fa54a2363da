package object

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sv6tool/errdefs"
)

func TestReadImageTable(t *testing.T) {
	b := []byte{
		2, 0, 0, 0, // images
		3, 0, 0, 0, // data size
		0, 0, 0, 0, 1, 0, 1, 0, 0xFE, 0xFF, 0, 0, 5, 0, 0, 0,
		1, 0, 0, 0, 2, 0, 1, 0, 0, 0, 0xFF, 0xFF, 0, 0, 0x10, 0,
		0x7F, 0x7F, 0x7F,
	}
	c := NewCursor(b)
	table, err := readImageTable(c)
	require.NoError(t, err)
	require.True(t, c.Done())
	require.Equal(t, []ImageElement{
		{Offset: 0, Width: 1, Height: 1, XOffset: -2, Flags: 5},
		{Offset: 1, Width: 2, Height: 1, YOffset: -1, ZoomedOffset: 0x10},
	}, table.Elements)
	require.Equal(t, []byte{0x7F, 0x7F, 0x7F}, table.Data)

	for _, n := range []int{4, 10, 30, len(b) - 1} {
		_, err := readImageTable(NewCursor(b[:n]))
		require.True(t, errdefs.IsCorruptChunk(err), "%d bytes: %v", n, err)
	}
}

func TestReadImageElementShort(t *testing.T) {
	_, err := readImageElement(NewCursor(make([]byte, imageElementSize-1)))
	require.True(t, errdefs.IsCorruptChunk(err), "%v", err)
}
