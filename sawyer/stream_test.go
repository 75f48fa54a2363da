package sawyer

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"sv6tool/errdefs"
)

type fakeOutFile struct {
	written []byte
}

func (f *fakeOutFile) Write(b []byte) (int, error) {
	f.written = append(f.written, b...)
	return len(b), nil
}

type failingOutFile struct{}

func (failingOutFile) Write(b []byte) (int, error) {
	return 0, errors.New("disk full")
}

func sum(b []byte) uint32 {
	var s uint32
	for _, v := range b {
		s += uint32(v)
	}
	return s
}

func TestReadThreeChunks(t *testing.T) {
	stream := []byte{
		0, 3, 0, 0, 0, 1, 2, 3,
		1, 2, 0, 0, 0, 0xFE, 9,
		3, 1, 0, 0, 0, 0x01,
	}
	stream = append(stream, l(sum(stream))...)

	cr := NewChunkReader(bytes.NewReader(stream))
	var got [][]byte
	for range 3 {
		c, err := cr.ReadChunk()
		require.NoError(t, err)
		got = append(got, c.Data)
	}
	want := [][]byte{{1, 2, 3}, {9, 9, 9}, {0x80}}
	if !cmp.Equal(want, got) {
		t.Errorf("Diff: %v", cmp.Diff(want, got))
	}

	stored, calculated, err := cr.ReadChecksum()
	require.NoError(t, err)
	require.Equal(t, sum(stream[:len(stream)-4]), stored)
	require.Equal(t, stored, calculated)
}

func TestWriteAndRead(t *testing.T) {
	out := &fakeOutFile{}
	cw := NewChunkWriter(out)
	chunks := []Chunk{
		{Encoding: Rotate, Data: []byte("header")},
		{Encoding: RLECompressed, Data: bytes.Repeat([]byte{0, 0, 1, 2}, 1000)},
		{Encoding: RLE, Data: bytes.Repeat([]byte{7}, 300)},
		{Encoding: None, Data: []byte{1, 2, 3}},
	}
	require.NoError(t, cw.WriteRaw([]byte{0xFF, 0xFF}))
	for _, c := range chunks {
		require.NoError(t, cw.WriteChunk(c.Encoding, c.Data))
	}
	require.NoError(t, cw.WriteChecksum())
	require.EqualValues(t, len(out.written), cw.Offset())

	stored, calculated, err := ValidateChecksum(bytes.NewReader(out.written))
	require.NoError(t, err)
	require.Equal(t, stored, calculated)

	cr := NewChunkReader(bytes.NewReader(out.written))
	raw, err := cr.ReadRaw(2)
	require.NoError(t, err)
	require.Equal(t, []byte{0xFF, 0xFF}, raw)
	for _, want := range chunks {
		got, err := cr.ReadChunk()
		require.NoError(t, err)
		if !cmp.Equal(&want, got) {
			t.Errorf("Diff: %v", cmp.Diff(&want, got))
		}
	}
	require.NoError(t, cr.VerifyChecksum(true))
}

func TestReadChunkInto(t *testing.T) {
	out := &fakeOutFile{}
	cw := NewChunkWriter(out)
	require.NoError(t, cw.WriteChunk(RLE, []byte{1, 2, 3}))
	require.NoError(t, cw.WriteChunk(RLE, []byte{4, 5, 6, 7}))

	cr := NewChunkReader(bytes.NewReader(out.written))
	dst := []byte{9, 9, 9, 9, 9}
	require.NoError(t, cr.ReadChunkInto(dst))
	require.Equal(t, []byte{1, 2, 3, 0, 0}, dst)

	dst = make([]byte, 2)
	require.NoError(t, cr.ReadChunkInto(dst))
	require.Equal(t, []byte{4, 5}, dst)
}

func TestChecksumWindows(t *testing.T) {
	data := make([]byte, 2050)
	for i := range data {
		data[i] = byte(i * 7)
	}
	whole := NewChecksum()
	whole.Write(data)

	windowed := NewChecksum()
	windowed.Write(data[:1024])
	windowed.Write(data[1024:2048])
	windowed.Write(data[2048:])
	require.Equal(t, whole.Sum32(), windowed.Sum32())
	require.Equal(t, sum(data), whole.Sum32())

	file := append(append([]byte(nil), data...), l(sum(data))...)
	stored, calculated, err := ValidateChecksum(bytes.NewReader(file))
	require.NoError(t, err)
	require.Equal(t, sum(data), stored)
	require.Equal(t, sum(data), calculated)
}

func TestChecksumMismatch(t *testing.T) {
	out := &fakeOutFile{}
	cw := NewChunkWriter(out)
	require.NoError(t, cw.WriteChunk(None, []byte{1, 2, 3}))
	require.NoError(t, cw.WriteChecksum())
	out.written[len(out.written)-1] ^= 0x10

	_, _, err := ValidateChecksum(bytes.NewReader(out.written))
	require.True(t, errdefs.IsChecksumMismatch(err))
	var cerr *ChecksumError
	require.ErrorAs(t, err, &cerr)

	t.Run("Lenient", func(t *testing.T) {
		cr := NewChunkReader(bytes.NewReader(out.written))
		_, err := cr.ReadChunk()
		require.NoError(t, err)
		require.NoError(t, cr.VerifyChecksum(false))
	})
	t.Run("Strict", func(t *testing.T) {
		cr := NewChunkReader(bytes.NewReader(out.written))
		_, err := cr.ReadChunk()
		require.NoError(t, err)
		require.ErrorIs(t, cr.VerifyChecksum(true), errdefs.ErrChecksumMismatch)
	})
}

func TestTruncatedStream(t *testing.T) {
	for name, data := range map[string][]byte{
		"Empty":         {},
		"ShortHeader":   {1, 2, 0},
		"ShortChunk":    {0, 5, 0, 0, 0, 1, 2},
		"MissingChecks": {0, 1, 0, 0, 0, 1, 0xAA},
	} {
		t.Run(name, func(t *testing.T) {
			cr := NewChunkReader(bytes.NewReader(data))
			_, err := cr.ReadChunk()
			if err == nil {
				_, _, err = cr.ReadChecksum()
			}
			require.True(t, errdefs.IsTruncatedStream(err), "got %v", err)
		})
	}
}

func TestImpossibleLength(t *testing.T) {
	cr := NewChunkReader(bytes.NewReader([]byte{0, 0xFF, 0xFF, 0xFF, 0x7F}), WithMaxChunkSize(1024))
	_, err := cr.ReadChunk()
	require.True(t, errdefs.IsCorruptChunk(err), "got %v", err)
}

func TestWriteFailure(t *testing.T) {
	cw := NewChunkWriter(failingOutFile{})
	err := cw.WriteChunk(None, []byte{1})
	require.True(t, errdefs.IsIO(err), "got %v", err)
}
