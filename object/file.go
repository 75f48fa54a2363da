package object

import (
	"io"

	"github.com/pkg/errors"

	"sv6tool/sawyer"
)

// File is the content of an installed object asset: an entry followed by
// one chunk holding the legacy payload.
type File struct {
	Entry    Entry
	Encoding sawyer.Encoding
	Data     []byte
}

// ReadFile reads an asset. The payload is not verified against the entry.
func ReadFile(r io.Reader, opts ...sawyer.Opt) (*File, error) {
	return ReadPacked(sawyer.NewChunkReader(r, opts...))
}

// ReadPacked reads an entry and its chunk from a stream, as found in asset
// files and in the packed objects section of a park.
func ReadPacked(cr *sawyer.ChunkReader) (*File, error) {
	b, err := cr.ReadRaw(EntrySize)
	if err != nil {
		return nil, errors.WithMessage(err, "object entry")
	}
	e, err := ParseEntry(b)
	if err != nil {
		return nil, err
	}
	c, err := cr.ReadChunk()
	if err != nil {
		return nil, errors.WithMessagef(err, "object %s", e.Identifier())
	}
	return &File{Entry: e, Encoding: c.Encoding, Data: c.Data}, nil
}

// Verify checks the payload against the checksum of the entry.
func (f *File) Verify() error {
	return VerifyChecksum(f.Entry, f.Data)
}

// WritePacked writes the entry and payload of f using its encoding.
func (f *File) WritePacked(cw *sawyer.ChunkWriter) error {
	if err := cw.WriteRaw(f.Entry.Bytes()); err != nil {
		return err
	}
	return cw.WriteChunk(f.Encoding, f.Data)
}

// WriteFile stores f as an asset file.
func (f *File) WriteFile(w io.Writer) error {
	return f.WritePacked(sawyer.NewChunkWriter(w))
}
