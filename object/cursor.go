package object

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"

	"sv6tool/errdefs"
)

// Cursor reads little-endian values from a bounded buffer. Every read is
// checked, reading past the end yields ErrCorruptChunk.
type Cursor struct {
	data   []byte
	offset int
}

func NewCursor(data []byte) *Cursor {
	return &Cursor{data: data}
}

func (c *Cursor) Offset() int    { return c.offset }
func (c *Cursor) Remaining() int { return len(c.data) - c.offset }
func (c *Cursor) Done() bool     { return c.offset >= len(c.data) }

func (c *Cursor) Bytes(n int) ([]byte, error) {
	if n < 0 || n > c.Remaining() {
		return nil, errors.Wrapf(errdefs.ErrCorruptChunk, "read of %d bytes at offset %d, only %d left", n, c.offset, c.Remaining())
	}
	b := c.data[c.offset : c.offset+n]
	c.offset += n
	return b, nil
}

func (c *Cursor) Skip(n int) error {
	_, err := c.Bytes(n)
	return err
}

func (c *Cursor) Peek() (byte, error) {
	if c.Done() {
		return 0, errors.Wrapf(errdefs.ErrCorruptChunk, "read at offset %d past end of data", c.offset)
	}
	return c.data[c.offset], nil
}

func (c *Cursor) U8() (uint8, error) {
	b, err := c.Bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *Cursor) U16() (uint16, error) {
	b, err := c.Bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (c *Cursor) U32() (uint32, error) {
	b, err := c.Bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *Cursor) U64() (uint64, error) {
	b, err := c.Bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// CString reads a nul-terminated string and consumes the terminator.
func (c *Cursor) CString() (string, error) {
	i := bytes.IndexByte(c.data[c.offset:], 0)
	if i < 0 {
		return "", errors.Wrapf(errdefs.ErrCorruptChunk, "unterminated string at offset %d", c.offset)
	}
	s := string(c.data[c.offset : c.offset+i])
	c.offset += i + 1
	return s, nil
}

func (c *Cursor) Entry() (Entry, error) {
	b, err := c.Bytes(EntrySize)
	if err != nil {
		return Entry{}, err
	}
	return ParseEntry(b)
}

// Entries reads n consecutive entries.
func (c *Cursor) Entries(n int) ([]Entry, error) {
	if n == 0 {
		return nil, nil
	}
	if n*EntrySize > c.Remaining() {
		return nil, errors.Wrapf(errdefs.ErrCorruptChunk, "%d entries at offset %d, only %d bytes left", n, c.offset, c.Remaining())
	}
	entries := make([]Entry, 0, n)
	for range n {
		e, err := c.Entry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ExtendedEntry is the self-delimiting legacy record of an installed object
// as found in legacy object tables.
type ExtendedEntry struct {
	Entry
	Filename        string
	Reserved        uint32
	DisplayName     string
	ChunkSize       uint32
	RequiredObjects []Entry
	ThemeObjects    []Entry
	Extra           uint32
}

// NextEntry decodes the extended entry at the cursor and leaves the cursor
// at the start of the following one.
func (c *Cursor) NextEntry() (*ExtendedEntry, error) {
	start := c.offset
	e, err := c.readExtendedEntry()
	if err != nil {
		c.offset = start
		return nil, errors.WithMessagef(err, "extended entry at offset %d", start)
	}
	return e, nil
}

func (c *Cursor) readExtendedEntry() (*ExtendedEntry, error) {
	var e ExtendedEntry
	var err error
	if e.Entry, err = c.Entry(); err != nil {
		return nil, err
	}
	if e.Filename, err = c.CString(); err != nil {
		return nil, err
	}
	if e.Reserved, err = c.U32(); err != nil {
		return nil, err
	}
	if e.DisplayName, err = c.CString(); err != nil {
		return nil, err
	}
	if e.ChunkSize, err = c.U32(); err != nil {
		return nil, err
	}
	n, err := c.U8()
	if err != nil {
		return nil, err
	}
	if e.RequiredObjects, err = c.Entries(int(n)); err != nil {
		return nil, err
	}
	if n, err = c.U8(); err != nil {
		return nil, err
	}
	if e.ThemeObjects, err = c.Entries(int(n)); err != nil {
		return nil, err
	}
	if e.Extra, err = c.U32(); err != nil {
		return nil, err
	}
	return &e, nil
}

// NextEntry returns the length of the extended entry at the start of b,
// which is the offset of the entry after it.
func NextEntry(b []byte) (int, error) {
	c := NewCursor(b)
	if _, err := c.NextEntry(); err != nil {
		return 0, err
	}
	return c.Offset(), nil
}

// AppendBinary encodes e in its legacy table form.
func (e *ExtendedEntry) AppendBinary(b []byte) ([]byte, error) {
	if len(e.RequiredObjects) > 0xFF || len(e.ThemeObjects) > 0xFF {
		return nil, errors.Errorf("object %s has too many dependencies for a legacy table", e.Identifier())
	}
	b = e.Entry.AppendBinary(b)
	b = append(append(b, e.Filename...), 0)
	b = binary.LittleEndian.AppendUint32(b, e.Reserved)
	b = append(append(b, e.DisplayName...), 0)
	b = binary.LittleEndian.AppendUint32(b, e.ChunkSize)
	b = append(b, byte(len(e.RequiredObjects)))
	for _, r := range e.RequiredObjects {
		b = r.AppendBinary(b)
	}
	b = append(b, byte(len(e.ThemeObjects)))
	for _, r := range e.ThemeObjects {
		b = r.AppendBinary(b)
	}
	return binary.LittleEndian.AppendUint32(b, e.Extra), nil
}
