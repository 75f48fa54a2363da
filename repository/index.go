package repository

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/pkg/errors"

	"sv6tool/errdefs"
	"sv6tool/object"
)

// IndexVersion is stored in objects.idx. Files written with any other
// version are rebuilt.
const IndexVersion = 3

const indexHeaderSize = 32

// Item describes an installed object without loading it.
type Item struct {
	Entry           object.Entry
	Path            string
	Name            string
	NumImages       uint32
	ChunkSize       uint32
	RequiredObjects []object.Entry
	// Extra holds what the type of the object adds, if anything.
	Extra ItemExtra
}

type ItemExtra interface {
	isItemExtra()
}

type RideExtra struct {
	Flags      uint8
	Categories [2]uint8
	RideTypes  [3]uint8
}

type SceneryGroupExtra struct {
	ThemeObjects []object.Entry
}

func (*RideExtra) isItemExtra()         {}
func (*SceneryGroupExtra) isItemExtra() {}

type indexHeader struct {
	Version    uint16
	LanguageID uint16
	Fingerprint
	NumItems uint32
}

func (h *indexHeader) appendBinary(b []byte) []byte {
	b = binary.LittleEndian.AppendUint16(b, h.Version)
	b = binary.LittleEndian.AppendUint16(b, h.LanguageID)
	b = binary.LittleEndian.AppendUint32(b, h.TotalFiles)
	b = binary.LittleEndian.AppendUint64(b, h.TotalFileSize)
	b = binary.LittleEndian.AppendUint32(b, h.DateModifiedChecksum)
	b = binary.LittleEndian.AppendUint32(b, h.PathChecksum)
	b = binary.LittleEndian.AppendUint32(b, h.NumItems)
	return binary.LittleEndian.AppendUint32(b, 0)
}

func readIndexHeader(c *object.Cursor) (indexHeader, error) {
	b, err := c.Bytes(indexHeaderSize)
	if err != nil {
		return indexHeader{}, errors.WithMessage(err, "index header")
	}
	return indexHeader{
		Version:    binary.LittleEndian.Uint16(b[0:]),
		LanguageID: binary.LittleEndian.Uint16(b[2:]),
		Fingerprint: Fingerprint{
			TotalFiles:           binary.LittleEndian.Uint32(b[4:]),
			TotalFileSize:        binary.LittleEndian.Uint64(b[8:]),
			DateModifiedChecksum: binary.LittleEndian.Uint32(b[16:]),
			PathChecksum:         binary.LittleEndian.Uint32(b[20:]),
		},
		NumItems: binary.LittleEndian.Uint32(b[24:]),
	}, nil
}

func appendString(b []byte, s string) ([]byte, error) {
	if strings.IndexByte(s, 0) >= 0 {
		return nil, errors.Errorf("string %q contains a nul byte", s)
	}
	return append(append(b, s...), 0), nil
}

func appendEntries(b []byte, entries []object.Entry) ([]byte, error) {
	if len(entries) > math.MaxUint16 {
		return nil, errors.Errorf("%d entries do not fit in an index item", len(entries))
	}
	b = binary.LittleEndian.AppendUint16(b, uint16(len(entries)))
	for _, e := range entries {
		b = e.AppendBinary(b)
	}
	return b, nil
}

func readEntries(c *object.Cursor) ([]object.Entry, error) {
	n, err := c.U16()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return c.Entries(int(n))
}

func (item *Item) appendBinary(b []byte) ([]byte, error) {
	b = item.Entry.AppendBinary(b)
	var err error
	if b, err = appendString(b, item.Path); err != nil {
		return nil, err
	}
	if b, err = appendString(b, item.Name); err != nil {
		return nil, err
	}
	b = binary.LittleEndian.AppendUint32(b, item.NumImages)
	b = binary.LittleEndian.AppendUint32(b, item.ChunkSize)
	if b, err = appendEntries(b, item.RequiredObjects); err != nil {
		return nil, err
	}

	switch item.Entry.Type() {
	case object.Ride:
		var ride RideExtra
		if extra, ok := item.Extra.(*RideExtra); ok {
			ride = *extra
		}
		b = append(b, ride.Flags)
		b = append(b, ride.Categories[:]...)
		b = append(b, ride.RideTypes[:]...)
	case object.SceneryGroup:
		var group SceneryGroupExtra
		if extra, ok := item.Extra.(*SceneryGroupExtra); ok {
			group = *extra
		}
		if b, err = appendEntries(b, group.ThemeObjects); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func readItem(c *object.Cursor) (*Item, error) {
	item := &Item{}
	var err error
	if item.Entry, err = c.Entry(); err != nil {
		return nil, err
	}
	if item.Path, err = c.CString(); err != nil {
		return nil, err
	}
	if item.Name, err = c.CString(); err != nil {
		return nil, err
	}
	if item.NumImages, err = c.U32(); err != nil {
		return nil, err
	}
	if item.ChunkSize, err = c.U32(); err != nil {
		return nil, err
	}
	if item.RequiredObjects, err = readEntries(c); err != nil {
		return nil, err
	}

	switch item.Entry.Type() {
	case object.Ride:
		b, err := c.Bytes(6)
		if err != nil {
			return nil, err
		}
		ride := &RideExtra{Flags: b[0]}
		copy(ride.Categories[:], b[1:3])
		copy(ride.RideTypes[:], b[3:6])
		item.Extra = ride
	case object.SceneryGroup:
		themes, err := readEntries(c)
		if err != nil {
			return nil, err
		}
		item.Extra = &SceneryGroupExtra{ThemeObjects: themes}
	}
	return item, nil
}

func encodeIndex(h indexHeader, items []*Item) ([]byte, error) {
	h.NumItems = uint32(len(items))
	b := h.appendBinary(make([]byte, 0, indexHeaderSize+64*len(items)))
	for _, item := range items {
		var err error
		if b, err = item.appendBinary(b); err != nil {
			return nil, errors.WithMessagef(err, "index item %s", item.Path)
		}
	}
	return b, nil
}

// decodeItems reads exactly n items, which must fill the rest of c.
func decodeItems(c *object.Cursor, n uint32) ([]*Item, error) {
	// Every item takes at least 28 bytes.
	if uint64(n)*28 > uint64(c.Remaining()) {
		return nil, errors.Wrapf(errdefs.ErrCorruptChunk, "index claims %d items in %d bytes", n, c.Remaining())
	}
	items := make([]*Item, 0, n)
	for i := uint32(0); i < n; i++ {
		item, err := readItem(c)
		if err != nil {
			return nil, errors.WithMessagef(err, "index item %d", i)
		}
		items = append(items, item)
	}
	if !c.Done() {
		return nil, errors.Wrapf(errdefs.ErrCorruptChunk, "%d bytes after the last index item", c.Remaining())
	}
	return items, nil
}
