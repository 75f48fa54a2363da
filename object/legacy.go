package object

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"sv6tool/errdefs"
)

// Size of the fixed structure that starts every payload, per type.
var legacyHeaderSizes = [NumTypes]int{
	Ride:         0x1C2,
	SmallScenery: 0x1C,
	LargeScenery: 0x1A,
	Walls:        0x0E,
	Banners:      0x0C,
	Paths:        0x0E,
	PathBits:     0x0E,
	SceneryGroup: 0x10E,
	ParkEntrance: 0x08,
	Water:        0x10,
	ScenarioText: 0x08,
}

// LegacyHeaderSize returns the size of the fixed structure at the start of
// payloads of type t.
func (t Type) LegacyHeaderSize() int {
	return legacyHeaderSizes[t]
}

// NumStringTables returns the number of string tables following the header.
// Rides carry a name, description and capacity, scenario texts a scenario
// name, park name and details.
func (t Type) NumStringTables() int {
	switch t {
	case Ride, ScenarioText:
		return 3
	}
	return 1
}

// HasSceneryGroup reports whether payloads of type t name the scenery group
// they belong to.
func (t Type) HasSceneryGroup() bool {
	switch t {
	case SmallScenery, LargeScenery, Walls, Banners, PathBits:
		return true
	}
	return false
}

const (
	stringTableEnd   = 0xFF
	entryListEnd     = 0xFF
	imageElementSize = 16

	// Languages, as numbered in string tables.
	LanguageEnglishUK = 0
	LanguageEnglishUS = 1
)

type LocalisedString struct {
	Language uint8
	Text     string
}

// StringTable holds the translations of one string.
type StringTable []LocalisedString

// Get returns the text in language, falling back to English.
func (st StringTable) Get(language uint8) string {
	fallback := ""
	for _, s := range st {
		if s.Language == language {
			return s.Text
		}
		if fallback == "" && (s.Language == LanguageEnglishUK || s.Language == LanguageEnglishUS) {
			fallback = s.Text
		}
	}
	if fallback == "" && len(st) > 0 {
		return st[0].Text
	}
	return fallback
}

func readStringTable(c *Cursor) (StringTable, error) {
	var st StringTable
	for {
		language, err := c.U8()
		if err != nil {
			return nil, errors.WithMessage(err, "string table")
		}
		if language == stringTableEnd {
			return st, nil
		}
		text, err := c.CString()
		if err != nil {
			return nil, errors.WithMessage(err, "string table")
		}
		st = append(st, LocalisedString{Language: language, Text: text})
	}
}

type ImageElement struct {
	Offset       uint32
	Width        int16
	Height       int16
	XOffset      int16
	YOffset      int16
	Flags        uint16
	ZoomedOffset uint16
}

// ImageTable holds the sprites of an object. Offsets of the elements are
// relative to Data.
type ImageTable struct {
	Elements []ImageElement
	Data     []byte
}

func readImageTable(c *Cursor) (*ImageTable, error) {
	count, err := c.U32()
	if err != nil {
		return nil, errors.WithMessage(err, "image table")
	}
	size, err := c.U32()
	if err != nil {
		return nil, errors.WithMessage(err, "image table")
	}
	if int64(count)*imageElementSize+int64(size) > int64(c.Remaining()) {
		return nil, errors.Wrapf(errdefs.ErrCorruptChunk, "image table of %d images and %d bytes exceeds the %d bytes left", count, size, c.Remaining())
	}
	t := &ImageTable{Elements: make([]ImageElement, count)}
	for i := range t.Elements {
		if t.Elements[i], err = readImageElement(c); err != nil {
			return nil, errors.WithMessagef(err, "image %d", i)
		}
	}
	if t.Data, err = c.Bytes(int(size)); err != nil {
		return nil, errors.WithMessage(err, "image data")
	}
	return t, nil
}

func readImageElement(c *Cursor) (ImageElement, error) {
	b, err := c.Bytes(imageElementSize)
	if err != nil {
		return ImageElement{}, err
	}
	return ImageElement{
		Offset:       binary.LittleEndian.Uint32(b[0:]),
		Width:        int16(binary.LittleEndian.Uint16(b[4:])),
		Height:       int16(binary.LittleEndian.Uint16(b[6:])),
		XOffset:      int16(binary.LittleEndian.Uint16(b[8:])),
		YOffset:      int16(binary.LittleEndian.Uint16(b[10:])),
		Flags:        binary.LittleEndian.Uint16(b[12:]),
		ZoomedOffset: binary.LittleEndian.Uint16(b[14:]),
	}, nil
}

// readEntryList reads entries until a 0xFF byte where the next entry would
// start.
func readEntryList(c *Cursor) ([]Entry, error) {
	var entries []Entry
	for {
		b, err := c.Peek()
		if err != nil {
			return nil, errors.WithMessage(err, "entry list")
		}
		if b == entryListEnd {
			c.Skip(1)
			return entries, nil
		}
		e, err := c.Entry()
		if err != nil {
			return nil, errors.WithMessage(err, "entry list")
		}
		entries = append(entries, e)
	}
}

// readUntil reads bytes up to and including the first occurrence of end.
func readUntil(c *Cursor, end byte) ([]byte, error) {
	start := c.Offset()
	for {
		b, err := c.U8()
		if err != nil {
			return nil, err
		}
		if b == end {
			return c.data[start:c.Offset()], nil
		}
	}
}
