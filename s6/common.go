package s6

import (
	"bytes"
	"fmt"
	"slices"

	"sv6tool/object"
)

const (
	Version     = 120001
	MagicNumber = 0x00031144

	headerSize      = 0x20
	infoSize        = 0x198
	objectsSize     = object.NumSlots * object.EntrySize
	datesSize       = 16
	MapElementsSize = 0x180000
	StateSize       = 0x2E8570

	infoNameSize    = 64
	infoDetailsSize = 256
	infoPadding     = 62
)

// stateRange is a part of State stored in its own chunk by scenarios.
type stateRange struct {
	name   string
	offset int
	length int
}

// Scenarios store only these parts of State, the rest is zero.
var scenarioRanges = []stateRange{
	{"state", 0, 0x27104C},
	{"guests in park", 0x27148C, 4},
	{"last guests in park", 0x271810, 8},
	{"park rating", 0x2718F8, 2},
	{"active research types", 0x27193A, 1082},
	{"current expenditure", 0x271F74, 16},
	{"park value", 0x272184, 4},
	{"completed company value", 0x272388, 0x761E8},
}

// ChunkError names the part of a park file that could not be read or
// written.
type ChunkError struct {
	Chunk string
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("%s chunk: %v", e.Chunk, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

func pad(b []byte, l int) []byte {
	return append(b, make([]byte, l-len(b))...)
}

func w(i uint16) []byte {
	return []byte{byte(i & 0xff), byte((i >> 8) & 0xff)}
}

func l(i uint32) []byte {
	return []byte{byte(i & 0xff), byte((i >> 8) & 0xff), byte((i >> 16) & 0xff), byte((i >> 24) & 0xff)}
}

// cstring returns the text of a nul-terminated field.
func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func (h *Header) bytes() []byte {
	return pad(slices.Concat(
		[]byte{byte(h.Type), h.ClassicFlag},
		w(h.NumPackedObjects),
		l(h.Version),
		l(h.MagicNumber)), headerSize)
}

func parseHeader(b []byte) (Header, error) {
	c := object.NewCursor(b)
	var h Header
	t, err := c.U8()
	if err != nil {
		return h, err
	}
	h.Type = Kind(t)
	if h.ClassicFlag, err = c.U8(); err != nil {
		return h, err
	}
	if h.NumPackedObjects, err = c.U16(); err != nil {
		return h, err
	}
	if h.Version, err = c.U32(); err != nil {
		return h, err
	}
	if h.MagicNumber, err = c.U32(); err != nil {
		return h, err
	}
	return h, nil
}

func (i *Info) bytes() []byte {
	return slices.Concat(
		[]byte{i.EditorStep, i.Category, i.ObjectiveType, i.ObjectiveArg1},
		l(uint32(i.ObjectiveArg2)),
		w(uint16(i.ObjectiveArg3)),
		make([]byte, infoPadding),
		pad([]byte(i.Name), infoNameSize),
		pad([]byte(i.Details), infoDetailsSize),
		i.Entry.Bytes())
}

func parseInfo(b []byte) (Info, error) {
	c := object.NewCursor(b)
	var i Info
	fixed, err := c.Bytes(4)
	if err != nil {
		return i, err
	}
	i.EditorStep, i.Category, i.ObjectiveType, i.ObjectiveArg1 = fixed[0], fixed[1], fixed[2], fixed[3]
	arg2, err := c.U32()
	if err != nil {
		return i, err
	}
	i.ObjectiveArg2 = int32(arg2)
	arg3, err := c.U16()
	if err != nil {
		return i, err
	}
	i.ObjectiveArg3 = int16(arg3)
	if err := c.Skip(infoPadding); err != nil {
		return i, err
	}
	name, err := c.Bytes(infoNameSize)
	if err != nil {
		return i, err
	}
	i.Name = cstring(name)
	details, err := c.Bytes(infoDetailsSize)
	if err != nil {
		return i, err
	}
	i.Details = cstring(details)
	i.Entry, err = c.Entry()
	return i, err
}

func (d *Dates) bytes() []byte {
	return slices.Concat(
		w(d.ElapsedMonths),
		w(d.CurrentDay),
		l(d.ScenarioTicks),
		l(d.ScenarioSrand0),
		l(d.ScenarioSrand1))
}

func parseDates(b []byte) (Dates, error) {
	c := object.NewCursor(b)
	var d Dates
	var err error
	if d.ElapsedMonths, err = c.U16(); err != nil {
		return d, err
	}
	if d.CurrentDay, err = c.U16(); err != nil {
		return d, err
	}
	if d.ScenarioTicks, err = c.U32(); err != nil {
		return d, err
	}
	if d.ScenarioSrand0, err = c.U32(); err != nil {
		return d, err
	}
	d.ScenarioSrand1, err = c.U32()
	return d, err
}
