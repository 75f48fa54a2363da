// Package object defines the 16-byte record that identifies a game asset,
// the self-delimiting legacy form of that record, asset files and the
// decoded objects they contain.
package object

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/bits"
	"strings"

	"github.com/pkg/errors"

	"sv6tool/errdefs"
)

const (
	EntrySize = 16
	NameSize  = 8

	checksumSeed = 0xF369A75B

	// Entries with any of these flag bits set come from the original game
	// or its expansions. Their checksums are not stable across releases.
	sourceMask = 0xF0
)

type Type uint8

const (
	Ride Type = iota
	SmallScenery
	LargeScenery
	Walls
	Banners
	Paths
	PathBits
	SceneryGroup
	ParkEntrance
	Water
	ScenarioText

	NumTypes = int(ScenarioText) + 1
)

var typeNames = [NumTypes]string{
	"ride", "small_scenery", "large_scenery", "walls", "banners", "paths",
	"path_bits", "scenery_group", "park_entrance", "water", "scenario_text",
}

func (t Type) String() string {
	if int(t) < NumTypes {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

func (t Type) Valid() bool {
	return int(t) < NumTypes
}

// Entry is the fixed record identifying an object.
type Entry struct {
	Flags    uint32 // low nibble is the type, high nibble the source
	Name     [NameSize]byte
	Checksum uint32
}

// EmptyEntry is the placeholder stored in unused object slots.
var EmptyEntry = Entry{
	Flags:    0xFFFFFFFF,
	Name:     [NameSize]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
	Checksum: 0xFFFFFFFF,
}

// NewEntry builds an entry for a custom object with the given name, which
// is padded with spaces.
func NewEntry(t Type, name string, checksum uint32) Entry {
	e := Entry{Flags: uint32(t), Checksum: checksum}
	copy(e.Name[:], []byte(name+strings.Repeat(" ", NameSize)))
	return e
}

func ParseEntry(b []byte) (Entry, error) {
	if len(b) < EntrySize {
		return Entry{}, errors.Wrapf(errdefs.ErrCorruptChunk, "object entry needs %d bytes, got %d", EntrySize, len(b))
	}
	var e Entry
	e.Flags = binary.LittleEndian.Uint32(b[0:])
	copy(e.Name[:], b[4:12])
	e.Checksum = binary.LittleEndian.Uint32(b[12:])
	return e, nil
}

func (e Entry) Bytes() []byte {
	return e.AppendBinary(make([]byte, 0, EntrySize))
}

func (e Entry) AppendBinary(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, e.Flags)
	b = append(b, e.Name[:]...)
	return binary.LittleEndian.AppendUint32(b, e.Checksum)
}

func (e Entry) Type() Type {
	return Type(e.Flags & 0x0F)
}

// Source returns the high nibble of the flags, zero for custom objects.
func (e Entry) Source() uint8 {
	return uint8(e.Flags&sourceMask) >> 4
}

// IsEmpty reports whether e is a placeholder rather than a reference.
func (e Entry) IsEmpty() bool {
	if e.Flags&0xFF != 0xFF {
		return false
	}
	for _, c := range e.Name {
		if c != 0xFF {
			return false
		}
	}
	return true
}

// IsCustom reports whether e refers to a third party object. Only those are
// packed into saved parks.
func (e Entry) IsCustom() bool {
	return e.Source() == 0
}

// NameString returns the name without its space padding.
func (e Entry) NameString() string {
	return strings.TrimRight(string(bytes.TrimRight(e.Name[:], "\x00")), " ")
}

// Identifier returns a printable form of e that is unique per entry, such as
// "WOODRC/00000000A1B2C3D4".
func (e Entry) Identifier() string {
	name := strings.Map(func(r rune) rune {
		if r == ' ' || r < 0x20 || r > 0x7E {
			return -1
		}
		return r
	}, string(e.Name[:]))
	return fmt.Sprintf("%s/%08X%08X", name, e.Flags, e.Checksum)
}

func (e Entry) String() string {
	return e.Identifier()
}

// Equals compares a against b. When a belongs to the original game or an
// expansion only the type and name are compared, otherwise flags and
// checksum must match as well. Only the flags of a decide which rule applies.
func Equals(a, b Entry) bool {
	if a.Flags&sourceMask != 0 {
		return a.Type() == b.Type() && a.Name == b.Name
	}
	return a == b
}

// Checksum computes the checksum an entry must carry for data, the decoded
// payload of its asset.
func Checksum(e Entry, data []byte) uint32 {
	c := uint32(checksumSeed)
	c = bits.RotateLeft32(c^uint32(byte(e.Flags)), 11)
	for _, b := range e.Name {
		c = bits.RotateLeft32(c^uint32(b), 11)
	}
	for _, b := range data {
		c = bits.RotateLeft32(c^uint32(b), 11)
	}
	return c
}

// VerifyChecksum fails with ErrChecksumMismatch if data does not belong to e.
func VerifyChecksum(e Entry, data []byte) error {
	if got := Checksum(e, data); got != e.Checksum {
		return errors.Wrapf(errdefs.ErrChecksumMismatch, "object %s: calculated checksum %08X", e.Identifier(), got)
	}
	return nil
}

// NameKey buckets entries by name with the DJB hash. Equality never
// ignores the name, so equal entries always share a key.
func (e Entry) NameKey() uint32 {
	h := uint32(5381)
	for _, c := range e.Name {
		h = h*33 + uint32(c)
	}
	return h
}
