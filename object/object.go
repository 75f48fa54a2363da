package object

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"sv6tool/errdefs"
)

// Object is a decoded asset. Load decodes the payload and Unload releases
// everything decoded from it.
type Object interface {
	Entry() Entry
	Type() Type
	Name() string
	Data() []byte
	Load() error
	Unload()
	IsLoaded() bool
	Strings() []StringTable
	Images() *ImageTable
	// RequiredObjects lists the objects this one cannot be used without.
	RequiredObjects() []Entry
}

// New creates the object variant for e. The payload is decoded by Load.
func New(e Entry, data []byte) (Object, error) {
	b := base{entry: e, data: data}
	switch e.Type() {
	case Ride:
		return &RideObject{base: b}, nil
	case SmallScenery:
		return &SmallSceneryObject{base: b}, nil
	case LargeScenery:
		return &LargeSceneryObject{base: b}, nil
	case Walls:
		return &WallObject{base: b}, nil
	case Banners:
		return &BannerObject{base: b}, nil
	case Paths:
		return &PathObject{base: b}, nil
	case PathBits:
		return &PathBitObject{base: b}, nil
	case SceneryGroup:
		return &SceneryGroupObject{base: b}, nil
	case ParkEntrance:
		return &EntranceObject{base: b}, nil
	case Water:
		return &WaterObject{base: b}, nil
	case ScenarioText:
		return &ScenarioTextObject{base: b}, nil
	}
	return nil, errors.Wrapf(errdefs.ErrCorruptChunk, "object %s has unknown type %d", e.Identifier(), e.Type())
}

type base struct {
	entry Entry
	data  []byte

	loaded       bool
	header       []byte
	strings      []StringTable
	images       *ImageTable
	sceneryGroup *Entry
}

func (b *base) Entry() Entry           { return b.entry }
func (b *base) Type() Type             { return b.entry.Type() }
func (b *base) Data() []byte           { return b.data }
func (b *base) IsLoaded() bool         { return b.loaded }
func (b *base) Strings() []StringTable { return b.strings }
func (b *base) Images() *ImageTable    { return b.images }

// Name returns the English name of the object, or its entry name if the
// object is not loaded.
func (b *base) Name() string {
	if len(b.strings) > 0 {
		if name := b.strings[0].Get(LanguageEnglishUK); name != "" {
			return name
		}
	}
	return b.entry.NameString()
}

func (b *base) RequiredObjects() []Entry {
	if b.sceneryGroup == nil {
		return nil
	}
	return []Entry{*b.sceneryGroup}
}

func (b *base) Unload() {
	b.loaded = false
	b.header = nil
	b.strings = nil
	b.images = nil
	b.sceneryGroup = nil
}

// load decodes the layout all payloads share: a fixed header, string
// tables, for scenery the entry of the group it belongs to, a type specific
// part read by extension, and the image table.
func (b *base) load(extension func(c *Cursor) error) error {
	if b.loaded {
		return nil
	}
	if err := b.decode(extension); err != nil {
		b.Unload()
		return errors.WithMessagef(err, "load object %s", b.entry.Identifier())
	}
	b.loaded = true
	return nil
}

func (b *base) decode(extension func(c *Cursor) error) error {
	t := b.entry.Type()
	c := NewCursor(b.data)
	var err error
	if b.header, err = c.Bytes(t.LegacyHeaderSize()); err != nil {
		return errors.WithMessage(err, "header")
	}
	for range t.NumStringTables() {
		st, err := readStringTable(c)
		if err != nil {
			return err
		}
		b.strings = append(b.strings, st)
	}
	if t.HasSceneryGroup() {
		e, err := c.Entry()
		if err != nil {
			return errors.WithMessage(err, "scenery group")
		}
		if !e.IsEmpty() {
			b.sceneryGroup = &e
		}
	}
	if extension != nil {
		if err := extension(c); err != nil {
			return err
		}
	}
	b.images, err = readImageTable(c)
	return err
}

type RideObject struct {
	base
	Flags                uint32
	RideTypes            [3]uint8
	Categories           [2]uint8
	PresetColours        [][3]uint8
	PeepLoadingPositions [4][]byte
}

const (
	rideFlagsOffset    = 0x08
	rideTypesOffset    = 0x0C
	rideCategoryOffset = 0x1BE // after the 64 enabled track piece bits at 0x1B6
	maxPresetColours   = 32
)

func (o *RideObject) Load() error {
	return o.load(func(c *Cursor) error {
		o.Flags = binary.LittleEndian.Uint32(o.header[rideFlagsOffset:])
		copy(o.RideTypes[:], o.header[rideTypesOffset:])
		copy(o.Categories[:], o.header[rideCategoryOffset:])

		n, err := c.U8()
		if err != nil {
			return errors.WithMessage(err, "preset colours")
		}
		count := int(n)
		if n == 0xFF {
			count = maxPresetColours
		}
		colours, err := c.Bytes(3 * count)
		if err != nil {
			return errors.WithMessage(err, "preset colours")
		}
		o.PresetColours = make([][3]uint8, count)
		for i := range o.PresetColours {
			copy(o.PresetColours[i][:], colours[3*i:])
		}

		for i := range o.PeepLoadingPositions {
			n, err := c.U8()
			if err != nil {
				return errors.WithMessage(err, "peep loading positions")
			}
			length := int(n)
			if n == 0xFF {
				l, err := c.U16()
				if err != nil {
					return errors.WithMessage(err, "peep loading positions")
				}
				length = int(l)
			}
			if o.PeepLoadingPositions[i], err = c.Bytes(length); err != nil {
				return errors.WithMessage(err, "peep loading positions")
			}
		}
		return nil
	})
}

func (o *RideObject) Unload() {
	o.base.Unload()
	o.PresetColours = nil
	o.PeepLoadingPositions = [4][]byte{}
}

type SmallSceneryObject struct {
	base
	Flags        uint32
	FrameOffsets []byte
}

const (
	smallSceneryFlagsOffset     = 0x06
	smallSceneryHasFrameOffsets = 0x8000
)

func (o *SmallSceneryObject) Load() error {
	return o.load(func(c *Cursor) error {
		o.Flags = binary.LittleEndian.Uint32(o.header[smallSceneryFlagsOffset:])
		if o.Flags&smallSceneryHasFrameOffsets == 0 {
			return nil
		}
		var err error
		if o.FrameOffsets, err = readUntil(c, 0xFF); err != nil {
			return errors.WithMessage(err, "frame offsets")
		}
		return nil
	})
}

func (o *SmallSceneryObject) Unload() {
	o.base.Unload()
	o.FrameOffsets = nil
}

type LargeSceneryTile struct {
	XOffset    int16
	YOffset    int16
	ZOffset    int16
	ZClearance uint8
	Flags      uint16
}

type LargeSceneryObject struct {
	base
	Flags uint8
	Text  []byte
	Tiles []LargeSceneryTile
}

const (
	largeSceneryFlagsOffset = 0x07
	largeSceneryHas3DText   = 0x04
	largeSceneryTextSize    = 0x40E
	largeSceneryTileSize    = 9
	largeSceneryTilesEnd    = 0xFFFF
)

func (o *LargeSceneryObject) Load() error {
	return o.load(func(c *Cursor) error {
		o.Flags = o.header[largeSceneryFlagsOffset]
		var err error
		if o.Flags&largeSceneryHas3DText != 0 {
			if o.Text, err = c.Bytes(largeSceneryTextSize); err != nil {
				return errors.WithMessage(err, "3d text")
			}
		}
		for {
			x, err := c.U16()
			if err != nil {
				return errors.WithMessage(err, "tiles")
			}
			if x == largeSceneryTilesEnd {
				return nil
			}
			b, err := c.Bytes(largeSceneryTileSize - 2)
			if err != nil {
				return errors.WithMessage(err, "tiles")
			}
			o.Tiles = append(o.Tiles, LargeSceneryTile{
				XOffset:    int16(x),
				YOffset:    int16(binary.LittleEndian.Uint16(b[0:])),
				ZOffset:    int16(binary.LittleEndian.Uint16(b[2:])),
				ZClearance: b[4],
				Flags:      binary.LittleEndian.Uint16(b[5:]),
			})
		}
	})
}

func (o *LargeSceneryObject) Unload() {
	o.base.Unload()
	o.Text = nil
	o.Tiles = nil
}

type WallObject struct{ base }

func (o *WallObject) Load() error { return o.load(nil) }

type BannerObject struct{ base }

func (o *BannerObject) Load() error { return o.load(nil) }

type PathObject struct{ base }

func (o *PathObject) Load() error { return o.load(nil) }

type PathBitObject struct{ base }

func (o *PathBitObject) Load() error { return o.load(nil) }

// SceneryGroupObject lists the scenery items that make up a theme.
type SceneryGroupObject struct {
	base
	Items []Entry
}

func (o *SceneryGroupObject) Load() error {
	return o.load(func(c *Cursor) error {
		var err error
		o.Items, err = readEntryList(c)
		return err
	})
}

func (o *SceneryGroupObject) Unload() {
	o.base.Unload()
	o.Items = nil
}

type EntranceObject struct{ base }

func (o *EntranceObject) Load() error { return o.load(nil) }

type WaterObject struct{ base }

func (o *WaterObject) Load() error { return o.load(nil) }

// ScenarioTextObject holds the scenario name, park name and details.
type ScenarioTextObject struct{ base }

func (o *ScenarioTextObject) Load() error { return o.load(nil) }
