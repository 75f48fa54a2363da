// Package objecttest builds synthetic object payloads and asset files.
package objecttest

import (
	"bytes"
	"encoding/binary"

	"sv6tool/object"
	"sv6tool/sawyer"
)

// Options tweaks the payload built by Payload.
type Options struct {
	// Images is the number of 1x1 sprites in the image table.
	Images int
	// SceneryGroup is the group a scenery item belongs to.
	SceneryGroup *object.Entry
	// Items are the members of a scenery group.
	Items []object.Entry
	// RideTypes and Categories are stored in the header of rides.
	RideTypes  [3]uint8
	Categories [2]uint8
	// TrackPieces is the enabled track piece mask of rides.
	TrackPieces uint64
}

// Payload returns a decodable payload of type t whose string tables all
// hold name.
func Payload(t object.Type, name string, o Options) []byte {
	header := make([]byte, t.LegacyHeaderSize())
	if t == object.Ride {
		copy(header[0x0C:], o.RideTypes[:])
		binary.LittleEndian.PutUint64(header[0x1B6:], o.TrackPieces)
		copy(header[0x1BE:], o.Categories[:])
	}
	b := append([]byte(nil), header...)
	for range t.NumStringTables() {
		b = append(b, object.LanguageEnglishUK)
		b = append(append(b, name...), 0)
		b = append(b, 0xFF)
	}
	if t.HasSceneryGroup() {
		group := object.EmptyEntry
		if o.SceneryGroup != nil {
			group = *o.SceneryGroup
		}
		b = group.AppendBinary(b)
	}
	switch t {
	case object.Ride:
		// No preset colours, four empty peep loading position blocks.
		b = append(b, 0, 0, 0, 0, 0)
	case object.LargeScenery:
		b = append(b, 0, 0, 0, 0, 0, 0, 8, 0, 0)
		b = append(b, 0xFF, 0xFF)
	case object.SceneryGroup:
		for _, e := range o.Items {
			b = e.AppendBinary(b)
		}
		b = append(b, 0xFF)
	}
	b = binary.LittleEndian.AppendUint32(b, uint32(o.Images))
	b = binary.LittleEndian.AppendUint32(b, uint32(o.Images))
	for i := range o.Images {
		b = binary.LittleEndian.AppendUint32(b, uint32(i))
		b = append(b, 1, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0)
	}
	return append(b, bytes.Repeat([]byte{0x7F}, o.Images)...)
}

// Entry returns a custom entry named name whose checksum matches data.
func Entry(t object.Type, name string, data []byte) object.Entry {
	e := object.NewEntry(t, name, 0)
	e.Checksum = object.Checksum(e, data)
	return e
}

// File returns a complete asset file.
func File(t object.Type, name string, o Options) (object.Entry, []byte) {
	data := Payload(t, name, o)
	e := Entry(t, name, data)
	var buf bytes.Buffer
	f := &object.File{Entry: e, Encoding: sawyer.RLE, Data: data}
	if err := f.WriteFile(&buf); err != nil {
		panic(err)
	}
	return e, buf.Bytes()
}
