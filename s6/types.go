package s6

import (
	"sv6tool/object"
)

// Kind is the type byte of the header.
type Kind uint8

const (
	SavedGame Kind = 0
	Scenario  Kind = 1
)

func (k Kind) String() string {
	switch k {
	case SavedGame:
		return "saved game"
	case Scenario:
		return "scenario"
	}
	return "unknown park kind"
}

type Header struct {
	Type             Kind
	ClassicFlag      uint8
	NumPackedObjects uint16 // set on save from PackedObjects
	Version          uint32
	MagicNumber      uint32
}

// Info describes a scenario. Saved games do not store it.
type Info struct {
	EditorStep    uint8
	Category      uint8
	ObjectiveType uint8
	ObjectiveArg1 uint8 // years
	ObjectiveArg2 int32 // money or guests
	ObjectiveArg3 int16 // guests or rating
	Name          string
	Details       string
	Entry         object.Entry // scenario text object
}

type Dates struct {
	ElapsedMonths  uint16
	CurrentDay     uint16
	ScenarioTicks  uint32
	ScenarioSrand0 uint32
	ScenarioSrand1 uint32
}

// Data is the content of a park file. MapElements and State are kept as
// opaque regions of exactly MapElementsSize and StateSize bytes.
type Data struct {
	Header        Header
	Info          Info
	PackedObjects []*object.File
	Objects       [object.NumSlots]object.Entry
	Dates         Dates
	MapElements   []byte
	State         []byte
}

// NewData returns an empty park with every object slot unused.
func NewData() *Data {
	d := &Data{
		MapElements: make([]byte, MapElementsSize),
		State:       make([]byte, StateSize),
	}
	for i := range d.Objects {
		d.Objects[i] = object.EmptyEntry
	}
	return d
}

// CountObjects returns the number of used object slots.
func (d *Data) CountObjects() int {
	n := 0
	for _, e := range d.Objects {
		if !e.IsEmpty() {
			n++
		}
	}
	return n
}
