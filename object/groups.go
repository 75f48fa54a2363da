package object

import (
	"sv6tool/sawyer"
)

// NumSlots is the number of entries in the object list of a park.
const NumSlots = 721

var groupCounts = [NumTypes]int{128, 252, 128, 128, 32, 16, 15, 19, 1, 1, 1}

// GroupCount returns how many slots of the object list hold type t.
func GroupCount(t Type) int {
	return groupCounts[t]
}

// GroupOffset returns the first slot of type t.
func GroupOffset(t Type) int {
	offset := 0
	for i := Type(0); i < t; i++ {
		offset += groupCounts[i]
	}
	return offset
}

// SlotType returns the type that slot holds and its index within that group.
func SlotType(slot int) (Type, int, bool) {
	for t := Type(0); int(t) < NumTypes; t++ {
		if slot < groupCounts[t] {
			return t, slot, true
		}
		slot -= groupCounts[t]
	}
	return 0, 0, false
}

// Encoding returns the chunk encoding used for packed objects of type t.
func (t Type) Encoding() sawyer.Encoding {
	if t == ScenarioText {
		return sawyer.Rotate
	}
	return sawyer.RLE
}
