package object

import "math/bits"

const saltSize = 11

// FixChecksum returns data with 11 salt bytes appended so that the result
// matches the checksum recorded in e. Packed objects written by other tools
// sometimes carry payloads whose checksum was never updated.
func FixChecksum(e Entry, data []byte) []byte {
	current := Checksum(e, data)
	// Eleven more rotations by 11 add up to a rotation by 25.
	flip := e.Checksum ^ bits.RotateLeft32(current, 25)
	salt := [saltSize]byte{
		byte((flip & 0x00000001) << 7),
		byte((flip & 0x00200000) >> 14),
		byte((flip & 0x000007F8) >> 3),
		byte((flip & 0xFF000000) >> 24),
		byte((flip & 0x00100000) >> 13),
		byte((flip & 0x00000004) >> 2),
		0,
		byte((flip & 0x000FF000) >> 12),
		byte((flip & 0x00000002) >> 1),
		byte((flip & 0x00C00000) >> 22),
		byte((flip & 0x00000800) >> 11),
	}
	out := make([]byte, 0, len(data)+saltSize)
	out = append(out, data...)
	return append(out, salt[:]...)
}
