package sawyer

import (
	"math/bits"

	"github.com/pkg/errors"

	"sv6tool/errdefs"
)

// rotateEncoder rotates byte i by a code that starts at 1 and advances by
// two modulo eight: 1, 3, 5, 7, 1, ...
type rotateEncoder struct{}

func (rotateEncoder) EncodeBinary(in []byte) ([]byte, error) {
	out := make([]byte, len(in))
	code := 1
	for i, b := range in {
		out[i] = bits.RotateLeft8(b, code)
		code = (code + 2) & 7
	}
	return out, nil
}

func (rotateEncoder) DecodeBinary(in []byte, maxSizeBytes int) ([]byte, error) {
	if len(in) > maxSizeBytes {
		return nil, errors.Wrapf(errdefs.ErrCorruptChunk, "rotate: %d bytes exceed the maximum chunk size of %d", len(in), maxSizeBytes)
	}
	out := make([]byte, len(in))
	code := 1
	for i, b := range in {
		out[i] = bits.RotateLeft8(b, -code)
		code = (code + 2) & 7
	}
	return out, nil
}
