// Package sawyer implements the chunk encodings used by legacy park files
// and object assets, and the chunk stream that frames them.
package sawyer

import (
	"fmt"

	"github.com/pkg/errors"

	"sv6tool/errdefs"
)

// Encoding identifies how the bytes of a chunk are stored on disk.
type Encoding uint8

const (
	None Encoding = iota
	RLE
	RLECompressed
	Rotate
)

// DefaultMaxChunkSize bounds the decoded size of a single chunk. Legacy
// readers decoded chunks of unknown size into a buffer of this size.
const DefaultMaxChunkSize = 0x600000

func (e Encoding) String() string {
	switch e {
	case None:
		return "none"
	case RLE:
		return "rle"
	case RLECompressed:
		return "rle_compressed"
	case Rotate:
		return "rotate"
	}
	return fmt.Sprintf("encoding(%d)", uint8(e))
}

func (e Encoding) Valid() bool {
	return e <= Rotate
}

// BinaryEncoder converts a buffer to and from one on-disk representation.
// Implementations must never read outside the input and must reject output
// that would grow past maxSizeBytes.
type BinaryEncoder interface {
	EncodeBinary(in []byte) ([]byte, error)
	DecodeBinary(in []byte, maxSizeBytes int) ([]byte, error)
}

type chainedBinaryEncoder struct {
	encoders []BinaryEncoder
}

// NewChainedBinaryEncoder creates a BinaryEncoder that applies multiple
// steps. Encoding runs the steps in order, decoding runs them in reverse.
func NewChainedBinaryEncoder(encoders []BinaryEncoder) BinaryEncoder {
	if len(encoders) == 1 {
		return encoders[0]
	}
	return &chainedBinaryEncoder{encoders: encoders}
}

func (be *chainedBinaryEncoder) EncodeBinary(in []byte) ([]byte, error) {
	for _, encoder := range be.encoders {
		var err error
		in, err = encoder.EncodeBinary(in)
		if err != nil {
			return nil, err
		}
	}
	return in, nil
}

func (be *chainedBinaryEncoder) DecodeBinary(in []byte, maxSizeBytes int) ([]byte, error) {
	// Invoke decoders the other way around.
	for i := len(be.encoders); i > 0; i-- {
		var err error
		in, err = be.encoders[i-1].DecodeBinary(in, maxSizeBytes)
		if err != nil {
			return nil, err
		}
	}
	return in, nil
}

type plainEncoder struct{}

func (plainEncoder) EncodeBinary(in []byte) ([]byte, error) {
	return append([]byte(nil), in...), nil
}

func (plainEncoder) DecodeBinary(in []byte, maxSizeBytes int) ([]byte, error) {
	if len(in) > maxSizeBytes {
		return nil, errors.Wrapf(errdefs.ErrCorruptChunk, "%d bytes exceed the maximum chunk size of %d", len(in), maxSizeBytes)
	}
	return append([]byte(nil), in...), nil
}

var encoders = map[Encoding]BinaryEncoder{
	None:          plainEncoder{},
	RLE:           rleEncoder{},
	RLECompressed: NewChainedBinaryEncoder([]BinaryEncoder{backReferenceEncoder{}, rleEncoder{}}),
	Rotate:        rotateEncoder{},
}

// Encode converts data into the on-disk representation of e.
func Encode(e Encoding, data []byte) ([]byte, error) {
	be, ok := encoders[e]
	if !ok {
		return nil, errors.Wrapf(errdefs.ErrCorruptChunk, "unknown chunk encoding %d", uint8(e))
	}
	out, err := be.EncodeBinary(data)
	if err != nil {
		return nil, err
	}
	chunksEncoded.WithLabelValues(e.String()).Inc()
	return out, nil
}

// Decode reverses Encode. The decoded data may not exceed maxSize bytes.
func Decode(e Encoding, data []byte, maxSize int) ([]byte, error) {
	be, ok := encoders[e]
	if !ok {
		return nil, errors.Wrapf(errdefs.ErrCorruptChunk, "unknown chunk encoding %d", uint8(e))
	}
	out, err := be.DecodeBinary(data, maxSize)
	if err != nil {
		return nil, errors.WithMessagef(err, "decode %s", e)
	}
	chunksDecoded.WithLabelValues(e.String()).Inc()
	return out, nil
}
