package sawyer

import (
	"github.com/pkg/errors"

	"sv6tool/errdefs"
)

const (
	backReferenceLiteral = 0xFF
	backReferenceWindow  = 32
	backReferenceMaxRun  = 8
)

// backReferenceEncoder is the second stage of RLECompressed. A control byte
// of 0xFF is followed by one literal byte. Any other control byte c copies
// (c&7)+1 bytes starting (c>>3)-32 bytes behind the end of the output.
type backReferenceEncoder struct{}

func (backReferenceEncoder) DecodeBinary(in []byte, maxSizeBytes int) ([]byte, error) {
	out := make([]byte, 0, min(4*len(in), maxSizeBytes))
	for i := 0; i < len(in); i++ {
		c := in[i]
		if c == backReferenceLiteral {
			i++
			if i >= len(in) {
				return nil, errors.Wrap(errdefs.ErrCorruptChunk, "back reference: literal marker at end of input")
			}
			if len(out) >= maxSizeBytes {
				return nil, errors.Wrapf(errdefs.ErrCorruptChunk, "back reference: output exceeds %d bytes", maxSizeBytes)
			}
			out = append(out, in[i])
			continue
		}
		n := int(c&7) + 1
		start := len(out) + int(c>>3) - backReferenceWindow
		if start < 0 {
			return nil, errors.Wrapf(errdefs.ErrCorruptChunk, "back reference: offset %d at input %d points before the start of output", int(c>>3)-backReferenceWindow, i)
		}
		if len(out)+n > maxSizeBytes {
			return nil, errors.Wrapf(errdefs.ErrCorruptChunk, "back reference: output exceeds %d bytes", maxSizeBytes)
		}
		// Byte by byte, the copy may read what it has just written.
		for j := 0; j < n; j++ {
			out = append(out, out[start+j])
		}
	}
	return out, nil
}

func (backReferenceEncoder) EncodeBinary(in []byte) ([]byte, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]byte, 0, 2*len(in))
	out = append(out, backReferenceLiteral, in[0])
	for i := 1; i < len(in); {
		bestIndex, bestCount := 0, 0
		for j := max(0, i-backReferenceWindow); j < i; j++ {
			// Matches never reach into the bytes being encoded, which also
			// keeps the control byte from colliding with 0xFF.
			limit := min(backReferenceMaxRun, i-j, len(in)-i)
			count := 0
			for count < limit && in[j+count] == in[i+count] {
				count++
			}
			if count > bestCount {
				bestIndex, bestCount = j, count
				if count == backReferenceMaxRun {
					break
				}
			}
		}
		if bestCount == 0 {
			out = append(out, backReferenceLiteral, in[i])
			i++
			continue
		}
		out = append(out, byte(bestCount-1)|byte(backReferenceWindow-(i-bestIndex))<<3)
		i += bestCount
	}
	return out, nil
}
