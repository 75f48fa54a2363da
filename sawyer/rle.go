package sawyer

import (
	"slices"

	"github.com/pkg/errors"

	"sv6tool/errdefs"
)

const (
	maxLiteralRun = 127 + 1
	maxRepeatRun  = 257 - 0x80
)

// rleEncoder stores data as groups behind a signed control byte: c >= 0 is
// followed by c+1 literal bytes, c < 0 is followed by one byte repeated
// -c+1 times.
type rleEncoder struct{}

func (rleEncoder) DecodeBinary(in []byte, maxSizeBytes int) ([]byte, error) {
	out := make([]byte, 0, min(2*len(in), maxSizeBytes))
	for i := 0; i < len(in); {
		c := int8(in[i])
		i++
		if c >= 0 {
			n := int(c) + 1
			if n > len(in)-i {
				return nil, errors.Wrapf(errdefs.ErrCorruptChunk, "rle: literal run of %d bytes at offset %d, only %d bytes left", n, i-1, len(in)-i)
			}
			if len(out)+n > maxSizeBytes {
				return nil, errors.Wrapf(errdefs.ErrCorruptChunk, "rle: output exceeds %d bytes", maxSizeBytes)
			}
			out = append(out, in[i:i+n]...)
			i += n
		} else {
			if i >= len(in) {
				return nil, errors.Wrapf(errdefs.ErrCorruptChunk, "rle: repeat at offset %d has no value", i-1)
			}
			n := 1 - int(c)
			if len(out)+n > maxSizeBytes {
				return nil, errors.Wrapf(errdefs.ErrCorruptChunk, "rle: output exceeds %d bytes", maxSizeBytes)
			}
			out = append(out, slices.Repeat([]byte{in[i]}, n)...)
			i++
		}
	}
	return out, nil
}

func (rleEncoder) EncodeBinary(in []byte) ([]byte, error) {
	out := make([]byte, 0, len(in)+len(in)/maxLiteralRun+1)
	literal := 0
	flush := func(end int) {
		for literal < end {
			c := min(end-literal, maxLiteralRun)
			out = append(out, byte(c-1))
			out = append(out, in[literal:literal+c]...)
			literal += c
		}
	}
	for i := 0; i < len(in); {
		run := 1
		for i+run < len(in) && run < maxRepeatRun && in[i+run] == in[i] {
			run++
		}
		// A run of two only pays off when no literal group has to be split.
		if run >= 3 || (run == 2 && literal == i) {
			flush(i)
			out = append(out, byte(257-run), in[i])
			i += run
			literal = i
		} else {
			i++
		}
	}
	flush(len(in))
	return out, nil
}
