package sawyer

import (
	"fmt"
	"hash"
	"io"

	"github.com/pkg/errors"

	"sv6tool/errdefs"
)

const (
	checksumSize   = 4
	checksumWindow = 1024
)

// ChecksumError reports a file whose trailing checksum does not match the
// sum of its contents.
type ChecksumError struct {
	Stored     uint32
	Calculated uint32
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("file checksum doesn't match, read %#08x, calculated %#08x", e.Stored, e.Calculated)
}

func (e *ChecksumError) Is(target error) bool {
	return target == errdefs.ErrChecksumMismatch
}

// checksum is the additive byte sum that trails every chunk stream.
type checksum struct {
	sum uint32
}

// NewChecksum returns a hash.Hash32 computing the file checksum. Addition
// commutes, so data may be written in windows of any size.
func NewChecksum() hash.Hash32 {
	return &checksum{}
}

func (c *checksum) Write(p []byte) (int, error) {
	c.checkBytes(p)
	return len(p), nil
}

func (c *checksum) checkBytes(bs []byte) {
	for _, b := range bs {
		c.sum += uint32(b)
	}
}

func (c *checksum) Sum(b []byte) []byte {
	return append(b, l(c.sum)...)
}

func (c *checksum) Sum32() uint32  { return c.sum }
func (c *checksum) Reset()         { c.sum = 0 }
func (c *checksum) Size() int      { return checksumSize }
func (c *checksum) BlockSize() int { return checksumWindow }

// ValidateChecksum reads a complete chunk stream in windows of at most
// 1024 bytes and compares the trailing checksum against its contents.
func ValidateChecksum(r io.Reader) (stored, calculated uint32, err error) {
	c := &checksum{}
	buf := make([]byte, checksumWindow)
	var pending []byte
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			if len(pending) > checksumSize {
				c.checkBytes(pending[:len(pending)-checksumSize])
				pending = append(pending[:0], pending[len(pending)-checksumSize:]...)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return 0, 0, errdefs.IO(rerr, "read checksummed data")
		}
	}
	if len(pending) < checksumSize {
		return 0, 0, errors.Wrap(errdefs.ErrTruncatedStream, "file too short to hold a checksum")
	}
	stored = uint32(pending[0]) | uint32(pending[1])<<8 | uint32(pending[2])<<16 | uint32(pending[3])<<24
	calculated = c.Sum32()
	if stored != calculated {
		checksumMismatches.Inc()
		return stored, calculated, &ChecksumError{Stored: stored, Calculated: calculated}
	}
	return stored, calculated, nil
}

func l(i uint32) []byte {
	return []byte{byte(i & 0xff), byte((i >> 8) & 0xff), byte((i >> 16) & 0xff), byte((i >> 24) & 0xff)}
}
