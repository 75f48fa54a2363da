package errdefs

import (
	"github.com/pkg/errors"
)

var (
	ErrIO               = errors.New("i/o error")
	ErrCorruptChunk     = errors.New("corrupt chunk")
	ErrTruncatedStream  = errors.New("truncated stream")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrVersionMismatch  = errors.New("version mismatch")
	ErrMissingObject    = errors.New("missing object")
	ErrWrongKind        = errors.New("wrong park kind")
)

// IsIO returns true if the error is due to a failed file operation
func IsIO(err error) bool {
	return errors.Is(err, ErrIO)
}

// IsCorruptChunk returns true if the error is due to undecodable chunk data
func IsCorruptChunk(err error) bool {
	return errors.Is(err, ErrCorruptChunk)
}

// IsTruncatedStream returns true if the stream ended in the middle of a chunk
func IsTruncatedStream(err error) bool {
	return errors.Is(err, ErrTruncatedStream)
}

func IsChecksumMismatch(err error) bool {
	return errors.Is(err, ErrChecksumMismatch)
}

func IsVersionMismatch(err error) bool {
	return errors.Is(err, ErrVersionMismatch)
}

func IsMissingObject(err error) bool {
	return errors.Is(err, ErrMissingObject)
}

// IsWrongKind returns true if a saved game was read as a scenario or the
// other way round
func IsWrongKind(err error) bool {
	return errors.Is(err, ErrWrongKind)
}

// IO marks err as an i/o failure while keeping it inspectable.
func IO(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &ioError{msg: errors.Wrapf(err, format, args...).Error(), cause: err}
}

type ioError struct {
	msg   string
	cause error
}

func (e *ioError) Error() string { return e.msg }

func (e *ioError) Is(target error) bool { return target == ErrIO }

func (e *ioError) Unwrap() error { return e.cause }
