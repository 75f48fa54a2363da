package sawyer

import (
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"sv6tool/errdefs"
)

const chunkHeaderSize = 5

// UnknownLength in a chunk header means the chunk runs until the end of the
// stream. Only asset files use it.
const UnknownLength = 0xFFFFFFFF

type ChunkHeader struct {
	Encoding Encoding
	Length   uint32
}

// Chunk is one decoded region of a chunk stream.
type Chunk struct {
	Encoding Encoding
	Data     []byte
}

type Opt func(*options)

type options struct {
	maxChunkSize int
	log          *logrus.Entry
}

// WithMaxChunkSize bounds the decoded size of every chunk.
func WithMaxChunkSize(n int) Opt {
	return func(o *options) {
		if n > 0 {
			o.maxChunkSize = n
		}
	}
}

func WithLogger(log *logrus.Entry) Opt {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

func newOptions(opts []Opt) options {
	o := options{
		maxChunkSize: DefaultMaxChunkSize,
		log:          logrus.WithField("component", "sawyer"),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ChunkReader reads a sequence of chunks. Chunks carry no identity, the
// caller knows which field comes next. Every byte consumed is added to the
// running file checksum.
type ChunkReader struct {
	r        io.Reader
	options  options
	checksum checksum
	offset   int64
}

func NewChunkReader(r io.Reader, opts ...Opt) *ChunkReader {
	registerMetrics()
	return &ChunkReader{r: r, options: newOptions(opts)}
}

// Offset returns the number of bytes consumed so far.
func (cr *ChunkReader) Offset() int64 {
	return cr.offset
}

// Checksum returns the sum of all bytes consumed so far.
func (cr *ChunkReader) Checksum() uint32 {
	return cr.checksum.Sum32()
}

func (cr *ChunkReader) readUncompressed(n int) ([]byte, error) {
	b := make([]byte, n)
	got, err := io.ReadFull(cr.r, b)
	cr.offset += int64(got)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return nil, errors.Wrapf(errdefs.ErrTruncatedStream, "read %d bytes at offset %d, expected %d", got, cr.offset-int64(got), n)
	}
	if err != nil {
		return nil, errdefs.IO(err, "read at offset %d", cr.offset-int64(got))
	}
	cr.checksum.checkBytes(b)
	return b, nil
}

func (cr *ChunkReader) readRemaining() ([]byte, error) {
	limit := 2*int64(cr.options.maxChunkSize) + 1
	b, err := io.ReadAll(io.LimitReader(cr.r, limit))
	cr.offset += int64(len(b))
	if err != nil {
		return nil, errdefs.IO(err, "read at offset %d", cr.offset)
	}
	if int64(len(b)) == limit {
		return nil, errors.Wrapf(errdefs.ErrCorruptChunk, "unterminated chunk exceeds %d bytes", limit-1)
	}
	cr.checksum.checkBytes(b)
	return b, nil
}

// ReadRaw reads n bytes that are stored outside of any chunk.
func (cr *ChunkReader) ReadRaw(n int) ([]byte, error) {
	return cr.readUncompressed(n)
}

func (cr *ChunkReader) ReadHeader() (ChunkHeader, error) {
	b, err := cr.readUncompressed(chunkHeaderSize)
	if err != nil {
		return ChunkHeader{}, errors.WithMessage(err, "chunk header")
	}
	h := ChunkHeader{
		Encoding: Encoding(b[0]),
		Length:   uint32(b[4])<<24 + uint32(b[3])<<16 + uint32(b[2])<<8 + uint32(b[1]),
	}
	if !h.Encoding.Valid() {
		return ChunkHeader{}, errors.Wrapf(errdefs.ErrCorruptChunk, "unknown chunk encoding %d at offset %d", b[0], cr.offset-chunkHeaderSize)
	}
	// No encoding more than doubles its input.
	if h.Length != UnknownLength && int64(h.Length) > 2*int64(cr.options.maxChunkSize)+chunkHeaderSize {
		return ChunkHeader{}, errors.Wrapf(errdefs.ErrCorruptChunk, "chunk at offset %d declares impossible length %d", cr.offset-chunkHeaderSize, h.Length)
	}
	return h, nil
}

// ReadChunk reads one header and its data and decodes it.
func (cr *ChunkReader) ReadChunk() (*Chunk, error) {
	h, err := cr.ReadHeader()
	if err != nil {
		return nil, err
	}
	var encoded []byte
	if h.Length == UnknownLength {
		encoded, err = cr.readRemaining()
	} else {
		encoded, err = cr.readUncompressed(int(h.Length))
	}
	if err != nil {
		return nil, errors.WithMessage(err, "chunk data")
	}
	data, err := Decode(h.Encoding, encoded, cr.options.maxChunkSize)
	if err != nil {
		return nil, err
	}
	return &Chunk{Encoding: h.Encoding, Data: data}, nil
}

// ReadChunkInto reads one chunk into dst. A short chunk leaves the rest of
// dst zeroed and a long one is cut off at len(dst).
func (cr *ChunkReader) ReadChunkInto(dst []byte) error {
	c, err := cr.ReadChunk()
	if err != nil {
		return err
	}
	n := copy(dst, c.Data)
	clear(dst[n:])
	if len(c.Data) != len(dst) {
		cr.options.log.Debugf("chunk decoded to %d bytes, expected %d", len(c.Data), len(dst))
	}
	return nil
}

// ReadChecksum reads the trailing checksum and returns it along with the
// sum calculated over everything read before it.
func (cr *ChunkReader) ReadChecksum() (stored, calculated uint32, err error) {
	calculated = cr.Checksum()
	b, err := cr.readUncompressed(checksumSize)
	if err != nil {
		return 0, calculated, errors.WithMessage(err, "file checksum")
	}
	stored = uint32(b[3])<<24 + uint32(b[2])<<16 + uint32(b[1])<<8 + uint32(b[0])
	return stored, calculated, nil
}

// VerifyChecksum reads the trailing checksum. A mismatch is an error only
// when strict is set, otherwise it is logged.
func (cr *ChunkReader) VerifyChecksum(strict bool) error {
	stored, calculated, err := cr.ReadChecksum()
	if err != nil {
		return err
	}
	if stored == calculated {
		return nil
	}
	checksumMismatches.Inc()
	cerr := &ChecksumError{Stored: stored, Calculated: calculated}
	if strict {
		return cerr
	}
	cr.options.log.Warn(cerr.Error())
	return nil
}

// ChunkWriter writes a sequence of chunks, keeping the running checksum so
// that it can be appended once everything else is written.
type ChunkWriter struct {
	w        io.Writer
	options  options
	checksum checksum
	offset   int64
}

func NewChunkWriter(w io.Writer, opts ...Opt) *ChunkWriter {
	registerMetrics()
	return &ChunkWriter{w: w, options: newOptions(opts)}
}

func (cw *ChunkWriter) Offset() int64 {
	return cw.offset
}

func (cw *ChunkWriter) writeUncompressed(b []byte) error {
	n, err := cw.w.Write(b)
	cw.offset += int64(n)
	if err != nil {
		return errdefs.IO(err, "write at offset %d", cw.offset-int64(n))
	}
	if n != len(b) {
		return errdefs.IO(io.ErrShortWrite, "wrote %d bytes, expected %d", n, len(b))
	}
	cw.checksum.checkBytes(b)
	return nil
}

// WriteRaw writes bytes outside of any chunk. They still count towards
// the checksum.
func (cw *ChunkWriter) WriteRaw(b []byte) error {
	return cw.writeUncompressed(b)
}

func (cw *ChunkWriter) WriteChunk(e Encoding, data []byte) error {
	if len(data) > cw.options.maxChunkSize {
		return errors.Wrapf(errdefs.ErrCorruptChunk, "chunk of %d bytes exceeds the maximum chunk size of %d", len(data), cw.options.maxChunkSize)
	}
	encoded, err := Encode(e, data)
	if err != nil {
		return err
	}
	header := append([]byte{byte(e)}, l(uint32(len(encoded)))...)
	if err := cw.writeUncompressed(header); err != nil {
		return err
	}
	return cw.writeUncompressed(encoded)
}

// WriteChecksum appends the sum of everything written so far. It must be
// the last write.
func (cw *ChunkWriter) WriteChecksum() error {
	n, err := cw.w.Write(l(cw.checksum.Sum32()))
	cw.offset += int64(n)
	if err != nil {
		return errdefs.IO(err, "write file checksum")
	}
	if n != checksumSize {
		return errdefs.IO(io.ErrShortWrite, "wrote %d bytes for the file checksum, expected 4", n)
	}
	return nil
}
