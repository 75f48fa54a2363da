package s6

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"sv6tool/config"
	"sv6tool/errdefs"
	"sv6tool/object"
	"sv6tool/repository"
	"sv6tool/sawyer"
)

// PackedObjectSink receives the objects packed into a park before its
// object list is read.
type PackedObjectSink interface {
	ExportPackedObject(ctx context.Context, f *object.File) (*repository.Item, bool, error)
}

type Importer struct {
	// Sink may be nil, packed objects are then only kept in Data.
	Sink PackedObjectSink
	// Strict rejects any file whose checksum does not match.
	Strict bool
	// AllowIncorrectChecksum loads scenarios whose checksum does not match.
	AllowIncorrectChecksum bool
	MaxChunkSize           int
	Log                    *logrus.Entry
}

func NewImporter(cfg config.Config, sink PackedObjectSink) *Importer {
	return &Importer{
		Sink:                   sink,
		Strict:                 cfg.Strict,
		AllowIncorrectChecksum: cfg.AllowIncorrectChecksum,
		MaxChunkSize:           cfg.MaxChunkSize,
		Log:                    logrus.WithField("component", "s6"),
	}
}

func (im *Importer) LoadSavedGame(ctx context.Context, r io.Reader) (*Data, error) {
	kind := SavedGame
	return im.load(ctx, r, &kind)
}

func (im *Importer) LoadScenario(ctx context.Context, r io.Reader) (*Data, error) {
	kind := Scenario
	return im.load(ctx, r, &kind)
}

// Load reads a park of either kind, as told by its header.
func (im *Importer) Load(ctx context.Context, r io.Reader) (*Data, error) {
	return im.load(ctx, r, nil)
}

func (im *Importer) log() *logrus.Entry {
	if im.Log != nil {
		return im.Log
	}
	return logrus.WithField("component", "s6")
}

// strict tells whether a checksum mismatch fails loading a park of kind k.
func (im *Importer) strict(k Kind) bool {
	return im.Strict || (k == Scenario && !im.AllowIncorrectChecksum)
}

func readChunk(ctx context.Context, cr *sawyer.ChunkReader, name string, dst []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := cr.ReadChunkInto(dst); err != nil {
		return &ChunkError{Chunk: name, Err: err}
	}
	return nil
}

func (im *Importer) load(ctx context.Context, r io.Reader, want *Kind) (*Data, error) {
	registerMetrics()
	// The whole file is needed up front to verify the checksum before any
	// packed object is extracted.
	file, err := io.ReadAll(r)
	if err != nil {
		return nil, errdefs.IO(err, "read park")
	}
	cr := sawyer.NewChunkReader(bytes.NewReader(file), sawyer.WithMaxChunkSize(im.MaxChunkSize), sawyer.WithLogger(im.log()))
	d := &Data{}

	buf := make([]byte, headerSize)
	if err := readChunk(ctx, cr, "header", buf); err != nil {
		return nil, err
	}
	if d.Header, err = parseHeader(buf); err != nil {
		return nil, &ChunkError{Chunk: "header", Err: err}
	}
	if d.Header.Version != Version || d.Header.MagicNumber != MagicNumber {
		return nil, &ChunkError{Chunk: "header", Err: errors.Wrapf(errdefs.ErrVersionMismatch,
			"version %d magic %08X, expected version %d magic %08X", d.Header.Version, d.Header.MagicNumber, Version, MagicNumber)}
	}
	kind := d.Header.Type
	if kind != SavedGame && kind != Scenario {
		return nil, &ChunkError{Chunk: "header", Err: errors.Wrapf(errdefs.ErrCorruptChunk, "park type %d", kind)}
	}
	if want != nil && kind != *want {
		return nil, &ChunkError{Chunk: "header", Err: errors.Wrapf(errdefs.ErrWrongKind, "park is a %s, not a %s", kind, *want)}
	}
	im.log().WithFields(logrus.Fields{
		"kind":         kind,
		"classic_flag": d.Header.ClassicFlag,
		"packed":       d.Header.NumPackedObjects,
	}).Debug("Read park header")

	if im.strict(kind) {
		stored, calculated, err := sawyer.ValidateChecksum(bytes.NewReader(file))
		if err != nil {
			return nil, err
		}
		if stored != calculated {
			return nil, &sawyer.ChecksumError{Stored: stored, Calculated: calculated}
		}
	}

	if kind == Scenario {
		buf = make([]byte, infoSize)
		if err := readChunk(ctx, cr, "info", buf); err != nil {
			return nil, err
		}
		if d.Info, err = parseInfo(buf); err != nil {
			return nil, &ChunkError{Chunk: "info", Err: err}
		}
	}

	for i := range int(d.Header.NumPackedObjects) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := object.ReadPacked(cr)
		if err != nil {
			return nil, &ChunkError{Chunk: fmt.Sprintf("packed object %d", i), Err: err}
		}
		packedObjectsRead.Inc()
		d.PackedObjects = append(d.PackedObjects, f)
		if err := im.exportPackedObject(ctx, f); err != nil {
			return nil, err
		}
	}

	buf = make([]byte, objectsSize)
	if err := readChunk(ctx, cr, "objects", buf); err != nil {
		return nil, err
	}
	for i := range d.Objects {
		if d.Objects[i], err = object.ParseEntry(buf[i*object.EntrySize:]); err != nil {
			return nil, &ChunkError{Chunk: "objects", Err: err}
		}
	}

	buf = make([]byte, datesSize)
	if err := readChunk(ctx, cr, "dates", buf); err != nil {
		return nil, err
	}
	if d.Dates, err = parseDates(buf); err != nil {
		return nil, &ChunkError{Chunk: "dates", Err: err}
	}

	d.MapElements = make([]byte, MapElementsSize)
	if err := readChunk(ctx, cr, "map elements", d.MapElements); err != nil {
		return nil, err
	}

	d.State = make([]byte, StateSize)
	if kind == Scenario {
		for _, sr := range scenarioRanges {
			if err := readChunk(ctx, cr, sr.name, d.State[sr.offset:sr.offset+sr.length]); err != nil {
				return nil, err
			}
		}
	} else if err := readChunk(ctx, cr, "state", d.State); err != nil {
		return nil, err
	}

	if err := cr.VerifyChecksum(im.strict(kind)); err != nil {
		return nil, err
	}
	parksLoaded.WithLabelValues(kind.String()).Inc()
	return d, nil
}

// exportPackedObject hands f to the sink. Objects that cannot be installed
// are skipped, the park still refers to them and they will be reported
// missing.
func (im *Importer) exportPackedObject(ctx context.Context, f *object.File) error {
	if im.Sink == nil {
		return nil
	}
	item, added, err := im.Sink.ExportPackedObject(ctx, f)
	if err != nil {
		if errdefs.IsIO(err) || ctx.Err() != nil {
			return err
		}
		im.log().WithFields(logrus.Fields{
			"object": f.Entry.Identifier(),
			"error":  err,
		}).Warn("Unable to install packed object")
		return nil
	}
	if added {
		im.log().WithFields(logrus.Fields{
			"object": f.Entry.Identifier(),
			"path":   item.Path,
		}).Info("Installed packed object")
	}
	return nil
}
