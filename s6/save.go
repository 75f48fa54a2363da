package s6

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"sv6tool/sawyer"
)

type Exporter struct {
	Log *logrus.Entry
}

func NewExporter() *Exporter {
	return &Exporter{Log: logrus.WithField("component", "s6")}
}

// Validate checks that d can be written as a park of kind k.
func (d *Data) Validate(k Kind) error {
	if len(d.MapElements) != MapElementsSize {
		return fmt.Errorf("map elements take %d bytes, expected %d", len(d.MapElements), MapElementsSize)
	}
	if len(d.State) != StateSize {
		return fmt.Errorf("state takes %d bytes, expected %d", len(d.State), StateSize)
	}
	if len(d.PackedObjects) > math.MaxUint16 {
		return fmt.Errorf("too many packed objects (%d)", len(d.PackedObjects))
	}
	for _, f := range d.PackedObjects {
		if !f.Encoding.Valid() {
			return fmt.Errorf("packed object %s has unknown encoding %d", f.Entry.Identifier(), f.Encoding)
		}
	}
	if k == Scenario {
		if len(d.Info.Name) >= infoNameSize {
			return fmt.Errorf("scenario name too long (%d), max length %d", len(d.Info.Name), infoNameSize-1)
		}
		if len(d.Info.Details) >= infoDetailsSize {
			return fmt.Errorf("scenario details too long (%d), max length %d", len(d.Info.Details), infoDetailsSize-1)
		}
	}
	return nil
}

func (ex *Exporter) SaveGame(ctx context.Context, w io.Writer, d *Data) error {
	return ex.save(ctx, w, d, SavedGame)
}

func (ex *Exporter) SaveScenario(ctx context.Context, w io.Writer, d *Data) error {
	return ex.save(ctx, w, d, Scenario)
}

func writeChunk(ctx context.Context, cw *sawyer.ChunkWriter, name string, e sawyer.Encoding, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := cw.WriteChunk(e, data); err != nil {
		return &ChunkError{Chunk: name, Err: err}
	}
	return nil
}

// save writes d as a park of kind k and updates d.Header to what was
// written.
func (ex *Exporter) save(ctx context.Context, w io.Writer, d *Data, k Kind) error {
	registerMetrics()
	if err := d.Validate(k); err != nil {
		return errors.WithMessagef(err, "invalid %s", k)
	}
	d.Header = Header{
		Type:             k,
		NumPackedObjects: uint16(len(d.PackedObjects)),
		Version:          Version,
		MagicNumber:      MagicNumber,
	}

	cw := sawyer.NewChunkWriter(w, sawyer.WithLogger(ex.Log))
	if err := writeChunk(ctx, cw, "header", sawyer.Rotate, d.Header.bytes()); err != nil {
		return err
	}
	if k == Scenario {
		if err := writeChunk(ctx, cw, "info", sawyer.Rotate, d.Info.bytes()); err != nil {
			return err
		}
	}
	for i, f := range d.PackedObjects {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := f.WritePacked(cw); err != nil {
			return &ChunkError{Chunk: fmt.Sprintf("packed object %d", i), Err: err}
		}
	}

	objects := make([]byte, 0, objectsSize)
	for _, e := range d.Objects {
		objects = e.AppendBinary(objects)
	}
	if err := writeChunk(ctx, cw, "objects", sawyer.Rotate, objects); err != nil {
		return err
	}
	if err := writeChunk(ctx, cw, "dates", sawyer.RLECompressed, d.Dates.bytes()); err != nil {
		return err
	}
	if err := writeChunk(ctx, cw, "map elements", sawyer.RLECompressed, d.MapElements); err != nil {
		return err
	}
	if k == Scenario {
		for _, sr := range scenarioRanges {
			if err := writeChunk(ctx, cw, sr.name, sawyer.RLECompressed, d.State[sr.offset:sr.offset+sr.length]); err != nil {
				return err
			}
		}
	} else if err := writeChunk(ctx, cw, "state", sawyer.RLECompressed, d.State); err != nil {
		return err
	}

	if err := cw.WriteChecksum(); err != nil {
		return &ChunkError{Chunk: "checksum", Err: err}
	}
	parksSaved.WithLabelValues(k.String()).Inc()
	if ex.Log != nil {
		ex.Log.WithFields(logrus.Fields{
			"kind":   k,
			"packed": len(d.PackedObjects),
			"bytes":  cw.Offset(),
		}).Debug("Saved park")
	}
	return nil
}
