// Package metrics appends snapshots of the tool's counters to a file.
package metrics

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Namespace prefixes every metric registered by this module.
const Namespace = "sv6tool"

type Opt func(*Exporter) error

type Exporter struct {
	outputFile string
	gatherer   prometheus.Gatherer
	now        func() time.Time
}

func WithOutputFile(metricsFile string) Opt {
	return func(e *Exporter) error {
		if metricsFile == "" {
			return errors.New("metrics file path is empty")
		}
		e.outputFile = metricsFile
		return nil
	}
}

// WithGatherer replaces the default prometheus registry.
func WithGatherer(g prometheus.Gatherer) Opt {
	return func(e *Exporter) error {
		e.gatherer = g
		return nil
	}
}

func NewExporter(opts ...Opt) (*Exporter, error) {
	exp := Exporter{
		gatherer: prometheus.DefaultGatherer,
		now:      time.Now,
	}
	for _, o := range opts {
		if err := o(&exp); err != nil {
			return nil, err
		}
	}
	if exp.outputFile == "" {
		return nil, errors.New("no metrics file configured")
	}
	return &exp, nil
}

// Export appends one JSON line holding the current value of every
// sv6tool metric in the prometheus text format.
func (e *Exporter) Export() error {
	ms, err := e.gatherer.Gather()
	if err != nil {
		return errors.Wrap(err, "failed to gather all prometheus collectors")
	}
	var b bytes.Buffer
	enc := expfmt.NewEncoder(&b, expfmt.FmtText)
	for _, m := range ms {
		if !strings.HasPrefix(m.GetName(), Namespace+"_") {
			continue
		}
		if err := encode(enc, m); err != nil {
			return err
		}
	}

	data := map[string]string{
		"time":    e.now().Format(time.RFC3339),
		"metrics": b.String(),
	}
	line, err := json.Marshal(data)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal data for %v", data)
	}
	return e.writeToFile(append(line, '\n'))
}

func encode(enc expfmt.Encoder, m *dto.MetricFamily) error {
	if err := enc.Encode(m); err != nil {
		return errors.Wrapf(err, "failed to encode metrics for %s", m.GetName())
	}
	return nil
}

func (e *Exporter) writeToFile(data []byte) error {
	f, err := os.OpenFile(e.outputFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrapf(err, "failed to open metrics file on %s", e.outputFile)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return errors.Wrapf(err, "failed to write metrics file %s", e.outputFile)
	}
	return nil
}
