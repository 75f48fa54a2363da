// The sv6tool CLI inspects, verifies and converts park files and keeps the
// index of installed objects up to date.
package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/ulikunitz/xz"
	"github.com/urfave/cli/v2"

	"sv6tool/config"
	"sv6tool/engine"
	"sv6tool/metrics"
	"sv6tool/object"
	"sv6tool/s6"
	"sv6tool/sawyer"
)

var version = "dev"

func configFromContext(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	cfg.ObjectDirs = c.StringSlice("object-dir")
	cfg.UserDataDir = c.String("user-dir")
	cfg.Workers = c.Int("workers")
	cfg.Strict = c.Bool("strict")
	cfg.AllowIncorrectChecksum = c.Bool("allow-incorrect-checksum")
	cfg.PayloadCacheSize = c.Int("cache-size")
	cfg.MaxChunkSize = c.Int("max-chunk-size")
	cfg.LanguageID = uint16(c.Uint("language"))
	return cfg, cfg.Validate()
}

func newEngine(c *cli.Context) (*engine.Engine, error) {
	cfg, err := configFromContext(c)
	if err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	e, err := engine.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := e.Init(c.Context); err != nil {
		return nil, errors.Wrap(err, "load object index")
	}
	return e, nil
}

func index(c *cli.Context) error {
	e, err := newEngine(c)
	if err != nil {
		return err
	}
	files, _, err := e.Repository().QueryDirectory(c.Context)
	if err != nil {
		return err
	}
	var size int64
	for _, f := range files {
		size += f.Size
	}

	byType := map[string]int{}
	var types []string
	for _, item := range e.Repository().Items() {
		t := item.Entry.Type().String()
		if byType[t] == 0 {
			types = append(types, t)
		}
		byType[t]++
	}
	sort.Strings(types)

	w := c.App.Writer
	fmt.Fprintf(w, "%s objects in %s files (%s), %d conflicts\n",
		humanize.Comma(int64(len(e.Repository().Items()))), humanize.Comma(int64(len(files))),
		humanize.Bytes(uint64(size)), e.Repository().Conflicts())
	for _, t := range types {
		fmt.Fprintf(w, "  %-14s %s\n", t, humanize.Comma(int64(byType[t])))
	}
	return nil
}

func openPark(c *cli.Context) (*os.File, error) {
	if c.NArg() < 1 {
		return nil, errors.New("missing park file argument")
	}
	f, err := os.Open(c.Args().First())
	if err != nil {
		return nil, errors.Wrap(err, "open park")
	}
	return f, nil
}

func info(c *cli.Context) error {
	e, err := newEngine(c)
	if err != nil {
		return err
	}
	f, err := openPark(c)
	if err != nil {
		return err
	}
	defer f.Close()
	cfg, _ := configFromContext(c)
	// Inspecting a park installs nothing.
	d, err := s6.NewImporter(cfg, nil).Load(c.Context, f)
	if err != nil {
		return err
	}

	w := c.App.Writer
	fmt.Fprintf(w, "%s, version %d, classic flag %d\n", d.Header.Type, d.Header.Version, d.Header.ClassicFlag)
	if d.Header.Type == s6.Scenario {
		fmt.Fprintf(w, "Name:      %s\n", d.Info.Name)
		fmt.Fprintf(w, "Details:   %s\n", d.Info.Details)
		fmt.Fprintf(w, "Objective: type %d (%d, %d, %d)\n", d.Info.ObjectiveType, d.Info.ObjectiveArg1, d.Info.ObjectiveArg2, d.Info.ObjectiveArg3)
	}
	fmt.Fprintf(w, "Date:      month %d, day %d\n", d.Dates.ElapsedMonths, d.Dates.CurrentDay)

	fmt.Fprintf(w, "%d packed objects\n", len(d.PackedObjects))
	for _, p := range d.PackedObjects {
		fmt.Fprintf(w, "  %s (%s, %s)\n", p.Entry.Identifier(), p.Encoding, humanize.Bytes(uint64(len(p.Data))))
	}

	var missing []string
	for _, entry := range d.Objects {
		if entry.IsEmpty() || e.Repository().FindObject(entry) != nil {
			continue
		}
		installed := false
		for _, p := range d.PackedObjects {
			if object.Equals(p.Entry, entry) {
				installed = true
				break
			}
		}
		if !installed {
			missing = append(missing, entry.Identifier())
		}
	}
	fmt.Fprintf(w, "%d objects used, %d missing\n", d.CountObjects(), len(missing))
	for _, m := range missing {
		fmt.Fprintf(w, "  %s\n", m)
	}
	return nil
}

func verify(c *cli.Context) error {
	f, err := openPark(c)
	if err != nil {
		return err
	}
	defer f.Close()
	stored, calculated, err := sawyer.ValidateChecksum(f)
	if err != nil {
		return err
	}
	if stored != calculated {
		return &sawyer.ChecksumError{Stored: stored, Calculated: calculated}
	}
	fmt.Fprintf(c.App.Writer, "%s: checksum %08X OK\n", c.Args().First(), stored)
	return nil
}

func convert(c *cli.Context) (err error) {
	if c.NArg() != 2 {
		return errors.New("usage: convert INFILE OUTFILE")
	}
	e, err := newEngine(c)
	if err != nil {
		return err
	}
	in, err := openPark(c)
	if err != nil {
		return err
	}
	defer in.Close()
	park, err := e.LoadPark(c.Context, in)
	if err != nil {
		return err
	}
	if err := park.Report.Err(); err != nil {
		return errors.WithMessage(err, "refusing to convert")
	}

	kind := park.Data.Header.Type
	if c.Bool("scenario") {
		kind = s6.Scenario
	}
	outFile := c.Args().Get(1)
	out, err := os.Create(outFile)
	if err != nil {
		return errors.Wrap(err, "create output")
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = errors.Wrap(cerr, "close output")
		}
		if err != nil {
			os.Remove(outFile)
		}
	}()
	if err := e.SavePark(c.Context, out, park.Data, kind); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"kind":   kind,
		"packed": len(park.Data.PackedObjects),
	}).Infof("Wrote %s", outFile)
	return nil
}

// dumpChunks decodes every chunk of r and writes it to w as a one byte
// encoding, a little endian u32 length and the decoded data. Asset files
// start with their entry, which is written first as a raw record.
func dumpChunks(r io.Reader, w io.Writer, asset bool, maxChunkSize int) (int, error) {
	file, err := io.ReadAll(r)
	if err != nil {
		return 0, errors.Wrap(err, "read input")
	}
	cr := sawyer.NewChunkReader(bytes.NewReader(file), sawyer.WithMaxChunkSize(maxChunkSize))
	record := func(e sawyer.Encoding, data []byte) error {
		var h [5]byte
		h[0] = byte(e)
		binary.LittleEndian.PutUint32(h[1:], uint32(len(data)))
		if _, err := w.Write(h[:]); err != nil {
			return err
		}
		_, err := w.Write(data)
		return err
	}

	n := 0
	next := func() error {
		chunk, err := cr.ReadChunk()
		if err != nil {
			return errors.WithMessagef(err, "chunk %d", n)
		}
		if err := record(chunk.Encoding, chunk.Data); err != nil {
			return errors.Wrap(err, "write dump")
		}
		n++
		return nil
	}

	if asset {
		raw, err := cr.ReadRaw(object.EntrySize)
		if err != nil {
			return 0, errors.WithMessage(err, "object entry")
		}
		if err := record(sawyer.None, raw); err != nil {
			return 0, errors.Wrap(err, "write dump")
		}
		n++
		err = next()
		return n, err
	}
	// Everything but the trailing checksum is chunks.
	for int64(len(file))-cr.Offset() > 4 {
		if err := next(); err != nil {
			return n, err
		}
	}
	return n, nil
}

func dump(c *cli.Context) (err error) {
	if c.NArg() != 2 {
		return errors.New("usage: dump INFILE OUTFILE")
	}
	in, err := openPark(c)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(c.Args().Get(1))
	if err != nil {
		return errors.Wrap(err, "create output")
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = errors.Wrap(cerr, "close output")
		}
	}()

	var w io.WriteCloser = nopCloser{out}
	if c.Bool("xz") {
		if w, err = xz.NewWriter(out); err != nil {
			return errors.Wrap(err, "create xz writer")
		}
	}
	asset := strings.EqualFold(filepath.Ext(c.Args().First()), ".dat")
	n, err := dumpChunks(in, w, asset, c.Int("max-chunk-size"))
	if cerr := w.Close(); err == nil && cerr != nil {
		err = errors.Wrap(cerr, "flush dump")
	}
	if err != nil {
		return err
	}
	logrus.Infof("Dumped %d chunks to %s", n, c.Args().Get(1))
	return nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func exportMetrics(c *cli.Context) error {
	file := c.String("metrics-file")
	if file == "" {
		return nil
	}
	exp, err := metrics.NewExporter(metrics.WithOutputFile(file))
	if err != nil {
		return err
	}
	return exp.Export()
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "log-level", Value: "info", Usage: "Set log level (panic, fatal, error, warn, info, debug, trace)", EnvVars: []string{"SV6TOOL_LOG_LEVEL"}},
		&cli.StringSliceFlag{Name: "object-dir", Usage: "Directory scanned for installed objects, may be repeated", EnvVars: []string{"SV6TOOL_OBJECT_DIR"}},
		&cli.StringFlag{Name: "user-dir", Value: config.DefaultUserDataDir(), Usage: "Directory holding the object index and extracted objects", EnvVars: []string{"SV6TOOL_USER_DIR"}},
		&cli.IntFlag{Name: "workers", Value: runtime.NumCPU(), Usage: "Number of object files scanned at once", EnvVars: []string{"SV6TOOL_WORKERS"}},
		&cli.BoolFlag{Name: "strict", Usage: "Reject every file whose checksum does not match", EnvVars: []string{"SV6TOOL_STRICT"}},
		&cli.BoolFlag{Name: "allow-incorrect-checksum", Usage: "Load scenarios whose checksum does not match", EnvVars: []string{"SV6TOOL_ALLOW_INCORRECT_CHECKSUM"}},
		&cli.IntFlag{Name: "cache-size", Value: 256, Usage: "Number of object payloads kept in memory", EnvVars: []string{"SV6TOOL_CACHE_SIZE"}},
		&cli.IntFlag{Name: "max-chunk-size", Value: sawyer.DefaultMaxChunkSize, Usage: "Largest decoded chunk accepted", EnvVars: []string{"SV6TOOL_MAX_CHUNK_SIZE"}},
		&cli.UintFlag{Name: "language", Value: 0, Usage: "Language of object names", EnvVars: []string{"SV6TOOL_LANGUAGE"}},
		&cli.StringFlag{Name: "metrics-file", Usage: "Append metrics to this file on exit", EnvVars: []string{"SV6TOOL_METRICS_FILE"}},
	}
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	app := &cli.App{
		Name:    "sv6tool",
		Usage:   "Inspect and convert park files",
		Version: version,
	}
	app.Flags = globalFlags()
	app.Before = func(c *cli.Context) error {
		level, err := logrus.ParseLevel(c.String("log-level"))
		if err != nil {
			return err
		}
		logrus.SetLevel(level)
		return nil
	}
	app.After = exportMetrics

	app.Commands = []*cli.Command{
		{
			Name:   "index",
			Usage:  "Build or refresh the object index",
			Action: index,
		},
		{
			Name:      "info",
			Usage:     "Describe a saved game or scenario",
			ArgsUsage: "FILE",
			Action:    info,
		},
		{
			Name:      "verify",
			Usage:     "Check the checksum of a park file",
			ArgsUsage: "FILE",
			Action:    verify,
		},
		{
			Name:      "convert",
			Usage:     "Load a park and save it again, packing its custom objects",
			ArgsUsage: "INFILE OUTFILE",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "scenario", Usage: "Save as a scenario"},
			},
			Action: convert,
		},
		{
			Name:      "dump",
			Usage:     "Write the decoded chunks of a park or object file",
			ArgsUsage: "INFILE OUTFILE",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "xz", Usage: "Compress the dump with xz"},
			},
			Action: dump,
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := app.RunContext(ctx, os.Args); err != nil {
		logrus.Fatal(err)
	}
}
