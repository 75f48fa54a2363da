// Package engine ties the object repository, the object manager and the
// park codec together.
package engine

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"sv6tool/config"
	"sv6tool/manager"
	"sv6tool/object"
	"sv6tool/repository"
	"sv6tool/s6"
)

type Option func(*Engine)

// WithDirectory replaces the local object directories.
func WithDirectory(dir repository.Directory) Option {
	return func(e *Engine) {
		e.dir = dir
	}
}

func WithLogger(log *logrus.Entry) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

type Engine struct {
	config   config.Config
	dir      repository.Directory
	log      *logrus.Entry
	repo     *repository.Repository
	mgr      *manager.Manager
	importer *s6.Importer
	exporter *s6.Exporter
}

// Park is a loaded park along with what could not be loaded of it.
type Park struct {
	Data   *s6.Data
	Report *manager.Report
}

func New(cfg config.Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		config: cfg,
		log:    logrus.WithField("component", "engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.dir == nil {
		e.dir = &repository.LocalDirectory{Roots: cfg.ScanDirs()}
	}

	var err error
	e.repo, err = repository.New(cfg, e.dir, repository.WithLogger(e.log.WithField("component", "repository")))
	if err != nil {
		return nil, err
	}
	e.mgr = manager.New(e.repo, manager.WithLogger(e.log.WithField("component", "manager")))
	e.importer = s6.NewImporter(cfg, e.repo)
	e.importer.Log = e.log.WithField("component", "s6")
	e.exporter = &s6.Exporter{Log: e.importer.Log}
	return e, nil
}

func (e *Engine) Repository() *repository.Repository { return e.repo }
func (e *Engine) Manager() *manager.Manager          { return e.mgr }

// Init loads or builds the object index.
func (e *Engine) Init(ctx context.Context) error {
	return e.repo.LoadOrConstruct(ctx)
}

// LoadPark reads a park of either kind, installs the objects packed into
// it and loads the objects it uses. Missing objects do not fail the load,
// they are listed in the report.
func (e *Engine) LoadPark(ctx context.Context, r io.Reader) (*Park, error) {
	d, err := e.importer.Load(ctx, r)
	if err != nil {
		return nil, err
	}
	report, err := e.mgr.LoadObjects(ctx, d.Objects[:])
	if err != nil {
		return nil, errors.WithMessage(err, "load park objects")
	}
	if len(report.Missing) > 0 {
		e.log.WithError(report.Err()).Warn("Park uses objects that are not installed")
	}
	return &Park{Data: d, Report: report}, nil
}

// SavePark writes d as a park of kind k. The object list is taken from the
// loaded objects, and the custom ones among them are packed into the file.
func (e *Engine) SavePark(ctx context.Context, w io.Writer, d *s6.Data, k s6.Kind) error {
	copy(d.Objects[:], e.mgr.GetLoadedEntries())
	var packable []object.Entry
	for _, o := range e.mgr.GetPackableObjects() {
		packable = append(packable, o.Entry())
	}
	packed, err := e.repo.PackedObjects(packable)
	if err != nil {
		return err
	}
	d.PackedObjects = packed

	switch k {
	case s6.SavedGame:
		return e.exporter.SaveGame(ctx, w, d)
	case s6.Scenario:
		return e.exporter.SaveScenario(ctx, w, d)
	}
	return errors.Errorf("cannot save a park of type %d", k)
}
