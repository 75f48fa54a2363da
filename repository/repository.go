// Package repository indexes the object assets installed on disk and
// persists the index in objects.idx, so that it is rebuilt only when the
// set of asset files changes.
package repository

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"sv6tool/config"
	"sv6tool/errdefs"
	"sv6tool/object"
	"sv6tool/sawyer"
)

// File names tried for one new object before giving up.
const maxNameCollisions = 0xFF

// objects.idx is written under a temporary name and then renamed.
const indexTempPattern = config.IndexFileName + ".*"

type Option func(*Repository)

func WithLogger(log *logrus.Entry) Option {
	return func(r *Repository) {
		if log != nil {
			r.log = log
		}
	}
}

type Repository struct {
	config config.Config
	dir    Directory
	log    *logrus.Entry

	// lock guards the pointer only. A published snapshot is never modified.
	lock     sync.RWMutex
	snapshot *snapshot

	// writeLock serializes everything that publishes a new snapshot.
	writeLock sync.Mutex

	payloadsLock sync.Mutex
	payloads     *lru.Cache
}

// New creates an empty repository. LoadOrConstruct fills it.
func New(cfg config.Config, dir Directory, opts ...Option) (*Repository, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithMessage(err, "invalid configuration")
	}
	registerMetrics()
	r := &Repository{
		config:   cfg,
		dir:      dir,
		log:      logrus.WithField("component", "repository"),
		snapshot: newSnapshot(Fingerprint{}),
	}
	if cfg.PayloadCacheSize > 0 {
		r.payloads = lru.New(cfg.PayloadCacheSize)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// snapshot is one complete version of the index.
type snapshot struct {
	fingerprint Fingerprint
	items       []*Item
	byName      map[uint32][]*Item
	conflicts   int
}

func newSnapshot(fp Fingerprint) *snapshot {
	return &snapshot{fingerprint: fp, byName: map[uint32][]*Item{}}
}

func (s *snapshot) clone() *snapshot {
	c := &snapshot{
		fingerprint: s.fingerprint,
		items:       append([]*Item(nil), s.items...),
		byName:      make(map[uint32][]*Item, len(s.byName)),
		conflicts:   s.conflicts,
	}
	for k, v := range s.byName {
		c.byName[k] = append([]*Item(nil), v...)
	}
	return c
}

func (s *snapshot) find(e object.Entry) *Item {
	for _, item := range s.byName[e.NameKey()] {
		if object.Equals(item.Entry, e) {
			return item
		}
	}
	return nil
}

// add appends item unless an equal one is already indexed, which is
// returned instead.
func (s *snapshot) add(item *Item) *Item {
	if existing := s.find(item.Entry); existing != nil {
		s.conflicts++
		return existing
	}
	s.items = append(s.items, item)
	key := item.Entry.NameKey()
	s.byName[key] = append(s.byName[key], item)
	return nil
}

func (r *Repository) current() *snapshot {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.snapshot
}

func (r *Repository) publish(s *snapshot) {
	r.lock.Lock()
	r.snapshot = s
	r.lock.Unlock()
}

// Items returns all indexed objects in index order.
func (r *Repository) Items() []*Item {
	return append([]*Item(nil), r.current().items...)
}

func (r *Repository) Fingerprint() Fingerprint {
	return r.current().fingerprint
}

// Conflicts returns the number of assets that were not indexed because an
// equal object came first.
func (r *Repository) Conflicts() int {
	return r.current().conflicts
}

// FindObject returns the first indexed object equal to e, or nil.
func (r *Repository) FindObject(e object.Entry) *Item {
	return r.current().find(e)
}

// FindObjectByName returns the first indexed object of any type named name.
func (r *Repository) FindObjectByName(name string) *Item {
	key := object.NewEntry(0, name, 0)
	for _, item := range r.current().byName[key.NameKey()] {
		if item.Entry.Name == key.Name {
			return item
		}
	}
	return nil
}

// QueryDirectory lists the asset files sorted by path and fingerprints them.
func (r *Repository) QueryDirectory(ctx context.Context) ([]FileInfo, Fingerprint, error) {
	files, err := r.dir.Query(ctx)
	if err != nil {
		return nil, Fingerprint{}, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, QueryDirectory(files, r.config.ScanDirs()), nil
}

// LoadOrConstruct loads objects.idx if it describes the current asset
// files, and scans them all otherwise.
func (r *Repository) LoadOrConstruct(ctx context.Context) error {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	files, fp, err := r.QueryDirectory(ctx)
	if err != nil {
		return err
	}
	s, err := r.loadIndex(fp)
	if err == nil {
		r.publish(s)
		indexLoads.WithLabelValues("disk").Inc()
		r.log.WithFields(logrus.Fields{
			"items": len(s.items),
			"path":  r.config.IndexPath(),
		}).Debug("Loaded object index")
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		r.log.WithError(err).Info("Rebuilding object index")
	}
	return r.construct(ctx, files, fp)
}

// Construct scans every asset file, ignoring objects.idx, and rewrites it.
func (r *Repository) Construct(ctx context.Context) error {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	files, fp, err := r.QueryDirectory(ctx)
	if err != nil {
		return err
	}
	return r.construct(ctx, files, fp)
}

func (r *Repository) construct(ctx context.Context, files []FileInfo, fp Fingerprint) error {
	items, err := r.scan(ctx, files)
	if err != nil {
		return err
	}
	s := newSnapshot(fp)
	for _, item := range items {
		if existing := s.add(item); existing != nil {
			itemConflicts.Inc()
			r.log.WithFields(logrus.Fields{
				"object": item.Entry.Identifier(),
				"path":   item.Path,
				"kept":   existing.Path,
			}).Warn("Duplicate object ignored")
		}
	}
	r.publish(s)
	indexLoads.WithLabelValues("scan").Inc()
	r.log.WithFields(logrus.Fields{
		"files":     len(files),
		"items":     len(s.items),
		"conflicts": s.conflicts,
	}).Info("Scanned objects")

	if err := r.saveIndex(s); err != nil {
		r.log.WithError(err).Warn("Unable to write object index")
	}
	return nil
}

func (r *Repository) loadIndex(fp Fingerprint) (*snapshot, error) {
	path := r.config.IndexPath()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errdefs.IO(err, "read %s", path)
	}
	c := object.NewCursor(b)
	h, err := readIndexHeader(c)
	if err != nil {
		return nil, err
	}
	if h.Version != IndexVersion {
		return nil, errors.Wrapf(errdefs.ErrVersionMismatch, "index version %d, expected %d", h.Version, IndexVersion)
	}
	if h.LanguageID != r.config.LanguageID {
		return nil, errors.Errorf("index language %d, expected %d", h.LanguageID, r.config.LanguageID)
	}
	if h.Fingerprint != fp {
		return nil, errors.New("object directories changed since the index was written")
	}
	items, err := decodeItems(c, h.NumItems)
	if err != nil {
		return nil, err
	}
	s := newSnapshot(fp)
	for _, item := range items {
		s.add(item)
	}
	return s, nil
}

func (r *Repository) saveIndex(s *snapshot) error {
	b, err := encodeIndex(indexHeader{
		Version:     IndexVersion,
		LanguageID:  r.config.LanguageID,
		Fingerprint: s.fingerprint,
	}, s.items)
	if err != nil {
		return err
	}
	path := r.config.IndexPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errdefs.IO(err, "create %s", filepath.Dir(path))
	}
	f, err := os.CreateTemp(filepath.Dir(path), indexTempPattern)
	if err != nil {
		return errdefs.IO(err, "write %s", path)
	}
	_, err = f.Write(b)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(f.Name(), path)
	}
	if err != nil {
		os.Remove(f.Name())
		return errdefs.IO(err, "write %s", path)
	}
	return nil
}

func (r *Repository) readFile(path string) (*object.File, error) {
	rc, err := r.dir.Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	f, err := object.ReadFile(rc, sawyer.WithMaxChunkSize(r.config.MaxChunkSize), sawyer.WithLogger(r.log))
	if err != nil {
		return nil, errors.WithMessage(err, path)
	}
	return f, nil
}

// payload returns the verified payload of item, which callers must not
// modify.
func (r *Repository) payload(item *Item) ([]byte, error) {
	if r.payloads != nil {
		r.payloadsLock.Lock()
		v, ok := r.payloads.Get(item.Path)
		r.payloadsLock.Unlock()
		if ok {
			payloadCacheLookups.WithLabelValues("hit").Inc()
			return v.([]byte), nil
		}
		payloadCacheLookups.WithLabelValues("miss").Inc()
	}

	f, err := r.readFile(item.Path)
	if err != nil {
		return nil, err
	}
	if f.Entry != item.Entry {
		return nil, errors.Wrapf(errdefs.ErrCorruptChunk, "%s holds %s, expected %s", item.Path, f.Entry.Identifier(), item.Entry.Identifier())
	}
	if err := f.Verify(); err != nil {
		return nil, errors.WithMessage(err, item.Path)
	}

	if r.payloads != nil {
		r.payloadsLock.Lock()
		r.payloads.Add(item.Path, f.Data)
		r.payloadsLock.Unlock()
	}
	return f.Data, nil
}

// LoadObject reads and verifies the asset of item. The returned object is
// not loaded yet.
func (r *Repository) LoadObject(item *Item) (object.Object, error) {
	data, err := r.payload(item)
	if err != nil {
		return nil, err
	}
	return object.New(item.Entry, data)
}

// PackedObjects returns the assets of the custom objects among entries, in
// order, ready to be packed into a park. Placeholders and objects of the
// original game are skipped.
func (r *Repository) PackedObjects(entries []object.Entry) ([]*object.File, error) {
	var files []*object.File
	for _, e := range entries {
		if e.IsEmpty() || !e.IsCustom() {
			continue
		}
		item := r.FindObject(e)
		if item == nil {
			return nil, errors.Wrapf(errdefs.ErrMissingObject, "pack %s", e.Identifier())
		}
		data, err := r.payload(item)
		if err != nil {
			return nil, err
		}
		files = append(files, &object.File{Entry: item.Entry, Encoding: item.Entry.Type().Encoding(), Data: data})
	}
	return files, nil
}

// ExportPackedObject adds an object packed in a park to the user object
// directory unless an equal object is already installed. It returns the
// indexed item and whether it was added.
func (r *Repository) ExportPackedObject(ctx context.Context, f *object.File) (*Item, bool, error) {
	if item := r.FindObject(f.Entry); item != nil {
		return item, false, nil
	}
	item, err := r.AddObject(ctx, f.Entry, f.Data)
	if err != nil {
		return nil, false, err
	}
	packedObjectsExtracted.Inc()
	return item, true, nil
}

// objectFileName turns an object name into a file name, e.g. "WOOD RC" into
// "WOODRC".
func objectFileName(e object.Entry) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r == ' ' || r < 0x20 || r > 0x7E:
			return -1
		case r == '/' || r == '\\' || r == ':' || r == '.':
			return '_'
		}
		return r
	}, strings.ToUpper(e.NameString()))
	if name == "" {
		return "OBJECT"
	}
	return name
}

// AddObject writes data as a new asset in the user object directory and
// indexes it. If data does not match the checksum of e it is salted until
// it does.
func (r *Repository) AddObject(ctx context.Context, e object.Entry, data []byte) (*Item, error) {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	if existing := r.FindObject(e); existing != nil {
		return nil, errors.Errorf("object %s is already installed as %s", e.Identifier(), existing.Path)
	}
	if err := object.VerifyChecksum(e, data); err != nil {
		r.log.WithError(err).Warn("Fixing object checksum")
		data = object.FixChecksum(e, data)
	}
	item, err := describe("", e, data, r.config.LanguageID)
	if err != nil {
		return nil, err
	}

	base := objectFileName(e)
	for i := 1; ; i++ {
		if i > maxNameCollisions {
			return nil, errors.Errorf("no free file name for object %s in %s", e.Identifier(), r.config.UserObjectDir())
		}
		name := base
		if i > 1 {
			name = fmt.Sprintf("%s-%02X", base, i)
		}
		path := filepath.Join(r.config.UserObjectDir(), name+".DAT")
		w, err := r.dir.Create(path)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		f := &object.File{Entry: e, Encoding: sawyer.RLE, Data: data}
		err = f.WriteFile(w)
		if cerr := w.Close(); err == nil && cerr != nil {
			err = errdefs.IO(cerr, "close %s", path)
		}
		if err != nil {
			return nil, errors.WithMessage(err, path)
		}
		item.Path = path
		break
	}
	r.log.WithFields(logrus.Fields{
		"object": e.Identifier(),
		"path":   item.Path,
	}).Info("Added object")

	s := r.current().clone()
	s.add(item)
	_, fp, err := r.QueryDirectory(ctx)
	if err != nil {
		return nil, err
	}
	s.fingerprint = fp
	r.publish(s)
	if err := r.saveIndex(s); err != nil {
		r.log.WithError(err).Warn("Unable to write object index")
	}
	return item, nil
}
