// Package manager keeps the objects used by the current park loaded,
// one per object slot.
package manager

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"sv6tool/errdefs"
	"sv6tool/object"
	"sv6tool/repository"
)

// Repository is what the manager needs from the object repository.
type Repository interface {
	FindObject(e object.Entry) *repository.Item
	LoadObject(item *repository.Item) (object.Object, error)
}

type Option func(*Manager)

func WithLogger(log *logrus.Entry) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// Manager is not safe for concurrent use.
type Manager struct {
	repo   Repository
	log    *logrus.Entry
	loaded []object.Object
}

func New(repo Repository, opts ...Option) *Manager {
	m := &Manager{
		repo:   repo,
		log:    logrus.WithField("component", "manager"),
		loaded: make([]object.Object, object.NumSlots),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type FailedObject struct {
	Entry object.Entry
	Err   error
}

// Report lists the entries LoadObjects could not fill.
type Report struct {
	Missing []object.Entry
	Failed  []FailedObject
}

// Err returns a *MissingObjectsError if any object is missing.
func (r *Report) Err() error {
	if len(r.Missing) == 0 {
		return nil
	}
	return &MissingObjectsError{Entries: r.Missing}
}

type MissingObjectsError struct {
	Entries []object.Entry
}

func (e *MissingObjectsError) Error() string {
	names := make([]string, len(e.Entries))
	for i, entry := range e.Entries {
		names[i] = entry.Identifier()
	}
	return fmt.Sprintf("%d missing objects: %s", len(names), strings.Join(names, ", "))
}

func (e *MissingObjectsError) Is(target error) bool {
	return target == errdefs.ErrMissingObject
}

func findLoaded(list []object.Object, e object.Entry) object.Object {
	for _, o := range list {
		if o != nil && object.Equals(o.Entry(), e) {
			return o
		}
	}
	return nil
}

// LoadObjects makes entries the loaded object list. Entry i fills slot i.
// Objects already loaded are reused, every other object is read from the
// repository. When it returns without error the new list is in place and
// the objects that are no longer listed are unloaded. On error the previous
// list stays loaded.
func (m *Manager) LoadObjects(ctx context.Context, entries []object.Entry) (*Report, error) {
	if len(entries) > object.NumSlots {
		return nil, errors.Errorf("%d object entries do not fit in %d slots", len(entries), object.NumSlots)
	}
	next := make([]object.Object, object.NumSlots)
	var fresh []object.Object
	abort := func() {
		for _, o := range fresh {
			o.Unload()
		}
	}

	report := &Report{}
	reused := 0
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			abort()
			return nil, err
		}
		if e.IsEmpty() {
			continue
		}
		if o := findLoaded(m.loaded, e); o != nil {
			next[i] = o
			reused++
			continue
		}
		if o := findLoaded(fresh, e); o != nil {
			next[i] = o
			continue
		}

		item := m.repo.FindObject(e)
		if item == nil {
			report.Missing = append(report.Missing, e)
			continue
		}
		o, err := m.repo.LoadObject(item)
		if err == nil {
			err = o.Load()
		}
		if err != nil {
			if errdefs.IsIO(err) {
				abort()
				return nil, err
			}
			m.log.WithFields(logrus.Fields{
				"object": e.Identifier(),
				"error":  err,
			}).Warn("Unable to load object")
			report.Failed = append(report.Failed, FailedObject{Entry: e, Err: err})
			continue
		}
		next[i] = o
		fresh = append(fresh, o)
	}

	keep := make(map[object.Object]bool, len(next))
	for _, o := range next {
		if o != nil {
			keep[o] = true
		}
	}
	unloaded := m.swap(next, keep)
	m.log.WithFields(logrus.Fields{
		"loaded":   len(fresh),
		"reused":   reused,
		"unloaded": unloaded,
		"missing":  len(report.Missing),
		"failed":   len(report.Failed),
	}).Debug("Loaded objects")
	return report, nil
}

// swap installs next and unloads every previously loaded object not in keep
// exactly once.
func (m *Manager) swap(next []object.Object, keep map[object.Object]bool) int {
	old := m.loaded
	m.loaded = next
	unloaded := 0
	for _, o := range old {
		if o == nil || keep[o] {
			continue
		}
		keep[o] = true
		o.Unload()
		unloaded++
	}
	return unloaded
}

// UnloadAll empties every slot.
func (m *Manager) UnloadAll() {
	m.swap(make([]object.Object, object.NumSlots), map[object.Object]bool{})
}

// GetLoadedObject returns the object in slot i, or nil.
func (m *Manager) GetLoadedObject(i int) object.Object {
	if i < 0 || i >= len(m.loaded) {
		return nil
	}
	return m.loaded[i]
}

// GetLoadedEntry returns the entry of the object in slot i, or the
// placeholder if the slot is empty.
func (m *Manager) GetLoadedEntry(i int) object.Entry {
	if o := m.GetLoadedObject(i); o != nil {
		return o.Entry()
	}
	return object.EmptyEntry
}

func (m *Manager) GetLoadedEntries() []object.Entry {
	entries := make([]object.Entry, len(m.loaded))
	for i := range m.loaded {
		entries[i] = m.GetLoadedEntry(i)
	}
	return entries
}

// GetPackableObjects returns the loaded custom objects in slot order, each
// once. Those are the objects packed into saved parks.
func (m *Manager) GetPackableObjects() []object.Object {
	seen := map[object.Object]bool{}
	var objects []object.Object
	for _, o := range m.loaded {
		if o == nil || seen[o] || !o.Entry().IsCustom() {
			continue
		}
		seen[o] = true
		objects = append(objects, o)
	}
	return objects
}

// GetInvalidObjects returns the entries that can never be loaded: those of
// an unknown type and those not in the repository.
func (m *Manager) GetInvalidObjects(entries []object.Entry) []object.Entry {
	var invalid []object.Entry
	for _, e := range entries {
		if e.IsEmpty() {
			continue
		}
		if !e.Type().Valid() || m.repo.FindObject(e) == nil {
			invalid = append(invalid, e)
		}
	}
	return invalid
}
