package repository

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"sv6tool/config"
	"sv6tool/errdefs"
	"sv6tool/object"
	"sv6tool/object/objecttest"
	"sv6tool/sawyer"
)

type fakeFile struct {
	data    []byte
	modTime time.Time
}

// fakeDirectory keeps asset files in memory and counts how often they are
// opened.
type fakeDirectory struct {
	mu    sync.Mutex
	files map[string]*fakeFile
	opens int
	clock time.Time
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{files: map[string]*fakeFile{}, clock: time.Unix(1700000000, 0)}
}

func (d *fakeDirectory) tick() time.Time {
	d.clock = d.clock.Add(time.Second)
	return d.clock
}

func (d *fakeDirectory) put(path string, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.files[path] = &fakeFile{data: data, modTime: d.tick()}
}

func (d *fakeDirectory) openCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

func (d *fakeDirectory) Query(ctx context.Context) ([]FileInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var files []FileInfo
	for path, f := range d.files {
		files = append(files, FileInfo{Path: path, Size: int64(len(f.data)), ModTime: f.modTime})
	}
	return files, nil
}

func (d *fakeDirectory) Open(path string) (io.ReadCloser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opens++
	f, ok := d.files[path]
	if !ok {
		return nil, errdefs.IO(fs.ErrNotExist, "open %s", path)
	}
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

type fakeWriter struct {
	bytes.Buffer
	d    *fakeDirectory
	path string
}

func (w *fakeWriter) Close() error {
	w.d.put(w.path, w.Bytes())
	return nil
}

func (d *fakeDirectory) Create(path string) (io.WriteCloser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.files[path]; ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrExist}
	}
	d.files[path] = &fakeFile{modTime: d.tick()}
	return &fakeWriter{d: d, path: path}, nil
}

func testConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.UserDataDir = t.TempDir()
	cfg.ObjectDirs = []string{"/game/ObjData"}
	cfg.Workers = 2
	return cfg
}

func installedObjects(d *fakeDirectory) map[string]object.Entry {
	group := objecttest.Entry(object.SceneryGroup, "SCGWALLS", nil)
	installed := map[string]object.Entry{}
	for _, o := range []struct {
		t    object.Type
		name string
		opts objecttest.Options
	}{
		{object.Ride, "WOODRC", objecttest.Options{Images: 4, RideTypes: [3]uint8{52, 0xFF, 0xFF}, Categories: [2]uint8{2, 0xFF}, TrackPieces: 0xDEADBEEF_FFFFFFFF}},
		{object.SceneryGroup, "SCGWALLS", objecttest.Options{Items: []object.Entry{object.NewEntry(object.Walls, "WALLBR", 1)}}},
		{object.Walls, "WALLBR", objecttest.Options{Images: 2, SceneryGroup: &group}},
		{object.Water, "WTRCYAN", objecttest.Options{}},
	} {
		e, file := objecttest.File(o.t, o.name, o.opts)
		path := filepath.Join("/game/ObjData", o.name+".DAT")
		d.put(path, file)
		installed[path] = e
	}
	return installed
}

func newRepository(t *testing.T, cfg config.Config, d Directory) *Repository {
	r, err := New(cfg, d)
	require.NoError(t, err)
	return r
}

func TestLoadOrConstructUsesIndex(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	d := newFakeDirectory()
	installed := installedObjects(d)

	r := newRepository(t, cfg, d)
	require.NoError(t, r.LoadOrConstruct(ctx))
	require.Equal(t, len(installed), d.openCount())
	items := r.Items()
	require.Len(t, items, len(installed))
	require.True(t, sort.SliceIsSorted(items, func(i, j int) bool { return items[i].Path < items[j].Path }))
	for _, item := range items {
		require.Equal(t, installed[item.Path], item.Entry)
	}

	ride := r.FindObject(installed["/game/ObjData/WOODRC.DAT"])
	require.NotNil(t, ride)
	require.Equal(t, "WOODRC", ride.Name)
	require.EqualValues(t, 4, ride.NumImages)
	require.Equal(t, &RideExtra{Categories: [2]uint8{2, 0xFF}, RideTypes: [3]uint8{52, 0xFF, 0xFF}}, ride.Extra)
	wall := r.FindObject(installed["/game/ObjData/WALLBR.DAT"])
	require.NotNil(t, wall)
	require.Len(t, wall.RequiredObjects, 1)

	again := newRepository(t, cfg, d)
	require.NoError(t, again.LoadOrConstruct(ctx))
	require.Equal(t, len(installed), d.openCount(), "index was not used")
	if !cmp.Equal(items, again.Items()) {
		t.Errorf("Diff: %v", cmp.Diff(items, again.Items()))
	}
	require.Equal(t, r.Fingerprint(), again.Fingerprint())
}

func TestStaleIndex(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	d := newFakeDirectory()
	installedObjects(d)
	require.NoError(t, newRepository(t, cfg, d).LoadOrConstruct(ctx))
	opens := d.openCount()

	// Touching a single file invalidates the whole index.
	d.mu.Lock()
	d.files["/game/ObjData/WTRCYAN.DAT"].modTime = d.tick()
	d.mu.Unlock()
	r := newRepository(t, cfg, d)
	require.NoError(t, r.LoadOrConstruct(ctx))
	require.Equal(t, 2*opens, d.openCount())
	require.Len(t, r.Items(), 4)

	// So does a different language.
	cfg.LanguageID = object.LanguageEnglishUS
	require.NoError(t, newRepository(t, cfg, d).LoadOrConstruct(ctx))
	require.Equal(t, 3*opens, d.openCount())
}

func TestIndexVersionMismatch(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	d := newFakeDirectory()
	installedObjects(d)
	r := newRepository(t, cfg, d)
	require.NoError(t, r.LoadOrConstruct(ctx))

	for _, version := range []uint16{IndexVersion - 1, IndexVersion + 1} {
		b, err := os.ReadFile(cfg.IndexPath())
		require.NoError(t, err)
		b[0], b[1] = byte(version), byte(version>>8)
		require.NoError(t, os.WriteFile(cfg.IndexPath(), b, 0644))

		_, err = r.loadIndex(r.Fingerprint())
		require.True(t, errdefs.IsVersionMismatch(err), "version %d: %v", version, err)

		opens := d.openCount()
		require.NoError(t, newRepository(t, cfg, d).LoadOrConstruct(ctx))
		require.Greater(t, d.openCount(), opens)
	}
}

func TestCorruptIndex(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	d := newFakeDirectory()
	installedObjects(d)
	r := newRepository(t, cfg, d)
	require.NoError(t, r.LoadOrConstruct(ctx))

	b, err := os.ReadFile(cfg.IndexPath())
	require.NoError(t, err)
	for _, corrupt := range [][]byte{b[:indexHeaderSize-1], b[:len(b)-1], append(append([]byte(nil), b...), 0)} {
		require.NoError(t, os.WriteFile(cfg.IndexPath(), corrupt, 0644))
		_, err := r.loadIndex(r.Fingerprint())
		require.True(t, errdefs.IsCorruptChunk(err), "%v", err)
	}
}

func TestDuplicatesAndInvalidFiles(t *testing.T) {
	cfg := testConfig(t)
	d := newFakeDirectory()
	e, file := objecttest.File(object.Banners, "BN1", objecttest.Options{Images: 1})
	d.put("/game/ObjData/A.DAT", file)
	d.put("/game/ObjData/B.DAT", file)
	d.put("/game/ObjData/GARBAGE.DAT", []byte{0x01, 0x02, 0x03})

	corrupt := append([]byte(nil), file...)
	corrupt[len(corrupt)-1] ^= 0x55
	d.put("/game/ObjData/BROKEN.DAT", corrupt)

	r := newRepository(t, cfg, d)
	require.NoError(t, r.LoadOrConstruct(context.Background()))
	require.Len(t, r.Items(), 1)
	require.Equal(t, "/game/ObjData/A.DAT", r.FindObject(e).Path)
	require.Equal(t, 1, r.Conflicts())
}

func TestScanIOFailure(t *testing.T) {
	cfg := testConfig(t)
	d := &vanishingDirectory{fakeDirectory: newFakeDirectory()}
	installedObjects(d.fakeDirectory)
	err := newRepository(t, cfg, d).LoadOrConstruct(context.Background())
	require.True(t, errdefs.IsIO(err), "%v", err)
}

// vanishingDirectory lists files it cannot open.
type vanishingDirectory struct {
	*fakeDirectory
}

func (d *vanishingDirectory) Open(path string) (io.ReadCloser, error) {
	return nil, errdefs.IO(fs.ErrPermission, "open %s", path)
}

func TestScanCancelled(t *testing.T) {
	cfg := testConfig(t)
	d := newFakeDirectory()
	installedObjects(d)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := newRepository(t, cfg, d)
	require.ErrorIs(t, r.LoadOrConstruct(ctx), context.Canceled)
	require.Empty(t, r.Items())
	_, err := os.Stat(cfg.IndexPath())
	require.True(t, os.IsNotExist(err))
}

func TestFindObject(t *testing.T) {
	cfg := testConfig(t)
	d := newFakeDirectory()
	data := objecttest.Payload(object.Paths, "Tarmac", objecttest.Options{})
	expansion := object.NewEntry(object.Paths, "TARMAC", 0)
	expansion.Flags |= 0x80
	expansion.Checksum = object.Checksum(expansion, data)
	var buf bytes.Buffer
	require.NoError(t, (&object.File{Entry: expansion, Encoding: sawyer.RLE, Data: data}).WriteFile(&buf))
	d.put("/game/ObjData/TARMAC.DAT", buf.Bytes())

	r := newRepository(t, cfg, d)
	require.NoError(t, r.LoadOrConstruct(context.Background()))

	// Objects of the original game are found whatever the checksum.
	query := expansion
	query.Checksum++
	require.NotNil(t, r.FindObject(query))
	query.Flags = uint32(object.Paths)
	require.NotNil(t, r.FindObject(query))
	query.Name[0] = 'X'
	require.Nil(t, r.FindObject(query))

	require.Equal(t, expansion, r.FindObjectByName("TARMAC").Entry)
	require.Nil(t, r.FindObjectByName("TARMAC2"))
}

func TestLoadObject(t *testing.T) {
	cfg := testConfig(t)
	d := newFakeDirectory()
	installed := installedObjects(d)
	r := newRepository(t, cfg, d)
	require.NoError(t, r.LoadOrConstruct(context.Background()))

	item := r.FindObject(installed["/game/ObjData/WOODRC.DAT"])
	opens := d.openCount()
	for range 2 {
		o, err := r.LoadObject(item)
		require.NoError(t, err)
		require.NoError(t, o.Load())
		require.Equal(t, "WOODRC", o.Name())
	}
	require.Equal(t, opens+1, d.openCount())

	// Without a cache a modified file is noticed.
	cfg.PayloadCacheSize = 0
	uncached := newRepository(t, cfg, d)
	require.NoError(t, uncached.LoadOrConstruct(context.Background()))
	d.mu.Lock()
	f := d.files[item.Path]
	f.data = append([]byte(nil), f.data...)
	f.data[len(f.data)-1] ^= 0x55
	d.mu.Unlock()
	_, err := uncached.LoadObject(item)
	require.True(t, errdefs.IsChecksumMismatch(err), "%v", err)
}

func TestExportPackedObject(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	d := newFakeDirectory()
	r := newRepository(t, cfg, d)
	require.NoError(t, r.LoadOrConstruct(ctx))

	data := objecttest.Payload(object.Ride, "Wooden Roller Coaster", objecttest.Options{Images: 1})
	e := object.NewEntry(object.Ride, "WOODRC", 0x12345678)
	item, added, err := r.ExportPackedObject(ctx, &object.File{Entry: e, Encoding: sawyer.RLE, Data: data})
	require.NoError(t, err)
	require.True(t, added)
	require.Equal(t, filepath.Join(cfg.UserObjectDir(), "WOODRC.DAT"), item.Path)
	require.Equal(t, "Wooden Roller Coaster", item.Name)
	require.EqualValues(t, len(data)+11, item.ChunkSize)

	// The salted payload matches the entry.
	o, err := r.LoadObject(item)
	require.NoError(t, err)
	require.NoError(t, object.VerifyChecksum(e, o.Data()))

	_, added, err = r.ExportPackedObject(ctx, &object.File{Entry: e, Encoding: sawyer.RLE, Data: data})
	require.NoError(t, err)
	require.False(t, added)

	other := objecttest.Entry(object.Ride, "WOOD RC", data)
	item, added, err = r.ExportPackedObject(ctx, &object.File{Entry: other, Encoding: sawyer.RLE, Data: data})
	require.NoError(t, err)
	require.True(t, added)
	require.Equal(t, filepath.Join(cfg.UserObjectDir(), "WOODRC-02.DAT"), item.Path)
	require.Len(t, r.Items(), 2)

	// The index written after adding describes the directory.
	opens := d.openCount()
	again := newRepository(t, cfg, d)
	require.NoError(t, again.LoadOrConstruct(ctx))
	require.Equal(t, opens, d.openCount())
	require.Len(t, again.Items(), 2)

	files, err := again.PackedObjects([]object.Entry{object.EmptyEntry, other, e})
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Equal(t, other, files[0].Entry)
	require.Equal(t, object.Ride.Encoding(), files[0].Encoding)

	_, err = again.PackedObjects([]object.Entry{object.NewEntry(object.Ride, "NOTHERE", 1)})
	require.True(t, errdefs.IsMissingObject(err))
}

func TestLocalDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0755))
	for _, name := range []string{"A.DAT", "sub/b.dat", "readme.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(name), 0644))
	}
	d := &LocalDirectory{Roots: []string{root, filepath.Join(root, "missing")}}
	files, err := d.Query(context.Background())
	require.NoError(t, err)
	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	require.ElementsMatch(t, []string{filepath.Join(root, "A.DAT"), filepath.Join(root, "sub", "b.dat")}, paths)

	w, err := d.Create(filepath.Join(root, "new", "C.DAT"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	_, err = d.Create(filepath.Join(root, "new", "C.DAT"))
	require.ErrorIs(t, err, fs.ErrExist)
	require.True(t, errdefs.IsIO(err))
}

func TestQueryDirectory(t *testing.T) {
	mtime := time.Unix(0, 0x0000000500000003)
	fp := QueryDirectory([]FileInfo{{Path: "A.DAT", Size: 10, ModTime: mtime}}, nil)
	// 5 ^ 3 rotated right by five bits.
	require.Equal(t, Fingerprint{TotalFiles: 1, TotalFileSize: 10, DateModifiedChecksum: 0x30000000}, fp)
	require.NotEqual(t, fp.PathChecksum, QueryDirectory(nil, []string{"/a"}).PathChecksum)
}
