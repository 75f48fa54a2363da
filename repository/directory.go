package repository

import (
	"context"
	"io"
	"io/fs"
	"math/bits"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"sv6tool/errdefs"
)

const objectFileExtension = ".dat"

type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Directory gives access to installed asset files. Query lists them with
// exact sizes and modification times, in no particular order.
type Directory interface {
	Query(ctx context.Context) ([]FileInfo, error)
	Open(path string) (io.ReadCloser, error)
	// Create makes a new file and fails with fs.ErrExist if path is taken.
	Create(path string) (io.WriteCloser, error)
}

// Fingerprint summarizes a directory listing. Any change to the set of
// files, their sizes or modification times is likely to change it.
type Fingerprint struct {
	TotalFiles           uint32
	TotalFileSize        uint64
	DateModifiedChecksum uint32
	PathChecksum         uint32
}

// QueryDirectory computes the fingerprint of files.
func QueryDirectory(files []FileInfo, roots []string) Fingerprint {
	var fp Fingerprint
	for _, f := range files {
		fp.TotalFiles++
		fp.TotalFileSize += uint64(f.Size)
		mtime := uint64(f.ModTime.UnixNano())
		fp.DateModifiedChecksum ^= uint32(mtime>>32) ^ uint32(mtime)
		fp.DateModifiedChecksum = bits.RotateLeft32(fp.DateModifiedChecksum, -5)
	}
	fp.PathChecksum = pathChecksum(roots)
	return fp
}

func pathChecksum(roots []string) uint32 {
	var cs uint32
	for _, root := range roots {
		for i := 0; i < len(root); i++ {
			cs = bits.RotateLeft32(cs^uint32(root[i]), 5)
		}
		cs = bits.RotateLeft32(cs, 5)
	}
	return cs
}

// LocalDirectory finds asset files below a set of directories on the local
// file system. Missing directories are treated as empty.
type LocalDirectory struct {
	Roots []string
}

func (d *LocalDirectory) Query(ctx context.Context) ([]FileInfo, error) {
	var files []FileInfo
	for _, root := range d.Roots {
		err := filepath.WalkDir(root, func(path string, de fs.DirEntry, err error) error {
			if err != nil {
				if path == root && errors.Is(err, fs.ErrNotExist) {
					return filepath.SkipDir
				}
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if de.IsDir() || !strings.EqualFold(filepath.Ext(path), objectFileExtension) {
				return nil
			}
			info, err := de.Info()
			if err != nil {
				return err
			}
			files = append(files, FileInfo{Path: path, Size: info.Size(), ModTime: info.ModTime()})
			return nil
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, errdefs.IO(err, "query %s", root)
		}
	}
	return files, nil
}

func (d *LocalDirectory) Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errdefs.IO(err, "open %s", path)
	}
	return f, nil
}

func (d *LocalDirectory) Create(path string) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errdefs.IO(err, "create directory for %s", path)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, errdefs.IO(err, "create %s", path)
	}
	return f, nil
}
