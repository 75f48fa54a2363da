package repository

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"sv6tool/errdefs"
	"sv6tool/object"
)

// scan reads every file and describes the object it holds. Files that are
// not valid assets are logged and skipped, i/o failures abort the scan.
// Items are returned in the order of files.
func (r *Repository) scan(ctx context.Context, files []FileInfo) ([]*Item, error) {
	sem := semaphore.NewWeighted(int64(r.config.Workers))
	group, groupCtx := errgroup.WithContext(ctx)
	results := make([]*Item, len(files))

	for i, file := range files {
		if err := sem.Acquire(groupCtx, 1); err != nil {
			break
		}
		group.Go(func() error {
			defer sem.Release(1)
			if err := groupCtx.Err(); err != nil {
				return err
			}
			item, err := r.scanFile(file.Path)
			if err != nil {
				if errdefs.IsIO(err) {
					filesScanned.WithLabelValues("failed").Inc()
					return err
				}
				filesScanned.WithLabelValues("skipped").Inc()
				r.log.WithFields(logrus.Fields{
					"path":  file.Path,
					"error": err,
				}).Warn("Skipping invalid object file")
				return nil
			}
			filesScanned.WithLabelValues("indexed").Inc()
			results[i] = item
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	items := make([]*Item, 0, len(results))
	for _, item := range results {
		if item != nil {
			items = append(items, item)
		}
	}
	return items, nil
}

func (r *Repository) scanFile(path string) (*Item, error) {
	f, err := r.readFile(path)
	if err != nil {
		return nil, err
	}
	if err := f.Verify(); err != nil {
		return nil, err
	}
	return describe(path, f.Entry, f.Data, r.config.LanguageID)
}

// describe decodes data to fill in an index item.
func describe(path string, e object.Entry, data []byte, language uint16) (*Item, error) {
	o, err := object.New(e, data)
	if err != nil {
		return nil, err
	}
	if err := o.Load(); err != nil {
		return nil, err
	}
	defer o.Unload()

	item := &Item{
		Entry:           e,
		Path:            path,
		Name:            o.Name(),
		ChunkSize:       uint32(len(data)),
		RequiredObjects: o.RequiredObjects(),
	}
	if strings := o.Strings(); len(strings) > 0 {
		if name := strings[0].Get(uint8(language)); name != "" {
			item.Name = name
		}
	}
	if images := o.Images(); images != nil {
		item.NumImages = uint32(len(images.Elements))
	}
	switch o := o.(type) {
	case *object.RideObject:
		item.Extra = &RideExtra{
			Flags:      uint8(o.Flags),
			Categories: o.Categories,
			RideTypes:  o.RideTypes,
		}
	case *object.SceneryGroupObject:
		item.Extra = &SceneryGroupExtra{ThemeObjects: o.Items}
	}
	return item, nil
}
