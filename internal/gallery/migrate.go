package gallery

import (
	"context"
	"fmt"
	"io"
)

const (
	migratePageSize   = 100
	migrateFlushEvery = 20
)

// MigrateProgress counts the images seen by a migration so far.
type MigrateProgress struct {
	Total     int
	Processed int
	Migrated  int
	Skipped   int
	Failed    int
	Stopped   bool

	// Filename and Err describe the last image processed.
	Filename string
	Err      error
}

// Migrator copies images and their metadata from the server into the workspace.
type Migrator struct {
	source MigrationSource
	target MigrationTarget
	logger Logger
}

func NewMigrator(source MigrationSource, target MigrationTarget, logger Logger) *Migrator {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Migrator{source: source, target: target, logger: logger}
}

// Run pages through the server collection, downloads every image whose id
// is not yet in the workspace and appends the records in batches. Images
// already present are skipped, so running again resumes an interrupted
// migration. Cancelling ctx stops before the next image; records of images
// already saved are always flushed.
func (m *Migrator) Run(ctx context.Context, progress func(MigrateProgress)) (*MigrateProgress, error) {
	info, err := m.source.ServerInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading server info: %w", err)
	}

	state := &MigrateProgress{Total: info.Total}
	known := map[string]bool{}
	for _, rec := range m.target.ReadImages().Images {
		known[rec.ID] = true
	}

	var pending []ImageRecord
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if _, err := m.target.AppendImages(pending); err != nil {
			return fmt.Errorf("saving migrated metadata: %w", err)
		}
		pending = nil
		return nil
	}
	report := func(filename string, err error) {
		state.Processed++
		state.Filename = filename
		state.Err = err
		if progress != nil {
			progress(*state)
		}
	}

	work := context.WithoutCancel(ctx)
	q := ImageQuery{SortBy: DefaultSortBy, SortOrder: DefaultSortOrder, Page: 1, PageSize: migratePageSize}

pages:
	for {
		if ctx.Err() != nil {
			state.Stopped = true
			break
		}
		page, err := m.source.ListImages(ctx, q)
		if err != nil {
			if ferr := flush(); ferr != nil {
				m.logger.Error("saving migrated metadata failed", "error", ferr)
			}
			return state, fmt.Errorf("listing server images: %w", err)
		}
		if len(page.Images) == 0 {
			break
		}

		for _, img := range page.Images {
			if ctx.Err() != nil {
				state.Stopped = true
				break pages
			}
			if known[img.ID] {
				state.Skipped++
				report(img.Filename, nil)
				continue
			}

			rec, err := m.copyImage(work, img)
			if err != nil {
				state.Failed++
				m.logger.Warn("migrating image failed", "id", img.ID, "file", img.Filename, "error", err)
				report(img.Filename, err)
				continue
			}

			known[rec.ID] = true
			pending = append(pending, *rec)
			state.Migrated++
			report(rec.Filename, nil)

			if state.Migrated%migrateFlushEvery == 0 {
				if err := flush(); err != nil {
					return state, err
				}
			}
		}

		if page.Page >= page.TotalPages {
			break
		}
		q.Page++
	}

	if err := flush(); err != nil {
		return state, err
	}
	m.logger.Info("migration finished", "migrated", state.Migrated, "skipped", state.Skipped,
		"failed", state.Failed, "stopped", state.Stopped)
	return state, nil
}

func (m *Migrator) copyImage(ctx context.Context, img ImageRecord) (*ImageRecord, error) {
	if img.Filename == "" {
		return nil, fmt.Errorf("record %s has no filename", img.ID)
	}
	rc, err := m.source.OpenImageFile(ctx, img.ID)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, fmt.Errorf("downloading: %w", err)
	}
	if err := m.target.SaveImageBytes(img.Filename, data); err != nil {
		return nil, err
	}

	rec := img
	if rec.Model == "" {
		rec.Model = DefaultModel
	}
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	if rec.FileSize == 0 {
		rec.FileSize = int64(len(data))
	}
	return &rec, nil
}
