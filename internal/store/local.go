// Package store implements the gallery stores: LocalStore on the workspace
// directory and RemoteStore on the gallery admin REST API.
package store

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	// Registered decoders for DecodeConfig.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"gallery-go/internal/fs"
	"gallery-go/internal/gallery"
	"gallery-go/internal/workspace"
)

// Tags given to records the store creates on its own.
const (
	ScanTag   = "扫描"
	UploadTag = "上传"
)

// LocalStore keeps images and prompts in the workspace directory.
type LocalStore struct {
	ws     *workspace.Manager
	clock  gallery.Clock
	ids    gallery.IDGenerator
	logger gallery.Logger
}

var (
	_ gallery.ImageStore  = (*LocalStore)(nil)
	_ gallery.PromptStore = (*LocalStore)(nil)
)

func NewLocalStore(ws *workspace.Manager, clock gallery.Clock, ids gallery.IDGenerator, logger gallery.Logger) *LocalStore {
	if clock == nil {
		clock = gallery.RealClock{}
	}
	if ids == nil {
		ids = gallery.UUIDGenerator{}
	}
	if logger == nil {
		logger = gallery.NewNopLogger()
	}
	return &LocalStore{ws: ws, clock: clock, ids: ids, logger: logger}
}

func (s *LocalStore) now() gallery.Timestamp {
	return gallery.TimestampOf(s.clock.Now())
}

// images reads the image document, failing when the workspace is not ready
// instead of returning an empty listing.
func (s *LocalStore) images() (*gallery.ImageDocument, error) {
	if err := s.ws.CheckReady(); err != nil {
		return nil, err
	}
	return s.ws.ReadImages(), nil
}

func (s *LocalStore) ListImages(_ context.Context, q gallery.ImageQuery) (*gallery.ImagePage, error) {
	doc, err := s.images()
	if err != nil {
		return nil, err
	}
	return gallery.QueryImages(doc.Images, q), nil
}

func (s *LocalStore) GetImage(_ context.Context, id string) (*gallery.ImageRecord, error) {
	doc, err := s.images()
	if err != nil {
		return nil, err
	}
	for i := range doc.Images {
		if doc.Images[i].ID == id {
			rec := doc.Images[i]
			return &rec, nil
		}
	}
	return nil, fmt.Errorf("image %s: %w", id, gallery.ErrNotFound)
}

// DeleteImages removes the records first and then their files. A file that
// is already gone counts as deleted; unknown ids are ignored.
func (s *LocalStore) DeleteImages(_ context.Context, ids []string) (*gallery.DeleteResult, error) {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	var files []string
	err := s.ws.ModifyImages(func(doc *gallery.ImageDocument) (bool, error) {
		kept := make([]gallery.ImageRecord, 0, len(doc.Images))
		for _, rec := range doc.Images {
			if drop[rec.ID] {
				files = append(files, rec.Filename)
				continue
			}
			kept = append(kept, rec)
		}
		doc.Images = kept
		return len(files) > 0, nil
	})
	if err != nil {
		return nil, fmt.Errorf("removing image metadata: %w", err)
	}

	res := &gallery.DeleteResult{Total: len(ids)}
	for _, name := range files {
		if name != "" && s.ws.DeleteImage(name) == gallery.Failed {
			res.Failed++
			continue
		}
		res.Deleted++
	}
	s.logger.Info("images deleted", "deleted", res.Deleted, "failed", res.Failed, "requested", res.Total)
	return res, nil
}

func (s *LocalStore) patch(id string, p gallery.ImagePatch) error {
	outcome, err := s.ws.UpdateImage(id, p)
	if err != nil {
		return err
	}
	if outcome == gallery.NotFound {
		return fmt.Errorf("image %s: %w", id, gallery.ErrNotFound)
	}
	return nil
}

func (s *LocalStore) UpdateTags(_ context.Context, id string, tags []string) error {
	return s.patch(id, gallery.ImagePatch{Tags: gallery.CleanTags(tags)})
}

func (s *LocalStore) SetFavorite(_ context.Context, id string, favorite bool) error {
	return s.patch(id, gallery.ImagePatch{Favorite: &favorite})
}

func (s *LocalStore) SaveQuality(_ context.Context, id string, q gallery.QualityUpdate) error {
	return s.patch(id, gallery.QualityPatch(q))
}

func (s *LocalStore) OpenImage(ctx context.Context, id string) (io.ReadCloser, error) {
	rec, err := s.GetImage(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.ws.OpenImage(rec.Filename)
}

// ExportImages writes the files of ids into a zip archive. Unknown ids and
// records whose file is missing are left out.
func (s *LocalStore) ExportImages(ctx context.Context, ids []string, w io.Writer) error {
	doc, err := s.images()
	if err != nil {
		return err
	}
	byID := make(map[string]*gallery.ImageRecord, len(doc.Images))
	for i := range doc.Images {
		byID[doc.Images[i].ID] = &doc.Images[i]
	}

	zw := zip.NewWriter(w)
	written := map[string]bool{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			zw.Close()
			return err
		}
		rec, ok := byID[id]
		if !ok || written[rec.Filename] {
			continue
		}
		err := s.addToZip(zw, rec)
		if errors.Is(err, gallery.ErrNotFound) {
			s.logger.Debug("skipping missing file in export", "id", id, "file", rec.Filename)
			continue
		}
		if err != nil {
			zw.Close()
			return err
		}
		written[rec.Filename] = true
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finishing archive: %w", err)
	}
	s.logger.Info("images exported", "files", len(written))
	return nil
}

func (s *LocalStore) addToZip(zw *zip.Writer, rec *gallery.ImageRecord) error {
	rc, err := s.ws.OpenImage(rec.Filename)
	if err != nil {
		return err
	}
	defer rc.Close()

	hdr := &zip.FileHeader{Name: rec.Filename, Method: zip.Deflate}
	if rec.CreatedAt > 0 {
		hdr.Modified = rec.CreatedAt.Time()
	}
	fw, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("adding %s to archive: %w", rec.Filename, err)
	}
	if _, err := io.Copy(fw, rc); err != nil {
		return fmt.Errorf("adding %s to archive: %w", rec.Filename, err)
	}
	return nil
}

// UploadImage stores a new image. When filename is taken, a timestamp is
// added to the name. Without tags the record is tagged UploadTag.
func (s *LocalStore) UploadImage(_ context.Context, filename string, r io.Reader, tags []string) (*gallery.ImageRecord, error) {
	if err := s.ws.CheckReady(); err != nil {
		return nil, err
	}
	name := filepath.Base(filename)
	if !fs.IsImageFile(name) {
		return nil, fmt.Errorf("%w: %s is not a supported image type", gallery.ErrDecode, name)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", gallery.ErrDecode, name, err)
	}

	now := s.clock.Now()
	if s.ws.FileExists(name) {
		ext := filepath.Ext(name)
		name = strings.TrimSuffix(name, ext) + "_" + strconv.FormatInt(now.UnixMilli(), 10) + ext
	}
	if err := s.ws.SaveImageBytes(name, data); err != nil {
		return nil, err
	}

	tags = gallery.CleanTags(tags)
	if len(tags) == 0 {
		tags = []string{UploadTag}
	}
	w, h := cfg.Width, cfg.Height
	rec := gallery.ImageRecord{
		ID:          s.ids.New(),
		Filename:    name,
		Model:       gallery.DefaultModel,
		AspectRatio: aspectRatio(w, h),
		CreatedAt:   gallery.TimestampOf(now),
		FileSize:    int64(len(data)),
		Width:       &w,
		Height:      &h,
		Tags:        tags,
	}
	if err := s.ws.AddImage(rec); err != nil {
		s.ws.DeleteImage(name)
		return nil, fmt.Errorf("saving image metadata: %w", err)
	}
	s.logger.Info("image uploaded", "id", rec.ID, "file", name)
	return &rec, nil
}

// Scan adds a record for every image file in the workspace that has none.
// Dimensions are read from the file header; the modification time becomes
// the creation time.
func (s *LocalStore) Scan(ctx context.Context) (*gallery.ScanResult, error) {
	files, err := s.ws.ListFiles()
	if err != nil {
		return nil, err
	}

	known := map[string]bool{}
	for _, rec := range s.ws.ReadImages().Images {
		known[rec.Filename] = true
	}

	var added []gallery.ImageRecord
	for _, f := range files {
		if ctx.Err() != nil {
			break
		}
		if known[f.Name] {
			continue
		}
		added = append(added, s.scannedRecord(f))
	}

	n, err := s.ws.AppendImages(added)
	if err != nil {
		return nil, fmt.Errorf("saving scanned images: %w", err)
	}
	s.logger.Info("workspace scanned", "files", len(files), "added", n)
	return &gallery.ScanResult{Scanned: len(files), Added: n}, ctx.Err()
}

func (s *LocalStore) scannedRecord(f fs.FileEntry) gallery.ImageRecord {
	rec := gallery.ImageRecord{
		ID:        s.ids.New(),
		Filename:  f.Name,
		Model:     gallery.DefaultModel,
		CreatedAt: gallery.TimestampOf(f.ModTime),
		FileSize:  f.Size,
		Tags:      []string{ScanTag},
	}

	rc, err := s.ws.OpenImage(f.Name)
	if err != nil {
		s.logger.Warn("opening scanned file failed", "file", f.Name, "error", err)
		return rec
	}
	defer rc.Close()
	cfg, _, err := image.DecodeConfig(rc)
	if err != nil {
		s.logger.Debug("reading image size failed", "file", f.Name, "error", err)
		return rec
	}
	w, h := cfg.Width, cfg.Height
	rec.Width, rec.Height = &w, &h
	rec.AspectRatio = aspectRatio(w, h)
	return rec
}

func (s *LocalStore) CheckMissing(_ context.Context) (*gallery.MissingReport, error) {
	doc, err := s.images()
	if err != nil {
		return nil, err
	}
	report := &gallery.MissingReport{Total: len(doc.Images), MissingImages: []gallery.ImageRecord{}}
	for _, rec := range doc.Images {
		if s.ws.FileExists(rec.Filename) {
			report.Valid++
			continue
		}
		report.Missing++
		report.MissingImages = append(report.MissingImages, rec)
	}
	return report, nil
}

// CleanupMissing drops the records whose file no longer exists and returns
// how many were dropped.
func (s *LocalStore) CleanupMissing(_ context.Context) (int, error) {
	removed := 0
	err := s.ws.ModifyImages(func(doc *gallery.ImageDocument) (bool, error) {
		kept := make([]gallery.ImageRecord, 0, len(doc.Images))
		for _, rec := range doc.Images {
			if !s.ws.FileExists(rec.Filename) {
				removed++
				continue
			}
			kept = append(kept, rec)
		}
		doc.Images = kept
		return removed > 0, nil
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info("orphaned metadata removed", "count", removed)
	}
	return removed, nil
}

func (s *LocalStore) Stats(_ context.Context) (*gallery.Stats, error) {
	doc, err := s.images()
	if err != nil {
		return nil, err
	}
	return gallery.ComputeStats(doc.Images, s.clock.Now()), nil
}

func (s *LocalStore) Tags(_ context.Context) ([]gallery.TagCount, error) {
	doc, err := s.images()
	if err != nil {
		return nil, err
	}
	return gallery.CountTags(doc.Images), nil
}

func (s *LocalStore) ListPrompts(_ context.Context, f gallery.PromptFilter) (*gallery.PromptList, error) {
	if err := s.ws.CheckReady(); err != nil {
		return nil, err
	}
	return gallery.ListPrompts(s.ws.ReadPrompts().Prompts, f), nil
}

func (s *LocalStore) CreatePrompt(_ context.Context, in gallery.PromptInput) (*gallery.PromptRecord, error) {
	rec, err := gallery.NewPromptRecord(in, s.ids.New(), s.now())
	if err != nil {
		return nil, err
	}
	if err := s.ws.AddPrompt(*rec); err != nil {
		return nil, fmt.Errorf("saving prompt: %w", err)
	}
	return rec, nil
}

func (s *LocalStore) UpdatePrompt(_ context.Context, id string, p gallery.PromptPatch) (*gallery.PromptRecord, error) {
	if err := gallery.ValidatePromptPatch(p); err != nil {
		return nil, err
	}
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		p.Title = &title
	}
	if p.Category != nil && strings.TrimSpace(*p.Category) == "" {
		category := gallery.DefaultCategory
		p.Category = &category
	}
	if p.Tags != nil {
		p.Tags = gallery.CleanTags(p.Tags)
	}
	now := s.now()
	p.UpdatedAt = &now
	return s.modifyPrompt(id, p.Apply)
}

// UsePrompt counts one use. It also moves the prompt to the top of the listing.
func (s *LocalStore) UsePrompt(_ context.Context, id string) (*gallery.PromptRecord, error) {
	now := s.now()
	return s.modifyPrompt(id, func(r *gallery.PromptRecord) {
		r.UseCount++
		r.UpdatedAt = now
	})
}

func (s *LocalStore) modifyPrompt(id string, fn func(*gallery.PromptRecord)) (*gallery.PromptRecord, error) {
	var out *gallery.PromptRecord
	err := s.ws.ModifyPrompts(func(doc *gallery.PromptDocument) (bool, error) {
		for i := range doc.Prompts {
			if doc.Prompts[i].ID == id {
				fn(&doc.Prompts[i])
				rec := doc.Prompts[i]
				out = &rec
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("prompt %s: %w", id, gallery.ErrNotFound)
	}
	return out, nil
}

func (s *LocalStore) DeletePrompts(_ context.Context, ids []string) (int, error) {
	return s.ws.RemovePrompts(ids)
}

func (s *LocalStore) ExportPrompts(_ context.Context) (*gallery.PromptDocument, error) {
	if err := s.ws.CheckReady(); err != nil {
		return nil, err
	}
	return s.ws.ReadPrompts(), nil
}

func (s *LocalStore) ImportPrompts(_ context.Context, prompts []gallery.PromptRecord, merge bool) (int, error) {
	n := 0
	err := s.ws.ModifyPrompts(func(doc *gallery.PromptDocument) (bool, error) {
		n = gallery.ApplyPromptImport(doc, prompts, merge, s.ids, s.now())
		return !merge || n > 0, nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// aspectRatio reduces w:h by their greatest common divisor.
func aspectRatio(w, h int) string {
	if w <= 0 || h <= 0 {
		return ""
	}
	a, b := w, h
	for b != 0 {
		a, b = b, a%b
	}
	return strconv.Itoa(w/a) + ":" + strconv.Itoa(h/a)
}
