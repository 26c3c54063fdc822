// Package gallery holds the domain model of the image gallery and prompt
// library, the interfaces of their backing stores, and the controllers that
// drive listings, selection and bulk operations against either store.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"gallery-go/internal/quality"
)

var (
	ErrNothingSelected = errors.New("no images selected")
	ErrEmptyTag        = errors.New("tag must not be empty")
	ErrDuplicateTag    = errors.New("tag already present")
	ErrInvalidSetting  = errors.New("invalid setting")
)

// Controller is the listing state of the gallery: filters, sort order,
// pagination, view mode and the selection. It talks to an ImageStore only.
// A Controller is not safe for concurrent use.
type Controller struct {
	store    ImageStore
	prefs    PreferenceStore
	analyzer *quality.Analyzer
	logger   Logger

	filter    ImageFilter
	sortBy    string
	sortOrder string
	page      int
	pageSize  int
	viewMode  string

	current  *ImagePage
	selected map[string]bool
}

// NewController loads the persisted preferences; unreadable preferences
// fall back to the defaults.
func NewController(store ImageStore, prefs PreferenceStore, analyzer *quality.Analyzer, logger Logger) *Controller {
	if logger == nil {
		logger = NewNopLogger()
	}
	if prefs == nil {
		prefs = NewMemoryPreferences()
	}
	if analyzer == nil {
		analyzer = quality.NewAnalyzer(quality.DefaultWeights)
	}

	p, err := prefs.Load()
	if err != nil {
		logger.Warn("loading preferences failed", "error", err)
		p = DefaultPreferences()
	}

	return &Controller{
		store:     store,
		prefs:     prefs,
		analyzer:  analyzer,
		logger:    logger,
		sortBy:    DefaultSortBy,
		sortOrder: DefaultSortOrder,
		page:      1,
		pageSize:  p.PageSize,
		viewMode:  p.ViewMode,
		current:   &ImagePage{Images: []ImageRecord{}, Page: 1, PageSize: p.PageSize},
		selected:  map[string]bool{},
	}
}

// Query returns the query the next Refresh sends.
func (c *Controller) Query() ImageQuery {
	return ImageQuery{
		Filter:    c.filter,
		SortBy:    c.sortBy,
		SortOrder: c.sortOrder,
		Page:      c.page,
		PageSize:  c.pageSize,
	}
}

// Current returns the page loaded by the last Refresh.
func (c *Controller) Current() *ImagePage {
	return c.current
}

func (c *Controller) ViewMode() string {
	return c.viewMode
}

// Refresh loads the current page. When the collection shrank below the
// current page, the page is clamped to the last one and loaded again.
func (c *Controller) Refresh(ctx context.Context) (*ImagePage, error) {
	page, err := c.store.ListImages(ctx, c.Query())
	if err != nil {
		return nil, err
	}
	if last := max(page.TotalPages, 1); c.page > last {
		c.page = last
		if page, err = c.store.ListImages(ctx, c.Query()); err != nil {
			return nil, err
		}
	}
	c.current = page
	return page, nil
}

// SetFilters replaces the filters and goes back to the first page.
func (c *Controller) SetFilters(ctx context.Context, f ImageFilter) (*ImagePage, error) {
	c.filter = f
	c.page = 1
	return c.Refresh(ctx)
}

func (c *Controller) SetSort(ctx context.Context, sortBy, sortOrder string) (*ImagePage, error) {
	if !ValidSortKey(sortBy) {
		return nil, fmt.Errorf("%w: unknown sort key %q", ErrInvalidSetting, sortBy)
	}
	if sortOrder != "asc" && sortOrder != "desc" {
		return nil, fmt.Errorf("%w: sort order must be asc or desc", ErrInvalidSetting)
	}
	c.sortBy = sortBy
	c.sortOrder = sortOrder
	return c.Refresh(ctx)
}

// SetPage moves to page n, clamped to [1, TotalPages].
func (c *Controller) SetPage(ctx context.Context, n int) (*ImagePage, error) {
	last := c.current.TotalPages
	if last < 1 {
		last = 1
	}
	c.page = min(max(n, 1), last)
	return c.Refresh(ctx)
}

// SetPageSize changes and persists the page size, then goes back to page 1.
func (c *Controller) SetPageSize(ctx context.Context, size int) (*ImagePage, error) {
	if size < 1 || size > MaxPageSize {
		return nil, fmt.Errorf("%w: page size must be between 1 and %d", ErrInvalidSetting, MaxPageSize)
	}
	c.pageSize = size
	c.page = 1
	c.savePreferences()
	return c.Refresh(ctx)
}

// SetViewMode changes and persists the view mode.
func (c *Controller) SetViewMode(mode string) error {
	if mode != ViewGrid && mode != ViewList {
		return fmt.Errorf("%w: view mode must be %s or %s", ErrInvalidSetting, ViewGrid, ViewList)
	}
	c.viewMode = mode
	c.savePreferences()
	return nil
}

func (c *Controller) savePreferences() {
	if err := c.prefs.Save(Preferences{PageSize: c.pageSize, ViewMode: c.viewMode}); err != nil {
		c.logger.Warn("saving preferences failed", "error", err)
	}
}

// Toggle flips the selection of id and reports whether it is now selected.
func (c *Controller) Toggle(id string) bool {
	if c.selected[id] {
		delete(c.selected, id)
		return false
	}
	c.selected[id] = true
	return true
}

func (c *Controller) Select(ids ...string) {
	for _, id := range ids {
		c.selected[id] = true
	}
}

// SelectPage selects every image of the current page.
func (c *Controller) SelectPage() {
	for _, rec := range c.current.Images {
		c.selected[rec.ID] = true
	}
}

func (c *Controller) ClearSelection() {
	c.selected = map[string]bool{}
}

// Selected returns the selected ids in sorted order.
func (c *Controller) Selected() []string {
	ids := make([]string, 0, len(c.selected))
	for id := range c.selected {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AddTag appends a trimmed tag to an image. Blank and duplicate tags are rejected.
func (c *Controller) AddTag(ctx context.Context, id, tag string) ([]string, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, ErrEmptyTag
	}
	rec, err := c.store.GetImage(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.HasTag(tag) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTag, tag)
	}
	tags := append(append([]string{}, rec.Tags...), tag)
	if err := c.store.UpdateTags(ctx, id, tags); err != nil {
		return nil, err
	}
	c.patchCurrent(id, func(r *ImageRecord) { r.Tags = tags })
	return tags, nil
}

func (c *Controller) RemoveTag(ctx context.Context, id, tag string) ([]string, error) {
	rec, err := c.store.GetImage(ctx, id)
	if err != nil {
		return nil, err
	}
	tags := []string{}
	for _, t := range rec.Tags {
		if t != tag {
			tags = append(tags, t)
		}
	}
	if err := c.store.UpdateTags(ctx, id, tags); err != nil {
		return nil, err
	}
	c.patchCurrent(id, func(r *ImageRecord) { r.Tags = tags })
	return tags, nil
}

// ToggleFavorite flips the favorite flag and returns the new value.
func (c *Controller) ToggleFavorite(ctx context.Context, id string) (bool, error) {
	rec, err := c.store.GetImage(ctx, id)
	if err != nil {
		return false, err
	}
	fav := !rec.Favorite
	if err := c.store.SetFavorite(ctx, id, fav); err != nil {
		return false, err
	}
	c.patchCurrent(id, func(r *ImageRecord) { r.Favorite = fav })
	return fav, nil
}

// Delete removes images, drops them from the selection and reloads the
// listing, clamping the page if it no longer exists.
func (c *Controller) Delete(ctx context.Context, ids []string) (*DeleteResult, error) {
	if len(ids) == 0 {
		return nil, ErrNothingSelected
	}
	res, err := c.store.DeleteImages(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		delete(c.selected, id)
	}
	if _, err := c.Refresh(ctx); err != nil {
		c.logger.Warn("refreshing after delete failed", "error", err)
	}
	return res, nil
}

// Export writes a zip of ids, or of the selection when ids is empty.
func (c *Controller) Export(ctx context.Context, ids []string, w io.Writer) error {
	if len(ids) == 0 {
		ids = c.Selected()
	}
	if len(ids) == 0 {
		return ErrNothingSelected
	}
	return c.store.ExportImages(ctx, ids, w)
}

// AnalyzeQuality runs a bulk analysis and reloads the listing afterwards.
// For AnalyzeSelected with no ids, the selection is used.
func (c *Controller) AnalyzeQuality(ctx context.Context, req AnalyzeRequest, progress func(AnalyzeProgress)) (*AnalyzeSummary, error) {
	if req.Mode == AnalyzeSelected && len(req.IDs) == 0 {
		req.IDs = c.Selected()
	}
	if req.Logger == nil {
		req.Logger = c.logger
	}
	summary, err := AnalyzeImages(ctx, c.store, c.analyzer, req, progress)
	if err != nil {
		return nil, err
	}
	c.logger.Info("quality analysis finished",
		"total", summary.Total, "analyzed", summary.Analyzed, "failed", summary.Failed,
		"skipped", summary.Skipped, "low_quality", summary.LowQuality, "stopped", summary.Stopped)
	if _, err := c.Refresh(context.WithoutCancel(ctx)); err != nil {
		c.logger.Warn("refreshing after analysis failed", "error", err)
	}
	return summary, nil
}

func (c *Controller) CheckMissing(ctx context.Context) (*MissingReport, error) {
	return c.store.CheckMissing(ctx)
}

// Scan imports untracked files and reloads the listing.
func (c *Controller) Scan(ctx context.Context) (*ScanResult, error) {
	res, err := c.store.Scan(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := c.Refresh(ctx); err != nil {
		c.logger.Warn("refreshing after scan failed", "error", err)
	}
	return res, nil
}

func (c *Controller) Upload(ctx context.Context, filename string, r io.Reader, tags []string) (*ImageRecord, error) {
	return c.store.UploadImage(ctx, filename, r, tags)
}

func (c *Controller) Stats(ctx context.Context) (*Stats, error) {
	return c.store.Stats(ctx)
}

func (c *Controller) Tags(ctx context.Context) ([]TagCount, error) {
	return c.store.Tags(ctx)
}

func (c *Controller) Get(ctx context.Context, id string) (*ImageRecord, error) {
	return c.store.GetImage(ctx, id)
}

func (c *Controller) patchCurrent(id string, fn func(*ImageRecord)) {
	for i := range c.current.Images {
		if c.current.Images[i].ID == id {
			fn(&c.current.Images[i])
			return
		}
	}
}
