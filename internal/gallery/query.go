package gallery

import (
	"math"
	"sort"
	"strings"
	"time"
)

// Defaults for image listings.
const (
	DefaultPageSize  = 50
	MaxPageSize      = 200
	DefaultSortBy    = "created_at"
	DefaultSortOrder = "desc"
)

var sortKeys = map[string]bool{
	"created_at":    true,
	"file_size":     true,
	"quality_score": true,
	"filename":      true,
	"width":         true,
	"height":        true,
}

// ValidSortKey reports whether key is a supported sort field.
func ValidSortKey(key string) bool {
	return sortKeys[key]
}

// ImageFilter narrows an image listing. All set fields are ANDed.
type ImageFilter struct {
	Search           string
	Model            string
	AspectRatio      string
	Tags             []string // any-of
	StartDate        *time.Time
	EndDate          *time.Time
	MinQualityScore  *float64
	MaxQualityScore  *float64
	HasQualityIssues *bool
	Favorite         *bool
}

// Matches reports whether r passes every set field of f.
func (f ImageFilter) Matches(r *ImageRecord) bool {
	if f.Search != "" && !strings.Contains(strings.ToLower(r.Prompt), strings.ToLower(f.Search)) {
		return false
	}
	if f.Model != "" && r.Model != f.Model {
		return false
	}
	if f.AspectRatio != "" && r.AspectRatio != f.AspectRatio {
		return false
	}
	if len(f.Tags) > 0 {
		found := false
		for _, tag := range f.Tags {
			if r.HasTag(tag) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.StartDate != nil && r.CreatedAt < TimestampOf(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && r.CreatedAt > TimestampOf(*f.EndDate) {
		return false
	}
	if f.MinQualityScore != nil && (r.QualityScore == nil || *r.QualityScore < *f.MinQualityScore) {
		return false
	}
	if f.MaxQualityScore != nil && (r.QualityScore == nil || *r.QualityScore > *f.MaxQualityScore) {
		return false
	}
	if f.HasQualityIssues != nil && (len(r.QualityIssues) > 0) != *f.HasQualityIssues {
		return false
	}
	if f.Favorite != nil && r.Favorite != *f.Favorite {
		return false
	}
	return true
}

// ImageQuery is a filtered, sorted, paginated listing request.
type ImageQuery struct {
	Filter    ImageFilter
	SortBy    string
	SortOrder string
	Page      int
	PageSize  int
}

// Normalized returns q with defaults filled in and out-of-range values fixed.
func (q ImageQuery) Normalized() ImageQuery {
	if !ValidSortKey(q.SortBy) {
		q.SortBy = DefaultSortBy
	}
	if q.SortOrder != "asc" {
		q.SortOrder = DefaultSortOrder
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	return q
}

// ImagePage is one page of a listing.
type ImagePage struct {
	Images     []ImageRecord `json:"images"`
	Total      int           `json:"total"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	TotalPages int           `json:"total_pages"`
}

// TotalPages returns ceil(total/pageSize).
func TotalPages(total, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 0
	}
	return int(math.Ceil(float64(total) / float64(pageSize)))
}

// FilterImages returns the records matching f, in their original order.
func FilterImages(recs []ImageRecord, f ImageFilter) []ImageRecord {
	out := make([]ImageRecord, 0, len(recs))
	for i := range recs {
		if f.Matches(&recs[i]) {
			out = append(out, recs[i])
		}
	}
	return out
}

// SortImages sorts recs in place by a single key. Records without a value
// for the key (unscored, unknown dimensions) sort lowest.
func SortImages(recs []ImageRecord, sortBy, sortOrder string) {
	desc := sortOrder != "asc"
	less := func(a, b *ImageRecord) bool {
		switch sortBy {
		case "file_size":
			return a.FileSize < b.FileSize
		case "quality_score":
			return optLess(a.QualityScore, b.QualityScore)
		case "filename":
			return a.Filename < b.Filename
		case "width":
			return intLess(a.Width, b.Width)
		case "height":
			return intLess(a.Height, b.Height)
		default:
			return a.CreatedAt < b.CreatedAt
		}
	}
	sort.SliceStable(recs, func(i, j int) bool {
		if desc {
			return less(&recs[j], &recs[i])
		}
		return less(&recs[i], &recs[j])
	})
}

func optLess(a, b *float64) bool {
	switch {
	case a == nil:
		return b != nil
	case b == nil:
		return false
	default:
		return *a < *b
	}
}

func intLess(a, b *int) bool {
	switch {
	case a == nil:
		return b != nil
	case b == nil:
		return false
	default:
		return *a < *b
	}
}

// QueryImages applies the filter, sort and pagination of q to recs.
func QueryImages(recs []ImageRecord, q ImageQuery) *ImagePage {
	q = q.Normalized()
	matched := FilterImages(recs, q.Filter)
	SortImages(matched, q.SortBy, q.SortOrder)

	total := len(matched)
	start := (q.Page - 1) * q.PageSize
	if start > total {
		start = total
	}
	end := start + q.PageSize
	if end > total {
		end = total
	}

	return &ImagePage{
		Images:     matched[start:end],
		Total:      total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: TotalPages(total, q.PageSize),
	}
}

// CountTags returns every tag with its usage count, most used first.
// Ties are broken alphabetically.
func CountTags(recs []ImageRecord) []TagCount {
	counts := make(map[string]int)
	for _, r := range recs {
		for _, tag := range r.Tags {
			counts[tag]++
		}
	}
	out := make([]TagCount, 0, len(counts))
	for tag, n := range counts {
		out = append(out, TagCount{Tag: tag, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	return out
}

// ComputeStats summarizes recs. MonthCount counts records created since the
// first day of now's month.
func ComputeStats(recs []ImageRecord, now time.Time) *Stats {
	monthStart := TimestampOf(time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()))
	stats := &Stats{
		TotalCount:   len(recs),
		TopTags:      []TagCount{},
		Models:       make(map[string]int),
		AspectRatios: make(map[string]int),
	}
	for _, r := range recs {
		stats.TotalSize += r.FileSize
		if r.CreatedAt >= monthStart {
			stats.MonthCount++
		}
		model := r.Model
		if model == "" {
			model = DefaultModel
		}
		stats.Models[model]++
		if r.AspectRatio != "" {
			stats.AspectRatios[r.AspectRatio]++
		}
	}
	tags := CountTags(recs)
	if len(tags) > 10 {
		tags = tags[:10]
	}
	stats.TopTags = append(stats.TopTags, tags...)
	return stats
}
