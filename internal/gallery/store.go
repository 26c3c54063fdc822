package gallery

import (
	"context"
	"io"
)

// ImageStore is the backing store behind the gallery controller. The local
// workspace and the remote REST API both implement it; the controller never
// knows which one it talks to.
type ImageStore interface {
	// ListImages returns one page of records matching the query.
	ListImages(ctx context.Context, q ImageQuery) (*ImagePage, error)

	// GetImage returns a single record. Returns ErrNotFound if the id is unknown.
	GetImage(ctx context.Context, id string) (*ImageRecord, error)

	// DeleteImages removes metadata first, then best-effort removes the files.
	DeleteImages(ctx context.Context, ids []string) (*DeleteResult, error)

	// UpdateTags replaces the tag list of a record.
	UpdateTags(ctx context.Context, id string, tags []string) error

	// SetFavorite sets the favorite flag of a record.
	SetFavorite(ctx context.Context, id string, favorite bool) error

	// SaveQuality persists one analysis result for a record.
	SaveQuality(ctx context.Context, id string, q QualityUpdate) error

	// OpenImage opens the image bytes of a record. The caller closes the reader.
	OpenImage(ctx context.Context, id string) (io.ReadCloser, error)

	// ExportImages writes a zip archive of the given records to w.
	ExportImages(ctx context.Context, ids []string, w io.Writer) error

	// UploadImage stores a new image file and its record.
	UploadImage(ctx context.Context, filename string, r io.Reader, tags []string) (*ImageRecord, error)

	// Scan imports image files that have no record yet.
	Scan(ctx context.Context) (*ScanResult, error)

	// CheckMissing reports records whose backing file is gone.
	CheckMissing(ctx context.Context) (*MissingReport, error)

	// Stats summarizes the whole collection.
	Stats(ctx context.Context) (*Stats, error)

	// Tags returns every tag with its usage count, most used first.
	Tags(ctx context.Context) ([]TagCount, error)
}

// RemoteAnalyzer is implemented by stores that analyze image quality
// server-side instead of in process.
type RemoteAnalyzer interface {
	AnalyzeRemote(ctx context.Context, req RemoteAnalyzeRequest) (*AnalyzeSummary, error)
	StopAnalysis(ctx context.Context) error
}

// PromptStore is the backing store behind the prompts controller.
type PromptStore interface {
	// ListPrompts returns matching prompts sorted by updated_at descending,
	// plus the categories and tags of the whole library.
	ListPrompts(ctx context.Context, f PromptFilter) (*PromptList, error)

	// CreatePrompt validates and stores a new prompt.
	CreatePrompt(ctx context.Context, in PromptInput) (*PromptRecord, error)

	// UpdatePrompt applies a patch. Returns ErrNotFound if the id is unknown.
	UpdatePrompt(ctx context.Context, id string, p PromptPatch) (*PromptRecord, error)

	// UsePrompt increments the use count. Returns ErrNotFound if the id is unknown.
	UsePrompt(ctx context.Context, id string) (*PromptRecord, error)

	// DeletePrompts removes the given prompts and returns how many were removed.
	DeletePrompts(ctx context.Context, ids []string) (int, error)

	// ExportPrompts returns the whole library.
	ExportPrompts(ctx context.Context) (*PromptDocument, error)

	// ImportPrompts merges or replaces the library and returns how many records were imported.
	ImportPrompts(ctx context.Context, prompts []PromptRecord, merge bool) (int, error)
}

// MigrationSource is the server side of a migration.
type MigrationSource interface {
	ServerInfo(ctx context.Context) (*ServerInfo, error)
	ListImages(ctx context.Context, q ImageQuery) (*ImagePage, error)
	OpenImageFile(ctx context.Context, id string) (io.ReadCloser, error)
}

// MigrationTarget is the workspace side of a migration.
type MigrationTarget interface {
	ReadImages() *ImageDocument
	SaveImageBytes(filename string, data []byte) error
	AppendImages(recs []ImageRecord) (int, error)
}

// MetadataWorkspace reads and replaces whole metadata documents.
type MetadataWorkspace interface {
	ReadImages() *ImageDocument
	ReadPrompts() *PromptDocument
	WriteImages(doc *ImageDocument) error
	WritePrompts(doc *PromptDocument) error
}

// QualityUpdate is the analysis result persisted for one image.
type QualityUpdate struct {
	Score           float64
	Issues          []string
	BlurScore       float64
	BrightnessScore float64
}

// DeleteResult summarizes a bulk delete.
type DeleteResult struct {
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
	Total   int `json:"total"`
}

// ScanResult summarizes a directory scan.
type ScanResult struct {
	Scanned int `json:"scanned"`
	Added   int `json:"added"`
}

// MissingReport lists records whose backing file no longer exists.
type MissingReport struct {
	Total         int           `json:"total"`
	Valid         int           `json:"valid"`
	Missing       int           `json:"missing"`
	MissingImages []ImageRecord `json:"missing_images"`
}

// TagCount is a tag and the number of records carrying it.
type TagCount struct {
	Tag   string `json:"name"`
	Count int    `json:"count"`
}

// Stats summarizes the image collection.
type Stats struct {
	TotalCount   int            `json:"total_count"`
	TotalSize    int64          `json:"total_size"`
	MonthCount   int            `json:"month_count"`
	TopTags      []TagCount     `json:"top_tags"`
	Models       map[string]int `json:"models"`
	AspectRatios map[string]int `json:"aspect_ratios"`
}

// ServerInfo describes the remote collection before a migration.
type ServerInfo struct {
	Total       int  `json:"total"`
	HasImageDir bool `json:"has_image_dir"`
}

// RemoteAnalyzeRequest is the body of a server-side analysis run.
type RemoteAnalyzeRequest struct {
	ImageIDs       []string `json:"image_ids"`
	UpdateMetadata bool     `json:"update_metadata"`
	BatchSize      int      `json:"batch_size"`
	SkipAnalyzed   bool     `json:"skip_analyzed"`
	MaxWorkers     int      `json:"max_workers"`
}
