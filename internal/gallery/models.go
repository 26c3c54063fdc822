package gallery

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DocumentVersion is written into every metadata document.
const DocumentVersion = "1.0"

// DefaultModel is assumed for records that do not name a generation model.
const DefaultModel = "grok-imagine-1.0"

// DefaultCategory is the prompt category used when none is given.
const DefaultCategory = "默认"

// Metadata file names inside the workspace directory.
const (
	ImageMetadataFile  = "image_metadata.json"
	PromptMetadataFile = "prompts.json"
)

// Timestamp is a point in time stored as milliseconds since the Unix epoch.
// Decoding also accepts RFC 3339 strings written by older clients.
type Timestamp int64

// TimestampOf converts t to a Timestamp.
func TimestampOf(t time.Time) Timestamp {
	return Timestamp(t.UnixMilli())
}

// Time returns the timestamp as a UTC time.Time.
func (ts Timestamp) Time() time.Time {
	return time.UnixMilli(int64(ts)).UTC()
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*ts = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		return ts.parseString(s)
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decoding timestamp: %w", err)
	}
	*ts = Timestamp(int64(f))
	return nil
}

func (ts Timestamp) MarshalYAML() (any, error) {
	return int64(ts), nil
}

func (ts *Timestamp) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag == "!!null" {
		*ts = 0
		return nil
	}
	var n int64
	if err := value.Decode(&n); err == nil {
		*ts = Timestamp(n)
		return nil
	}
	return ts.parseString(value.Value)
}

func (ts *Timestamp) parseString(s string) error {
	if s == "" {
		*ts = 0
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*ts = Timestamp(n)
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	*ts = TimestampOf(t)
	return nil
}

// ImageRecord is one entry of image_metadata.json, and the shape returned by
// the remote gallery API.
type ImageRecord struct {
	ID              string         `json:"id"`
	Filename        string         `json:"filename"`
	Prompt          string         `json:"prompt"`
	Model           string         `json:"model"`
	AspectRatio     string         `json:"aspect_ratio"`
	CreatedAt       Timestamp      `json:"created_at"`
	FileSize        int64          `json:"file_size"`
	Width           *int           `json:"width"`
	Height          *int           `json:"height"`
	Tags            []string       `json:"tags"`
	Favorite        bool           `json:"favorite"`
	NSFW            bool           `json:"nsfw,omitempty"`
	QualityScore    *float64       `json:"quality_score"`
	QualityIssues   []string       `json:"quality_issues"`
	BlurScore       *float64       `json:"blur_score,omitempty"`
	BrightnessScore *float64       `json:"brightness_score,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// HasTag reports whether the record carries tag.
func (r *ImageRecord) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Scored reports whether a quality score has been stored.
func (r *ImageRecord) Scored() bool {
	return r.QualityScore != nil
}

// ImageDocument is the on-disk layout of image_metadata.json.
type ImageDocument struct {
	Version string        `json:"version"`
	Images  []ImageRecord `json:"images"`
}

// NewImageDocument returns an empty document at the current version.
func NewImageDocument() *ImageDocument {
	return &ImageDocument{Version: DocumentVersion, Images: []ImageRecord{}}
}

// PromptRecord is one entry of prompts.json.
type PromptRecord struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	Content   string    `json:"content" yaml:"content"`
	Category  string    `json:"category" yaml:"category"`
	Tags      []string  `json:"tags" yaml:"tags"`
	Favorite  bool      `json:"favorite" yaml:"favorite"`
	UseCount  int       `json:"use_count" yaml:"use_count"`
	CreatedAt Timestamp `json:"created_at" yaml:"created_at"`
	UpdatedAt Timestamp `json:"updated_at" yaml:"updated_at"`
}

// PromptDocument is the on-disk layout of prompts.json.
type PromptDocument struct {
	Version string         `json:"version" yaml:"version"`
	Prompts []PromptRecord `json:"prompts" yaml:"prompts"`
}

// NewPromptDocument returns an empty document at the current version.
func NewPromptDocument() *PromptDocument {
	return &PromptDocument{Version: DocumentVersion, Prompts: []PromptRecord{}}
}

// Outcome reports what a best-effort mutation actually did.
type Outcome int

const (
	NotFound Outcome = iota
	Updated
	Removed
	Failed
)

func (o Outcome) String() string {
	switch o {
	case NotFound:
		return "not_found"
	case Updated:
		return "updated"
	case Removed:
		return "removed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}
