package gallery

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// Import and export formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// PromptFilter selects prompts. Empty fields match everything.
type PromptFilter struct {
	Search   string
	Category string
	Tag      string
	Favorite *bool
}

// Matches reports whether p passes every set criterion. Search is a
// case-insensitive substring match on title, content and tags.
func (f PromptFilter) Matches(p *PromptRecord) bool {
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.Tag != "" && !containsString(p.Tags, f.Tag) {
		return false
	}
	if f.Favorite != nil && p.Favorite != *f.Favorite {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if strings.Contains(strings.ToLower(p.Title), q) || strings.Contains(strings.ToLower(p.Content), q) {
			return true
		}
		for _, t := range p.Tags {
			if strings.Contains(strings.ToLower(t), q) {
				return true
			}
		}
		return false
	}
	return true
}

// PromptList is one listing of the prompt library.
type PromptList struct {
	Prompts    []PromptRecord `json:"prompts"`
	Total      int            `json:"total"`
	Categories []string       `json:"categories"`
	Tags       []string       `json:"tags"`
}

// ListPrompts filters all, newest update first. Categories and tags are
// collected from the whole library so the filter menus never shrink.
func ListPrompts(all []PromptRecord, f PromptFilter) *PromptList {
	out := &PromptList{Prompts: []PromptRecord{}, Categories: []string{}, Tags: []string{}}
	categories := map[string]bool{}
	tags := map[string]bool{}

	for i := range all {
		p := &all[i]
		if p.Category != "" {
			categories[p.Category] = true
		}
		for _, t := range p.Tags {
			tags[t] = true
		}
		if f.Matches(p) {
			out.Prompts = append(out.Prompts, *p)
		}
	}
	sort.SliceStable(out.Prompts, func(i, j int) bool {
		return out.Prompts[i].UpdatedAt > out.Prompts[j].UpdatedAt
	})

	out.Total = len(out.Prompts)
	out.Categories = sortedKeys(categories)
	out.Tags = sortedKeys(tags)
	return out
}

// PromptInput is a new prompt as entered by the user.
type PromptInput struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

func (in PromptInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.Required, validation.By(notBlank), validation.RuneLength(1, 100)),
		validation.Field(&in.Content, validation.Required),
	)
}

// ValidatePromptPatch applies the PromptInput rules to the fields a patch sets.
func ValidatePromptPatch(p PromptPatch) error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Title, validation.NilOrNotEmpty, validation.By(notBlank), validation.RuneLength(1, 100)),
		validation.Field(&p.Content, validation.NilOrNotEmpty),
	)
}

// notBlank rejects whitespace-only strings. Nil passes.
func notBlank(value any) error {
	v, isNil := validation.Indirect(value)
	if s, ok := v.(string); ok && !isNil && strings.TrimSpace(s) == "" {
		return validation.NewError("validation_not_blank", "cannot be blank")
	}
	return nil
}

// NewPromptRecord validates in and builds the stored record.
func NewPromptRecord(in PromptInput, id string, now Timestamp) (*PromptRecord, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	category := strings.TrimSpace(in.Category)
	if category == "" {
		category = DefaultCategory
	}
	return &PromptRecord{
		ID:        id,
		Title:     strings.TrimSpace(in.Title),
		Content:   in.Content,
		Category:  category,
		Tags:      CleanTags(in.Tags),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ApplyPromptImport merges incoming into doc, or replaces doc when merge is
// false. Merging keeps existing records and prepends incoming records whose
// id is new. Records without an id get one from ids, and missing fields get
// defaults. Returns the number of records imported.
func ApplyPromptImport(doc *PromptDocument, incoming []PromptRecord, merge bool, ids IDGenerator, now Timestamp) int {
	normalized := make([]PromptRecord, 0, len(incoming))
	for _, p := range incoming {
		if p.ID == "" {
			p.ID = ids.New()
		}
		if p.Category == "" {
			p.Category = DefaultCategory
		}
		if p.Tags == nil {
			p.Tags = []string{}
		}
		if p.CreatedAt == 0 {
			p.CreatedAt = now
		}
		if p.UpdatedAt == 0 {
			p.UpdatedAt = p.CreatedAt
		}
		normalized = append(normalized, p)
	}

	if !merge {
		doc.Version = DocumentVersion
		doc.Prompts = normalized
		return len(normalized)
	}

	seen := make(map[string]bool, len(doc.Prompts))
	for _, p := range doc.Prompts {
		seen[p.ID] = true
	}
	var added []PromptRecord
	for _, p := range normalized {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		added = append(added, p)
	}
	doc.Prompts = append(added, doc.Prompts...)
	return len(added)
}

// DecodePrompts reads an import file. Both a bare array of prompts and a
// {"version", "prompts"} envelope are accepted, in JSON or YAML.
func DecodePrompts(r io.Reader, format string) ([]PromptRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading import: %w", err)
	}

	switch format {
	case FormatJSON, "":
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			var list []PromptRecord
			if err := json.Unmarshal(trimmed, &list); err != nil {
				return nil, fmt.Errorf("parsing prompts: %w", err)
			}
			return list, nil
		}
		var doc PromptDocument
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("parsing prompts: %w", err)
		}
		return doc.Prompts, nil
	case FormatYAML:
		var node yaml.Node
		if err := yaml.Unmarshal(data, &node); err != nil {
			return nil, fmt.Errorf("parsing prompts: %w", err)
		}
		if len(node.Content) == 0 {
			return nil, nil
		}
		if node.Content[0].Kind == yaml.SequenceNode {
			var list []PromptRecord
			if err := node.Decode(&list); err != nil {
				return nil, fmt.Errorf("parsing prompts: %w", err)
			}
			return list, nil
		}
		var doc PromptDocument
		if err := node.Decode(&doc); err != nil {
			return nil, fmt.Errorf("parsing prompts: %w", err)
		}
		return doc.Prompts, nil
	default:
		return nil, fmt.Errorf("unknown prompt format: %q", format)
	}
}

// EncodePrompts writes doc as pretty JSON or YAML.
func EncodePrompts(w io.Writer, doc *PromptDocument, format string) error {
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(doc)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown prompt format: %q", format)
	}
}

// CleanTags trims tags and drops empty and repeated ones, keeping the
// first occurrence order. The result is never nil.
func CleanTags(tags []string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
