package gallery

import (
	"bytes"
	"strings"
	"testing"
)

type seqIDs struct{ n int }

func (s *seqIDs) New() string {
	s.n++
	return "gen-" + string(rune('0'+s.n))
}

func prompt(id, title string, updated Timestamp) PromptRecord {
	return PromptRecord{ID: id, Title: title, Content: "content of " + title, Category: DefaultCategory, Tags: []string{}, CreatedAt: updated, UpdatedAt: updated}
}

func TestListPrompts(t *testing.T) {
	a := prompt("a", "Sunset", 100)
	a.Tags = []string{"sky"}
	a.Category = "nature"
	b := prompt("b", "Portrait", 300)
	b.Favorite = true
	c := prompt("c", "City", 200)
	c.Tags = []string{"urban", "sky"}

	all := []PromptRecord{a, b, c}
	tests := []struct {
		name   string
		filter PromptFilter
		want   []string
	}{
		{"all newest first", PromptFilter{}, []string{"b", "c", "a"}},
		{"search title", PromptFilter{Search: "SUN"}, []string{"a"}},
		{"search content", PromptFilter{Search: "of city"}, []string{"c"}},
		{"search tag", PromptFilter{Search: "urb"}, []string{"c"}},
		{"category", PromptFilter{Category: "nature"}, []string{"a"}},
		{"tag", PromptFilter{Tag: "sky"}, []string{"c", "a"}},
		{"favorite", PromptFilter{Favorite: ptr(true)}, []string{"b"}},
		{"nothing", PromptFilter{Search: "zzz"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list := ListPrompts(all, tt.filter)
			var got []string
			for _, p := range list.Prompts {
				got = append(got, p.ID)
			}
			if !equalIDs(got, tt.want) {
				t.Errorf("ListPrompts() = %v, want %v", got, tt.want)
			}
			if list.Total != len(tt.want) {
				t.Errorf("Total = %d, want %d", list.Total, len(tt.want))
			}
			if !equalIDs(list.Categories, []string{"nature", DefaultCategory}) {
				t.Errorf("Categories = %v", list.Categories)
			}
			if !equalIDs(list.Tags, []string{"sky", "urban"}) {
				t.Errorf("Tags = %v", list.Tags)
			}
		})
	}
}

func TestPromptInputValidate(t *testing.T) {
	tests := []struct {
		name    string
		in      PromptInput
		wantErr bool
	}{
		{"ok", PromptInput{Title: "t", Content: "c"}, false},
		{"100 runes", PromptInput{Title: strings.Repeat("字", 100), Content: "c"}, false},
		{"101 runes", PromptInput{Title: strings.Repeat("字", 101), Content: "c"}, true},
		{"no title", PromptInput{Content: "c"}, true},
		{"no content", PromptInput{Title: "t"}, true},
		{"blank title", PromptInput{Title: "   ", Content: "c"}, true},
		{"tab title", PromptInput{Title: "\t\n", Content: "c"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.in.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if err := ValidatePromptPatch(PromptPatch{Favorite: ptr(true)}); err != nil {
		t.Errorf("ValidatePromptPatch(favorite) error = %v", err)
	}
	if err := ValidatePromptPatch(PromptPatch{Title: ptr("")}); err == nil {
		t.Error("ValidatePromptPatch(empty title) error = nil")
	}
	if err := ValidatePromptPatch(PromptPatch{Title: ptr("   ")}); err == nil {
		t.Error("ValidatePromptPatch(blank title) error = nil")
	}
	if err := ValidatePromptPatch(PromptPatch{Title: ptr(" T ")}); err != nil {
		t.Errorf("ValidatePromptPatch(padded title) error = %v", err)
	}
}

func TestNewPromptRecord(t *testing.T) {
	rec, err := NewPromptRecord(PromptInput{Title: " T ", Content: "c", Category: " ", Tags: []string{"x", " x ", ""}}, "id", 5)
	if err != nil {
		t.Fatalf("NewPromptRecord() error = %v", err)
	}
	if rec.Title != "T" || rec.Category != DefaultCategory || len(rec.Tags) != 1 || rec.CreatedAt != 5 || rec.UpdatedAt != 5 {
		t.Errorf("NewPromptRecord() = %+v", rec)
	}
}

func TestNewPromptRecord_BlankTitle(t *testing.T) {
	if rec, err := NewPromptRecord(PromptInput{Title: "   ", Content: "x"}, "id", 5); err == nil {
		t.Errorf("NewPromptRecord() = %+v, want error", rec)
	}
}

func TestCleanTags(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"nil", nil, []string{}},
		{"trims", []string{" cat ", "dog"}, []string{"cat", "dog"}},
		{"drops blank", []string{"", "  ", "cat"}, []string{"cat"}},
		{"drops repeats", []string{"cat", "dog", " cat", "dog"}, []string{"cat", "dog"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CleanTags(tt.in)
			if got == nil || strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("CleanTags(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestApplyPromptImport(t *testing.T) {
	existing := func() *PromptDocument {
		return &PromptDocument{Version: DocumentVersion, Prompts: []PromptRecord{prompt("a", "A", 1)}}
	}
	incoming := []PromptRecord{
		{ID: "a", Title: "dup"},
		{Title: "new", Content: "x"},
	}

	t.Run("merge", func(t *testing.T) {
		doc := existing()
		n := ApplyPromptImport(doc, incoming, true, &seqIDs{}, 77)
		if n != 1 {
			t.Errorf("ApplyPromptImport() = %d, want 1", n)
		}
		if len(doc.Prompts) != 2 || doc.Prompts[0].ID != "gen-1" || doc.Prompts[1].Title != "A" {
			t.Fatalf("Prompts = %+v", doc.Prompts)
		}
		p := doc.Prompts[0]
		if p.Category != DefaultCategory || p.Tags == nil || p.CreatedAt != 77 || p.UpdatedAt != 77 {
			t.Errorf("imported prompt = %+v, want defaults", p)
		}
	})

	t.Run("overwrite", func(t *testing.T) {
		doc := existing()
		n := ApplyPromptImport(doc, incoming, false, &seqIDs{}, 77)
		if n != 2 || len(doc.Prompts) != 2 || doc.Prompts[0].Title != "dup" {
			t.Errorf("ApplyPromptImport() = %d, Prompts = %+v", n, doc.Prompts)
		}
	})
}

func TestDecodePrompts(t *testing.T) {
	tests := []struct {
		name, format, input string
		want                []string
		wantErr             bool
	}{
		{"json array", FormatJSON, `[{"id":"a","title":"A"}]`, []string{"a"}, false},
		{"json envelope", FormatJSON, `{"version":"1.0","prompts":[{"id":"a"},{"id":"b"}]}`, []string{"a", "b"}, false},
		{"json rfc3339 time", FormatJSON, `[{"id":"a","created_at":"2024-01-15T10:30:00Z"}]`, []string{"a"}, false},
		{"yaml list", FormatYAML, "- id: a\n  title: A\n", []string{"a"}, false},
		{"yaml envelope", FormatYAML, "version: \"1.0\"\nprompts:\n  - id: a\n  - id: b\n", []string{"a", "b"}, false},
		{"yaml empty", FormatYAML, "", nil, false},
		{"bad json", FormatJSON, `{`, nil, true},
		{"unknown format", "xml", `<a/>`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodePrompts(strings.NewReader(tt.input), tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodePrompts() error = %v, wantErr %v", err, tt.wantErr)
			}
			var gotIDs []string
			for _, p := range got {
				gotIDs = append(gotIDs, p.ID)
			}
			if !equalIDs(gotIDs, tt.want) {
				t.Errorf("DecodePrompts() = %v, want %v", gotIDs, tt.want)
			}
		})
	}
}

func TestEncodePromptsRoundTrip(t *testing.T) {
	doc := &PromptDocument{Version: DocumentVersion, Prompts: []PromptRecord{prompt("a", "<b>日落</b>", 1705314600000)}}

	for _, format := range []string{FormatJSON, FormatYAML} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			if err := EncodePrompts(&buf, doc, format); err != nil {
				t.Fatalf("EncodePrompts() error = %v", err)
			}
			if format == FormatJSON && !strings.Contains(buf.String(), "<b>日落</b>") {
				t.Errorf("EncodePrompts() escaped the title: %s", buf.String())
			}
			got, err := DecodePrompts(&buf, format)
			if err != nil {
				t.Fatalf("DecodePrompts() error = %v", err)
			}
			if len(got) != 1 || got[0].Title != "<b>日落</b>" || got[0].UpdatedAt != 1705314600000 {
				t.Errorf("DecodePrompts() = %+v", got)
			}
		})
	}
}
