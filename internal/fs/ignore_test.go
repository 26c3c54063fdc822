package fs

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestNewIgnoreMatcher(t *testing.T) {
	t.Run("skips blank lines and comments", func(t *testing.T) {
		t.Parallel()
		m := NewIgnoreMatcher([]string{"", "  ", "# thumbnails", "*.part"})
		if len(m.patterns) != 1 {
			t.Fatalf("expected 1 pattern, got %d", len(m.patterns))
		}
		if m.patterns[0].pattern != "*.part" {
			t.Errorf("expected *.part, got %s", m.patterns[0].pattern)
		}
	})

	t.Run("classifies path vs basename patterns", func(t *testing.T) {
		t.Parallel()
		m := NewIgnoreMatcher([]string{"*.part", "drafts/*.png"})
		if m.patterns[0].matchPath {
			t.Error("*.part should not be a path pattern")
		}
		if !m.patterns[1].matchPath {
			t.Error("drafts/*.png should be a path pattern")
		}
	})
}

func TestIgnoreMatcher_Match(t *testing.T) {
	tests := []struct {
		name         string
		patterns     []string
		relativePath string
		want         bool
	}{
		{"basename glob", []string{"*.part"}, "cat.png.part", true},
		{"basename glob in subdirectory", []string{"*.part"}, "drafts/cat.part", true},
		{"different extension", []string{"*.part"}, "cat.png", false},
		{"hidden files", []string{".*"}, ".DS_Store", true},
		{"path pattern", []string{"drafts/*.png"}, "drafts/cat.png", true},
		{"path pattern wrong dir", []string{"drafts/*.png"}, "final/cat.png", false},
		{"question mark", []string{"?.png"}, "a.png", true},
		{"question mark is one char", []string{"?.png"}, "ab.png", false},
		{"malformed pattern never matches", []string{"[.png"}, "[.png", false},
		{"no patterns", nil, "cat.png", false},
		{"empty path", []string{"*"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewIgnoreMatcher(tt.patterns)
			if got := m.Match(tt.relativePath); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.relativePath, got, tt.want)
			}
		})
	}
}

func TestIgnoreMatcher_NilMatchesNothing(t *testing.T) {
	var m *IgnoreMatcher
	if m.Match("cat.png") {
		t.Error("nil matcher should match nothing")
	}
}

func TestParseIgnore(t *testing.T) {
	lines, err := ParseIgnore(strings.NewReader("*.part\n# comment\n\nthumbs/*\n"))
	if err != nil {
		t.Fatalf("ParseIgnore() error = %v", err)
	}
	if len(lines) != 4 {
		t.Fatalf("expected 4 raw lines, got %d", len(lines))
	}
	if m := NewIgnoreMatcher(lines); len(m.patterns) != 2 {
		t.Errorf("expected 2 parsed patterns, got %d", len(m.patterns))
	}
}

func TestReadIgnoreFile(t *testing.T) {
	t.Run("reads patterns", func(t *testing.T) {
		fsys := fstest.MapFS{IgnoreFileName: {Data: []byte("*.part\n")}}
		lines, err := ReadIgnoreFile(fsys)
		if err != nil {
			t.Fatalf("ReadIgnoreFile() error = %v", err)
		}
		if len(lines) != 1 || lines[0] != "*.part" {
			t.Errorf("ReadIgnoreFile() = %v, want [*.part]", lines)
		}
	})

	t.Run("missing file yields nothing", func(t *testing.T) {
		lines, err := ReadIgnoreFile(fstest.MapFS{})
		if err != nil {
			t.Fatalf("ReadIgnoreFile() error = %v", err)
		}
		if lines != nil {
			t.Errorf("ReadIgnoreFile() = %v, want nil", lines)
		}
	})
}
