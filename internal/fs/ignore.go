package fs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"path"
	"strings"
)

// IgnoreFileName is read from the workspace root when present.
const IgnoreFileName = ".galleryignore"

type ignorePattern struct {
	pattern   string
	matchPath bool // match the slash-separated relative path instead of the basename
}

// IgnoreMatcher decides which workspace files a scan skips.
// Patterns without '/' match the basename; patterns with '/' match the
// path relative to the workspace root.
type IgnoreMatcher struct {
	patterns []ignorePattern
}

// NewIgnoreMatcher builds a matcher. Blank lines and '#' comments are skipped.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	m := &IgnoreMatcher{}
	m.Add(rawPatterns...)
	return m
}

// Add appends more patterns.
func (m *IgnoreMatcher) Add(rawPatterns ...string) {
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		m.patterns = append(m.patterns, ignorePattern{
			pattern:   raw,
			matchPath: strings.Contains(raw, "/"),
		})
	}
}

// Match reports whether the slash-separated relative path is ignored.
// Malformed patterns never match.
func (m *IgnoreMatcher) Match(relativePath string) bool {
	if m == nil || relativePath == "" {
		return false
	}
	base := path.Base(relativePath)
	for _, p := range m.patterns {
		subject := base
		if p.matchPath {
			subject = relativePath
		}
		if ok, err := path.Match(p.pattern, subject); err == nil && ok {
			return true
		}
	}
	return false
}

// ParseIgnore returns the raw lines of an ignore file.
func ParseIgnore(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return lines, nil
}

// ReadIgnoreFile reads IgnoreFileName from fsys. A missing file yields no patterns.
func ReadIgnoreFile(fsys iofs.FS) ([]string, error) {
	f, err := fsys.Open(IgnoreFileName)
	if errors.Is(err, iofs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()
	return ParseIgnore(f)
}
