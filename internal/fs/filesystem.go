// Package fs discovers image files inside a workspace directory.
package fs

import (
	"fmt"
	iofs "io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

// FileEntry is a regular file found in the workspace root.
type FileEntry struct {
	Name    string
	Size    int64
	ModTime time.Time
}

var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

// ContentType returns the MIME type for an image file name, or
// application/octet-stream when the extension is not a known image type.
func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(path.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// IsImageFile reports whether name has a supported image extension.
func IsImageFile(name string) bool {
	_, ok := contentTypes[strings.ToLower(path.Ext(name))]
	return ok
}

// ListImageFiles returns the image files directly inside fsys, sorted by
// name. Subdirectories, non-regular files and ignored names are skipped.
func ListImageFiles(fsys iofs.FS, ignore *IgnoreMatcher) ([]FileEntry, error) {
	entries, err := iofs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}

	var files []FileEntry
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if !IsImageFile(name) || ignore.Match(name) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", name, err)
		}
		files = append(files, FileEntry{Name: name, Size: info.Size(), ModTime: info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}
