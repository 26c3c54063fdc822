package workspace

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"path"
	"strings"

	"gallery-go/internal/fs"
	"gallery-go/internal/gallery"
)

// ErrInvalidFilename is returned for names that are not a plain file inside
// the workspace root or that would clobber a metadata file.
var ErrInvalidFilename = errors.New("invalid image filename")

func validName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || path.Base(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	switch name {
	case gallery.ImageMetadataFile, gallery.PromptMetadataFile, fs.IgnoreFileName:
		return fmt.Errorf("%w: %q is reserved", ErrInvalidFilename, name)
	}
	return nil
}

// SaveImage decodes base64 image data, with or without a data: URL prefix,
// and writes it as filename, replacing any existing file.
func (m *Manager) SaveImage(data, filename string) error {
	if i := strings.IndexByte(data, ','); i >= 0 {
		data = data[i+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(data))
	if err != nil {
		return fmt.Errorf("decoding image data: %w", err)
	}
	return m.SaveImageBytes(filename, raw)
}

// SaveImageBytes writes raw image bytes as filename.
func (m *Manager) SaveImageBytes(filename string, data []byte) error {
	root, err := m.readyRoot()
	if err != nil {
		return err
	}
	if err := validName(filename); err != nil {
		return err
	}
	if err := writeAtomic(root, filename, data); err != nil {
		return fmt.Errorf("saving image: %w", err)
	}
	return nil
}

// ImageURL registers the current bytes of filename and returns a blob: URL.
// ok is false when the workspace is not ready or the file cannot be read.
// The caller revokes the URL through URLs().
func (m *Manager) ImageURL(filename string) (string, bool) {
	root, err := m.readyRoot()
	if err != nil || validName(filename) != nil {
		return "", false
	}
	data, err := root.ReadFile(filename)
	if err != nil {
		return "", false
	}
	return m.urls.Create(data, fs.ContentType(filename)), true
}

// OpenImage opens filename for reading. A missing file wraps gallery.ErrNotFound.
func (m *Manager) OpenImage(filename string) (io.ReadCloser, error) {
	root, err := m.readyRoot()
	if err != nil {
		return nil, err
	}
	if err := validName(filename); err != nil {
		return nil, err
	}
	f, err := root.Open(filename)
	if errors.Is(err, iofs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", gallery.ErrNotFound, filename)
	}
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}
	return f, nil
}

// FileExists reports whether filename is present. It never fails.
func (m *Manager) FileExists(filename string) bool {
	root, err := m.readyRoot()
	if err != nil || validName(filename) != nil {
		return false
	}
	info, err := root.Stat(filename)
	return err == nil && info.Mode().IsRegular()
}

// DeleteImage removes filename. Failures other than a missing file are
// logged and reported as gallery.Failed.
func (m *Manager) DeleteImage(filename string) gallery.Outcome {
	root, err := m.readyRoot()
	if err != nil {
		m.logger.Warn("deleting image failed", "file", filename, "error", err)
		return gallery.Failed
	}
	if err := validName(filename); err != nil {
		m.logger.Warn("deleting image failed", "file", filename, "error", err)
		return gallery.Failed
	}
	err = root.Remove(filename)
	switch {
	case err == nil:
		return gallery.Removed
	case errors.Is(err, iofs.ErrNotExist):
		return gallery.NotFound
	default:
		m.logger.Warn("deleting image failed", "file", filename, "error", err)
		return gallery.Failed
	}
}

// ListFiles returns the image files in the workspace root, skipping names
// matched by the configured patterns or the workspace's .galleryignore.
func (m *Manager) ListFiles() ([]fs.FileEntry, error) {
	root, err := m.readyRoot()
	if err != nil {
		return nil, err
	}
	fsys := root.FS()

	ignore := fs.NewIgnoreMatcher(m.ignore)
	extra, err := fs.ReadIgnoreFile(fsys)
	if err != nil {
		m.logger.Warn("reading ignore file failed", "error", err)
	}
	ignore.Add(extra...)

	return fs.ListImageFiles(fsys, ignore)
}
