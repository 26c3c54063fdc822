package vault

import (
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gallery-go/internal/gallery"
)

// FileSystemVault stores every object as a file directly under root.
type FileSystemVault struct {
	name string
	root string
}

var _ gallery.Vault = (*FileSystemVault)(nil)

// NewFileSystemVault creates root if needed.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating vault directory: %w", err)
	}
	return &FileSystemVault{name: name, root: root}, nil
}

// Put writes through a temp file and renames it into place, so a failed
// write never leaves a truncated backup.
func (v *FileSystemVault) Put(name string, r io.Reader, size int64) error {
	if err := validName(name); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(v.root, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if written != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}
	if err := os.Rename(tmpPath, filepath.Join(v.root, name)); err != nil {
		return fmt.Errorf("storing %s: %w", name, err)
	}

	success = true
	return nil
}

func (v *FileSystemVault) Get(name string, w io.Writer) error {
	if err := validName(name); err != nil {
		return err
	}
	f, err := os.Open(filepath.Join(v.root, name))
	if errors.Is(err, iofs.ErrNotExist) {
		return fmt.Errorf("%w: %s", gallery.ErrNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("opening %s: %w", name, err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	return nil
}

func (v *FileSystemVault) List(prefix string) ([]string, error) {
	entries, err := os.ReadDir(v.root)
	if err != nil {
		return nil, fmt.Errorf("listing vault: %w", err)
	}
	names := []string{}
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".tmp-") {
			continue
		}
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (v *FileSystemVault) Delete(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(v.root, name))
	if err != nil && !errors.Is(err, iofs.ErrNotExist) {
		return fmt.Errorf("deleting %s: %w", name, err)
	}
	return nil
}

// ValidateSetup checks that root is a writable directory.
func (v *FileSystemVault) ValidateSetup() error {
	info, err := os.Stat(v.root)
	if err != nil {
		return fmt.Errorf("vault root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vault root is not a directory: %s", v.root)
	}
	tmp, err := os.CreateTemp(v.root, ".tmp-*")
	if err != nil {
		return fmt.Errorf("vault root not writable: %w", err)
	}
	tmp.Close()
	return os.Remove(tmp.Name())
}
