package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"gallery-go/internal/gallery"
)

// PreferencesFileName is stored next to the other data under base_dir.
const PreferencesFileName = "preferences.toml"

type preferences struct {
	PageSize int    `toml:"page_size"`
	ViewMode string `toml:"view_mode"`
}

// PreferencesFile persists gallery.Preferences as TOML.
type PreferencesFile struct {
	path string
}

var _ gallery.PreferenceStore = (*PreferencesFile)(nil)

func NewPreferencesFile(path string) *PreferencesFile {
	return &PreferencesFile{path: path}
}

// Load returns the stored preferences. A missing file yields the defaults;
// unset or invalid fields fall back individually.
func (p *PreferencesFile) Load() (gallery.Preferences, error) {
	out := gallery.DefaultPreferences()

	var stored preferences
	_, err := toml.DecodeFile(p.path, &stored)
	if errors.Is(err, fs.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("reading preferences: %w", err)
	}

	if stored.PageSize > 0 && stored.PageSize <= gallery.MaxPageSize {
		out.PageSize = stored.PageSize
	}
	if stored.ViewMode == gallery.ViewGrid || stored.ViewMode == gallery.ViewList {
		out.ViewMode = stored.ViewMode
	}
	return out, nil
}

// Save writes the preferences file.
func (p *PreferencesFile) Save(prefs gallery.Preferences) error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0755); err != nil {
		return fmt.Errorf("creating preferences directory: %w", err)
	}
	f, err := os.Create(p.path)
	if err != nil {
		return fmt.Errorf("creating preferences file: %w", err)
	}
	defer f.Close()

	stored := preferences{PageSize: prefs.PageSize, ViewMode: prefs.ViewMode}
	if err := toml.NewEncoder(f).Encode(stored); err != nil {
		return fmt.Errorf("writing preferences: %w", err)
	}
	return nil
}
