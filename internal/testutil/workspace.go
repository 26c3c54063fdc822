package testutil

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"gallery-go/internal/database"
	"gallery-go/internal/gallery"
	"gallery-go/internal/workspace"
)

// NewReadyManager returns a Manager in the Ready state on a fresh temp
// directory, backed by a memory handle store. The directory path is returned
// for direct file assertions.
func NewReadyManager(t *testing.T) (*workspace.Manager, string) {
	t.Helper()
	dir := t.TempDir()
	m := workspace.NewManager(database.NewMemoryHandleStore(), NewFakePlatform(dir), nil, nil)
	if _, err := m.Request(context.Background()); err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m, dir
}

// WriteJSON marshals v into dir/name.
func WriteJSON(t *testing.T, dir, name string, v any) {
	t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Fatalf("marshal %s: %v", name, err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

// ReadImageDocument parses dir/image_metadata.json.
func ReadImageDocument(t *testing.T, dir string) *gallery.ImageDocument {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, gallery.ImageMetadataFile))
	if err != nil {
		t.Fatalf("read image metadata: %v", err)
	}
	var doc gallery.ImageDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("parse image metadata: %v", err)
	}
	return &doc
}

// Image returns a minimal record for filename.
func Image(id, filename string, created gallery.Timestamp) gallery.ImageRecord {
	return gallery.ImageRecord{
		ID:          id,
		Filename:    filename,
		Prompt:      "prompt " + id,
		Model:       gallery.DefaultModel,
		AspectRatio: "1:1",
		CreatedAt:   created,
		Tags:        []string{},
	}
}
