package database

import (
	"fmt"
	"os"
	"path/filepath"

	"gallery-go/internal/config"
	"gallery-go/internal/gallery"
)

// HandleStoreFile is the database file name inside data_dir.
const HandleStoreFile = "workspace.db"

// NewHandleStoreFromConfig creates a HandleStore based on the configured type.
func NewHandleStoreFromConfig(cfg config.HandleStoreConfig) (gallery.HandleStore, error) {
	switch cfg.Type {
	case "sqlite", "":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite handle store")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return NewSQLiteHandleStore(filepath.Join(cfg.DataDir, HandleStoreFile))
	case "memory":
		return NewMemoryHandleStore(), nil
	default:
		return nil, fmt.Errorf("unknown handle store type: %s", cfg.Type)
	}
}
