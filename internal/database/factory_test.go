package database

import (
	"os"
	"path/filepath"
	"testing"

	"gallery-go/internal/config"
)

func TestNewHandleStoreFromConfig(t *testing.T) {
	t.Run("memory store", func(t *testing.T) {
		got, err := NewHandleStoreFromConfig(config.HandleStoreConfig{Type: "memory"})
		if err != nil {
			t.Fatalf("NewHandleStoreFromConfig() error = %v", err)
		}
		if _, ok := got.(*MemoryHandleStore); !ok {
			t.Errorf("NewHandleStoreFromConfig() = %T, want *MemoryHandleStore", got)
		}
	})

	t.Run("sqlite store creates its file", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "data")
		got, err := NewHandleStoreFromConfig(config.HandleStoreConfig{Type: "sqlite", DataDir: dir})
		if err != nil {
			t.Fatalf("NewHandleStoreFromConfig() error = %v", err)
		}
		defer got.Close()

		if _, err := os.Stat(filepath.Join(dir, HandleStoreFile)); err != nil {
			t.Errorf("database file not created: %v", err)
		}
	})

	t.Run("sqlite store without data_dir", func(t *testing.T) {
		got, err := NewHandleStoreFromConfig(config.HandleStoreConfig{Type: "sqlite"})
		if err == nil {
			t.Error("NewHandleStoreFromConfig() expected error for missing data_dir")
		}
		if got != nil {
			t.Error("NewHandleStoreFromConfig() should return nil on error")
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := NewHandleStoreFromConfig(config.HandleStoreConfig{Type: "indexeddb"})
		if err == nil {
			t.Error("NewHandleStoreFromConfig() expected error for unknown type")
		}
	})
}
