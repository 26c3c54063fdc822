package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gallery-go/internal/database/migrations"
	"gallery-go/internal/gallery"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteHandleStore keeps the workspace handle in a single-table SQLite database.
type SQLiteHandleStore struct {
	db   *sql.DB
	path string
}

var _ gallery.HandleStore = (*SQLiteHandleStore)(nil)

// NewSQLiteHandleStore opens the database at path (or ":memory:") and migrates
// it to the latest schema.
func NewSQLiteHandleStore(path string) (*SQLiteHandleStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gallery.ErrStore, err)
	}

	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", gallery.ErrStore, err)
	}

	return &SQLiteHandleStore{db: db, path: path}, nil
}

// OpenConnection opens a SQLite connection. An in-memory database is pinned
// to one connection so every query sees the same data.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configuring database: %w", err)
	}
	return db, nil
}

// CheckMigrations reports whether the schema is current.
func (s *SQLiteHandleStore) CheckMigrations() error {
	return migrations.CheckStatus(s.db)
}

// Save writes h under the workdir key, replacing any previous value.
func (s *SQLiteHandleStore) Save(h *gallery.DirectoryHandle) error {
	if h == nil {
		return fmt.Errorf("%w: nil handle", gallery.ErrStore)
	}
	value, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("%w: encoding handle: %v", gallery.ErrStore, err)
	}

	_, err = s.db.Exec(`
		INSERT INTO handles (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		gallery.HandleKey, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("%w: saving handle: %v", gallery.ErrStore, err)
	}
	return nil
}

// Load returns the stored handle, or nil if there is none.
func (s *SQLiteHandleStore) Load() (*gallery.DirectoryHandle, error) {
	var value []byte
	err := s.db.QueryRow("SELECT value FROM handles WHERE key = ?", gallery.HandleKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: loading handle: %v", gallery.ErrStore, err)
	}

	var h gallery.DirectoryHandle
	if err := json.Unmarshal(value, &h); err != nil {
		return nil, fmt.Errorf("%w: decoding handle: %v", gallery.ErrStore, err)
	}
	return &h, nil
}

// Clear deletes the stored handle.
func (s *SQLiteHandleStore) Clear() error {
	if _, err := s.db.Exec("DELETE FROM handles WHERE key = ?", gallery.HandleKey); err != nil {
		return fmt.Errorf("%w: clearing handle: %v", gallery.ErrStore, err)
	}
	return nil
}

// Path returns the database location.
func (s *SQLiteHandleStore) Path() string {
	return s.path
}

func (s *SQLiteHandleStore) Close() error {
	return s.db.Close()
}
