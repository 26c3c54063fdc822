package database

import (
	"sync"

	"gallery-go/internal/gallery"
)

// MemoryHandleStore keeps the handle in process memory. Use in tests.
type MemoryHandleStore struct {
	mu     sync.Mutex
	handle *gallery.DirectoryHandle

	// SaveErr, when set, is returned by Save.
	SaveErr error
}

var _ gallery.HandleStore = (*MemoryHandleStore)(nil)

func NewMemoryHandleStore() *MemoryHandleStore {
	return &MemoryHandleStore{}
}

func (s *MemoryHandleStore) Save(h *gallery.DirectoryHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	c := *h
	s.handle = &c
	return nil
}

func (s *MemoryHandleStore) Load() (*gallery.DirectoryHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return nil, nil
	}
	c := *s.handle
	return &c, nil
}

func (s *MemoryHandleStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handle = nil
	return nil
}

func (s *MemoryHandleStore) Close() error { return nil }
