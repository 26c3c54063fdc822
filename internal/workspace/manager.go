// Package workspace turns a user-granted directory into storage for image
// files and the two JSON metadata documents. The Manager owns the
// permission lifecycle; every other component goes through it.
package workspace

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gallery-go/internal/gallery"
)

// Manager is the single authority over the workspace directory. Construct one
// per application and inject it where needed.
type Manager struct {
	store    gallery.HandleStore
	platform Platform
	logger   gallery.Logger
	urls     *ObjectURLs
	ignore   []string

	mu     sync.RWMutex
	state  State
	stored *gallery.DirectoryHandle
	root   *os.Root

	images  *collection[gallery.ImageDocument, gallery.ImageRecord]
	prompts *collection[gallery.PromptDocument, gallery.PromptRecord]
}

// NewManager creates a Manager in the Uninitialized state. ignore holds extra
// scan ignore patterns on top of the workspace's .galleryignore.
func NewManager(store gallery.HandleStore, platform Platform, logger gallery.Logger, ignore []string) *Manager {
	if logger == nil {
		logger = gallery.NewNopLogger()
	}
	return &Manager{
		store:    store,
		platform: platform,
		logger:   logger,
		urls:     NewObjectURLs(),
		ignore:   ignore,
		images: &collection[gallery.ImageDocument, gallery.ImageRecord]{
			file:    gallery.ImageMetadataFile,
			newDoc:  gallery.NewImageDocument,
			records: func(d *gallery.ImageDocument) *[]gallery.ImageRecord { return &d.Images },
			id:      func(r *gallery.ImageRecord) string { return r.ID },
		},
		prompts: &collection[gallery.PromptDocument, gallery.PromptRecord]{
			file:    gallery.PromptMetadataFile,
			newDoc:  gallery.NewPromptDocument,
			records: func(d *gallery.PromptDocument) *[]gallery.PromptRecord { return &d.Prompts },
			id:      func(r *gallery.PromptRecord) string { return r.ID },
		},
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsSupported reports whether the platform can grant directory access.
func (m *Manager) IsSupported() bool {
	return m.platform.Unsupported() == ""
}

// UnsupportedReason explains why IsSupported is false, or returns "".
func (m *Manager) UnsupportedReason() string {
	return m.platform.Unsupported()
}

// URLs returns the object URL registry used by ImageURL.
func (m *Manager) URLs() *ObjectURLs {
	return m.urls
}

// Handle returns the granted directory, or nil unless the state is Ready.
func (m *Manager) Handle() *gallery.DirectoryHandle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != Ready {
		return nil
	}
	h := *m.stored
	return &h
}

// StoredHandle returns the persisted directory even when access is not granted.
func (m *Manager) StoredHandle() *gallery.DirectoryHandle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.stored == nil {
		return nil
	}
	h := *m.stored
	return &h
}

// Init restores the persisted directory. It returns the stored handle even
// when permission is not granted; callers check State or Handle to tell the
// difference. Calling Init again once Ready is a no-op.
func (m *Manager) Init(ctx context.Context) (*gallery.DirectoryHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Ready {
		h := *m.stored
		return &h, nil
	}

	if reason := m.platform.Unsupported(); reason != "" {
		m.logger.Debug("workspace unsupported", "reason", reason)
	}

	h, err := m.store.Load()
	if err != nil {
		m.state = NoHandle
		return nil, fmt.Errorf("restoring workspace: %w", err)
	}
	if h == nil {
		m.state = NoHandle
		return nil, nil
	}

	m.stored = h
	if m.platform.QueryPermission(ctx, h) == PermissionGranted {
		err := m.open(h)
		if err == nil {
			m.logger.Debug("workspace restored", "path", h.Path)
			out := *h
			return &out, nil
		}
		m.logger.Warn("opening workspace failed", "path", h.Path, "error", err)
	}

	m.state = HandlePresentUngranted
	out := *h
	return &out, nil
}

// Request lets the user choose a directory, persists it and moves to Ready.
// Dismissing the picker returns gallery.ErrUserCancelled and changes nothing.
func (m *Manager) Request(ctx context.Context) (*gallery.DirectoryHandle, error) {
	if reason := m.platform.Unsupported(); reason != "" {
		return nil, fmt.Errorf("%w: %s", gallery.ErrNotSupported, reason)
	}

	h, err := m.platform.Pick(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Save(h); err != nil {
		return nil, fmt.Errorf("saving workspace: %w", err)
	}
	if err := m.open(h); err != nil {
		return nil, err
	}
	m.logger.Info("workspace selected", "path", h.Path)

	out := *h
	return &out, nil
}

// Resume asks the user to grant access to the persisted directory again,
// without showing the picker. On denial the state stays
// HandlePresentUngranted and gallery.ErrPermissionDenied is returned.
func (m *Manager) Resume(ctx context.Context) (*gallery.DirectoryHandle, error) {
	if reason := m.platform.Unsupported(); reason != "" {
		return nil, fmt.Errorf("%w: %s", gallery.ErrNotSupported, reason)
	}

	h, err := m.store.Load()
	if err != nil {
		return nil, fmt.Errorf("restoring workspace: %w", err)
	}
	if h == nil {
		return nil, fmt.Errorf("%w: no workspace directory selected", gallery.ErrNotReady)
	}

	perm, err := m.platform.RequestPermission(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("requesting permission: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.stored = h
	if perm != PermissionGranted {
		m.state = HandlePresentUngranted
		return nil, fmt.Errorf("%w: %s", gallery.ErrPermissionDenied, h.Path)
	}
	if err := m.open(h); err != nil {
		m.state = HandlePresentUngranted
		return nil, err
	}
	m.logger.Info("workspace permission restored", "path", h.Path)

	out := *h
	return &out, nil
}

// Clear forgets the workspace directory. Directory contents are untouched.
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeRoot()
	m.stored = nil
	m.state = NoHandle
	if err := m.store.Clear(); err != nil {
		return fmt.Errorf("clearing workspace: %w", err)
	}
	m.logger.Info("workspace cleared")
	return nil
}

// Close releases the open directory. The persisted handle is kept.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeRoot()
	if m.state == Ready {
		m.state = HandlePresentUngranted
	}
	return nil
}

// open switches to Ready on h. Caller holds m.mu.
func (m *Manager) open(h *gallery.DirectoryHandle) error {
	root, err := os.OpenRoot(h.Path)
	if err != nil {
		return fmt.Errorf("opening workspace directory: %w", err)
	}
	m.closeRoot()
	m.root = root
	m.stored = h
	m.state = Ready
	return nil
}

func (m *Manager) closeRoot() {
	if m.root != nil {
		m.root.Close()
		m.root = nil
	}
}

// CheckReady returns nil when the workspace is Ready, or an error wrapping
// gallery.ErrNotReady that says what the user has to do.
func (m *Manager) CheckReady() error {
	_, err := m.readyRoot()
	return err
}

// readyRoot returns the open directory, or an ErrNotReady explaining why not.
func (m *Manager) readyRoot() (*os.Root, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == Ready {
		return m.root, nil
	}
	return nil, m.notReady()
}

func (m *Manager) notReady() error {
	if reason := m.platform.Unsupported(); reason != "" && m.state != HandlePresentUngranted {
		return fmt.Errorf("%w: %s", gallery.ErrNotReady, reason)
	}
	switch m.state {
	case Uninitialized:
		return fmt.Errorf("%w: workspace not initialized", gallery.ErrNotReady)
	case HandlePresentUngranted:
		return fmt.Errorf("%w: access to %s must be granted again", gallery.ErrNotReady, m.stored.Path)
	default:
		return fmt.Errorf("%w: no workspace directory selected", gallery.ErrNotReady)
	}
}
