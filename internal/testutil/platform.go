package testutil

import (
	"context"
	"path/filepath"
	"sync"

	"gallery-go/internal/gallery"
	"gallery-go/internal/workspace"
)

// FakePlatform answers workspace prompts from its fields.
type FakePlatform struct {
	mu sync.Mutex

	// Reason is returned by Unsupported.
	Reason string
	// PickDir is returned by Pick; PickErr takes precedence.
	PickDir string
	PickErr error
	// Query is returned by QueryPermission, Grant by RequestPermission.
	Query workspace.Permission
	Grant workspace.Permission

	Picks    int
	Requests int
}

var _ workspace.Platform = (*FakePlatform)(nil)

// NewFakePlatform picks dir and grants every request.
func NewFakePlatform(dir string) *FakePlatform {
	return &FakePlatform{
		PickDir: dir,
		Query:   workspace.PermissionGranted,
		Grant:   workspace.PermissionGranted,
	}
}

func (p *FakePlatform) Unsupported() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Reason
}

func (p *FakePlatform) Pick(context.Context) (*gallery.DirectoryHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Picks++
	if p.PickErr != nil {
		return nil, p.PickErr
	}
	return &gallery.DirectoryHandle{Name: filepath.Base(p.PickDir), Path: p.PickDir}, nil
}

func (p *FakePlatform) QueryPermission(context.Context, *gallery.DirectoryHandle) workspace.Permission {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Query
}

func (p *FakePlatform) RequestPermission(context.Context, *gallery.DirectoryHandle) (workspace.Permission, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests++
	return p.Grant, nil
}

// Set updates the answers under the lock.
func (p *FakePlatform) Set(fn func(p *FakePlatform)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p)
}
