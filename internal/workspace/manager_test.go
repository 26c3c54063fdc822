package workspace_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gallery-go/internal/database"
	"gallery-go/internal/gallery"
	"gallery-go/internal/testutil"
	"gallery-go/internal/workspace"
)

func newManager(t *testing.T, store gallery.HandleStore, p workspace.Platform) *workspace.Manager {
	t.Helper()
	m := workspace.NewManager(store, p, nil, nil)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestManager_InitWithoutHandle(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, database.NewMemoryHandleStore(), testutil.NewFakePlatform(t.TempDir()))

	if m.State() != workspace.Uninitialized {
		t.Fatalf("State() = %v, want uninitialized", m.State())
	}
	h, err := m.Init(ctx)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if h != nil {
		t.Errorf("Init() = %+v, want nil", h)
	}
	if m.State() != workspace.NoHandle {
		t.Errorf("State() = %v, want no_handle", m.State())
	}
	if m.Handle() != nil {
		t.Error("Handle() should be nil before Ready")
	}
}

func TestManager_RequestPersistsHandle(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := database.NewMemoryHandleStore()
	platform := testutil.NewFakePlatform(dir)

	m := newManager(t, store, platform)
	if _, err := m.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	h, err := m.Request(ctx)
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if h.Path != dir {
		t.Errorf("Request().Path = %q, want %q", h.Path, dir)
	}
	if m.State() != workspace.Ready {
		t.Errorf("State() = %v, want ready", m.State())
	}

	// A new process restores the handle without the picker.
	m2 := newManager(t, store, platform)
	h2, err := m2.Init(ctx)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if h2 == nil || h2.Path != dir {
		t.Fatalf("Init() = %+v, want path %q", h2, dir)
	}
	if m2.State() != workspace.Ready {
		t.Errorf("State() = %v, want ready", m2.State())
	}
	if platform.Picks != 1 {
		t.Errorf("Picks = %d, want 1", platform.Picks)
	}
}

func TestManager_RequestCancelled(t *testing.T) {
	ctx := context.Background()
	platform := testutil.NewFakePlatform(t.TempDir())
	platform.PickErr = gallery.ErrUserCancelled
	store := database.NewMemoryHandleStore()
	m := newManager(t, store, platform)
	m.Init(ctx)

	_, err := m.Request(ctx)
	if !errors.Is(err, gallery.ErrUserCancelled) {
		t.Fatalf("Request() error = %v, want ErrUserCancelled", err)
	}
	if m.State() != workspace.NoHandle {
		t.Errorf("State() = %v, want no_handle", m.State())
	}
	if h, _ := store.Load(); h != nil {
		t.Errorf("store holds %+v after cancel", h)
	}
}

func TestManager_RequestUnsupported(t *testing.T) {
	platform := testutil.NewFakePlatform(t.TempDir())
	platform.Reason = "no terminal"
	m := newManager(t, database.NewMemoryHandleStore(), platform)

	if m.IsSupported() {
		t.Error("IsSupported() = true")
	}
	if m.UnsupportedReason() != "no terminal" {
		t.Errorf("UnsupportedReason() = %q", m.UnsupportedReason())
	}
	if _, err := m.Request(context.Background()); !errors.Is(err, gallery.ErrNotSupported) {
		t.Errorf("Request() error = %v, want ErrNotSupported", err)
	}
	err := m.WriteImages(gallery.NewImageDocument())
	if !errors.Is(err, gallery.ErrNotReady) || !strings.Contains(err.Error(), "no terminal") {
		t.Errorf("WriteImages() error = %v, want ErrNotReady naming the reason", err)
	}
}

func TestManager_UngrantedThenResume(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := database.NewMemoryHandleStore()
	store.Save(&gallery.DirectoryHandle{Name: filepath.Base(dir), Path: dir})

	platform := testutil.NewFakePlatform(dir)
	platform.Query = workspace.PermissionPrompt
	platform.Grant = workspace.PermissionDenied
	m := newManager(t, store, platform)

	h, err := m.Init(ctx)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if h == nil || h.Path != dir {
		t.Fatalf("Init() = %+v, want stored handle", h)
	}
	if m.State() != workspace.HandlePresentUngranted {
		t.Fatalf("State() = %v, want handle_present_ungranted", m.State())
	}
	if m.Handle() != nil {
		t.Error("Handle() should be nil while ungranted")
	}
	if err := m.AddImage(testutil.Image("a", "a.png", 1)); !errors.Is(err, gallery.ErrNotReady) {
		t.Errorf("AddImage() error = %v, want ErrNotReady", err)
	}

	if _, err := m.Resume(ctx); !errors.Is(err, gallery.ErrPermissionDenied) {
		t.Fatalf("Resume() error = %v, want ErrPermissionDenied", err)
	}
	if m.State() != workspace.HandlePresentUngranted {
		t.Errorf("State() = %v after denial", m.State())
	}

	platform.Set(func(p *testutil.FakePlatform) { p.Grant = workspace.PermissionGranted })
	if _, err := m.Resume(ctx); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if m.State() != workspace.Ready {
		t.Errorf("State() = %v, want ready", m.State())
	}
	if platform.Picks != 0 {
		t.Errorf("Resume used the picker %d times", platform.Picks)
	}
}

func TestManager_InitStoreFailure(t *testing.T) {
	store, err := database.NewSQLiteHandleStore(filepath.Join(t.TempDir(), "w.db"))
	if err != nil {
		t.Fatalf("NewSQLiteHandleStore() error = %v", err)
	}
	store.Close()

	m := newManager(t, store, testutil.NewFakePlatform(t.TempDir()))
	if _, err := m.Init(context.Background()); !errors.Is(err, gallery.ErrStore) {
		t.Errorf("Init() error = %v, want ErrStore", err)
	}
	if m.State() != workspace.NoHandle {
		t.Errorf("State() = %v, want no_handle", m.State())
	}
}

func TestManager_ClearKeepsFiles(t *testing.T) {
	m, dir := testutil.NewReadyManager(t)
	if err := m.AddImage(testutil.Image("a", "a.png", 1)); err != nil {
		t.Fatalf("AddImage() error = %v", err)
	}

	if err := m.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if m.State() != workspace.NoHandle {
		t.Errorf("State() = %v, want no_handle", m.State())
	}
	if m.StoredHandle() != nil {
		t.Error("StoredHandle() should be nil after Clear")
	}
	if _, err := os.Stat(filepath.Join(dir, gallery.ImageMetadataFile)); err != nil {
		t.Errorf("metadata file removed by Clear: %v", err)
	}
	if doc := m.ReadImages(); len(doc.Images) != 0 {
		t.Errorf("ReadImages() after Clear = %d images, want 0", len(doc.Images))
	}
}
