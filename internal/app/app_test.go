package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gallery-go/internal/config"
	"gallery-go/internal/gallery"
	"gallery-go/internal/testutil"
	"gallery-go/internal/workspace"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.NewConfig(base)
	cfg.HandleStore = config.HandleStoreConfig{Type: "memory"}
	cfg.Backup.Vault = config.VaultConfig{Type: "memory", Name: "test"}
	cfg.Encryption = config.EncryptionConfig{Type: "test"}
	cfg.Workspace.Path = t.TempDir()
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, opts Options) (*App, *bytes.Buffer) {
	t.Helper()
	var console bytes.Buffer
	opts.Console = &console
	if opts.Clock == nil {
		opts.Clock = testutil.FixedClock()
	}
	a, err := NewAppWithOptions(context.Background(), cfg, "Test", opts)
	if err != nil {
		t.Fatalf("NewAppWithOptions() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a, &console
}

func TestNewApp_ConfiguredWorkspace(t *testing.T) {
	cfg := testConfig(t)
	a, err := NewAppWithOptions(context.Background(), cfg, "Test", Options{
		Console: &bytes.Buffer{},
		Clock:   testutil.FixedClock(),
	})
	if err != nil {
		t.Fatalf("NewAppWithOptions() error = %v", err)
	}

	if got := a.Workspace().State(); got != workspace.Ready {
		t.Fatalf("State() = %v, want Ready", got)
	}
	if _, ok := a.Local(); !ok {
		t.Error("Local() ok = false in local mode")
	}

	page, err := a.Images().Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if page.Total != 0 {
		t.Errorf("Total = %d, want 0", page.Total)
	}

	a.Fail(errors.New("boom"))
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(cfg.LogDir, LogFileName))
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if !strings.Contains(string(data), "operation failed\toperation=Test\terror=boom") {
		t.Errorf("log = %q", data)
	}
}

func TestNewApp_UngrantedWorkspace(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workspace.Path = ""
	platform := testutil.NewFakePlatform(t.TempDir())
	a, _ := newTestApp(t, cfg, Options{Platform: platform})

	if got := a.Workspace().State(); got != workspace.NoHandle {
		t.Fatalf("State() = %v, want NoHandle", got)
	}
	if _, err := a.Backups(); !errors.Is(err, gallery.ErrNotReady) {
		t.Errorf("Backups() error = %v, want ErrNotReady", err)
	}
	if _, err := a.Migrate(context.Background(), nil); !errors.Is(err, gallery.ErrNotReady) {
		t.Errorf("Migrate() error = %v, want ErrNotReady", err)
	}
	if platform.Picks != 0 {
		t.Errorf("Picks = %d, want no prompt at startup", platform.Picks)
	}
}

func TestNewApp_RemoteMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mode = config.ModeRemote
	a, _ := newTestApp(t, cfg, Options{})

	if _, ok := a.Local(); ok {
		t.Error("Local() ok = true in remote mode")
	}
	if _, err := a.CleanupMissing(context.Background()); !errors.Is(err, gallery.ErrUnsupportedOperation) {
		t.Errorf("CleanupMissing() error = %v, want ErrUnsupportedOperation", err)
	}
}

func TestNewApp_BadConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mode = "sideways"
	if _, err := NewAppWithOptions(context.Background(), cfg, "Test", Options{Console: &bytes.Buffer{}}); err == nil {
		t.Error("NewAppWithOptions() with an unknown mode: error = nil")
	}
}

func TestApp_AnalyzeRequest(t *testing.T) {
	tests := []struct {
		name       string
		configMode string
		ids        []string
		mode       gallery.AnalyzeMode
		want       gallery.AnalyzeMode
	}{
		{"ids select", "all", []string{"a"}, gallery.AnalyzeAll, gallery.AnalyzeSelected},
		{"explicit mode", "skip", nil, gallery.AnalyzeAll, gallery.AnalyzeAll},
		{"config all", "all", nil, "", gallery.AnalyzeAll},
		{"config skip", "skip", nil, "", gallery.AnalyzeUnscored},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Analysis.Mode = tt.configMode
			cfg.Analysis.MaxWorkers = 3
			a, _ := newTestApp(t, cfg, Options{})

			req := a.AnalyzeRequest(tt.ids, tt.mode)
			if req.Mode != tt.want {
				t.Errorf("Mode = %q, want %q", req.Mode, tt.want)
			}
			if req.MaxWorkers != 3 {
				t.Errorf("MaxWorkers = %d, want 3", req.MaxWorkers)
			}
		})
	}
}

func TestApp_ImportPromptsTakesBackup(t *testing.T) {
	a, _ := newTestApp(t, testConfig(t), Options{})
	ctx := context.Background()

	if _, err := a.Prompts().Create(ctx, gallery.PromptInput{Title: "Old", Content: "old"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	n, err := a.ImportPrompts(ctx, strings.NewReader("- title: New\n  content: new\n"), gallery.FormatYAML, true)
	if err != nil {
		t.Fatalf("ImportPrompts() error = %v", err)
	}
	if n != 1 {
		t.Errorf("ImportPrompts() = %d, want 1", n)
	}

	svc, err := a.Backups()
	if err != nil {
		t.Fatalf("Backups() error = %v", err)
	}
	list, err := svc.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || list[0].Reason != "before_import" {
		t.Fatalf("List() = %+v, want the before_import pair", list)
	}
	var promptsBackup string
	for _, info := range list {
		if info.Document == gallery.BackupPrompts {
			promptsBackup = info.Name
		}
	}

	if err := a.RestoreBackup(promptsBackup, ""); err != nil {
		t.Fatalf("RestoreBackup() error = %v", err)
	}
	got, err := a.Prompts().Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if got.Total != 1 || got.Prompts[0].Title != "Old" {
		t.Errorf("prompts after restore = %+v", got.Prompts)
	}
}

func TestApp_EncryptedBackups(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backup.Encrypt = true
	a, _ := newTestApp(t, cfg, Options{})

	if err := a.InitKeys("hunter2"); err != nil {
		t.Fatalf("InitKeys() error = %v", err)
	}
	svc, err := a.Backups()
	if err != nil {
		t.Fatalf("Backups() error = %v", err)
	}
	created, err := svc.Create("manual")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !created[0].Encrypted {
		t.Fatalf("Create() = %+v, want encrypted", created[0])
	}

	if err := a.RestoreBackup(created[0].Name, "wrong"); err == nil {
		t.Error("RestoreBackup() with a wrong passphrase: error = nil")
	}
	if err := a.RestoreBackup(created[0].Name, "hunter2"); err != nil {
		t.Errorf("RestoreBackup() error = %v", err)
	}
}

func seedImage(t *testing.T, a *App, id, filename string, data []byte) {
	t.Helper()
	if err := a.Workspace().SaveImageBytes(filename, data); err != nil {
		t.Fatalf("SaveImageBytes() error = %v", err)
	}
	if err := a.Workspace().AddImage(testutil.Image(id, filename, 1000)); err != nil {
		t.Fatalf("AddImage() error = %v", err)
	}
}

func TestApp_ExportEncrypted(t *testing.T) {
	a, _ := newTestApp(t, testConfig(t), Options{})
	seedImage(t, a, "a", "a.png", []byte("png bytes"))
	ctx := context.Background()

	var plain, sealed bytes.Buffer
	if err := a.Export(ctx, []string{"a"}, &plain, false); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if !bytes.HasPrefix(plain.Bytes(), []byte("PK")) {
		t.Errorf("plain export is not a zip archive")
	}

	if err := a.Export(ctx, []string{"a"}, &sealed, true); err != nil {
		t.Fatalf("Export(encrypt) error = %v", err)
	}
	if !bytes.HasPrefix(sealed.Bytes(), []byte("GALTEST1PK")) {
		t.Errorf("encrypted export does not wrap the archive: %q", sealed.Bytes()[:10])
	}

	if err := a.Export(ctx, nil, &sealed, true); !errors.Is(err, gallery.ErrNothingSelected) {
		t.Errorf("Export(nothing selected) error = %v, want ErrNothingSelected", err)
	}
}

func TestApp_ViewImage(t *testing.T) {
	var opened string
	orig := openInViewer
	openInViewer = func(path string) error {
		opened = path
		return nil
	}
	t.Cleanup(func() { openInViewer = orig })

	a, _ := newTestApp(t, testConfig(t), Options{})
	seedImage(t, a, "a", "Cat.PNG", []byte("png bytes"))
	ctx := context.Background()

	path, err := a.ViewImage(ctx, "a")
	if err != nil {
		t.Fatalf("ViewImage() error = %v", err)
	}
	t.Cleanup(func() { os.Remove(path) })

	if opened != path || filepath.Ext(path) != ".png" {
		t.Errorf("opened %q, returned %q", opened, path)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "png bytes" {
		t.Errorf("viewer file = %q, %v", data, err)
	}
	if n := a.Workspace().URLs().Len(); n != 0 {
		t.Errorf("URLs().Len() = %d, want the object URL revoked", n)
	}

	if _, err := a.ViewImage(ctx, "missing"); !errors.Is(err, gallery.ErrNotFound) {
		t.Errorf("ViewImage(missing) error = %v, want ErrNotFound", err)
	}
}

func TestApp_RandomPicker(t *testing.T) {
	a, _ := newTestApp(t, testConfig(t), Options{})
	seedImage(t, a, "a", "a.png", []byte("png bytes"))

	rec, err := a.NewRandomPicker(false).Next(context.Background())
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if rec.ID != "a" {
		t.Errorf("Next() = %q, want a", rec.ID)
	}
}
