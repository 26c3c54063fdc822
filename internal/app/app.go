// Package app wires the configured stores, the workspace and the
// controllers together and exposes the operations the CLI runs.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/browser"

	"gallery-go/internal/config"
	"gallery-go/internal/database"
	"gallery-go/internal/encryption"
	"gallery-go/internal/gallery"
	"gallery-go/internal/quality"
	"gallery-go/internal/store"
	"gallery-go/internal/vault"
	"gallery-go/internal/workspace"
)

// openInViewer hands a file to the system viewer.
var openInViewer = browser.OpenFile

// Options replace the process-wide collaborators of an App.
type Options struct {
	// Platform answers workspace prompts. Defaults to a StaticPlatform when
	// workspace.path is configured, otherwise to the terminal.
	Platform workspace.Platform
	// Console receives warnings and errors. Defaults to os.Stderr.
	Console io.Writer
	Clock   gallery.Clock
}

// App is the application layer between the CLI and the gallery controllers.
// It constructs all dependencies from config and releases them on Close.
type App struct {
	cfg     *config.Config
	op      *Operation
	clock   gallery.Clock
	logger  gallery.Logger
	logFile *os.File

	handles   gallery.HandleStore
	ws        *workspace.Manager
	backend   store.Backend
	encryptor gallery.Encryptor
	backups   *gallery.BackupService

	images  *gallery.Controller
	prompts *gallery.PromptController
}

// NewApp creates a fully wired App from the given config. operation names
// the CLI command being run (e.g. "ListImages", "Migrate"). The caller must
// call Close when done.
func NewApp(ctx context.Context, cfg *config.Config, operation string) (*App, error) {
	return NewAppWithOptions(ctx, cfg, operation, Options{})
}

func NewAppWithOptions(ctx context.Context, cfg *config.Config, operation string, opts Options) (*App, error) {
	if opts.Clock == nil {
		opts.Clock = gallery.RealClock{}
	}
	if opts.Console == nil {
		opts.Console = os.Stderr
	}
	if opts.Platform == nil {
		opts.Platform = platformFor(cfg)
	}

	op := NewOperation(operation, opts.Clock.Now())
	sl, logFile, err := newLogger(cfg.LogDir, op.ID, ParseLevel(cfg.LogLevel), opts.Console)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: sl}

	a := &App{cfg: cfg, op: op, clock: opts.Clock, logger: logger, logFile: logFile}

	a.handles, err = database.NewHandleStoreFromConfig(cfg.HandleStore)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating handle store: %w", err)
	}

	a.ws = workspace.NewManager(a.handles, opts.Platform, logger, cfg.Workspace.Ignore)
	if err := a.restoreWorkspace(ctx); err != nil {
		a.release()
		return nil, err
	}

	a.backend, err = store.NewBackendFromConfig(cfg, a.ws, logger)
	if err != nil {
		a.release()
		return nil, fmt.Errorf("creating store: %w", err)
	}

	a.encryptor, err = encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		a.release()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	prefs := config.NewPreferencesFile(filepath.Join(cfg.BaseDir, config.PreferencesFileName))
	a.images = gallery.NewController(a.backend, prefs, quality.NewAnalyzer(quality.DefaultWeights), logger)
	a.prompts = gallery.NewPromptController(a.backend, logger)

	logger.Debug("operation started", "operation", operation, "mode", cfg.Mode)
	return a, nil
}

func platformFor(cfg *config.Config) workspace.Platform {
	if cfg.Workspace.Path != "" {
		return workspace.NewStaticPlatform(cfg.Workspace.Path)
	}
	return workspace.NewTerminalPlatform(os.Stdin, os.Stderr)
}

// restoreWorkspace reopens the persisted directory. A configured
// workspace.path is selected silently when nothing usable was restored.
func (a *App) restoreWorkspace(ctx context.Context) error {
	if _, err := a.ws.Init(ctx); err != nil {
		return err
	}
	if a.ws.State() == workspace.Ready || a.cfg.Workspace.Path == "" {
		return nil
	}
	if _, err := a.ws.Request(ctx); err != nil {
		a.logger.Warn("selecting configured workspace failed", "path", a.cfg.Workspace.Path, "error", err)
	}
	return nil
}

func (a *App) Config() *config.Config             { return a.cfg }
func (a *App) Operation() *Operation              { return a.op }
func (a *App) Logger() gallery.Logger             { return a.logger }
func (a *App) Workspace() *workspace.Manager      { return a.ws }
func (a *App) Store() store.Backend               { return a.backend }
func (a *App) Images() *gallery.Controller        { return a.images }
func (a *App) Prompts() *gallery.PromptController { return a.prompts }
func (a *App) Encryptor() gallery.Encryptor       { return a.encryptor }

// Fail records err as the outcome of the operation.
func (a *App) Fail(err error) {
	a.op.Fail(err)
}

// Local returns the workspace store, or false in remote mode.
func (a *App) Local() (*store.LocalStore, bool) {
	local, ok := a.backend.(*store.LocalStore)
	return local, ok
}

// Backups returns the backup service, creating the vault on first use.
// Backups are taken of the local workspace, so it must be ready.
func (a *App) Backups() (*gallery.BackupService, error) {
	if a.backups != nil {
		return a.backups, nil
	}
	if err := a.ws.CheckReady(); err != nil {
		return nil, err
	}

	v, err := vault.NewVaultFromConfig(a.cfg.Backup.Vault)
	if err != nil {
		return nil, fmt.Errorf("creating vault: %w", err)
	}

	var enc gallery.Encryptor
	if a.cfg.Backup.Encrypt {
		if !a.encryptor.IsConfigured() {
			return nil, fmt.Errorf("backup.encrypt is set but no keys exist; run 'gallery keys init'")
		}
		enc = a.encryptor
	}

	a.backups = gallery.NewBackupService(a.ws, v, enc, a.clock, a.logger, a.cfg.Backup.MaxBackups)
	return a.backups, nil
}

// autoBackup snapshots the workspace metadata before a bulk change. It
// never fails the caller.
func (a *App) autoBackup(reason string) {
	svc, err := a.Backups()
	if err != nil {
		a.logger.Warn("automatic backup skipped", "reason", reason, "error", err)
		return
	}
	if _, err := svc.Create(reason); err != nil {
		a.logger.Warn("automatic backup failed", "reason", reason, "error", err)
	}
}

// RestoreBackup restores a snapshot. passphrase is only needed for
// encrypted snapshots.
func (a *App) RestoreBackup(name, passphrase string) error {
	svc, err := a.Backups()
	if err != nil {
		return err
	}
	var dc gallery.DecryptionContext
	if info, ok := gallery.ParseBackupName(name); ok && info.Encrypted {
		if dc, err = a.encryptor.Unlock(passphrase); err != nil {
			return fmt.Errorf("unlocking private key: %w", err)
		}
	}
	return svc.Restore(name, dc)
}

// InitKeys generates the encryption key pair.
func (a *App) InitKeys(passphrase string) error {
	return a.encryptor.Setup(passphrase)
}

// AnalyzeRequest builds an analysis request. Explicit ids select those
// images; otherwise mode decides, falling back to analysis.mode from the
// config ("skip" leaves scored images alone).
func (a *App) AnalyzeRequest(ids []string, mode gallery.AnalyzeMode) gallery.AnalyzeRequest {
	req := gallery.AnalyzeRequest{Mode: mode, IDs: ids, MaxWorkers: a.cfg.Analysis.MaxWorkers}
	switch {
	case len(ids) > 0:
		req.Mode = gallery.AnalyzeSelected
	case mode != "":
	case a.cfg.Analysis.Mode == "skip":
		req.Mode = gallery.AnalyzeUnscored
	default:
		req.Mode = gallery.AnalyzeAll
	}
	return req
}

// ImportPrompts snapshots the workspace metadata in local mode, then
// imports a prompt library file.
func (a *App) ImportPrompts(ctx context.Context, r io.Reader, format string, merge bool) (int, error) {
	if _, ok := a.Local(); ok {
		a.autoBackup("before_import")
	}
	return a.prompts.Import(ctx, r, format, merge)
}

// CleanupMissing drops the records whose file is gone. Local mode only.
func (a *App) CleanupMissing(ctx context.Context) (int, error) {
	local, ok := a.Local()
	if !ok {
		return 0, gallery.ErrUnsupportedOperation
	}
	a.autoBackup("before_cleanup")
	return local.CleanupMissing(ctx)
}

// Migrate copies the server collection into the workspace.
func (a *App) Migrate(ctx context.Context, progress func(gallery.MigrateProgress)) (*gallery.MigrateProgress, error) {
	if a.cfg.Remote.BaseURL == "" {
		return nil, fmt.Errorf("remote.base_url is not configured")
	}
	if err := a.ws.CheckReady(); err != nil {
		return nil, err
	}
	a.autoBackup("before_migrate")

	timeout := time.Duration(a.cfg.Remote.TimeoutSeconds) * time.Second
	remote := store.NewRemoteStore(a.cfg.Remote.BaseURL, timeout, a.logger)
	return gallery.NewMigrator(remote, a.ws, a.logger).Run(ctx, progress)
}

// Export writes a zip of ids to w, age-encrypted when encrypt is set.
func (a *App) Export(ctx context.Context, ids []string, w io.Writer, encrypt bool) error {
	if !encrypt {
		return a.images.Export(ctx, ids, w)
	}
	if !a.encryptor.IsConfigured() {
		return fmt.Errorf("no encryption keys; run 'gallery keys init'")
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(a.images.Export(ctx, ids, pw))
	}()
	err := a.encryptor.Encrypt(pr, w)
	pr.CloseWithError(err)
	return err
}

// NewRandomPicker returns a picker over the active store.
func (a *App) NewRandomPicker(favoritesOnly bool) *gallery.RandomPicker {
	return gallery.NewRandomPicker(a.backend, gallery.DefaultRandomMinQuality, favoritesOnly, nil)
}

// ViewImage copies the image to a temp file and opens it in the system
// viewer. The file is left for the viewer; it lives in the temp directory.
func (a *App) ViewImage(ctx context.Context, id string) (string, error) {
	rec, err := a.images.Get(ctx, id)
	if err != nil {
		return "", err
	}
	r, err := a.openImage(ctx, rec)
	if err != nil {
		return "", err
	}
	defer r.Close()

	ext := strings.ToLower(filepath.Ext(rec.Filename))
	if ext == "" {
		ext = ".png"
	}
	f, err := os.CreateTemp("", "gallery-view-*"+ext)
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("copying image: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing temp file: %w", err)
	}

	if err := openInViewer(f.Name()); err != nil {
		return f.Name(), fmt.Errorf("opening viewer: %w", err)
	}
	a.logger.Debug("image opened", "id", id, "file", f.Name())
	return f.Name(), nil
}

// openImage reads a local image through an object URL, which is revoked
// once the bytes are consumed. Remote images are streamed.
func (a *App) openImage(ctx context.Context, rec *gallery.ImageRecord) (io.ReadCloser, error) {
	if _, ok := a.Local(); !ok {
		return a.backend.OpenImage(ctx, rec.ID)
	}
	url, ok := a.ws.ImageURL(rec.Filename)
	if !ok {
		if err := a.ws.CheckReady(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", gallery.ErrNotFound, rec.Filename)
	}
	urls := a.ws.URLs()
	r, _, ok := urls.Open(url)
	if !ok {
		return nil, fmt.Errorf("%w: %s", gallery.ErrNotFound, url)
	}
	return &revokingReader{Reader: r, revoke: func() { urls.Revoke(url) }}, nil
}

type revokingReader struct {
	io.Reader
	revoke func()
}

func (r *revokingReader) Close() error {
	r.revoke()
	return nil
}

// Close logs the outcome of the operation and releases every resource.
func (a *App) Close() error {
	if a.op.Failed() {
		a.logger.Error("operation failed", "operation", a.op.Name, "error", a.op.Err,
			"duration", a.op.Duration(a.clock.Now()))
	} else {
		a.logger.Info("operation finished", "operation", a.op.Name, "status", a.op.Status,
			"duration", a.op.Duration(a.clock.Now()))
	}
	return a.release()
}

func (a *App) release() error {
	var errs []error
	if a.ws != nil {
		errs = append(errs, a.ws.Close())
	}
	if a.handles != nil {
		if err := a.handles.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing handle store: %w", err))
		}
	}
	if a.logFile != nil {
		errs = append(errs, a.logFile.Close())
		a.logFile = nil
	}
	return errors.Join(errs...)
}
