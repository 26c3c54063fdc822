package store

import (
	"fmt"
	"time"

	"gallery-go/internal/config"
	"gallery-go/internal/gallery"
	"gallery-go/internal/workspace"
)

// Backend is a store serving both the gallery and the prompt library.
type Backend interface {
	gallery.ImageStore
	gallery.PromptStore
}

// NewBackendFromConfig creates the store selected by cfg.Mode. ws is only
// used in local mode.
func NewBackendFromConfig(cfg *config.Config, ws *workspace.Manager, logger gallery.Logger) (Backend, error) {
	switch cfg.Mode {
	case config.ModeLocal, "":
		if ws == nil {
			return nil, fmt.Errorf("local mode needs a workspace")
		}
		return NewLocalStore(ws, gallery.RealClock{}, gallery.UUIDGenerator{}, logger), nil
	case config.ModeRemote:
		if cfg.Remote.BaseURL == "" {
			return nil, fmt.Errorf("remote mode needs remote.base_url")
		}
		timeout := time.Duration(cfg.Remote.TimeoutSeconds) * time.Second
		return NewRemoteStore(cfg.Remote.BaseURL, timeout, logger), nil
	default:
		return nil, fmt.Errorf("unknown mode: %q", cfg.Mode)
	}
}
