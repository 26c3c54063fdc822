package gallery

import (
	"errors"

	"gallery-go/internal/quality"
)

// Sentinel errors shared by the workspace, the stores and the controllers.
// Callers use errors.Is to decide between a silent retry and a user prompt.
var (
	// ErrNotSupported means the platform cannot grant directory access at all.
	ErrNotSupported = errors.New("workspace not supported")

	// ErrNotReady means the operation needs a granted workspace directory.
	ErrNotReady = errors.New("workspace not ready")

	// ErrUserCancelled means the directory picker was dismissed.
	ErrUserCancelled = errors.New("directory selection cancelled")

	// ErrPermissionDenied means the user explicitly refused access.
	ErrPermissionDenied = errors.New("workspace permission denied")

	// ErrStore wraps failures of the directory-handle store.
	ErrStore = errors.New("handle store failure")

	// ErrDecode means image bytes could not be decoded.
	ErrDecode = quality.ErrDecode

	// ErrNetwork wraps transport failures and non-2xx responses from the remote API.
	ErrNetwork = errors.New("remote request failed")

	// ErrNotFound is returned by single-record lookups.
	ErrNotFound = errors.New("not found")

	// ErrUnsupportedOperation means the active store has no equivalent for the call.
	ErrUnsupportedOperation = errors.New("operation not supported by this store")
)

// NeedsUserGesture reports whether err can be resolved by asking the user
// to pick or re-authorize the workspace directory.
func NeedsUserGesture(err error) bool {
	return errors.Is(err, ErrNotReady) || errors.Is(err, ErrPermissionDenied)
}
