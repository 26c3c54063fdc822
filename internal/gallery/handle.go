package gallery

// HandleKey is the singleton key the workspace directory is stored under.
const HandleKey = "workdir"

// DirectoryHandle identifies a directory the user granted access to.
type DirectoryHandle struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// HandleStore durably remembers the workspace directory across runs.
type HandleStore interface {
	// Save persists the handle under HandleKey, replacing any previous one.
	Save(h *DirectoryHandle) error

	// Load returns the persisted handle, or nil if none was saved.
	Load() (*DirectoryHandle, error)

	// Clear forgets the persisted handle. Clearing an empty store is not an error.
	Clear() error

	// Close releases the underlying storage.
	Close() error
}
