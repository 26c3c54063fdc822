package gallery

import "io"

// Vault stores metadata backups by name. Names are flat; prefixes group
// backups of one document.
type Vault interface {
	// Put stores size bytes read from r under name, replacing any previous object.
	Put(name string, r io.Reader, size int64) error

	// Get writes the object stored under name to w. Returns an error
	// wrapping ErrNotFound if nothing is stored there.
	Get(name string, w io.Writer) error

	// List returns the names starting with prefix, sorted ascending.
	List(prefix string) ([]string, error)

	// Delete removes name. Deleting a missing object is not an error.
	Delete(name string) error

	// ValidateSetup verifies that the vault is reachable and configured.
	ValidateSetup() error
}
