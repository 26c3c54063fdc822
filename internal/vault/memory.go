package vault

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"gallery-go/internal/gallery"
)

// MemoryVault keeps objects in a map. Safe for concurrent use.
type MemoryVault struct {
	name    string
	mu      sync.RWMutex
	objects map[string][]byte
}

var _ gallery.Vault = (*MemoryVault)(nil)

func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{name: name, objects: make(map[string][]byte)}
}

func (v *MemoryVault) Put(name string, r io.Reader, size int64) error {
	if err := validName(name); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	if err := checkSize(size, len(data)); err != nil {
		return err
	}

	v.mu.Lock()
	v.objects[name] = data
	v.mu.Unlock()
	return nil
}

func (v *MemoryVault) Get(name string, w io.Writer) error {
	v.mu.RLock()
	data, ok := v.objects[name]
	v.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", gallery.ErrNotFound, name)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

func (v *MemoryVault) List(prefix string) ([]string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	names := []string{}
	for name := range v.objects {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (v *MemoryVault) Delete(name string) error {
	v.mu.Lock()
	delete(v.objects, name)
	v.mu.Unlock()
	return nil
}

func (v *MemoryVault) ValidateSetup() error {
	return nil
}
