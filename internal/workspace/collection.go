package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"strconv"
	"sync"
	"time"

	"gallery-go/internal/gallery"
)

// collection is one JSON metadata document holding an id-keyed record list.
// Every read-modify-write holds mu, so concurrent callers in one process
// never overwrite each other's changes. The document is always replaced whole.
type collection[D any, R any] struct {
	file    string
	mu      sync.Mutex
	newDoc  func() *D
	records func(*D) *[]R
	id      func(*R) string
}

// read returns the parsed document, or an empty one when the workspace is not
// ready, the file is missing or it cannot be parsed.
func (c *collection[D, R]) read(m *Manager) *D {
	root, err := m.readyRoot()
	if err != nil {
		return c.newDoc()
	}

	data, err := root.ReadFile(c.file)
	if err != nil {
		if !errors.Is(err, iofs.ErrNotExist) {
			m.logger.Warn("reading metadata failed", "file", c.file, "error", err)
		}
		return c.newDoc()
	}

	doc := c.newDoc()
	if err := json.Unmarshal(data, doc); err != nil {
		m.logger.Warn("metadata file is not valid JSON", "file", c.file, "error", err)
		return c.newDoc()
	}
	if recs := c.records(doc); *recs == nil {
		*recs = []R{}
	}
	return doc
}

// write replaces the document on disk.
func (c *collection[D, R]) write(m *Manager, doc *D) error {
	root, err := m.readyRoot()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", c.file, err)
	}
	return writeAtomic(root, c.file, data)
}

// modify runs fn on the current document under the collection lock and
// writes the result when fn reports a change.
func (c *collection[D, R]) modify(m *Manager, fn func(doc *D) (bool, error)) error {
	if _, err := m.readyRoot(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	doc := c.read(m)
	changed, err := fn(doc)
	if err != nil || !changed {
		return err
	}
	return c.write(m, doc)
}

func (c *collection[D, R]) replace(m *Manager, doc *D) error {
	if _, err := m.readyRoot(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.write(m, doc)
}

// prepend adds rec at the front, keeping the newest record first.
func (c *collection[D, R]) prepend(m *Manager, rec R) error {
	return c.modify(m, func(doc *D) (bool, error) {
		recs := c.records(doc)
		*recs = append([]R{rec}, *recs...)
		return true, nil
	})
}

// update applies fn to the record with id. Nothing is written when the id is unknown.
func (c *collection[D, R]) update(m *Manager, id string, fn func(*R)) (gallery.Outcome, error) {
	outcome := gallery.NotFound
	err := c.modify(m, func(doc *D) (bool, error) {
		recs := *c.records(doc)
		for i := range recs {
			if c.id(&recs[i]) == id {
				fn(&recs[i])
				outcome = gallery.Updated
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return gallery.Failed, err
	}
	return outcome, nil
}

// remove drops every record whose id is in ids and returns how many were dropped.
func (c *collection[D, R]) remove(m *Manager, ids ...string) (int, error) {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	removed := 0
	err := c.modify(m, func(doc *D) (bool, error) {
		recs := c.records(doc)
		kept := make([]R, 0, len(*recs))
		for i := range *recs {
			if drop[c.id(&(*recs)[i])] {
				removed++
				continue
			}
			kept = append(kept, (*recs)[i])
		}
		*recs = kept
		return removed > 0, nil
	})
	return removed, err
}

// appendNew adds the records whose id is not present yet, at the end.
func (c *collection[D, R]) appendNew(m *Manager, add []R) (int, error) {
	added := 0
	err := c.modify(m, func(doc *D) (bool, error) {
		recs := c.records(doc)
		seen := make(map[string]bool, len(*recs))
		for i := range *recs {
			seen[c.id(&(*recs)[i])] = true
		}
		for i := range add {
			id := c.id(&add[i])
			if seen[id] {
				continue
			}
			seen[id] = true
			*recs = append(*recs, add[i])
			added++
		}
		return added > 0, nil
	})
	return added, err
}

// writeAtomic writes data to a temp file inside root and renames it over name.
func writeAtomic(root *os.Root, name string, data []byte) error {
	tmp := "." + name + ".tmp-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	f, err := root.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	success := false
	defer func() {
		if !success {
			root.Remove(tmp)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := root.Rename(tmp, name); err != nil {
		return fmt.Errorf("replacing %s: %w", name, err)
	}

	success = true
	return nil
}

// ReadImages returns image_metadata.json. It never fails: when the workspace
// is not ready or the file is missing or corrupt, the document is empty.
func (m *Manager) ReadImages() *gallery.ImageDocument {
	return m.images.read(m)
}

// WriteImages replaces image_metadata.json.
func (m *Manager) WriteImages(doc *gallery.ImageDocument) error {
	return m.images.replace(m, doc)
}

// AddImage stores rec as the newest image.
func (m *Manager) AddImage(rec gallery.ImageRecord) error {
	return m.images.prepend(m, rec)
}

// UpdateImage shallow-merges patch into the image with id.
func (m *Manager) UpdateImage(id string, patch gallery.ImagePatch) (gallery.Outcome, error) {
	return m.images.update(m, id, func(r *gallery.ImageRecord) { patch.Apply(r) })
}

// RemoveImage drops the image record with id. The file is not touched.
func (m *Manager) RemoveImage(id string) (gallery.Outcome, error) {
	n, err := m.images.remove(m, id)
	return removeOutcome(n, err)
}

// RemoveImages drops every image record in ids and returns how many existed.
func (m *Manager) RemoveImages(ids []string) (int, error) {
	return m.images.remove(m, ids...)
}

// AppendImages adds records whose id is new at the end of the list.
func (m *Manager) AppendImages(recs []gallery.ImageRecord) (int, error) {
	return m.images.appendNew(m, recs)
}

// ModifyImages runs fn on the image document under the collection lock and
// writes it back when fn reports a change.
func (m *Manager) ModifyImages(fn func(doc *gallery.ImageDocument) (bool, error)) error {
	return m.images.modify(m, fn)
}

// ReadPrompts returns prompts.json with the same fallbacks as ReadImages.
func (m *Manager) ReadPrompts() *gallery.PromptDocument {
	return m.prompts.read(m)
}

// WritePrompts replaces prompts.json.
func (m *Manager) WritePrompts(doc *gallery.PromptDocument) error {
	return m.prompts.replace(m, doc)
}

// AddPrompt stores rec as the newest prompt.
func (m *Manager) AddPrompt(rec gallery.PromptRecord) error {
	return m.prompts.prepend(m, rec)
}

// UpdatePrompt shallow-merges patch into the prompt with id.
func (m *Manager) UpdatePrompt(id string, patch gallery.PromptPatch) (gallery.Outcome, error) {
	return m.prompts.update(m, id, func(r *gallery.PromptRecord) { patch.Apply(r) })
}

// RemovePrompt drops the prompt with id.
func (m *Manager) RemovePrompt(id string) (gallery.Outcome, error) {
	n, err := m.prompts.remove(m, id)
	return removeOutcome(n, err)
}

// RemovePrompts drops every prompt in ids and returns how many existed.
func (m *Manager) RemovePrompts(ids []string) (int, error) {
	return m.prompts.remove(m, ids...)
}

// ModifyPrompts is ModifyImages for prompts.json.
func (m *Manager) ModifyPrompts(fn func(doc *gallery.PromptDocument) (bool, error)) error {
	return m.prompts.modify(m, fn)
}

func removeOutcome(n int, err error) (gallery.Outcome, error) {
	switch {
	case err != nil:
		return gallery.Failed, err
	case n == 0:
		return gallery.NotFound, nil
	default:
		return gallery.Removed, nil
	}
}
