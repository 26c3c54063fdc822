package workspace

import (
	"bytes"
	"io"
	"sync"

	"github.com/google/uuid"
)

// ObjectURLs hands out revocable blob: references to in-memory image bytes.
// Whoever creates a URL revokes it once it is no longer displayed.
type ObjectURLs struct {
	mu      sync.Mutex
	entries map[string]blob
}

type blob struct {
	data        []byte
	contentType string
}

func NewObjectURLs() *ObjectURLs {
	return &ObjectURLs{entries: make(map[string]blob)}
}

// Create registers data and returns its URL.
func (o *ObjectURLs) Create(data []byte, contentType string) string {
	url := "blob:gallery/" + uuid.New().String()
	o.mu.Lock()
	o.entries[url] = blob{data: data, contentType: contentType}
	o.mu.Unlock()
	return url
}

// Open returns a reader over the bytes behind url.
func (o *ObjectURLs) Open(url string) (io.ReadSeeker, string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	b, ok := o.entries[url]
	if !ok {
		return nil, "", false
	}
	return bytes.NewReader(b.data), b.contentType, true
}

// Revoke releases url. Unknown or already revoked URLs are ignored.
func (o *ObjectURLs) Revoke(url string) {
	o.mu.Lock()
	delete(o.entries, url)
	o.mu.Unlock()
}

// Len returns the number of live URLs.
func (o *ObjectURLs) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.entries)
}
