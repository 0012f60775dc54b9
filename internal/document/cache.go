package document

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrNoDocument is returned when the tab has no document loaded.
	ErrNoDocument = errors.New("no document loaded")
	// ErrLoadSuperseded is returned by Load when a newer Load or a Clear for
	// the same key happened while the PDF was being read.
	ErrLoadSuperseded = errors.New("document load superseded")
)

type entry struct {
	doc    *Document
	viewer *Viewer
	used   time.Time
}

// Cache holds the one active document per tab key.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	// loading holds the generation of the in-flight Load per key.
	loading map[string]uint64
	gen     uint64
	now     func() time.Time
	extract func(name string, data []byte) (*Document, error)
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]*entry),
		loading: make(map[string]uint64),
		now:     time.Now,
		extract: Extract,
	}
}

// Load discards whatever key held, then extracts data. On failure nothing is
// left behind for key. A Load overtaken by a newer Load or a Clear of the
// same key stores nothing and returns ErrLoadSuperseded.
func (c *Cache) Load(key, name string, data []byte) (*Document, error) {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.loading[key] = gen
	delete(c.entries, key)
	c.mu.Unlock()

	doc, err := c.extract(name, data)

	c.mu.Lock()
	defer c.mu.Unlock()
	current := c.loading[key] == gen
	if current {
		delete(c.loading, key)
	}
	if err != nil {
		return nil, err
	}
	if !current {
		return nil, ErrLoadSuperseded
	}
	c.entries[key] = &entry{doc: doc, viewer: NewViewer(doc.NumPages()), used: c.now()}
	return doc, nil
}

// Clear drops the document of key and abandons any Load in flight for it. It
// reports whether a document was loaded.
func (c *Cache) Clear(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	delete(c.loading, key)
	return ok
}

// Get returns the document of key.
func (c *Cache) Get(key string) (*Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, ErrNoDocument
	}
	e.used = c.now()
	return e.doc, nil
}

// With runs fn with the document and viewer of key while holding the cache lock.
// Documents are immutable after load; fn may mutate the viewer.
func (c *Cache) With(key string, fn func(doc *Document, v *Viewer) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return ErrNoDocument
	}
	e.used = c.now()
	return fn(e.doc, e.viewer)
}

// Len returns the number of loaded documents.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Evict drops documents not touched for longer than ttl and returns their keys.
func (c *Cache) Evict(ttl time.Duration) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := c.now().Add(-ttl)
	var evicted []string
	for key, e := range c.entries {
		if e.used.Before(cutoff) {
			delete(c.entries, key)
			evicted = append(evicted, key)
		}
	}
	return evicted
}
