// Package icon renders map marker icons and caches them by source URL.
package icon

import "sync"

// Icon is a rendered marker image ready to embed in a map widget.
type Icon struct {
	// DataURI is the embeddable representation (data:image/...;base64,...).
	DataURI     string `json:"data_uri"`
	Source      string `json:"source,omitempty"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Placeholder bool   `json:"placeholder,omitempty"`
}

// Cache maps source URLs to rendered icons. It holds at most one entry per URL
// and never evicts, so its size grows with the number of distinct sources seen.
type Cache struct {
	mu    sync.RWMutex
	items map[string]*Icon
}

// NewCache creates an empty icon cache.
func NewCache() *Cache {
	return &Cache{items: make(map[string]*Icon)}
}

// Get returns the cached icon for url.
func (c *Cache) Get(url string) (*Icon, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ic, ok := c.items[url]
	return ic, ok
}

// Put stores ic under url unless an entry already exists, and returns the stored icon.
func (c *Cache) Put(url string, ic *Icon) *Icon {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.items[url]; ok {
		return existing
	}
	c.items[url] = ic
	return ic
}

// Len returns the number of cached icons.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}
