package imaging

import (
	"fmt"
	"os"
	"sync"
)

// DecodeFunc turns file contents into an Image.
type DecodeFunc func(data []byte) (*Image, error)

// Cache keeps decoded images keyed by file path so repeated requests for the
// same file skip disk reads and decoding.
//
// Cache is safe for concurrent use. Load hands out clones, so callers may
// mutate what they get without affecting the cached copy or each other.
//
// Cached images stay in memory until Evict or Clear. Long-running processes
// handling many files should evict what they no longer need.
//
// Example:
//
//	cache := imaging.NewCache(decode)
//	img, err := cache.Load("/path/to/image.png")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cache.Evict("/path/to/image.png")
type Cache struct {
	decode DecodeFunc

	mu     sync.RWMutex
	images map[string]*Image
}

// NewCache returns an empty cache that decodes files with decode.
func NewCache(decode DecodeFunc) *Cache {
	return &Cache{
		decode: decode,
		images: make(map[string]*Image),
	}
}

// Load returns a copy of the image at path, reading and decoding it on the
// first request.
//
// Entries are keyed by the exact path string, so a relative and an absolute
// path to one file are cached separately.
func (c *Cache) Load(path string) (*Image, error) {
	c.mu.RLock()
	img, ok := c.images[path]
	c.mu.RUnlock()
	if ok {
		return img.Clone(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	img, err = c.decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	c.mu.Lock()
	c.images[path] = img
	c.mu.Unlock()

	return img.Clone(), nil
}

// Len reports how many images are cached.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}

// Clear removes all images from the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.images = make(map[string]*Image)
	c.mu.Unlock()
}

// Evict removes the entry for path, if any. The next Load reads from disk.
func (c *Cache) Evict(path string) {
	c.mu.Lock()
	delete(c.images, path)
	c.mu.Unlock()
}
