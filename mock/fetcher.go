package mock

import (
	"context"
	"strconv"
	"sync"

	dlite "github.com/pilosa/oteapi-dlite"
)

// Fetcher serves fixed documents by URL and counts requests. Unknown URLs
// give a KindMissing error.
type Fetcher struct {
	mu    sync.Mutex
	Docs  map[string][]byte
	Calls map[string]int
}

// NewFetcher returns a Fetcher serving docs.
func NewFetcher(docs map[string][]byte) *Fetcher {
	return &Fetcher{Docs: docs, Calls: make(map[string]int)}
}

// Fetch implements dlite.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls[url]++
	data, ok := f.Docs[url]
	if !ok {
		return nil, dlite.MissingError("fetch %s", url)
	}
	return data, nil
}

// Cache is an in-memory dlite.Cache.
type Cache struct {
	mu   sync.Mutex
	Data map[string][]byte
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{Data: make(map[string][]byte)}
}

// Add implements dlite.Cache. An empty key is replaced by "key-<n>".
func (c *Cache) Add(value []byte, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if key == "" {
		key = "key-" + strconv.Itoa(len(c.Data))
	}
	c.Data[key] = append([]byte(nil), value...)
	return key, nil
}

// Get implements dlite.Cache.
func (c *Cache) Get(key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.Data[key]
	if !ok {
		return nil, dlite.MissingError("cache get %s", key)
	}
	return v, nil
}
