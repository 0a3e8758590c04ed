// Package datacache provides a dlite.Cache keeping values in memory and,
// optionally, on disk so that they survive the process.
package datacache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	gocache "github.com/patrickmn/go-cache"
	dlite "github.com/pilosa/oteapi-dlite"
	"github.com/pilosa/oteapi-dlite/file"
	"github.com/pkg/errors"
)

// DefaultExpire is how long values are kept unless configured otherwise.
const DefaultExpire = time.Hour

// DataCache is a two layer cache: go-cache in memory in front of one file
// per key in Dir. Without a Dir it is memory only.
type DataCache struct {
	Dir    string
	Expire time.Duration

	mem *gocache.Cache
}

var _ dlite.Cache = &DataCache{}

// Option is a functional option type for DataCache.
type Option func(c *DataCache)

// OptDir sets the directory values are persisted to.
func OptDir(dir string) Option {
	return func(c *DataCache) { c.Dir = dir }
}

// OptExpire sets how long values are kept. Zero or less keeps them forever.
func OptExpire(d time.Duration) Option {
	return func(c *DataCache) { c.Expire = d }
}

// New returns a DataCache.
func New(opts ...Option) *DataCache {
	c := &DataCache{Expire: DefaultExpire}
	for _, opt := range opts {
		opt(c)
	}
	if c.Expire <= 0 {
		c.Expire = gocache.NoExpiration
	}
	cleanup := c.Expire
	if cleanup <= 0 {
		cleanup = 10 * time.Minute
	}
	c.mem = gocache.New(c.Expire, cleanup)
	return c
}

// Key returns the content key of value, the hex encoded sha256 sum.
func Key(value []byte) string {
	sum := sha256.Sum256(value)
	return hex.EncodeToString(sum[:])
}

type entry struct {
	Data      []byte    `json:"data"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Add stores value under key and returns the key. An empty key is replaced
// by the content key of value.
func (c *DataCache) Add(value []byte, key string) (string, error) {
	if key == "" {
		key = Key(value)
	}
	c.mem.Set(key, value, gocache.DefaultExpiration)
	if c.Dir == "" {
		return key, nil
	}
	e := entry{Data: value}
	if c.Expire > 0 {
		e.ExpiresAt = time.Now().Add(c.Expire)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return "", errors.Wrap(err, "marshalling cache entry")
	}
	if err := file.WriteAtomic(c.path(key), data); err != nil {
		return "", dlite.StorageError(err, "datacache add %s", key)
	}
	return key, nil
}

// Get returns the value stored under key. A value found only on disk is
// brought back into memory.
func (c *DataCache) Get(key string) ([]byte, error) {
	if v, ok := c.mem.Get(key); ok {
		return v.([]byte), nil
	}
	if c.Dir == "" {
		return nil, dlite.MissingError("datacache get %s", key)
	}
	data, err := ioutil.ReadFile(c.path(key))
	if os.IsNotExist(err) {
		return nil, dlite.MissingError("datacache get %s", key)
	} else if err != nil {
		return nil, dlite.StorageError(err, "datacache get %s", key)
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, dlite.DecodeError(err, "datacache get %s", key)
	}
	if !e.ExpiresAt.IsZero() && time.Now().After(e.ExpiresAt) {
		os.Remove(c.path(key))
		return nil, dlite.MissingError("datacache get %s (expired)", key)
	}
	ttl := gocache.NoExpiration
	if !e.ExpiresAt.IsZero() {
		ttl = time.Until(e.ExpiresAt)
	}
	c.mem.Set(key, e.Data, ttl)
	return e.Data, nil
}

// Delete removes key from both layers.
func (c *DataCache) Delete(key string) error {
	c.mem.Delete(key)
	if c.Dir == "" {
		return nil
	}
	if err := os.Remove(c.path(key)); err != nil && !os.IsNotExist(err) {
		return dlite.StorageError(err, "datacache delete %s", key)
	}
	return nil
}

// Clear removes every value.
func (c *DataCache) Clear() error {
	c.mem.Flush()
	if c.Dir == "" {
		return nil
	}
	if err := os.RemoveAll(c.Dir); err != nil {
		return dlite.StorageError(err, "datacache clear")
	}
	return nil
}

func (c *DataCache) path(key string) string {
	return filepath.Join(c.Dir, Key([]byte(key))+".cache")
}
