package dlite

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Fetcher downloads the bytes behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, url string) ([]byte, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) { return f(ctx, url) }

// Cache stores byte values under string keys. Add returns the key the value
// was stored under; an empty key asks the cache to derive one.
type Cache interface {
	Add(value []byte, key string) (string, error)
	Get(key string) ([]byte, error)
}

// CollectionStore keeps the collections a session works on.
type CollectionStore interface {
	// Get returns the collection with the given UUID. It returns an error of
	// KindMissing if there is no such collection.
	Get(ctx context.Context, id string) (*Collection, error)
	Put(ctx context.Context, c *Collection) error
}

// MemCollectionStore is a CollectionStore holding collections in memory.
type MemCollectionStore struct {
	mu    sync.RWMutex
	colls map[string]*Collection
}

// NewMemCollectionStore returns an empty MemCollectionStore.
func NewMemCollectionStore() *MemCollectionStore {
	return &MemCollectionStore{colls: make(map[string]*Collection)}
}

// Get implements CollectionStore.
func (s *MemCollectionStore) Get(ctx context.Context, id string) (*Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.colls[id]
	if !ok {
		return nil, MissingError("get collection %s", id)
	}
	return c, nil
}

// Put implements CollectionStore.
func (s *MemCollectionStore) Put(ctx context.Context, c *Collection) error {
	s.mu.Lock()
	s.colls[c.UUID] = c
	s.mu.Unlock()
	return nil
}

// SessionUpdate is what a strategy step contributes to the session state.
// Empty fields contribute nothing.
type SessionUpdate struct {
	CollectionID string                 `json:"collection_id,omitempty"`
	InstUUID     string                 `json:"inst_uuid,omitempty"`
	Label        string                 `json:"label,omitempty"`
	Properties   map[string]interface{} `json:"properties,omitempty"`
	MPRData      map[string]interface{} `json:"mpr_data,omitempty"`
	Extra        map[string]interface{} `json:"extra,omitempty"`
}

// Merge copies the non-empty fields of o into u. Map fields are merged key by
// key, with o winning.
func (u *SessionUpdate) Merge(o *SessionUpdate) {
	if o == nil {
		return
	}
	if o.CollectionID != "" {
		u.CollectionID = o.CollectionID
	}
	if o.InstUUID != "" {
		u.InstUUID = o.InstUUID
	}
	if o.Label != "" {
		u.Label = o.Label
	}
	u.Properties = mergeMap(u.Properties, o.Properties)
	u.MPRData = mergeMap(u.MPRData, o.MPRData)
	u.Extra = mergeMap(u.Extra, o.Extra)
}

func mergeMap(dst, src map[string]interface{}) map[string]interface{} {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]interface{}, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// Session carries the shared state of one pipeline run: the collection
// store, data model resolution, transport, cache and the accumulated
// SessionUpdate of the steps which have run so far.
type Session struct {
	Collections CollectionStore
	Metas       *MetaStore
	Fetcher     Fetcher
	Cache       Cache
	Log         Logger
	Stats       Statter

	mu    sync.Mutex
	state SessionUpdate
}

// SessionOption is a functional option type for Session.
type SessionOption func(s *Session)

// OptSessionCollections sets the collection store.
func OptSessionCollections(cs CollectionStore) SessionOption {
	return func(s *Session) { s.Collections = cs }
}

// OptSessionMetas sets the data model store.
func OptSessionMetas(ms *MetaStore) SessionOption {
	return func(s *Session) { s.Metas = ms }
}

// OptSessionFetcher sets the fetcher used for downloads.
func OptSessionFetcher(f Fetcher) SessionOption {
	return func(s *Session) { s.Fetcher = f }
}

// OptSessionCache sets the data cache.
func OptSessionCache(c Cache) SessionOption {
	return func(s *Session) { s.Cache = c }
}

// OptSessionLogger sets the logger.
func OptSessionLogger(l Logger) SessionOption {
	return func(s *Session) { s.Log = l }
}

// OptSessionStats sets the stats collector.
func OptSessionStats(st Statter) SessionOption {
	return func(s *Session) { s.Stats = st }
}

// OptSessionState seeds the session state, e.g. with a collection_id from an
// earlier run.
func OptSessionState(u SessionUpdate) SessionOption {
	return func(s *Session) { s.state.Merge(&u) }
}

// NewSession returns a session with in-memory stores and no-op logging unless
// options say otherwise.
func NewSession(opts ...SessionOption) *Session {
	s := &Session{
		Collections: NewMemCollectionStore(),
		Log:         NopLogger{},
		Stats:       NopStatter{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Metas == nil {
		s.Metas = NewMetaStore()
	}
	if s.Metas.Fetcher == nil {
		s.Metas.Fetcher = s.Fetcher
	}
	return s
}

// State returns a copy of the accumulated session state.
func (s *Session) State() SessionUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := SessionUpdate{}
	st.Merge(&s.state)
	return st
}

// Update merges u into the session state.
func (s *Session) Update(u *SessionUpdate) {
	s.mu.Lock()
	s.state.Merge(u)
	s.mu.Unlock()
}

// Collection returns the collection with the given id. An empty id means the
// session's current collection, and if there is none yet, a new collection
// is created, stored, and made current.
func (s *Session) Collection(ctx context.Context, id string) (*Collection, error) {
	if id == "" {
		id = s.State().CollectionID
	}
	if id != "" {
		return s.Collections.Get(ctx, id)
	}
	c := NewCollection("")
	if err := s.SaveCollection(ctx, c); err != nil {
		return nil, err
	}
	s.Update(&SessionUpdate{CollectionID: c.UUID})
	s.Log.Debugf("created collection %s", c.UUID)
	return c, nil
}

// SaveCollection writes c back to the collection store.
func (s *Session) SaveCollection(ctx context.Context, c *Collection) error {
	if err := s.Collections.Put(ctx, c); err != nil {
		return StorageError(err, "save collection %s", c.UUID)
	}
	return nil
}

// InitCollection makes the collection with the given id, or the session's
// current collection if id is empty, available to later steps. It is what
// most strategies do in Initialize.
func (s *Session) InitCollection(ctx context.Context, id string) (*SessionUpdate, error) {
	c, err := s.Collection(ctx, id)
	if err != nil {
		return nil, err
	}
	return &SessionUpdate{CollectionID: c.UUID}, nil
}

// Download fetches url with the session fetcher.
func (s *Session) Download(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, ConfigError(errors.New("no download url"), "download")
	}
	if s.Fetcher == nil {
		return nil, ConfigError(errors.New("session has no fetcher"), "download %s", url)
	}
	s.Log.Debugf("downloading %s", url)
	data, err := s.Fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, errors.Wrapf(err, "downloading %s", url)
	}
	s.Log.Debugf("downloaded %s from %s", Bytes(len(data)), url)
	s.Stats.Count("download.bytes", int64(len(data)), 1)
	return data, nil
}
