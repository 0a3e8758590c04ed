package influx

import (
	"context"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	dlite "github.com/pilosa/oteapi-dlite"
	"github.com/pkg/errors"
)

// Columns is the result of a query: one timestamp per row and the values of
// every field, row aligned.
type Columns struct {
	Time   []time.Time
	Fields map[string][]float64
}

// Len returns the number of rows.
func (c *Columns) Len() int { return len(c.Time) }

// Querier runs Flux queries against a server.
type Querier interface {
	Query(ctx context.Context, url, user, password, query string) (*Columns, error)
}

// Client is a Querier using the InfluxDB 2 client, authenticating with the
// 1.x compatible token "user:password".
type Client struct {
	Org string
}

// Query implements Querier.
func (c *Client) Query(ctx context.Context, url, user, password, query string) (*Columns, error) {
	client := influxdb2.NewClient(url, user+":"+password)
	defer client.Close()

	res, err := client.QueryAPI(c.Org).Query(ctx, query)
	if err != nil {
		return nil, dlite.NetworkError(err, "influx query %s", url)
	}
	defer res.Close()

	cols := &Columns{Fields: make(map[string][]float64)}
	for res.Next() {
		rec := res.Record()
		cols.Time = append(cols.Time, rec.Time())
		for k, v := range rec.Values() {
			if strings.HasPrefix(k, "_") || k == "result" || k == "table" {
				continue
			}
			f, ok := toFloat(v)
			if !ok {
				continue
			}
			// fields missing from earlier rows are zero filled
			for len(cols.Fields[k]) < cols.Len()-1 {
				cols.Fields[k] = append(cols.Fields[k], 0)
			}
			cols.Fields[k] = append(cols.Fields[k], f)
		}
	}
	if err := res.Err(); err != nil {
		return nil, dlite.DecodeError(err, "influx query result")
	}
	for k := range cols.Fields {
		for len(cols.Fields[k]) < cols.Len() {
			cols.Fields[k] = append(cols.Fields[k], 0)
		}
	}
	return cols, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// DefaultCacheSize is the number of query results CachedQuerier keeps.
const DefaultCacheSize = 128

type cacheKey struct {
	url, user, password, query string
}

// CachedQuerier memoizes the results of a Querier in an LRU cache keyed by
// all of the query arguments.
type CachedQuerier struct {
	Querier Querier

	cache *lru.Cache
}

// NewCachedQuerier wraps q.
func NewCachedQuerier(q Querier, size int) (*CachedQuerier, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, errors.Wrap(err, "creating lru")
	}
	return &CachedQuerier{Querier: q, cache: cache}, nil
}

// Query implements Querier.
func (c *CachedQuerier) Query(ctx context.Context, url, user, password, query string) (*Columns, error) {
	key := cacheKey{url, user, password, query}
	if v, ok := c.cache.Get(key); ok {
		return v.(*Columns), nil
	}
	cols, err := c.Querier.Query(ctx, url, user, password, query)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, cols)
	return cols, nil
}

var defaultQuerier Querier

func init() {
	q, err := NewCachedQuerier(&Client{}, DefaultCacheSize)
	if err != nil {
		panic(err)
	}
	defaultQuerier = q
}
