// Package influx implements the strategy which queries time series from
// InfluxDB with Flux and parses them into data model instances.
package influx

import (
	"context"

	dlite "github.com/pilosa/oteapi-dlite"
	"github.com/pkg/errors"
)

// ParserType selects the InfluxDB parse strategy.
const ParserType = "influx/vnd.dlite-influx"

// TimeFormat is the layout of the time property of created instances.
const TimeFormat = "01/02/2006, 15:04:05"

func init() {
	dlite.RegisterStrategy(dlite.StrategyKey{Type: "parserType", Value: ParserType}, NewStrategy)
}

// Config configures the InfluxDB parse strategy.
type Config struct {
	ID           string `mapstructure:"id"`
	Label        string `mapstructure:"label"`
	Entity       string `mapstructure:"entity"`
	ResourceType string `mapstructure:"resourceType"`
	DownloadURL  string `mapstructure:"downloadUrl"`
	MediaType    string `mapstructure:"mediaType"`
	StoragePath  string `mapstructure:"storage_path"`
	CollectionID string `mapstructure:"collection_id"`

	URL       string `mapstructure:"url"`
	User      string `mapstructure:"USER"`
	Password  string `mapstructure:"PASSWORD"`
	Database  string `mapstructure:"DATABASE"`
	RetPolicy string `mapstructure:"RETPOLICY"`

	Measurements []Measurement `mapstructure:"measurements"`
	TimeRange    string        `mapstructure:"timeRange"`
	LimitSize    int           `mapstructure:"limitSize"`
}

// Validate implements dlite.Validator.
func (c *Config) Validate() error {
	if c.ResourceType != "" && c.ResourceType != "resource/url" {
		return errors.Errorf("unsupported resourceType %q, only resource/url", c.ResourceType)
	}
	if c.Label == "" {
		return errors.New("label must not be empty")
	}
	if c.LimitSize <= 0 {
		return errors.Errorf("limitSize must be positive, got %d", c.LimitSize)
	}
	return nil
}

// Query returns the Flux query parameters of c.
func (c *Config) Query() Query {
	return Query{
		Bucket:       c.Database + "/" + c.RetPolicy,
		TimeRange:    c.TimeRange,
		LimitSize:    c.LimitSize,
		Measurements: c.Measurements,
	}
}

// Strategy is the InfluxDB parse strategy.
type Strategy struct {
	conf    Config
	querier Querier
}

// NewStrategy is the dlite.Factory of the InfluxDB parse strategy. Query
// results are shared through a process wide LRU cache.
func NewStrategy(cfg dlite.StrategyConfig) (dlite.Strategy, error) {
	return NewStrategyWithQuerier(cfg, defaultQuerier)
}

// NewStrategyWithQuerier creates the strategy with a specific Querier.
func NewStrategyWithQuerier(cfg dlite.StrategyConfig, q Querier) (*Strategy, error) {
	c := Config{
		Label:       "json-data",
		Entity:      cfg.Entity,
		DownloadURL: cfg.DownloadURL,
		MediaType:   cfg.MediaType,
		TimeRange:   "-12h",
		LimitSize:   50,
	}
	if err := dlite.DecodeConfig(cfg.Configuration, &c); err != nil {
		return nil, errors.Wrap(err, "influx parser")
	}
	if len(c.Measurements) == 0 {
		c.Measurements = append([]Measurement(nil), DefaultMeasurements...)
	}
	return &Strategy{conf: c, querier: q}, nil
}

// Initialize implements dlite.Strategy.
func (s *Strategy) Initialize(ctx context.Context, sess *dlite.Session) (*dlite.SessionUpdate, error) {
	return sess.InitCollection(ctx, s.conf.CollectionID)
}

// Get implements dlite.Strategy.
func (s *Strategy) Get(ctx context.Context, sess *dlite.Session) (*dlite.SessionUpdate, error) {
	sess.Metas.AddPaths(s.conf.StoragePath)

	query, err := s.conf.Query().Render()
	if err != nil {
		return nil, dlite.ConfigError(err, "influx query")
	}
	sess.Log.Debugf("flux query:\n%s", query)
	cols, err := s.querier.Query(ctx, s.conf.URL, s.conf.User, s.conf.Password, query)
	if err != nil {
		return nil, errors.Wrapf(err, "querying %s", s.conf.URL)
	}
	sess.Log.Printf("read %d rows from %s", cols.Len(), s.conf.URL)

	meta, err := sess.Metas.Get(ctx, s.conf.Entity)
	if err != nil {
		return nil, err
	}
	inst, err := NewInstance(meta, cols, s.conf.Measurements, s.conf.ID)
	if err != nil {
		return nil, err
	}

	coll, err := sess.Collection(ctx, s.conf.CollectionID)
	if err != nil {
		return nil, err
	}
	coll.Add(s.conf.Label, inst)
	if err := sess.SaveCollection(ctx, coll); err != nil {
		return nil, err
	}
	return &dlite.SessionUpdate{
		CollectionID: coll.UUID,
		InstUUID:     inst.UUID,
		Label:        s.conf.Label,
	}, nil
}

// NewInstance creates an instance of meta with one row per query result
// row. The field of every measurement is copied to the property of the same
// name, and the timestamps are written to the time property as strings.
func NewInstance(meta *dlite.Metadata, cols *Columns, ms []Measurement, id string) (*dlite.Instance, error) {
	dims := make([]int, len(meta.Dimensions))
	for i := range dims {
		dims[i] = cols.Len()
	}
	inst, err := meta.NewInstance(dims, id)
	if err != nil {
		return nil, err
	}
	for _, m := range ms {
		values, ok := cols.Fields[m.Field]
		if !ok {
			return nil, dlite.DecodeError(errors.Errorf("no field %q in query result", m.Field), "influx instance")
		}
		if err := inst.Set(m.Field, values); err != nil {
			return nil, err
		}
	}
	if _, ok := meta.Property("time"); ok {
		times := make([]string, cols.Len())
		for i, t := range cols.Time {
			times[i] = t.Format(TimeFormat)
		}
		if err := inst.Set("time", times); err != nil {
			return nil, err
		}
	}
	return inst, nil
}
