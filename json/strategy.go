package json

import (
	"bytes"
	"context"
	"io"

	dlite "github.com/pilosa/oteapi-dlite"
	"github.com/pkg/errors"
)

// ParserType selects the JSON parse strategy.
const ParserType = "json/vnd.dlite-json"

func init() {
	dlite.RegisterStrategy(dlite.StrategyKey{Type: "parserType", Value: ParserType}, NewStrategy)
}

// Config configures the JSON parse strategy.
type Config struct {
	ID           string `mapstructure:"id"`
	Label        string `mapstructure:"label"`
	Entity       string `mapstructure:"entity"`
	ResourceType string `mapstructure:"resourceType"`
	DownloadURL  string `mapstructure:"downloadUrl"`
	MediaType    string `mapstructure:"mediaType"`
	StoragePath  string `mapstructure:"storage_path"`
	CollectionID string `mapstructure:"collection_id"`
}

// Validate implements dlite.Validator.
func (c *Config) Validate() error {
	if c.Entity == "" {
		return errors.New("entity is required")
	}
	if c.Label == "" {
		return errors.New("label must not be empty")
	}
	return nil
}

// Strategy parses the first JSON object of a downloaded document into an
// instance of the configured data model. Keys of the object which aren't
// properties of the data model are ignored.
type Strategy struct {
	conf Config
}

// NewStrategy is the dlite.Factory of the JSON parse strategy.
func NewStrategy(cfg dlite.StrategyConfig) (dlite.Strategy, error) {
	c := Config{
		Label:       "json-data",
		Entity:      cfg.Entity,
		DownloadURL: cfg.DownloadURL,
		MediaType:   cfg.MediaType,
	}
	if err := dlite.DecodeConfig(cfg.Configuration, &c); err != nil {
		return nil, errors.Wrap(err, "json parser")
	}
	return &Strategy{conf: c}, nil
}

// Initialize implements dlite.Strategy.
func (s *Strategy) Initialize(ctx context.Context, sess *dlite.Session) (*dlite.SessionUpdate, error) {
	return sess.InitCollection(ctx, s.conf.CollectionID)
}

// Get implements dlite.Strategy.
func (s *Strategy) Get(ctx context.Context, sess *dlite.Session) (*dlite.SessionUpdate, error) {
	sess.Metas.AddPaths(s.conf.StoragePath)

	data, err := sess.Download(ctx, s.conf.DownloadURL)
	if err != nil {
		return nil, err
	}
	rec, err := NewSource(bytes.NewReader(data)).Record()
	if err == io.EOF {
		return nil, dlite.DecodeError(errors.New("no json object"), "parse json %s", s.conf.DownloadURL)
	} else if err != nil {
		return nil, dlite.DecodeError(err, "parse json %s", s.conf.DownloadURL)
	}

	meta, err := sess.Metas.Get(ctx, s.conf.Entity)
	if err != nil {
		return nil, err
	}
	inst, err := NewInstance(meta, rec, s.conf.ID)
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
	sess.Log.Printf("parsed %s into %s as %q", s.conf.DownloadURL, meta.URI, s.conf.Label)

	return &dlite.SessionUpdate{
		CollectionID: coll.UUID,
		InstUUID:     inst.UUID,
		Label:        s.conf.Label,
	}, nil
}

// NewInstance creates an instance of meta holding the values of rec for
// every property of meta found in rec. Dimension sizes are taken from the
// lengths of list values.
func NewInstance(meta *dlite.Metadata, rec map[string]interface{}, id string) (*dlite.Instance, error) {
	dims, err := dlite.InferDims(meta, rec)
	if err != nil {
		return nil, err
	}
	inst, err := meta.NewInstance(dims, id)
	if err != nil {
		return nil, err
	}
	for _, p := range meta.Properties {
		v, ok := rec[p.Name]
		if !ok {
			continue
		}
		if err := inst.Set(p.Name, v); err != nil {
			return nil, err
		}
	}
	return inst, nil
}
