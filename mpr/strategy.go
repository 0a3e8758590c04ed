package mpr

import (
	"bytes"
	"context"
	"sort"

	dlite "github.com/pilosa/oteapi-dlite"
	"github.com/pkg/errors"
)

// MediaType selects the mpr parse strategy.
const MediaType = "application/parse-mpr"

func init() {
	dlite.RegisterStrategy(dlite.StrategyKey{Type: "mediaType", Value: MediaType}, NewStrategy)
}

// Config configures the mpr parse strategy.
type Config struct {
	ID           string `mapstructure:"id"`
	Label        string `mapstructure:"label"`
	Entity       string `mapstructure:"entity"`
	ResourceType string `mapstructure:"resourceType"`
	DownloadURL  string `mapstructure:"downloadUrl"`
	MediaType    string `mapstructure:"mediaType"`
	StoragePath  string `mapstructure:"storage_path"`
	CollectionID string `mapstructure:"collection_id"`

	// Columns maps instance property names to .mpr column names.
	Columns map[string]string `mapstructure:"mpr_config"`
}

// Validate implements dlite.Validator.
func (c *Config) Validate() error {
	if c.ResourceType != "resource/url" {
		return errors.Errorf("unsupported resourceType %q, only resource/url", c.ResourceType)
	}
	if c.DownloadURL == "" {
		return errors.New("downloadUrl is required")
	}
	if c.Entity == "" {
		return errors.New("entity is required")
	}
	if c.Label == "" {
		return errors.New("label must not be empty")
	}
	return nil
}

// Strategy downloads an .mpr file and parses it into an instance of the
// configured data model. The data model must have exactly one dimension,
// the number of records.
type Strategy struct {
	conf Config
}

// NewStrategy is the dlite.Factory of the mpr parse strategy.
func NewStrategy(cfg dlite.StrategyConfig) (dlite.Strategy, error) {
	c := Config{
		Label:        "mpr-data",
		ResourceType: "resource/url",
		Entity:       cfg.Entity,
		DownloadURL:  cfg.DownloadURL,
		MediaType:    cfg.MediaType,
	}
	if err := dlite.DecodeConfig(cfg.Configuration, &c); err != nil {
		return nil, errors.Wrap(err, "mpr parser")
	}
	return &Strategy{conf: c}, nil
}

// Initialize implements dlite.Strategy.
func (s *Strategy) Initialize(ctx context.Context, sess *dlite.Session) (*dlite.SessionUpdate, error) {
	return sess.InitCollection(ctx, s.conf.CollectionID)
}

// Get implements dlite.Strategy.
func (s *Strategy) Get(ctx context.Context, sess *dlite.Session) (*dlite.SessionUpdate, error) {
	if s.conf.StoragePath != "" {
		sess.Log.Debugf("adding storage path %s", s.conf.StoragePath)
		sess.Metas.AddPaths(s.conf.StoragePath)
	}

	data, err := sess.Download(ctx, s.conf.DownloadURL)
	if err != nil {
		return nil, err
	}
	f, err := Read(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", s.conf.DownloadURL)
	}
	sess.Log.Printf("read %d records of %d columns from %s", f.Rows, len(f.Columns), s.conf.DownloadURL)

	meta, err := sess.Metas.Get(ctx, s.conf.Entity)
	if err != nil {
		return nil, err
	}
	inst, err := NewInstance(meta, f, s.conf.Columns, s.conf.ID)
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

	mprData := make(map[string]interface{}, len(f.Columns))
	for _, name := range f.Columns {
		mprData[name] = f.Data[name]
	}
	return &dlite.SessionUpdate{
		CollectionID: coll.UUID,
		InstUUID:     inst.UUID,
		Label:        s.conf.Label,
		MPRData:      mprData,
	}, nil
}

// NewInstance creates an instance of meta with one row per record of f and
// copies the columns into it. columns maps property names to column names.
func NewInstance(meta *dlite.Metadata, f *File, columns map[string]string, id string) (*dlite.Instance, error) {
	inst, err := meta.NewInstance([]int{f.Rows}, id)
	if err != nil {
		return nil, err
	}
	props := make([]string, 0, len(columns))
	for p := range columns {
		props = append(props, p)
	}
	sort.Strings(props)
	for _, p := range props {
		values, ok := f.Column(columns[p])
		if !ok {
			return nil, dlite.DecodeError(errors.Errorf("no column %q for property %s", columns[p], p), "mpr instance")
		}
		if err := inst.Set(p, values); err != nil {
			return nil, err
		}
	}
	return inst, nil
}
