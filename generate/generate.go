// Package generate implements the strategy which derives output properties
// from a collection through its semantic mappings, and optionally saves the
// selected instance or collection with a storage driver.
package generate

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	dlite "github.com/pilosa/oteapi-dlite"
	"github.com/pilosa/oteapi-dlite/datacache"
	"github.com/pkg/errors"
)

// FunctionType selects the generate strategy.
const FunctionType = "application/vnd.dlite-generate"

// DefaultAccessKey is the cache key used when saving without a location.
const DefaultAccessKey = "generate_data"

func init() {
	dlite.RegisterStrategy(dlite.StrategyKey{Type: "functionType", Value: FunctionType}, NewStrategy)
}

// DataCacheConfig configures the cache the result is saved to when there is
// no location.
type DataCacheConfig struct {
	AccessKey string `mapstructure:"accessKey"`
	// ExpireTime is in seconds.
	ExpireTime int    `mapstructure:"expireTime"`
	CacheDir   string `mapstructure:"cacheDir"`
}

// Config configures the generate strategy. The driver is named by Driver or
// by the media type in FunctionType. Exactly one of Datamodel, Label and
// StoreCollection selects what is generated.
type Config struct {
	Driver            string           `mapstructure:"driver"`
	FunctionType      string           `mapstructure:"functionType"`
	Options           string           `mapstructure:"options"`
	Location          string           `mapstructure:"location"`
	Label             string           `mapstructure:"label"`
	Datamodel         string           `mapstructure:"datamodel"`
	StoreCollection   bool             `mapstructure:"store_collection"`
	StoreCollectionID string           `mapstructure:"store_collection_id"`
	AllowIncomplete   bool             `mapstructure:"allow_incomplete"`
	CollectionID      string           `mapstructure:"collection_id"`
	DataCacheConfig   *DataCacheConfig `mapstructure:"datacache_config"`
	Entity            string           `mapstructure:"entity"`
	Save              bool             `mapstructure:"save"`
}

// Validate implements dlite.Validator.
func (c *Config) Validate() error {
	n := 0
	for _, set := range []bool{c.Datamodel != "", c.Label != "", c.StoreCollection} {
		if set {
			n++
		}
	}
	if n > 1 {
		return errors.New("datamodel, label and store_collection cannot be combined")
	}
	if c.StoreCollectionID != "" && !c.StoreCollection {
		return errors.New("store_collection_id requires store_collection")
	}
	return nil
}

// Strategy is the generate strategy.
type Strategy struct {
	conf Config
}

// NewStrategy is the dlite.Factory of the generate strategy.
func NewStrategy(cfg dlite.StrategyConfig) (dlite.Strategy, error) {
	c := Config{Entity: cfg.Entity}
	if err := dlite.DecodeConfig(cfg.Configuration, &c); err != nil {
		return nil, errors.Wrap(err, "generate")
	}
	return &Strategy{conf: c}, nil
}

// Initialize implements dlite.Strategy.
func (s *Strategy) Initialize(ctx context.Context, sess *dlite.Session) (*dlite.SessionUpdate, error) {
	return sess.InitCollection(ctx, s.conf.CollectionID)
}

// target is what the strategy generates from: an instance, or a collection
// seen through its relations property.
type target struct {
	storable dlite.Storable
	props    dlite.Properties
}

// Get selects the target, reconciles the collection's relations for the
// configured entity against it, and saves it if asked to.
func (s *Strategy) Get(ctx context.Context, sess *dlite.Session) (*dlite.SessionUpdate, error) {
	coll, err := sess.Collection(ctx, s.conf.CollectionID)
	if err != nil {
		return nil, err
	}
	tgt, err := s.selectTarget(ctx, sess, coll)
	if err != nil {
		return nil, err
	}

	props := map[string]interface{}{}
	if s.conf.Entity != "" {
		props = dlite.Reconcile(coll.Relations(), s.conf.Entity, tgt.props)
	}
	sess.Log.Debugf("generated %d properties for %s", len(props), s.conf.Entity)

	u := &dlite.SessionUpdate{
		CollectionID: coll.UUID,
		Properties:   props,
	}
	if !s.conf.Save {
		return u, nil
	}
	key, err := s.save(ctx, sess, tgt.storable)
	if err != nil {
		return nil, err
	}
	if key != "" {
		u.Extra = map[string]interface{}{"key": key}
	}
	return u, nil
}

func (s *Strategy) selectTarget(ctx context.Context, sess *dlite.Session, coll *dlite.Collection) (target, error) {
	switch {
	case s.conf.Datamodel != "":
		meta, err := sess.Metas.Get(ctx, s.conf.Datamodel)
		if err != nil {
			return target{}, err
		}
		insts, err := coll.GetInstances(meta, true, s.conf.AllowIncomplete)
		if err != nil {
			return target{}, errors.Wrapf(err, "generating %s", s.conf.Datamodel)
		}
		return target{insts[0], insts[0]}, nil
	case s.conf.Label != "":
		inst, err := coll.Get(s.conf.Label)
		if err != nil {
			return target{}, err
		}
		return target{inst, inst}, nil
	case s.conf.StoreCollection:
		c := coll
		if s.conf.StoreCollectionID != "" {
			c = coll.Copy(s.conf.StoreCollectionID)
			if err := sess.SaveCollection(ctx, c); err != nil {
				return target{}, err
			}
		}
		return target{c, c.AsProperties()}, nil
	}
	return target{}, dlite.ConfigError(errors.New("one of `label` or `datamodel` configurations should be given"), "generate")
}

func (s *Strategy) driver() (dlite.Driver, error) {
	name := s.conf.Driver
	if name == "" {
		var err error
		if name, err = dlite.DriverForMediaType(s.conf.FunctionType); err != nil {
			return nil, err
		}
	}
	return dlite.LookupDriver(name)
}

// save writes st to the configured location, or to the data cache when
// there is none, and returns the cache key in the latter case.
func (s *Strategy) save(ctx context.Context, sess *dlite.Session, st dlite.Storable) (string, error) {
	d, err := s.driver()
	if err != nil {
		return "", err
	}
	opts := dlite.ParseOptions(s.conf.Options)
	if s.conf.Location != "" {
		if err := d.Save(ctx, st, s.conf.Location, opts); err != nil {
			return "", errors.Wrapf(err, "saving to %s", s.conf.Location)
		}
		sess.Log.Printf("saved to %s", s.conf.Location)
		return "", nil
	}

	tmpdir, err := ioutil.TempDir("", "generate")
	if err != nil {
		return "", dlite.StorageError(err, "generate temp dir")
	}
	defer os.RemoveAll(tmpdir)
	pathname := filepath.Join(tmpdir, "data")
	if err := d.Save(ctx, st, pathname, opts); err != nil {
		return "", errors.Wrap(err, "saving to temp file")
	}
	data, err := ioutil.ReadFile(pathname)
	if err != nil {
		return "", dlite.StorageError(err, "reading saved data")
	}

	key := DefaultAccessKey
	if cc := s.conf.DataCacheConfig; cc != nil && cc.AccessKey != "" {
		key = cc.AccessKey
	}
	key, err = s.cache(sess).Add(data, key)
	if err != nil {
		return "", err
	}
	sess.Log.Printf("saved %d bytes to the data cache as %s", len(data), key)
	return key, nil
}

// cache returns the session cache, or one built from the datacache config
// if the session has none.
func (s *Strategy) cache(sess *dlite.Session) dlite.Cache {
	if sess.Cache != nil {
		return sess.Cache
	}
	var opts []datacache.Option
	if cc := s.conf.DataCacheConfig; cc != nil {
		if cc.CacheDir != "" {
			opts = append(opts, datacache.OptDir(cc.CacheDir))
		}
		if cc.ExpireTime > 0 {
			opts = append(opts, datacache.OptExpire(time.Duration(cc.ExpireTime)*time.Second))
		}
	}
	return datacache.New(opts...)
}
