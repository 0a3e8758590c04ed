// Package mapping implements the strategy which adds semantic mappings,
// (subject, predicate, object) triples, to the relations of a collection.
package mapping

import (
	"context"
	"strings"

	dlite "github.com/pilosa/oteapi-dlite"
	"github.com/pkg/errors"
)

// MappingType selects the mapping strategy.
const MappingType = "mappings"

// Common namespaces of mapping triples.
const (
	MAP  = "http://emmo.info/domain-mappings#"
	EMMO = "https://w3id.org/emmo#"

	// MapsTo is the predicate mapping a data model property to an ontology
	// concept.
	MapsTo = MAP + "mapsTo"
)

func init() {
	dlite.RegisterStrategy(dlite.StrategyKey{Type: "mappingType", Value: MappingType}, NewStrategy)
}

// Config configures the mapping strategy.
type Config struct {
	// Prefixes maps short prefixes to namespaces, e.g. "f" to
	// "http://onto-ns.com/meta/0.1/Forces#".
	Prefixes map[string]string `mapstructure:"prefixes"`
	// Triples are [subject, predicate, object] lists. Terms may use the
	// prefixes as "f:forces".
	Triples      [][]string `mapstructure:"triples"`
	CollectionID string     `mapstructure:"collection_id"`
}

// Validate implements dlite.Validator.
func (c *Config) Validate() error {
	for i, t := range c.Triples {
		if len(t) != 3 {
			return errors.Errorf("triple %d has %d terms, want 3", i, len(t))
		}
	}
	for p, ns := range c.Prefixes {
		if p == "" || ns == "" {
			return errors.Errorf("bad prefix %q: %q", p, ns)
		}
	}
	return nil
}

// Strategy adds the configured triples to the session collection.
type Strategy struct {
	conf Config
}

// NewStrategy is the dlite.Factory of the mapping strategy. Prefixes and
// triples may be given on the step itself, in its configuration, or both;
// triples of the step come first and configured prefixes win.
func NewStrategy(cfg dlite.StrategyConfig) (dlite.Strategy, error) {
	var c Config
	if err := dlite.DecodeConfig(cfg.Configuration, &c); err != nil {
		return nil, errors.Wrap(err, "mapping")
	}
	prefixes := make(map[string]string, len(cfg.Prefixes)+len(c.Prefixes))
	for p, ns := range cfg.Prefixes {
		prefixes[p] = ns
	}
	for p, ns := range c.Prefixes {
		prefixes[p] = ns
	}
	c.Prefixes = prefixes
	c.Triples = append(append([][]string(nil), cfg.Triples...), c.Triples...)
	if err := c.Validate(); err != nil {
		return nil, dlite.ConfigError(err, "mapping")
	}
	return &Strategy{conf: c}, nil
}

// Initialize adds the triples, so that the mappings are in place before any
// other step runs.
func (s *Strategy) Initialize(ctx context.Context, sess *dlite.Session) (*dlite.SessionUpdate, error) {
	coll, err := sess.Collection(ctx, s.conf.CollectionID)
	if err != nil {
		return nil, err
	}
	for _, r := range s.Relations() {
		coll.AddRelation(r.S, r.P, r.O)
	}
	if err := sess.SaveCollection(ctx, coll); err != nil {
		return nil, err
	}
	sess.Log.Debugf("added %d mappings to collection %s", len(s.conf.Triples), coll.UUID)
	return &dlite.SessionUpdate{CollectionID: coll.UUID}, nil
}

// Get implements dlite.Strategy. All the work is done by Initialize.
func (s *Strategy) Get(ctx context.Context, sess *dlite.Session) (*dlite.SessionUpdate, error) {
	return &dlite.SessionUpdate{}, nil
}

// Relations returns the configured triples with prefixes expanded.
func (s *Strategy) Relations() []dlite.Relation {
	rels := make([]dlite.Relation, len(s.conf.Triples))
	for i, t := range s.conf.Triples {
		rels[i] = dlite.Relation{
			S: Expand(s.conf.Prefixes, t[0]),
			P: Expand(s.conf.Prefixes, t[1]),
			O: Expand(s.conf.Prefixes, t[2]),
		}
	}
	return rels
}

// Expand replaces a known prefix of term by its namespace. Full IRIs and
// terms with unknown prefixes are returned unchanged.
func Expand(prefixes map[string]string, term string) string {
	i := strings.IndexByte(term, ':')
	if i < 0 || strings.HasPrefix(term[i+1:], "//") {
		return term
	}
	if ns, ok := prefixes[term[:i]]; ok {
		return ns + term[i+1:]
	}
	return term
}
