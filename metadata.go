package dlite

import (
	"context"
	"encoding/json"
	"io"
	"io/ioutil"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pilosa/oteapi-dlite/file"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Dimension is a named dimension of a data model.
type Dimension struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// PropertyDef describes one property of a data model. Shape lists dimension
// names; an empty Shape means a scalar.
type PropertyDef struct {
	Name        string   `json:"name" yaml:"name"`
	Type        string   `json:"type" yaml:"type"`
	Shape       []string `json:"shape,omitempty" yaml:"shape,omitempty"`
	Unit        string   `json:"unit,omitempty" yaml:"unit,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
}

// Numeric reports whether the property holds numbers.
func (p PropertyDef) Numeric() bool {
	switch p.Type {
	case "float64", "float32", "int64", "int32", "int16", "int8", "uint64", "uint32", "uint16", "uint8":
		return true
	}
	return false
}

// Metadata is a data model (an "entity" in DLite terms) which instances are
// created from.
type Metadata struct {
	URI         string        `json:"uri" yaml:"uri"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Dimensions  []Dimension   `json:"dimensions" yaml:"dimensions"`
	Properties  []PropertyDef `json:"properties" yaml:"properties"`
}

// Property returns the definition of the named property.
func (m *Metadata) Property(name string) (PropertyDef, bool) {
	for _, p := range m.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return PropertyDef{}, false
}

// DimensionIndex returns the position of the named dimension, or -1.
func (m *Metadata) DimensionIndex(name string) int {
	for i, d := range m.Dimensions {
		if d.Name == name {
			return i
		}
	}
	return -1
}

// NewInstance creates a new instance of m. dims holds the size of each
// dimension in the order they are declared by m.
func (m *Metadata) NewInstance(dims []int, id string) (*Instance, error) {
	if len(dims) != len(m.Dimensions) {
		return nil, ConfigError(errors.Errorf("%s has %d dimensions, got %d sizes", m.URI, len(m.Dimensions), len(dims)), "new instance")
	}
	inst := newInstance(m, id)
	for i, d := range m.Dimensions {
		if dims[i] < 0 {
			return nil, ConfigError(errors.Errorf("negative size %d for dimension %s", dims[i], d.Name), "new instance")
		}
		inst.dims[d.Name] = dims[i]
	}
	return inst, nil
}

type rawMetadata struct {
	URI         string    `yaml:"uri"`
	Name        string    `yaml:"name"`
	Version     string    `yaml:"version"`
	Namespace   string    `yaml:"namespace"`
	Description string    `yaml:"description"`
	Dimensions  yaml.Node `yaml:"dimensions"`
	Properties  yaml.Node `yaml:"properties"`
}

type rawProperty struct {
	Name        string   `yaml:"name"`
	Type        string   `yaml:"type"`
	Shape       []string `yaml:"shape"`
	Dims        []string `yaml:"dims"`
	Unit        string   `yaml:"unit"`
	Description string   `yaml:"description"`
}

func (r rawProperty) def(name string) PropertyDef {
	if r.Name != "" {
		name = r.Name
	}
	shape := r.Shape
	if len(shape) == 0 {
		shape = r.Dims
	}
	return PropertyDef{
		Name:        name,
		Type:        normalizeType(r.Type),
		Shape:       shape,
		Unit:        r.Unit,
		Description: r.Description,
	}
}

func normalizeType(t string) string {
	switch t {
	case "double", "float":
		return "float64"
	case "int", "integer", "long":
		return "int64"
	case "str":
		return "string"
	case "boolean":
		return "bool"
	}
	return t
}

// UnmarshalYAML accepts both the dict layout (`properties: {name: {...}}`) and
// the list layout (`properties: [{name: ..., ...}]`) of data model documents,
// and the older name/version/namespace form of identifying them.
func (m *Metadata) UnmarshalYAML(node *yaml.Node) error {
	var raw rawMetadata
	if err := node.Decode(&raw); err != nil {
		return err
	}
	m.URI = raw.URI
	if m.URI == "" && raw.Name != "" {
		m.URI = strings.Join([]string{strings.TrimRight(raw.Namespace, "/"), raw.Version, raw.Name}, "/")
	}
	m.Description = raw.Description
	m.Dimensions = nil
	m.Properties = nil

	switch nodeKind(raw.Dimensions) {
	case 0:
	case yaml.MappingNode:
		for i := 0; i+1 < len(raw.Dimensions.Content); i += 2 {
			m.Dimensions = append(m.Dimensions, Dimension{
				Name:        raw.Dimensions.Content[i].Value,
				Description: raw.Dimensions.Content[i+1].Value,
			})
		}
	case yaml.SequenceNode:
		if err := raw.Dimensions.Decode(&m.Dimensions); err != nil {
			return errors.Wrap(err, "decoding dimensions")
		}
	default:
		return errors.Errorf("line %d: dimensions must be a mapping or a list", raw.Dimensions.Line)
	}

	switch nodeKind(raw.Properties) {
	case 0:
	case yaml.MappingNode:
		for i := 0; i+1 < len(raw.Properties.Content); i += 2 {
			var rp rawProperty
			if err := raw.Properties.Content[i+1].Decode(&rp); err != nil {
				return errors.Wrapf(err, "decoding property %s", raw.Properties.Content[i].Value)
			}
			m.Properties = append(m.Properties, rp.def(raw.Properties.Content[i].Value))
		}
	case yaml.SequenceNode:
		var rps []rawProperty
		if err := raw.Properties.Decode(&rps); err != nil {
			return errors.Wrap(err, "decoding properties")
		}
		for _, rp := range rps {
			m.Properties = append(m.Properties, rp.def(""))
		}
	default:
		return errors.Errorf("line %d: properties must be a mapping or a list", raw.Properties.Line)
	}
	return m.validate()
}

// nodeKind is the kind of n, with explicit nulls treated as absent.
func nodeKind(n yaml.Node) yaml.Kind {
	if n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null" {
		return 0
	}
	return n.Kind
}

// UnmarshalJSON decodes a JSON data model document. JSON is a subset of YAML,
// so this defers to UnmarshalYAML.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return err
	}
	if node.Kind == yaml.DocumentNode && len(node.Content) == 1 {
		return m.UnmarshalYAML(node.Content[0])
	}
	return m.UnmarshalYAML(&node)
}

func (m *Metadata) validate() error {
	if m.URI == "" {
		return errors.New("data model has no uri")
	}
	for _, p := range m.Properties {
		for _, d := range p.Shape {
			if m.DimensionIndex(d) < 0 {
				return errors.Errorf("property %s of %s refers to unknown dimension %s", p.Name, m.URI, d)
			}
		}
	}
	return nil
}

// ParseMetadata decodes a data model from JSON or YAML.
func ParseMetadata(data []byte) (*Metadata, error) {
	m := &Metadata{}
	err := yaml.Unmarshal(data, m)
	if err != nil {
		// tab-indented JSON is not valid YAML; compact it and try again
		var v interface{}
		if jerr := json.Unmarshal(data, &v); jerr != nil {
			return nil, DecodeError(err, "parse metadata")
		}
		compact, _ := json.Marshal(v)
		m = &Metadata{}
		if err = yaml.Unmarshal(compact, m); err != nil {
			return nil, DecodeError(err, "parse metadata")
		}
	}
	return m, nil
}

// MetaStore resolves data model URIs to Metadata. It looks in an in-memory
// registry first, then scans its storage paths, and finally (if Fetcher is
// set) downloads the URI itself.
type MetaStore struct {
	// Fetcher is used to download data models which are not found locally.
	Fetcher Fetcher

	// EntitiesDir is where downloaded data models are written so that they
	// are found on the storage path next time. Empty means don't write.
	EntitiesDir string

	mu    sync.RWMutex
	paths []string
	metas map[string]*Metadata
}

// NewMetaStore returns a MetaStore searching the given storage paths.
func NewMetaStore(paths ...string) *MetaStore {
	return &MetaStore{
		paths: paths,
		metas: make(map[string]*Metadata),
	}
}

// AddPaths appends "|" separated storage paths. Paths already searched are
// skipped.
func (s *MetaStore) AddPaths(paths string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range strings.Split(paths, "|") {
		if p = strings.TrimSpace(p); p != "" && !s.hasPath(p) {
			s.paths = append(s.paths, p)
		}
	}
}

func (s *MetaStore) hasPath(p string) bool {
	for _, q := range s.paths {
		if q == p {
			return true
		}
	}
	return false
}

// Paths returns the storage paths.
func (s *MetaStore) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.paths...)
}

// Register makes m resolvable by its URI.
func (s *MetaStore) Register(m *Metadata) {
	s.mu.Lock()
	s.metas[canonicalURI(m.URI)] = m
	s.mu.Unlock()
}

func canonicalURI(uri string) string {
	return strings.TrimRight(uri, "/#")
}

func (s *MetaStore) lookup(uri string) (*Metadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.metas[canonicalURI(uri)]
	return m, ok
}

// Get returns the data model with the given URI.
func (s *MetaStore) Get(ctx context.Context, uri string) (*Metadata, error) {
	if m, ok := s.lookup(uri); ok {
		return m, nil
	}
	for _, p := range s.Paths() {
		if err := s.scan(p); err != nil {
			return nil, err
		}
		if m, ok := s.lookup(uri); ok {
			return m, nil
		}
	}
	if s.Fetcher == nil {
		return nil, MissingError("get metadata %s", uri)
	}
	return s.fetch(ctx, uri)
}

// scan registers every data model document found at pathname. Files which
// don't decode as data models are skipped.
func (s *MetaStore) scan(pathname string) error {
	if _, err := os.Stat(pathname); os.IsNotExist(err) {
		return nil
	}
	rs, err := file.NewRawSource(pathname)
	if err != nil {
		return StorageError(err, "scan storage path %s", pathname)
	}
	for {
		reader, err := rs.NextReader()
		if err == io.EOF {
			break
		} else if err != nil {
			return StorageError(err, "scan storage path %s", pathname)
		}
		switch strings.ToLower(filepath.Ext(reader.Name())) {
		case ".json", ".yaml", ".yml":
		default:
			reader.Close()
			continue
		}
		data, err := ioutil.ReadAll(reader)
		reader.Close()
		if err != nil {
			return StorageError(err, "reading %s", reader.Name())
		}
		m, err := ParseMetadata(data)
		if err != nil {
			continue
		}
		s.Register(m)
	}
	return nil
}

func (s *MetaStore) fetch(ctx context.Context, uri string) (*Metadata, error) {
	data, err := s.Fetcher.Fetch(ctx, uri)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching metadata %s", uri)
	}
	m, err := ParseMetadata(data)
	if err != nil {
		return nil, err
	}
	if s.EntitiesDir != "" {
		if err := os.MkdirAll(s.EntitiesDir, 0755); err != nil {
			return nil, StorageError(err, "creating entities dir")
		}
		name := path.Base(uri)
		if u, err := url.Parse(uri); err == nil && u.Path != "" {
			name = path.Base(u.Path)
		}
		name = strings.TrimSuffix(name, path.Ext(name)) + ".json"
		if err := ioutil.WriteFile(filepath.Join(s.EntitiesDir, name), data, 0644); err != nil {
			return nil, StorageError(err, "storing metadata %s", uri)
		}
	}
	s.Register(m)
	if canonicalURI(m.URI) != canonicalURI(uri) {
		s.mu.Lock()
		s.metas[canonicalURI(uri)] = m
		s.mu.Unlock()
	}
	return m, nil
}
