package dlite

import (
	"sync"

	"github.com/pkg/errors"
)

// CollectionMeta is the data model URI collections are stored as.
const CollectionMeta = "http://onto-ns.com/meta/0.1/Collection"

// Collection holds labelled instances and the relations between them. It is
// safe for concurrent use.
type Collection struct {
	UUID string
	ID   string

	mu        sync.RWMutex
	labels    []string
	instances map[string]*Instance
	relations []Relation
	seen      map[Relation]struct{}
}

var _ Storable = &Collection{}

// NewCollection creates an empty collection. See instanceUUID for how id
// relates to the collection's UUID.
func NewCollection(id string) *Collection {
	return &Collection{
		UUID:      instanceUUID(id),
		ID:        id,
		instances: make(map[string]*Instance),
		seen:      make(map[Relation]struct{}),
	}
}

// Add stores inst under label, replacing any instance with that label.
func (c *Collection) Add(label string, inst *Instance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.instances[label]; !ok {
		c.labels = append(c.labels, label)
	}
	c.instances[label] = inst
	c.addRelation(Relation{label, "_is-a", "Instance"})
	c.addRelation(Relation{label, "_has-uuid", inst.UUID})
	c.addRelation(Relation{label, "_has-meta", inst.Meta.URI})
}

// Get returns the instance stored under label.
func (c *Collection) Get(label string) (*Instance, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inst, ok := c.instances[label]
	if !ok {
		return nil, MissingError("get instance %q from collection %s", label, c.UUID)
	}
	return inst, nil
}

// Labels returns the instance labels in insertion order.
func (c *Collection) Labels() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.labels...)
}

// Relations returns a copy of the relations in insertion order.
func (c *Collection) Relations() []Relation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Relation(nil), c.relations...)
}

// AddRelation adds the relation (s, p, o) unless it is already present.
func (c *Collection) AddRelation(s, p, o string) {
	c.mu.Lock()
	c.addRelation(Relation{s, p, o})
	c.mu.Unlock()
}

func (c *Collection) addRelation(r Relation) {
	if _, ok := c.seen[r]; ok {
		return
	}
	c.seen[r] = struct{}{}
	c.relations = append(c.relations, r)
}

// Copy returns a new collection with the given id holding the same instances
// and relations.
func (c *Collection) Copy(newID string) *Collection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cp := NewCollection(newID)
	cp.labels = append(cp.labels, c.labels...)
	for k, v := range c.instances {
		cp.instances[k] = v
	}
	for _, r := range c.relations {
		cp.addRelation(r)
	}
	return cp
}

// GetInstances returns the instances of meta. With propertyMappings, a single
// new instance of meta is built from the mapping relations in the collection
// instead (see Reconcile); unless allowIncomplete is set, it is an error if
// some property of meta can't be resolved.
func (c *Collection) GetInstances(meta *Metadata, propertyMappings, allowIncomplete bool) ([]*Instance, error) {
	if !propertyMappings {
		var out []*Instance
		for _, label := range c.Labels() {
			inst, _ := c.Get(label)
			if canonicalURI(inst.Meta.URI) == canonicalURI(meta.URI) {
				out = append(out, inst)
			}
		}
		if len(out) == 0 {
			return nil, MissingError("get instances of %s", meta.URI)
		}
		return out, nil
	}

	relations := c.Relations()
	values := make(map[string]interface{})
	for _, label := range c.Labels() {
		inst, _ := c.Get(label)
		if canonicalURI(inst.Meta.URI) == canonicalURI(meta.URI) {
			continue
		}
		for k, v := range Reconcile(relations, canonicalURI(meta.URI), inst) {
			values[k] = v
		}
	}

	var missing []string
	for _, p := range meta.Properties {
		if _, ok := values[p.Name]; !ok {
			missing = append(missing, p.Name)
		}
	}
	if len(missing) > 0 && !allowIncomplete {
		return nil, MissingError("mapping properties %v of %s", missing, meta.URI)
	}

	dims, err := InferDims(meta, values)
	if err != nil {
		return nil, err
	}
	inst, err := meta.NewInstance(dims, "")
	if err != nil {
		return nil, err
	}
	for _, p := range meta.Properties {
		v, ok := values[p.Name]
		if !ok {
			continue
		}
		if err := inst.Set(p.Name, v); err != nil {
			return nil, errors.Wrapf(err, "mapping %s", p.Name)
		}
	}
	return []*Instance{inst}, nil
}

// InferDims returns the dimension sizes of meta implied by the lengths of
// the list valued properties in values. Dimensions no value spans are 0.
func InferDims(meta *Metadata, values map[string]interface{}) ([]int, error) {
	dims := make([]int, len(meta.Dimensions))
	for _, p := range meta.Properties {
		v, ok := values[p.Name]
		if !ok || len(p.Shape) == 0 {
			continue
		}
		shape, err := listShape(v)
		if err != nil {
			return nil, DecodeError(err, "shape of %s", p.Name)
		}
		for i, d := range p.Shape {
			if i >= len(shape) {
				break
			}
			idx := meta.DimensionIndex(d)
			if dims[idx] == 0 {
				dims[idx] = shape[i]
			}
		}
	}
	return dims, nil
}

func listShape(v interface{}) ([]int, error) {
	switch l := v.(type) {
	case []string:
		return []int{len(l)}, nil
	case []bool:
		return []int{len(l)}, nil
	}
	a, err := NewArray(v)
	if err != nil {
		return nil, err
	}
	return a.Shape, nil
}

func (c *Collection) relationLists() [][3]string {
	rels := c.Relations()
	out := make([][3]string, len(rels))
	for i, r := range rels {
		out[i] = [3]string{r.S, r.P, r.O}
	}
	return out
}

// AsProperties exposes the collection through the Properties interface. A
// collection has a single property, "relations", holding [s, p, o] lists.
// Setting it adds the given relations to the existing ones.
func (c *Collection) AsProperties() Properties { return collectionProps{c} }

type collectionProps struct{ c *Collection }

func (p collectionProps) Get(name string) (interface{}, bool) {
	if name != "relations" {
		return nil, false
	}
	return p.c.relationLists(), true
}

func (p collectionProps) Names() []string { return []string{"relations"} }

func (p collectionProps) Set(name string, value interface{}) error {
	if name != "relations" {
		return ConfigError(errors.Errorf("no property %q in collection", name), "set property")
	}
	switch rels := value.(type) {
	case []Relation:
		for _, r := range rels {
			p.c.AddRelation(r.S, r.P, r.O)
		}
	case [][3]string:
		for _, r := range rels {
			p.c.AddRelation(r[0], r[1], r[2])
		}
	default:
		return DecodeError(errors.Errorf("unsupported relations type %T", value), "set relations")
	}
	return nil
}

// Record implements Storable.
func (c *Collection) Record() *Record {
	rels := c.relationLists()
	return &Record{
		UUID:       c.UUID,
		URI:        c.ID,
		Meta:       CollectionMeta,
		Dimensions: map[string]int{"nrelations": len(rels)},
		Properties: map[string]interface{}{"relations": rels},
	}
}

// Snapshot is the serializable form of a collection, carrying the data
// models of the instances it holds.
type Snapshot struct {
	UUID      string               `json:"uuid"`
	ID        string               `json:"id,omitempty"`
	Labels    []string             `json:"labels"`
	Instances map[string]*Record   `json:"instances"`
	Relations []Relation           `json:"relations"`
	Metadata  map[string]*Metadata `json:"metadata"`
}

// Snapshot returns the serializable form of c.
func (c *Collection) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := &Snapshot{
		UUID:      c.UUID,
		ID:        c.ID,
		Labels:    append([]string{}, c.labels...),
		Instances: make(map[string]*Record, len(c.instances)),
		Relations: append([]Relation{}, c.relations...),
		Metadata:  make(map[string]*Metadata),
	}
	for label, inst := range c.instances {
		s.Instances[label] = inst.Record()
		s.Metadata[inst.Meta.URI] = inst.Meta
	}
	return s
}

// FromSnapshot rebuilds a collection.
func FromSnapshot(s *Snapshot) (*Collection, error) {
	c := NewCollection(s.ID)
	if s.UUID != "" {
		c.UUID = s.UUID
	}
	for _, label := range s.Labels {
		r, ok := s.Instances[label]
		if !ok {
			return nil, DecodeError(errors.Errorf("no instance for label %q", label), "restore collection %s", s.UUID)
		}
		m, ok := s.Metadata[r.Meta]
		if !ok {
			return nil, DecodeError(errors.Errorf("no metadata %s", r.Meta), "restore collection %s", s.UUID)
		}
		inst, err := InstanceFromRecord(m, r)
		if err != nil {
			return nil, err
		}
		c.labels = append(c.labels, label)
		c.instances[label] = inst
	}
	for _, r := range s.Relations {
		c.addRelation(r)
	}
	return c, nil
}
