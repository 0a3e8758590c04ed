package dlite

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Properties is the narrow capability the reconciler and the strategies need
// from anything carrying named property values.
type Properties interface {
	Get(name string) (interface{}, bool)
	Set(name string, value interface{}) error
	Names() []string
}

// Storable is implemented by things which storage drivers can serialize.
type Storable interface {
	Record() *Record
}

// Record is the plain, serializable form of an instance. Array values are
// converted to nested lists.
type Record struct {
	UUID       string                 `json:"uuid" yaml:"uuid"`
	URI        string                 `json:"uri,omitempty" yaml:"uri,omitempty"`
	Meta       string                 `json:"meta" yaml:"meta"`
	Dimensions map[string]int         `json:"dimensions" yaml:"dimensions"`
	Properties map[string]interface{} `json:"properties" yaml:"properties"`
}

// Instance is an instance of a data model holding property values.
type Instance struct {
	UUID string
	ID   string
	Meta *Metadata

	dims  map[string]int
	props map[string]interface{}
}

var (
	_ Properties = &Instance{}
	_ Storable   = &Instance{}
)

func newInstance(m *Metadata, id string) *Instance {
	return &Instance{
		UUID:  instanceUUID(id),
		ID:    id,
		Meta:  m,
		dims:  make(map[string]int),
		props: make(map[string]interface{}),
	}
}

// instanceUUID returns id itself if it is a UUID, a name based UUID derived
// from id otherwise, and a random UUID if id is empty.
func instanceUUID(id string) string {
	if id == "" {
		return uuid.New().String()
	}
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(id)).String()
}

// Dimension returns the size of the named dimension.
func (inst *Instance) Dimension(name string) (int, bool) {
	n, ok := inst.dims[name]
	return n, ok
}

// Dims returns the dimension sizes in the order declared by the metadata.
func (inst *Instance) Dims() []int {
	dims := make([]int, len(inst.Meta.Dimensions))
	for i, d := range inst.Meta.Dimensions {
		dims[i] = inst.dims[d.Name]
	}
	return dims
}

// Get returns the value of the named property if it has been set.
func (inst *Instance) Get(name string) (interface{}, bool) {
	v, ok := inst.props[name]
	return v, ok
}

// Names returns the names of the properties which have been set, in the
// order they are declared by the metadata.
func (inst *Instance) Names() []string {
	names := make([]string, 0, len(inst.props))
	for _, p := range inst.Meta.Properties {
		if _, ok := inst.props[p.Name]; ok {
			names = append(names, p.Name)
		}
	}
	return names
}

// Set assigns value to the named property, converting it to the type and
// shape declared by the metadata.
func (inst *Instance) Set(name string, value interface{}) error {
	def, ok := inst.Meta.Property(name)
	if !ok {
		return ConfigError(errors.Errorf("no property %q in %s", name, inst.Meta.URI), "set property")
	}
	v, err := inst.convert(def, value)
	if err != nil {
		return DecodeError(err, "set property %s", name)
	}
	inst.props[name] = v
	return nil
}

func (inst *Instance) convert(def PropertyDef, value interface{}) (interface{}, error) {
	if len(def.Shape) == 0 {
		return convertScalar(def.Type, value)
	}
	if def.Numeric() {
		a, err := NewArray(value)
		if err != nil {
			return nil, err
		}
		if len(a.Shape) != len(def.Shape) {
			return nil, errors.Errorf("expected %d dimensions %v, got shape %v", len(def.Shape), def.Shape, a.Shape)
		}
		if err := inst.checkShape(def, a.Shape); err != nil {
			return nil, err
		}
		return a, nil
	}
	if len(def.Shape) != 1 {
		return nil, errors.Errorf("only one dimensional %s properties are supported", def.Type)
	}
	val := derefValue(reflect.ValueOf(value))
	if val.Kind() != reflect.Slice && val.Kind() != reflect.Array {
		return nil, errors.Errorf("expected a list for %s, got %T", def.Name, value)
	}
	switch def.Type {
	case "string":
		out := make([]string, val.Len())
		for i := range out {
			s, err := convertScalar("string", val.Index(i).Interface())
			if err != nil {
				return nil, errors.Wrapf(err, "index %d", i)
			}
			out[i] = s.(string)
		}
		if err := inst.checkShape(def, []int{len(out)}); err != nil {
			return nil, err
		}
		return out, nil
	case "bool":
		out := make([]bool, val.Len())
		for i := range out {
			b, err := convertScalar("bool", val.Index(i).Interface())
			if err != nil {
				return nil, errors.Wrapf(err, "index %d", i)
			}
			out[i] = b.(bool)
		}
		if err := inst.checkShape(def, []int{len(out)}); err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, errors.Errorf("unsupported property type %q", def.Type)
}

// checkShape verifies shape against the instance dimensions. Dimensions of
// size zero are taken from the first value assigned along them.
func (inst *Instance) checkShape(def PropertyDef, shape []int) error {
	for i, d := range def.Shape {
		if n := inst.dims[d]; n != shape[i] {
			if n == 0 {
				inst.dims[d] = shape[i]
				continue
			}
			return errors.Errorf("dimension %s is %d, value has %d", d, n, shape[i])
		}
	}
	return nil
}

func convertScalar(typ string, value interface{}) (interface{}, error) {
	val := derefValue(reflect.ValueOf(value))
	switch typ {
	case "string":
		if val.Kind() == reflect.String {
			return val.String(), nil
		}
		if !val.IsValid() {
			return "", nil
		}
		return fmt.Sprint(val.Interface()), nil
	case "bool":
		if val.Kind() == reflect.Bool {
			return val.Bool(), nil
		}
		return nil, errors.Errorf("cannot use %v (%T) as bool", value, value)
	}
	if a, ok := value.(*Array); ok && len(a.Data) == 1 {
		val = reflect.ValueOf(a.Data[0])
	}
	f, ok := toFloat(val)
	if !ok {
		return nil, errors.Errorf("cannot use %v (%T) as %s", value, value, typ)
	}
	switch typ {
	case "float64":
		return f, nil
	case "float32":
		return float64(float32(f)), nil
	case "int64", "int32", "int16", "int8", "uint64", "uint32", "uint16", "uint8":
		if f != math.Trunc(f) {
			return nil, errors.Errorf("cannot use %v as %s without truncation", f, typ)
		}
		return int64(f), nil
	}
	return nil, errors.Errorf("unsupported property type %q", typ)
}

// Record implements Storable.
func (inst *Instance) Record() *Record {
	r := &Record{
		UUID:       inst.UUID,
		URI:        inst.ID,
		Meta:       inst.Meta.URI,
		Dimensions: make(map[string]int, len(inst.dims)),
		Properties: make(map[string]interface{}, len(inst.props)),
	}
	for k, v := range inst.dims {
		r.Dimensions[k] = v
	}
	for k, v := range inst.props {
		r.Properties[k] = plain(v)
	}
	return r
}

// plain converts arrays to nested lists and leaves other values alone.
func plain(v interface{}) interface{} {
	if a, ok := v.(*Array); ok {
		return a.ToList()
	}
	return v
}

// MarshalJSON encodes the instance as its Record.
func (inst *Instance) MarshalJSON() ([]byte, error) {
	return json.Marshal(inst.Record())
}

// InstanceFromRecord rebuilds an instance of m from a decoded Record.
func InstanceFromRecord(m *Metadata, r *Record) (*Instance, error) {
	if m.URI != r.Meta {
		return nil, DecodeError(errors.Errorf("record is a %s, not a %s", r.Meta, m.URI), "instance from record")
	}
	inst := newInstance(m, r.URI)
	inst.UUID = r.UUID
	for _, d := range m.Dimensions {
		inst.dims[d.Name] = r.Dimensions[d.Name]
	}
	for _, p := range m.Properties {
		v, ok := r.Properties[p.Name]
		if !ok {
			continue
		}
		if err := inst.Set(p.Name, v); err != nil {
			return nil, errors.Wrapf(err, "restoring %s", inst.UUID)
		}
	}
	return inst, nil
}

// PropertyMap is a Properties backed by a plain map, for values which are not
// tied to a data model.
type PropertyMap map[string]interface{}

var _ Properties = PropertyMap{}

// Get implements Properties.
func (m PropertyMap) Get(name string) (interface{}, bool) {
	v, ok := m[name]
	return v, ok
}

// Set implements Properties.
func (m PropertyMap) Set(name string, value interface{}) error {
	m[name] = value
	return nil
}

// Names implements Properties. Names are sorted.
func (m PropertyMap) Names() []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
