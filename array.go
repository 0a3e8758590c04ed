package dlite

import (
	"reflect"

	"github.com/pkg/errors"
)

// Array is a dense, row-major, multi-dimensional numeric array. Shaped numeric
// properties of an Instance are stored as *Array.
type Array struct {
	Shape []int
	Data  []float64
}

// NewArray builds an Array from a numeric value: a *Array (copied), a flat
// slice of any numeric type, or arbitrarily nested slices (including
// []interface{} as produced by JSON and YAML decoders). Ragged input is an
// error.
func NewArray(v interface{}) (*Array, error) {
	if a, ok := v.(*Array); ok {
		return a.Copy(), nil
	}
	a := &Array{}
	shape, err := shapeOf(reflect.ValueOf(v))
	if err != nil {
		return nil, err
	}
	a.Shape = shape
	a.Data = make([]float64, 0, product(shape))
	if err := a.fill(reflect.ValueOf(v), 0); err != nil {
		return nil, err
	}
	return a, nil
}

func shapeOf(val reflect.Value) ([]int, error) {
	val = derefValue(val)
	if val.Kind() != reflect.Slice && val.Kind() != reflect.Array {
		if _, ok := toFloat(val); !ok {
			return nil, errors.Errorf("non-numeric array element %v of kind %v", val, val.Kind())
		}
		return nil, nil
	}
	shape := []int{val.Len()}
	if val.Len() == 0 {
		return shape, nil
	}
	inner, err := shapeOf(val.Index(0))
	if err != nil {
		return nil, err
	}
	return append(shape, inner...), nil
}

func (a *Array) fill(val reflect.Value, depth int) error {
	val = derefValue(val)
	if depth == len(a.Shape) {
		f, ok := toFloat(val)
		if !ok {
			return errors.Errorf("non-numeric array element %v at depth %d", val, depth)
		}
		a.Data = append(a.Data, f)
		return nil
	}
	if val.Kind() != reflect.Slice && val.Kind() != reflect.Array {
		return errors.Errorf("ragged array: expected a list at depth %d, got %v", depth, val.Kind())
	}
	if val.Len() != a.Shape[depth] {
		return errors.Errorf("ragged array: expected %d elements at depth %d, got %d", a.Shape[depth], depth, val.Len())
	}
	for i := 0; i < val.Len(); i++ {
		if err := a.fill(val.Index(i), depth+1); err != nil {
			return err
		}
	}
	return nil
}

func derefValue(val reflect.Value) reflect.Value {
	for val.Kind() == reflect.Interface || val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return val
		}
		val = val.Elem()
	}
	return val
}

func toFloat(val reflect.Value) (float64, bool) {
	switch val.Kind() {
	case reflect.Float32, reflect.Float64:
		return val.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(val.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(val.Uint()), true
	case reflect.Bool:
		if val.Bool() {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func product(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// Len returns the length of the first dimension.
func (a *Array) Len() int {
	if len(a.Shape) == 0 {
		return 0
	}
	return a.Shape[0]
}

// Copy returns a deep copy of a.
func (a *Array) Copy() *Array {
	return &Array{
		Shape: append([]int(nil), a.Shape...),
		Data:  append([]float64(nil), a.Data...),
	}
}

// ToList converts the array to nested []interface{} values holding float64s,
// with the same shape as the array. A zero-dimensional array converts to its
// single value.
func (a *Array) ToList() interface{} {
	if len(a.Shape) == 0 {
		if len(a.Data) == 0 {
			return nil
		}
		return a.Data[0]
	}
	list, _ := a.toList(0, 0)
	return list
}

func (a *Array) toList(depth, offset int) (interface{}, int) {
	if depth == len(a.Shape) {
		return a.Data[offset], offset + 1
	}
	out := make([]interface{}, a.Shape[depth])
	for i := range out {
		out[i], offset = a.toList(depth+1, offset)
	}
	return out, offset
}
