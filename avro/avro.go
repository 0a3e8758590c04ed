// Package avro implements the "avro" storage driver, which writes an
// instance as a single record Avro Object Container File whose schema is
// derived from the instance's properties.
package avro

import (
	"bytes"
	"context"
	"encoding/json"
	"reflect"
	"sort"
	"strings"

	"github.com/linkedin/goavro"
	dlite "github.com/pilosa/oteapi-dlite"
	"github.com/pilosa/oteapi-dlite/file"
	"github.com/pkg/errors"
)

func init() {
	dlite.RegisterDriver("avro", dlite.DriverFunc(Save), "application/avro", "avro/binary")
}

// Save implements dlite.Driver. The "compression" option selects the OCF
// block codec ("null", "deflate" or "snappy").
func Save(ctx context.Context, st dlite.Storable, location string, opts dlite.Options) error {
	data, err := Encode(st.Record(), opts.Get("compression", goavro.CompressionNullLabel))
	if err != nil {
		return err
	}
	if err := file.WriteAtomic(location, data); err != nil {
		return dlite.StorageError(err, "avro save %s", location)
	}
	return nil
}

// Encode returns an OCF holding r.
func Encode(r *dlite.Record, compression string) ([]byte, error) {
	schema, datum, err := Schema(r)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               &buf,
		Schema:          schema,
		CompressionName: compression,
	})
	if err != nil {
		return nil, dlite.ConfigError(err, "avro writer for %s", r.Meta)
	}
	if err := w.Append([]interface{}{datum}); err != nil {
		return nil, dlite.DecodeError(err, "avro encode %s", r.UUID)
	}
	return buf.Bytes(), nil
}

// Schema returns the Avro schema of r and r converted to the native form
// goavro encodes. Property names which aren't valid Avro names have their
// offending characters replaced by underscores.
func Schema(r *dlite.Record) (string, map[string]interface{}, error) {
	names := make([]string, 0, len(r.Properties))
	for name := range r.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]map[string]interface{}, 0, len(names))
	props := make(map[string]interface{}, len(names))
	fieldOf := make(map[string]string, len(names))
	for _, name := range names {
		typ, v, err := native(reflect.ValueOf(r.Properties[name]))
		if err != nil {
			return "", nil, errors.Wrapf(err, "property %s", name)
		}
		n := avroName(name)
		if prev, ok := fieldOf[n]; ok {
			return "", nil, dlite.ConfigError(errors.Errorf("properties %s and %s both map to avro field %s", prev, name, n), "avro schema of %s", r.Meta)
		}
		fieldOf[n] = name
		fields = append(fields, map[string]interface{}{"name": n, "type": typ})
		props[n] = v
	}
	dims := make(map[string]interface{}, len(r.Dimensions))
	for k, v := range r.Dimensions {
		dims[k] = int64(v)
	}

	schema := map[string]interface{}{
		"type":      "record",
		"name":      avroName(recordName(r.Meta)),
		"namespace": "dlite",
		"fields": []interface{}{
			map[string]interface{}{"name": "uuid", "type": "string"},
			map[string]interface{}{"name": "meta", "type": "string"},
			map[string]interface{}{"name": "dimensions", "type": map[string]interface{}{"type": "map", "values": "long"}},
			map[string]interface{}{"name": "properties", "type": map[string]interface{}{
				"type":   "record",
				"name":   "Properties",
				"fields": fields,
			}},
		},
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return "", nil, errors.Wrap(err, "encoding schema")
	}
	return string(data), map[string]interface{}{
		"uuid":       r.UUID,
		"meta":       r.Meta,
		"dimensions": dims,
		"properties": props,
	}, nil
}

// native returns the Avro type of v and v in the form goavro takes for it.
func native(v reflect.Value) (interface{}, interface{}, error) {
	for v.Kind() == reflect.Interface || v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return "null", nil, nil
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return "double", v.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "long", v.Int(), nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return "long", int64(v.Uint()), nil
	case reflect.Bool:
		return "boolean", v.Bool(), nil
	case reflect.String:
		return "string", v.String(), nil
	case reflect.Slice, reflect.Array:
		items := make([]interface{}, v.Len())
		var itemType interface{} = "null"
		for i := range items {
			t, item, err := native(v.Index(i))
			if err != nil {
				return nil, nil, errors.Wrapf(err, "index %d", i)
			}
			if i == 0 {
				itemType = t
			} else if !reflect.DeepEqual(t, itemType) {
				return nil, nil, errors.Errorf("mixed list item types %v and %v", itemType, t)
			}
			items[i] = item
		}
		return map[string]interface{}{"type": "array", "items": itemType}, items, nil
	}
	return nil, nil, errors.Errorf("unsupported type %s", v.Type())
}

// recordName is the last path segment of a data model URI.
func recordName(meta string) string {
	meta = strings.TrimRight(meta, "/#")
	return meta[strings.LastIndexAny(meta, "/#")+1:]
}

func avroName(s string) string {
	b := []byte(s)
	for i, c := range b {
		ok := c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || i > 0 && c >= '0' && c <= '9'
		if !ok {
			b[i] = '_'
		}
	}
	if len(b) == 0 {
		return "_"
	}
	return string(b)
}
