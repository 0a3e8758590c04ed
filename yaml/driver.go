// Package yaml implements the "yaml" storage driver, the YAML form of the
// DLite JSON layout.
package yaml

import (
	"bytes"
	"context"
	"io/ioutil"
	"os"
	"strings"

	dlite "github.com/pilosa/oteapi-dlite"
	"github.com/pilosa/oteapi-dlite/file"
	"gopkg.in/yaml.v3"
)

func init() {
	dlite.RegisterDriver("yaml", Driver{}, "application/yaml", "application/x-yaml", "text/yaml")
}

// Document is the body of one instance.
type Document struct {
	UUID       string                 `yaml:"uuid,omitempty"`
	Meta       string                 `yaml:"meta"`
	URI        string                 `yaml:"uri,omitempty"`
	Dimensions map[string]int         `yaml:"dimensions"`
	Properties map[string]interface{} `yaml:"properties"`
}

// Driver writes instances to a YAML file mapping UUIDs to Documents. With
// the option "single" the file holds one Document carrying its uuid, and
// with "mode=a" instances are added to an existing file.
type Driver struct{}

// Save implements dlite.Driver.
func (Driver) Save(ctx context.Context, s dlite.Storable, location string, opts dlite.Options) error {
	data, err := Marshal(s.Record(), location, opts)
	if err != nil {
		return err
	}
	if err := file.WriteAtomic(location, data); err != nil {
		return dlite.StorageError(err, "yaml save %s", location)
	}
	return nil
}

// Marshal encodes r the way Driver.Save writes it to location.
func Marshal(r *dlite.Record, location string, opts dlite.Options) ([]byte, error) {
	doc := Document{
		Meta:       r.Meta,
		URI:        r.URI,
		Dimensions: r.Dimensions,
		Properties: r.Properties,
	}
	var v interface{}
	if opts.Bool("single") {
		doc.UUID = r.UUID
		v = doc
	} else {
		all := make(map[string]interface{})
		if strings.HasPrefix(opts.Get("mode", "w"), "a") {
			existing, err := ioutil.ReadFile(location)
			if err != nil && !os.IsNotExist(err) {
				return nil, dlite.StorageError(err, "yaml read %s", location)
			}
			if err := yaml.Unmarshal(existing, &all); err != nil {
				return nil, dlite.DecodeError(err, "yaml read %s", location)
			}
			if all == nil {
				all = make(map[string]interface{})
			}
		}
		all[r.UUID] = doc
		v = all
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, dlite.DecodeError(err, "yaml encode %s", r.UUID)
	}
	if err := enc.Close(); err != nil {
		return nil, dlite.DecodeError(err, "yaml encode %s", r.UUID)
	}
	return buf.Bytes(), nil
}
