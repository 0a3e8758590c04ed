package json

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	dlite "github.com/pilosa/oteapi-dlite"
	"github.com/pilosa/oteapi-dlite/file"
	"github.com/pkg/errors"
)

func init() {
	dlite.RegisterDriver("json", Driver{}, "application/json", "text/json")
}

// Document is the body of one instance in the DLite JSON layout.
type Document struct {
	Meta       string                 `json:"meta"`
	URI        string                 `json:"uri,omitempty"`
	Dimensions map[string]int         `json:"dimensions"`
	Properties map[string]interface{} `json:"properties"`
}

// Driver writes instances to a json file. The file holds an object mapping
// UUIDs to Documents, or with the option "single" a bare Document with a
// "uuid" key. With "mode=a" instances are added to an existing file instead
// of replacing it. "indent" sets the indentation width (default 2, 0 for
// compact output).
type Driver struct{}

// Save implements dlite.Driver.
func (Driver) Save(ctx context.Context, s dlite.Storable, location string, opts dlite.Options) error {
	data, err := Marshal(s.Record(), location, opts)
	if err != nil {
		return err
	}
	if err := file.WriteAtomic(location, data); err != nil {
		return dlite.StorageError(err, "json save %s", location)
	}
	return nil
}

// Marshal encodes r the way Driver.Save would write it to location. location
// is only read, for "mode=a".
func Marshal(r *dlite.Record, location string, opts dlite.Options) ([]byte, error) {
	doc := Document{
		Meta:       r.Meta,
		URI:        r.URI,
		Dimensions: r.Dimensions,
		Properties: r.Properties,
	}
	var v interface{}
	if opts.Bool("single") {
		v = struct {
			UUID string `json:"uuid"`
			Document
		}{r.UUID, doc}
	} else {
		all := make(map[string]interface{})
		if strings.HasPrefix(opts.Get("mode", "w"), "a") {
			existing, err := ioutil.ReadFile(location)
			if err != nil && !os.IsNotExist(err) {
				return nil, dlite.StorageError(err, "json read %s", location)
			}
			if len(existing) > 0 {
				if err := json.Unmarshal(existing, &all); err != nil {
					return nil, dlite.DecodeError(err, "json read %s", location)
				}
			}
		}
		all[r.UUID] = doc
		v = all
	}

	indent, err := strconv.Atoi(opts.Get("indent", "2"))
	if err != nil {
		return nil, dlite.ConfigError(errors.Wrap(err, "indent option"), "json save")
	}
	var data []byte
	if indent > 0 {
		data, err = json.MarshalIndent(v, "", strings.Repeat(" ", indent))
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return nil, dlite.DecodeError(err, "json encode %s", r.UUID)
	}
	return data, nil
}
