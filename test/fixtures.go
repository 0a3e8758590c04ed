package test

import (
	"testing"

	dlite "github.com/pilosa/oteapi-dlite"
	"github.com/pilosa/oteapi-dlite/mock"
)

// Data model URIs of the fixtures.
const (
	HallPetchURI = "http://onto-ns.com/meta/0.4/HallPetch"
	CyclesURI    = "http://onto-ns.com/meta/0.1/Cycles"
)

// HallPetch is a data model without dimensions.
const HallPetch = `{
  "uri": "http://onto-ns.com/meta/0.4/HallPetch",
  "description": "Hall-Petch relation between grain size and yield stress.",
  "dimensions": {},
  "properties": {
    "theta0": {"type": "float64", "unit": "MPa", "description": "Friction stress."},
    "k": {"type": "float64", "unit": "MPa*m^0.5", "description": "Strengthening coefficient."},
    "d": {"type": "float64", "unit": "m", "description": "Grain size."}
  }
}`

// HallPetchData is a document the JSON parser turns into a HallPetch.
const HallPetchData = `{"theta0": 50, "k": 0.02, "d": 0.0005, "comment": "not a property"}`

// Cycles is a data model of cycler measurements with one row per record, as
// produced by the mpr and influx parsers.
const Cycles = `
uri: http://onto-ns.com/meta/0.1/Cycles
description: Battery cycler measurements.
dimensions:
  N: Number of records.
properties:
  time:
    type: float64
    shape: [N]
    unit: s
  voltage:
    type: float64
    shape: [N]
    unit: V
  current:
    type: float64
    shape: [N]
    unit: mA
  cycle:
    type: float64
    shape: [N]
`

// MustMeta parses a data model document.
func MustMeta(t *testing.T, doc string) *dlite.Metadata {
	t.Helper()
	m, err := dlite.ParseMetadata([]byte(doc))
	ErrNil(t, err, "parsing metadata")
	return m
}

// NewSession returns a session whose fetcher serves docs, with HallPetch and
// Cycles registered.
func NewSession(t *testing.T, docs map[string][]byte, opts ...dlite.SessionOption) (*dlite.Session, *mock.Fetcher) {
	t.Helper()
	f := mock.NewFetcher(docs)
	metas := dlite.NewMetaStore()
	metas.Register(MustMeta(t, HallPetch))
	metas.Register(MustMeta(t, Cycles))
	opts = append([]dlite.SessionOption{
		dlite.OptSessionFetcher(f),
		dlite.OptSessionMetas(metas),
		dlite.OptSessionCache(mock.NewCache()),
	}, opts...)
	return dlite.NewSession(opts...), f
}
