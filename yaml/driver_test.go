package yaml_test

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"testing"

	dlite "github.com/pilosa/oteapi-dlite"
	"github.com/pilosa/oteapi-dlite/test"
	dyaml "github.com/pilosa/oteapi-dlite/yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestSave(t *testing.T) {
	ctx := context.Background()
	meta := test.MustMeta(t, test.HallPetch)
	a, err := meta.NewInstance(nil, "a")
	require.NoError(t, err)
	require.NoError(t, a.Set("k", 0.5))
	b, err := meta.NewInstance(nil, "b")
	require.NoError(t, err)

	loc := filepath.Join(test.TempDir(t, "yaml"), "out.yaml")
	name, err := dlite.DriverForMediaType("application/yaml")
	require.NoError(t, err)
	d, err := dlite.LookupDriver(name)
	require.NoError(t, err)
	require.NoError(t, d.Save(ctx, a, loc, nil))
	require.NoError(t, d.Save(ctx, b, loc, dlite.ParseOptions("mode=a")))

	data, err := ioutil.ReadFile(loc)
	require.NoError(t, err)
	var all map[string]dyaml.Document
	require.NoError(t, yaml.Unmarshal(data, &all))
	require.Len(t, all, 2)
	assert.Equal(t, 0.5, all[a.UUID].Properties["k"])
	assert.Equal(t, test.HallPetchURI, all[b.UUID].Meta)
	assert.Equal(t, "b", all[b.UUID].URI)
}

func TestSingle(t *testing.T) {
	inst, err := test.MustMeta(t, test.Cycles).NewInstance([]int{2}, "")
	require.NoError(t, err)
	require.NoError(t, inst.Set("time", []float64{1, 2}))
	data, err := dyaml.Marshal(inst.Record(), "", dlite.ParseOptions("single"))
	require.NoError(t, err)

	var doc dyaml.Document
	require.NoError(t, yaml.Unmarshal(data, &doc))
	assert.Equal(t, inst.UUID, doc.UUID)
	assert.Equal(t, map[string]int{"N": 2}, doc.Dimensions)
	assert.Equal(t, []interface{}{1.0, 2.0}, doc.Properties["time"])
}
