package avro_test

import (
	"bytes"
	"context"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/linkedin/goavro"
	dlite "github.com/pilosa/oteapi-dlite"
	"github.com/pilosa/oteapi-dlite/avro"
	"github.com/pilosa/oteapi-dlite/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readOne(t *testing.T, data []byte) map[string]interface{} {
	t.Helper()
	r, err := goavro.NewOCFReader(bytes.NewReader(data))
	require.NoError(t, err)
	require.True(t, r.Scan())
	datum, err := r.Read()
	require.NoError(t, err)
	assert.False(t, r.Scan())
	return datum.(map[string]interface{})
}

func TestSave(t *testing.T) {
	inst, err := test.MustMeta(t, test.Cycles).NewInstance([]int{3}, "run")
	require.NoError(t, err)
	require.NoError(t, inst.Set("time", []float64{0, 1, 2}))
	require.NoError(t, inst.Set("voltage", []float64{3.5, 3.25, 3}))

	loc := filepath.Join(test.TempDir(t, "avro"), "cycles.avro")
	d, err := dlite.LookupDriver("avro")
	require.NoError(t, err)
	require.NoError(t, d.Save(context.Background(), inst, loc, dlite.ParseOptions("compression=deflate")))

	data, err := ioutil.ReadFile(loc)
	require.NoError(t, err)
	got := readOne(t, data)
	assert.Equal(t, inst.UUID, got["uuid"])
	assert.Equal(t, test.CyclesURI, got["meta"])
	assert.Equal(t, map[string]interface{}{"N": int64(3)}, got["dimensions"])
	props := got["properties"].(map[string]interface{})
	assert.Equal(t, []interface{}{3.5, 3.25, 3.0}, props["voltage"])
	assert.NotContains(t, props, "current")
}

func TestSchemaOfCollection(t *testing.T) {
	c := dlite.NewCollection("")
	c.AddRelation("s", "p", "o")
	schema, _, err := avro.Schema(c.Record())
	require.NoError(t, err)
	assert.Contains(t, schema, `"name":"Collection"`)
	assert.Contains(t, schema, `"name":"relations"`)

	data, err := avro.Encode(c.Record(), "null")
	require.NoError(t, err)
	props := readOne(t, data)["properties"].(map[string]interface{})
	assert.Equal(t, []interface{}{[]interface{}{"s", "p", "o"}}, props["relations"])
}

func TestSchemaErrors(t *testing.T) {
	_, _, err := avro.Schema(&dlite.Record{Meta: "m", Properties: map[string]interface{}{
		"mixed": []interface{}{1.0, "a"},
	}})
	assert.Error(t, err)
	_, _, err = avro.Schema(&dlite.Record{Meta: "m", Properties: map[string]interface{}{
		"m": map[string]int{},
	}})
	assert.Error(t, err)
}

func TestSchemaFieldCollision(t *testing.T) {
	_, _, err := avro.Schema(&dlite.Record{Meta: "m", Properties: map[string]interface{}{
		"a-b": 1.0,
		"a_b": 2.0,
	}})
	require.Error(t, err)
	assert.Equal(t, dlite.KindConfig, dlite.KindOf(err))
	assert.Contains(t, err.Error(), "a-b and a_b")

	schema, _, err := avro.Schema(&dlite.Record{Meta: "m", Properties: map[string]interface{}{
		"a-b": 1.0,
		"a_c": 2.0,
	}})
	require.NoError(t, err)
	assert.Contains(t, schema, `"name":"a_b"`)
}
