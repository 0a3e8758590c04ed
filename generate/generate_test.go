package generate_test

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"testing"

	dlite "github.com/pilosa/oteapi-dlite"
	"github.com/pilosa/oteapi-dlite/generate"
	_ "github.com/pilosa/oteapi-dlite/json"
	"github.com/pilosa/oteapi-dlite/mock"
	"github.com/pilosa/oteapi-dlite/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	outputURI = "http://onto-ns.com/meta/0.1/Output"
	output    = `{"uri": "http://onto-ns.com/meta/0.1/Output", "properties": {"sigma": {"type": "float64"}}}`
	stress    = "https://w3id.org/emmo#Stress"
	mapsTo    = "http://emmo.info/domain-mappings#mapsTo"
)

// setup returns a session whose collection holds a HallPetch instance
// labelled "hp" and relations mapping its theta0 and the sigma of Output to
// the same concept.
func setup(t *testing.T) (*dlite.Session, *dlite.Collection, *mock.Cache) {
	t.Helper()
	ctx := context.Background()
	cache := mock.NewCache()
	sess, _ := test.NewSession(t, nil, dlite.OptSessionCache(cache))
	sess.Metas.Register(test.MustMeta(t, output))

	meta, err := sess.Metas.Get(ctx, test.HallPetchURI)
	require.NoError(t, err)
	inst, err := meta.NewInstance(nil, "hp-1")
	require.NoError(t, err)
	require.NoError(t, inst.Set("theta0", 50))
	require.NoError(t, inst.Set("k", 0.02))

	coll, err := sess.Collection(ctx, "")
	require.NoError(t, err)
	coll.Add("hp", inst)
	coll.AddRelation(outputURI+"#sigma", mapsTo, stress)
	coll.AddRelation(test.HallPetchURI+"#theta0", mapsTo, stress)
	require.NoError(t, sess.SaveCollection(ctx, coll))
	return sess, coll, cache
}

func run(t *testing.T, sess *dlite.Session, conf map[string]interface{}) error {
	t.Helper()
	p := &dlite.Pipeline{Steps: []dlite.StrategyConfig{{
		FunctionType:  generate.FunctionType,
		Configuration: conf,
	}}}
	return p.Run(context.Background(), sess)
}

func TestGenerateFromLabel(t *testing.T) {
	sess, coll, cache := setup(t)
	require.NoError(t, run(t, sess, map[string]interface{}{
		"label":  "hp",
		"entity": outputURI,
	}))
	st := sess.State()
	assert.Equal(t, coll.UUID, st.CollectionID)
	assert.Equal(t, map[string]interface{}{"sigma": 50.0}, st.Properties)
	assert.Empty(t, cache.Data)
}

func TestGenerateEmptyEntity(t *testing.T) {
	sess, _, _ := setup(t)
	require.NoError(t, run(t, sess, map[string]interface{}{"label": "hp"}))
	assert.Empty(t, sess.State().Properties)
}

func TestGenerateSaveToCache(t *testing.T) {
	sess, _, cache := setup(t)
	require.NoError(t, run(t, sess, map[string]interface{}{
		"label":        "hp",
		"entity":       outputURI,
		"save":         true,
		"functionType": "application/json",
		"options":      "single",
	}))
	data, ok := cache.Data[generate.DefaultAccessKey]
	require.True(t, ok)
	assert.Contains(t, string(data), `"theta0": 50`)
	assert.Equal(t, generate.DefaultAccessKey, sess.State().Extra["key"])

	require.NoError(t, run(t, sess, map[string]interface{}{
		"label":            "hp",
		"save":             true,
		"driver":           "json",
		"datacache_config": map[string]interface{}{"accessKey": "mine"},
	}))
	assert.Contains(t, cache.Data, "mine")
}

func TestGenerateDatamodelToLocation(t *testing.T) {
	sess, _, _ := setup(t)
	loc := filepath.Join(test.TempDir(t, "generate"), "out.json")
	require.NoError(t, run(t, sess, map[string]interface{}{
		"datamodel": outputURI,
		"save":      true,
		"driver":    "json",
		"location":  loc,
	}))
	data, err := ioutil.ReadFile(loc)
	require.NoError(t, err)
	assert.Contains(t, string(data), outputURI)
	assert.Contains(t, string(data), `"sigma": 50`)
}

func TestGenerateStoreCollection(t *testing.T) {
	sess, coll, cache := setup(t)
	require.NoError(t, run(t, sess, map[string]interface{}{
		"store_collection":    true,
		"store_collection_id": "archived",
		"save":                true,
		"driver":              "json",
	}))
	cp, err := sess.Collections.Get(context.Background(), dlite.NewCollection("archived").UUID)
	require.NoError(t, err)
	assert.Equal(t, coll.Relations(), cp.Relations())
	assert.Contains(t, string(cache.Data[generate.DefaultAccessKey]), dlite.CollectionMeta)
}

func TestGenerateErrors(t *testing.T) {
	sess, _, _ := setup(t)

	err := run(t, sess, map[string]interface{}{"entity": outputURI})
	assert.Equal(t, dlite.KindConfig, dlite.KindOf(err))

	err = run(t, sess, map[string]interface{}{"label": "nope"})
	assert.Equal(t, dlite.KindMissing, dlite.KindOf(err))

	err = run(t, sess, map[string]interface{}{"label": "hp", "datamodel": outputURI})
	assert.Equal(t, dlite.KindConfig, dlite.KindOf(err))

	err = run(t, sess, map[string]interface{}{"label": "hp", "save": true, "functionType": "application/x-unknown"})
	assert.Equal(t, dlite.KindConfig, dlite.KindOf(err))

	err = run(t, sess, map[string]interface{}{"datamodel": test.CyclesURI})
	assert.Equal(t, dlite.KindMissing, dlite.KindOf(err))
}
