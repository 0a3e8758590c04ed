package mapping_test

import (
	"context"
	"strings"
	"testing"

	dlite "github.com/pilosa/oteapi-dlite"
	"github.com/pilosa/oteapi-dlite/mapping"
	"github.com/pilosa/oteapi-dlite/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	forces = "http://onto-ns.com/meta/0.1/Forces#"
	energy = "http://onto-ns.com/meta/0.1/Energy#"
)

func relations(t *testing.T, sess *dlite.Session) map[dlite.Relation]int {
	t.Helper()
	coll, err := sess.Collection(context.Background(), sess.State().CollectionID)
	require.NoError(t, err)
	rels := make(map[dlite.Relation]int)
	for _, r := range coll.Relations() {
		rels[r]++
	}
	return rels
}

func TestMappingWithoutPrefixes(t *testing.T) {
	sess, _ := test.NewSession(t, nil)
	p := &dlite.Pipeline{Steps: []dlite.StrategyConfig{{
		MappingType: mapping.MappingType,
		Configuration: map[string]interface{}{
			"triples": []interface{}{
				[]interface{}{forces + "forces", mapping.MapsTo, mapping.EMMO + "Force"},
				[]interface{}{energy + "energy", mapping.MapsTo, mapping.EMMO + "PotentialEnergy"},
			},
		},
	}}}
	require.NoError(t, p.Run(context.Background(), sess))

	rels := relations(t, sess)
	assert.Equal(t, 1, rels[dlite.Relation{S: forces + "forces", P: mapping.MapsTo, O: mapping.EMMO + "Force"}])
	assert.Equal(t, 1, rels[dlite.Relation{S: energy + "energy", P: mapping.MapsTo, O: mapping.EMMO + "PotentialEnergy"}])
}

func TestMappingWithPrefixes(t *testing.T) {
	sess, _ := test.NewSession(t, nil)
	p := &dlite.Pipeline{Steps: []dlite.StrategyConfig{{
		MappingType: mapping.MappingType,
		Configuration: map[string]interface{}{
			"prefixes": map[string]interface{}{
				"f":    forces,
				"e":    energy,
				"map":  mapping.MAP,
				"emmo": mapping.EMMO,
			},
			"triples": [][]string{
				{"f:forces", "map:mapsTo", "emmo:Force"},
				{"e:energy", "map:mapsTo", "emmo:PotentialEnergy"},
				{"f:forces", "map:mapsTo", "emmo:Force"},
			},
		},
	}}}
	require.NoError(t, p.Run(context.Background(), sess))

	rels := relations(t, sess)
	for r, n := range rels {
		assert.Equal(t, 1, n, "%s", r)
	}
	assert.Len(t, rels, 2)
	assert.Contains(t, rels, dlite.Relation{S: forces + "forces", P: mapping.MapsTo, O: mapping.EMMO + "Force"})
	assert.Contains(t, rels, dlite.Relation{S: energy + "energy", P: mapping.MapsTo, O: mapping.EMMO + "PotentialEnergy"})
}

func TestMappingOnStep(t *testing.T) {
	p, err := dlite.LoadPipeline(strings.NewReader(`
steps:
  - mappingType: mappings
    prefixes:
      f: "` + forces + `"
      emmo: "` + mapping.EMMO + `"
    triples:
      - ["f:forces", "` + mapping.MapsTo + `", "emmo:Force"]
    configuration:
      prefixes:
        e: "` + energy + `"
      triples:
        - ["e:energy", "` + mapping.MapsTo + `", "emmo:PotentialEnergy"]
`))
	require.NoError(t, err)
	sess, _ := test.NewSession(t, nil)
	require.NoError(t, p.Run(context.Background(), sess))

	rels := relations(t, sess)
	assert.Len(t, rels, 2)
	assert.Contains(t, rels, dlite.Relation{S: forces + "forces", P: mapping.MapsTo, O: mapping.EMMO + "Force"})
	assert.Contains(t, rels, dlite.Relation{S: energy + "energy", P: mapping.MapsTo, O: mapping.EMMO + "PotentialEnergy"})

	_, err = dlite.NewStrategy(dlite.StrategyConfig{
		MappingType: mapping.MappingType,
		Triples:     [][]string{{"a", "b"}},
	})
	assert.Equal(t, dlite.KindConfig, dlite.KindOf(err))
}

func TestExpand(t *testing.T) {
	prefixes := map[string]string{"f": forces}
	assert.Equal(t, forces+"x", mapping.Expand(prefixes, "f:x"))
	assert.Equal(t, "g:x", mapping.Expand(prefixes, "g:x"))
	assert.Equal(t, "http://example.com/f", mapping.Expand(map[string]string{"http": "nope"}, "http://example.com/f"))
	assert.Equal(t, "plain", mapping.Expand(prefixes, "plain"))
}

func TestBadTriple(t *testing.T) {
	_, err := dlite.NewStrategy(dlite.StrategyConfig{
		MappingType:   mapping.MappingType,
		Configuration: map[string]interface{}{"triples": [][]string{{"a", "b"}}},
	})
	assert.Equal(t, dlite.KindConfig, dlite.KindOf(err))
}
