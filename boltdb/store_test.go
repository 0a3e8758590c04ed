package boltdb_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/boltdb/bolt"
	dlite "github.com/pilosa/oteapi-dlite"
	"github.com/pilosa/oteapi-dlite/boltdb"
	"github.com/pilosa/oteapi-dlite/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hallPetch(t *testing.T) *dlite.Instance {
	t.Helper()
	inst, err := test.MustMeta(t, test.HallPetch).NewInstance(nil, "hp")
	require.NoError(t, err)
	require.NoError(t, inst.Set("theta0", 50))
	return inst
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	file := filepath.Join(test.TempDir(t, "boltstore"), "colls.db")
	s, err := boltdb.NewStore(file)
	require.NoError(t, err)

	_, err = s.Get(ctx, "nope")
	assert.Equal(t, dlite.KindMissing, dlite.KindOf(err))

	c := dlite.NewCollection("")
	c.Add("hp", hallPetch(t))
	c.AddRelation("a", "b", "c")
	require.NoError(t, s.Put(ctx, c))
	require.NoError(t, s.Close())

	s, err = boltdb.NewStore(file)
	require.NoError(t, err)
	defer s.Close()
	back, err := s.Get(ctx, c.UUID)
	require.NoError(t, err)
	assert.Equal(t, c.Relations(), back.Relations())
	inst, err := back.Get("hp")
	require.NoError(t, err)
	v, _ := inst.Get("theta0")
	assert.Equal(t, 50.0, v)

	ids, err := s.IDs()
	require.NoError(t, err)
	assert.Equal(t, []string{c.UUID}, ids)
}

func TestStoreAsSessionStore(t *testing.T) {
	ctx := context.Background()
	s, err := boltdb.NewStore(filepath.Join(test.TempDir(t, "boltstore"), "colls.db"))
	require.NoError(t, err)
	defer s.Close()

	sess, _ := test.NewSession(t, nil, dlite.OptSessionCollections(s))
	c, err := sess.Collection(ctx, "")
	require.NoError(t, err)
	c.Add("hp", hallPetch(t))
	require.NoError(t, sess.SaveCollection(ctx, c))

	again, err := sess.Collection(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"hp"}, again.Labels())
}

func TestDriver(t *testing.T) {
	ctx := context.Background()
	file := filepath.Join(test.TempDir(t, "boltdriver"), "insts.db")
	d, err := dlite.LookupDriver("bolt")
	require.NoError(t, err)
	inst := hallPetch(t)
	require.NoError(t, d.Save(ctx, inst, file, nil))
	require.NoError(t, d.Save(ctx, inst, file, dlite.Options{"bucket": "mine"}))

	name, err := dlite.DriverForMediaType("application/x-bolt")
	require.NoError(t, err)
	assert.Equal(t, "bolt", name)

	db, err := bolt.Open(file, 0600, &bolt.Options{Timeout: time.Second})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.View(func(tx *bolt.Tx) error {
		for _, bucket := range []string{test.HallPetchURI, "mine"} {
			b := tx.Bucket([]byte(bucket))
			require.NotNil(t, b, bucket)
			var r dlite.Record
			require.NoError(t, json.Unmarshal(b.Get([]byte(inst.UUID)), &r))
			assert.Equal(t, test.HallPetchURI, r.Meta)
			assert.Equal(t, 50.0, r.Properties["theta0"])
		}
		return nil
	}))
}
