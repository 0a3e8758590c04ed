package sqlite_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	dlite "github.com/pilosa/oteapi-dlite"
	"github.com/pilosa/oteapi-dlite/sqlite"
	"github.com/pilosa/oteapi-dlite/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSave(t *testing.T) {
	ctx := context.Background()
	loc := filepath.Join(test.TempDir(t, "sqlite"), "instances.db")
	inst, err := test.MustMeta(t, test.HallPetch).NewInstance(nil, "hp")
	require.NoError(t, err)
	require.NoError(t, inst.Set("theta0", 50))

	name, err := dlite.DriverForMediaType("application/vnd.sqlite3")
	require.NoError(t, err)
	d, err := dlite.LookupDriver(name)
	require.NoError(t, err)
	require.NoError(t, d.Save(ctx, inst, loc, nil))

	require.NoError(t, inst.Set("theta0", 60))
	require.NoError(t, d.Save(ctx, inst, loc, nil))

	db, err := sqlite.Open(loc)
	require.NoError(t, err)
	var rows []sqlite.InstanceRecord
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, inst.UUID, rows[0].UUID)
	assert.Equal(t, test.HallPetchURI, rows[0].Meta)
	assert.Equal(t, "hp", rows[0].URI)

	var r dlite.Record
	require.NoError(t, json.Unmarshal([]byte(rows[0].Document), &r))
	assert.Equal(t, 60.0, r.Properties["theta0"])
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}
