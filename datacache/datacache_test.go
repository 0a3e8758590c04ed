package datacache_test

import (
	"testing"
	"time"

	dlite "github.com/pilosa/oteapi-dlite"
	"github.com/pilosa/oteapi-dlite/datacache"
	"github.com/pilosa/oteapi-dlite/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	c := datacache.New()
	key, err := c.Add([]byte("hello"), "")
	require.NoError(t, err)
	assert.Equal(t, datacache.Key([]byte("hello")), key)

	v, err := c.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(v))

	_, err = c.Add([]byte("data"), "generate_data")
	require.NoError(t, err)
	v, err = c.Get("generate_data")
	require.NoError(t, err)
	assert.Equal(t, "data", string(v))

	require.NoError(t, c.Delete("generate_data"))
	_, err = c.Get("generate_data")
	assert.Equal(t, dlite.KindMissing, dlite.KindOf(err))
}

func TestDisk(t *testing.T) {
	dir := test.TempDir(t, "datacache")
	c := datacache.New(datacache.OptDir(dir))
	_, err := c.Add([]byte("persisted"), "k")
	require.NoError(t, err)

	// a new cache on the same directory sees the value
	c2 := datacache.New(datacache.OptDir(dir))
	v, err := c2.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "persisted", string(v))

	require.NoError(t, c2.Clear())
	_, err = datacache.New(datacache.OptDir(dir)).Get("k")
	assert.Equal(t, dlite.KindMissing, dlite.KindOf(err))
}

func TestExpired(t *testing.T) {
	dir := test.TempDir(t, "datacache")
	c := datacache.New(datacache.OptDir(dir), datacache.OptExpire(time.Millisecond))
	_, err := c.Add([]byte("short"), "k")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	_, err = datacache.New(datacache.OptDir(dir)).Get("k")
	assert.Equal(t, dlite.KindMissing, dlite.KindOf(err))
}
