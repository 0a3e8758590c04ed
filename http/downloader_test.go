package http_test

import (
	"context"
	"errors"
	"io/ioutil"
	nethttp "net/http"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/jarcoal/httpmock"
	dlite "github.com/pilosa/oteapi-dlite"
	"github.com/pilosa/oteapi-dlite/http"
	"github.com/pilosa/oteapi-dlite/mock"
	"github.com/pilosa/oteapi-dlite/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDownloader(opts ...http.DownloaderOption) (*http.Downloader, *httpmock.MockTransport) {
	mt := httpmock.NewMockTransport()
	opts = append([]http.DownloaderOption{
		http.OptClient(&nethttp.Client{Transport: mt}),
		http.OptBackoff(0),
	}, opts...)
	return http.NewDownloader(opts...), mt
}

func TestDownloaderStatus(t *testing.T) {
	ctx := context.Background()
	d, mt := newMockDownloader()
	mt.RegisterResponder("GET", "http://example.com/ok", httpmock.NewStringResponder(200, "data"))
	mt.RegisterResponder("GET", "http://example.com/gone", httpmock.NewStringResponder(410, ""))
	mt.RegisterResponder("GET", "http://example.com/missing", httpmock.NewStringResponder(404, ""))
	mt.RegisterResponder("GET", "http://example.com/forbidden", httpmock.NewStringResponder(403, ""))
	mt.RegisterResponder("GET", "http://example.com/down", httpmock.NewStringResponder(503, ""))
	mt.RegisterResponder("GET", "http://example.com/broken", httpmock.NewErrorResponder(errors.New("connection reset")))

	data, err := d.Fetch(ctx, "http://example.com/ok")
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))

	for url, kind := range map[string]dlite.Kind{
		"http://example.com/gone":      dlite.KindMissing,
		"http://example.com/missing":   dlite.KindMissing,
		"http://example.com/forbidden": dlite.KindNetwork,
		"http://example.com/down":      dlite.KindNetwork,
		"http://example.com/broken":    dlite.KindNetwork,
	} {
		_, err := d.Fetch(ctx, url)
		assert.Equal(t, kind, dlite.KindOf(err), url)
	}

	calls := mt.GetCallCountInfo()
	assert.Equal(t, 1, calls["GET http://example.com/missing"])
	assert.Equal(t, 1, calls["GET http://example.com/forbidden"])
	assert.Equal(t, http.DefaultAttempts, calls["GET http://example.com/down"])
	assert.Equal(t, http.DefaultAttempts, calls["GET http://example.com/broken"])
}

func TestDownloaderRetry(t *testing.T) {
	d, mt := newMockDownloader()
	var n int32
	mt.RegisterResponder("GET", "http://example.com/flaky", func(req *nethttp.Request) (*nethttp.Response, error) {
		if atomic.AddInt32(&n, 1) < 3 {
			return httpmock.NewStringResponse(429, ""), nil
		}
		return httpmock.NewStringResponse(200, "finally"), nil
	})

	data, err := d.Fetch(context.Background(), "http://example.com/flaky")
	require.NoError(t, err)
	assert.Equal(t, "finally", string(data))
	assert.Equal(t, int32(3), atomic.LoadInt32(&n))
}

func TestDownloaderCache(t *testing.T) {
	ctx := context.Background()
	cache := mock.NewCache()
	d, mt := newMockDownloader(http.OptDownloadCache(cache))
	mt.RegisterResponder("GET", "https://example.com/doc.json", httpmock.NewStringResponder(200, `{"a": 1}`))

	for i := 0; i < 3; i++ {
		data, err := d.Fetch(ctx, "https://example.com/doc.json")
		require.NoError(t, err)
		assert.Equal(t, `{"a": 1}`, string(data))
	}
	assert.Equal(t, 1, mt.GetTotalCallCount())
	cached, err := cache.Get(http.CacheKey("https://example.com/doc.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"a": 1}`, string(cached))
}

func TestDownloaderSchemes(t *testing.T) {
	ctx := context.Background()
	dir := test.TempDir(t, "download")
	p := filepath.Join(dir, "local.txt")
	require.NoError(t, ioutil.WriteFile(p, []byte("local"), 0644))

	s3 := mock.NewFetcher(map[string][]byte{"s3://bucket/key": []byte("remote")})
	d, _ := newMockDownloader(http.OptScheme("s3", s3))

	data, err := d.Fetch(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "local", string(data))
	data, err = d.Fetch(ctx, "file://"+filepath.ToSlash(p))
	require.NoError(t, err)
	assert.Equal(t, "local", string(data))

	data, err = d.Fetch(ctx, "s3://bucket/key")
	require.NoError(t, err)
	assert.Equal(t, "remote", string(data))

	_, err = d.Fetch(ctx, filepath.Join(dir, "nope"))
	assert.Equal(t, dlite.KindMissing, dlite.KindOf(err))
	_, err = d.Fetch(ctx, "ftp://example.com/x")
	assert.Equal(t, dlite.KindConfig, dlite.KindOf(err))
}

func TestDownloaderCanceled(t *testing.T) {
	d, mt := newMockDownloader(http.OptRateLimit(1, 1))
	mt.RegisterResponder("GET", "http://example.com/x", httpmock.NewStringResponder(200, "x"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Fetch(ctx, "http://example.com/x")
	assert.Equal(t, dlite.KindNetwork, dlite.KindOf(err))
	assert.Equal(t, 0, mt.GetTotalCallCount())
}
