package http_test

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"net"
	nethttp "net/http"
	"strings"
	"testing"
	"time"

	dlite "github.com/pilosa/oteapi-dlite"
	"github.com/pilosa/oteapi-dlite/http"
	_ "github.com/pilosa/oteapi-dlite/mapping"
	"github.com/pilosa/oteapi-dlite/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var client = &nethttp.Client{Transport: &nethttp.Transport{DisableKeepAlives: true}}

func startServer(t *testing.T, opts ...http.ServerOption) *http.Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s, err := http.NewServer(append([]http.ServerOption{http.WithListener(ln)}, opts...)...)
	require.NoError(t, err)
	return s
}

func stopServer(t *testing.T, s *http.Server) {
	t.Helper()
	require.NoError(t, s.Close(time.Second))
	require.NoError(t, s.Wait())
}

func post(t *testing.T, s *http.Server, body string) (int, []byte) {
	t.Helper()
	resp, err := client.Post("http://"+s.Addr()+"/pipeline", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := ioutil.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func TestServerPipeline(t *testing.T) {
	defer goleak.VerifyNone(t)

	reg := prometheus.NewRegistry()
	s := startServer(t, http.WithStats(metrics.NewPromStatter(reg)), http.WithGatherer(reg))
	defer stopServer(t, s)

	status, body := post(t, s, `{"steps": [{"mappingType": "mappings", "configuration": {
		"prefixes": {"hp": "http://onto-ns.com/meta/0.4/HallPetch#"},
		"triples": [["hp:sigma", "http://emmo.info/domain-mappings#mapsTo", "Stress"]]}}]}`)
	require.Equal(t, nethttp.StatusOK, status, string(body))
	var st dlite.SessionUpdate
	require.NoError(t, json.Unmarshal(body, &st))
	require.NotEmpty(t, st.CollectionID)

	// a second pipeline continues the same collection
	status, body = post(t, s, `{"collection_id": "`+st.CollectionID+`", "steps": [{"mappingType": "mappings", "configuration": {
		"triples": [["a", "b", "c"]]}}]}`)
	require.Equal(t, nethttp.StatusOK, status, string(body))

	resp, err := client.Get("http://" + s.Addr() + "/collections/" + st.CollectionID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	var snap dlite.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, st.CollectionID, snap.UUID)
	assert.Contains(t, snap.Relations, dlite.Relation{
		S: "http://onto-ns.com/meta/0.4/HallPetch#sigma",
		P: "http://emmo.info/domain-mappings#mapsTo",
		O: "Stress",
	})
	assert.Contains(t, snap.Relations, dlite.Relation{S: "a", P: "b", O: "c"})

	mresp, err := client.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	defer mresp.Body.Close()
	metricsBody, err := ioutil.ReadAll(mresp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(metricsBody), "otedlite_strategy_initialize_total")
}

func TestServerErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := startServer(t)
	defer stopServer(t, s)

	for body, exp := range map[string]int{
		`not json`:                             nethttp.StatusBadRequest,
		`{"steps": []}`:                        nethttp.StatusBadRequest,
		`{"steps": [{"mappingType": "nope"}]}`: nethttp.StatusBadRequest,
		`{"collection_id": "unknown", "steps": [{"mappingType": "mappings"}]}`: nethttp.StatusNotFound,
	} {
		status, data := post(t, s, body)
		assert.Equal(t, exp, status, body)
		var e map[string]string
		require.NoError(t, json.Unmarshal(data, &e), body)
		assert.NotEmpty(t, e["error"], body)
	}

	resp, err := client.Get("http://" + s.Addr() + "/collections/unknown")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, nethttp.StatusNotFound, resp.StatusCode)

	resp, err = client.Get("http://" + s.Addr() + "/pipeline")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, nethttp.StatusMethodNotAllowed, resp.StatusCode)

	// no gatherer, no metrics
	resp, err = client.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, nethttp.StatusNotFound, resp.StatusCode)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, nethttp.StatusBadGateway, http.StatusOf(dlite.NetworkError(bytes.ErrTooLarge, "x")))
	assert.Equal(t, nethttp.StatusUnprocessableEntity, http.StatusOf(dlite.DecodeError(bytes.ErrTooLarge, "x")))
	assert.Equal(t, nethttp.StatusInternalServerError, http.StatusOf(dlite.StorageError(bytes.ErrTooLarge, "x")))
}

func TestMainServe(t *testing.T) {
	m := http.NewMain()
	m.Bind = "127.0.0.1:0"
	m.CacheDir = t.TempDir()
	m.Store = m.CacheDir + "/collections.db"
	m.Started = func(s *http.Server) {
		resp, err := client.Get("http://" + s.Addr() + "/metrics")
		if assert.NoError(t, err) {
			resp.Body.Close()
			assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
		}
		go s.Close(time.Second)
	}
	require.NoError(t, m.Run())
}
