package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hgonomeg/bansu/internal/bansu/manager"
	"github.com/hgonomeg/bansu/internal/bansu/stats"
)

func newTestServer(cfg manager.Config) (*Server, *httptest.Server) {
	mgr := manager.New(cfg)
	srv := NewServer(mgr, stats.NopSink{}, 50*time.Millisecond, "", "test")
	ts := httptest.NewServer(srv.Routes())
	return srv, ts
}

func TestHandleRunMalformedJSONIsBadRequest(t *testing.T) {
	_, ts := newTestServer(manager.Config{MaxConcurrentJobs: 4, MaxQueueLength: 4})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/run", "application/json", bytes.NewBufferString("not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleRunUnknownJobTypeIsBadRequest(t *testing.T) {
	_, ts := newTestServer(manager.Config{MaxConcurrentJobs: 4, MaxQueueLength: 4})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/run", "application/json", bytes.NewBufferString(`{"job_type":"not-a-tool"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleRunInvalidSpecIsBadRequest(t *testing.T) {
	_, ts := newTestServer(manager.Config{MaxConcurrentJobs: 4, MaxQueueLength: 4})
	defer ts.Close()

	// Neither smiles nor input_mmcif_base64 nor chemical_component_code set.
	resp, err := http.Post(ts.URL+"/run", "application/json", bytes.NewBufferString(`{"job_type":"acedrg"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleOutputUnknownJobIs404(t *testing.T) {
	_, ts := newTestServer(manager.Config{MaxConcurrentJobs: 4, MaxQueueLength: 4})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/output/does-not-exist")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleWSUnknownJobIs404(t *testing.T) {
	_, ts := newTestServer(manager.Config{MaxConcurrentJobs: 4, MaxQueueLength: 4})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/ws/does-not-exist")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleVibeReportsCounts(t *testing.T) {
	_, ts := newTestServer(manager.Config{MaxConcurrentJobs: 4, MaxQueueLength: 4})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/vibe")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var v vibeResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	assert.Equal(t, "test", v.Version)
	assert.Equal(t, 0, v.Running)
	assert.Equal(t, 0, v.Queued)
}
