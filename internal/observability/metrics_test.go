package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecorder(t *testing.T) {
	m := NewMetrics()

	m.BatchIssued(1000)
	m.BatchIssued(1000)
	m.SubmissionRecorded(4, 100000)
	m.ActiveClients(3)
	m.ClientsEvicted(2)
	m.PersistFailed("save_state")
	m.PersistFailed("save_state")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.batchesIssued))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.submissions))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.primesReported))
	assert.Equal(t, 100000.0, testutil.ToFloat64(m.numbersProcessed))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.activeClients))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.evictions))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.persistFailures.WithLabelValues("save_state")))
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.BatchIssued(100)
	m.ObserveRequest(http.MethodGet, "/get_batch", http.StatusOK, 5*time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "primegrid_batches_issued_total 1")
	assert.Contains(t, string(body), `primegrid_http_request_duration_seconds_count{code="200",method="GET",route="/get_batch"} 1`)
}

func TestMetricsIndependentRegistries(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.BatchIssued(1)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.batchesIssued))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.batchesIssued))
}
