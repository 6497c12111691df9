package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryStarted(t *testing.T) {
	m := New()

	done := m.QueryStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inflight))
	done("success")

	assert.Equal(t, 0.0, testutil.ToFloat64(m.inflight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.queries.WithLabelValues("success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.queries.WithLabelValues("timeout")))
}

func TestRecorders(t *testing.T) {
	m := New()

	m.RecordResourceLoad("corpus", time.Second, nil)
	m.RecordResourceLoad("corpus", time.Second, errors.New("boom"))
	m.RecordCache("answer", true)
	m.RecordCache("answer", false)
	m.RecordCache("answer", false)
	m.RecordDroppedPositions(0)
	m.RecordDroppedPositions(2)
	m.RecordRerankFailures(3)
	m.RecordPoolRejection()
	m.RecordIndexChange()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.resourceLoads.WithLabelValues("corpus", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resourceLoads.WithLabelValues("corpus", "failure")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheRequests.WithLabelValues("answer", "miss")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.droppedPositions))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.rerankFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.poolRejections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.indexChanges))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.RegisterPool("inference", func() int { return 2 }, func() int { return 5 })
	m.ObserveStage("embed", 10*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `virtual_ta_pool_waiting_tasks{pool="inference"} 5`))
	assert.Contains(t, body, "virtual_ta_stage_duration_seconds_bucket")
	assert.Contains(t, body, "go_goroutines")
}

func TestDefaultIsSingleton(t *testing.T) {
	assert.Same(t, Default(), Default())
}
