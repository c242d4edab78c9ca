package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestMetrics namespaces each test's collectors by test name so
// promauto's registration against the default registry never collides
// across subtests in the same run.
func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return New("agentrt_test_" + t.Name())
}

func TestRecordWorkflow_IncrementsCounterAndObservesHistogram(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordWorkflow("invoice_matcher", "completed", 250*time.Millisecond)

	count := testutil.ToFloat64(m.WorkflowExecutions.WithLabelValues("invoice_matcher", "completed"))
	assert.Equal(t, 1.0, count)
}

func TestRecordActivity_RetryIncrementsRetryCounter(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordActivity("llm_complete", "success", 10*time.Millisecond, false)
	m.RecordActivity("llm_complete", "transient_error", 10*time.Millisecond, true)

	retries := testutil.ToFloat64(m.ActivityRetries.WithLabelValues("llm_complete"))
	assert.Equal(t, 1.0, retries)
}

func TestRecordCacheResult_HitAndMissGoToDistinctCounters(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordCacheResult("embedding", true)
	m.RecordCacheResult("embedding", false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.MemoryCacheHits.WithLabelValues("embedding")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MemoryCacheMisses.WithLabelValues("embedding")))
}

func TestRecordCronFire_RecordsOutcomeLabel(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordCronFire("daily-report", "fired")
	m.RecordCronFire("daily-report", "skipped")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CronFires.WithLabelValues("daily-report", "fired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CronFires.WithLabelValues("daily-report", "skipped")))
}

func TestRegisterHandler_ServesPrometheusFormat(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	RegisterHandler(router, "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_gc_duration_seconds")
}
