package observability_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/payload-sanitizer/internal/adapter/observability"
)

func TestObserveItem(t *testing.T) {
	before := testutil.ToFloat64(observability.ItemsSanitizedTotal.WithLabelValues("cleaned"))
	observability.ObserveItem("cleaned")
	after := testutil.ToFloat64(observability.ItemsSanitizedTotal.WithLabelValues("cleaned"))
	assert.Equal(t, before+1, after)
}

func TestEnqueueBatch(t *testing.T) {
	before := testutil.ToFloat64(observability.BatchesEnqueuedTotal)
	observability.EnqueueBatch()
	assert.Equal(t, before+1, testutil.ToFloat64(observability.BatchesEnqueuedTotal))
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	h := observability.HTTPMetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sanitize", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	v := testutil.ToFloat64(observability.HTTPRequestsTotal.WithLabelValues("/v1/sanitize", http.MethodGet, "418"))
	assert.GreaterOrEqual(t, v, 1.0)
}
