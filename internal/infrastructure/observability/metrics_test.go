package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestCollector_IndependentRegistries(t *testing.T) {
	a := NewCollector("test")
	b := NewCollector("test")

	a.TransactionFinished("committed", time.Millisecond)
	a.CacheLookup("classes", "hit")
	a.CachePopulated("classes", errors.New("boom"))

	assert.Equal(t, 1.0, counterValue(t, a.Transactions.WithLabelValues("committed")))
	assert.Equal(t, 0.0, counterValue(t, b.Transactions.WithLabelValues("committed")))
	assert.Equal(t, 1.0, counterValue(t, a.CachePopulations.WithLabelValues("classes", "failure")))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.TransactionFinished("committed", time.Second)
		c.ResolutionStarted("any", 3)
		c.ResolutionQueried("any", "select")
		c.ResolutionUnknowns("any", 1)
		c.CacheLookup("classes", "miss")
		c.CachePopulated("classes", nil)
		c.CacheInvalidated("classes")
		c.CacheSize("classes", 2)
	})
}

func TestMetricsMiddleware(t *testing.T) {
	c := NewCollector("test")
	r := chi.NewRouter()
	r.Use(MetricsMiddleware(c))
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/42", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	assert.Equal(t, 1.0, counterValue(t, c.HTTPRequests.WithLabelValues("GET", "/items/{id}", "418")))

	metrics := httptest.NewRecorder()
	c.Handler().ServeHTTP(metrics, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, metrics.Body.String(), "test_http_requests_total")
}
