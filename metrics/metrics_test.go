package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"flight-scraper/models"
)

func TestRouteLifecycle(t *testing.T) {
	m := NewMetrics("flights")

	m.RouteStarted()
	m.RouteRetried()
	m.DayStored(5, 1)
	m.DayStored(3, 0)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveRoutes))

	m.RouteFinished(models.RouteResult{Outcome: models.OutcomeCompleted, Duration: 2 * time.Second})

	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveRoutes))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RouteAttempts))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DaysExtracted))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.RecordsInserted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RoutesFinished.WithLabelValues("completed")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RouteStarted()
	m.RouteRetried()
	m.DayStored(1, 1)
	m.Error("extract")
	m.RouteFinished(models.RouteResult{Outcome: models.OutcomeExhausted})
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := NewMetrics("flights")
	m.Error("search")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `flights_errors_total{operation="search"} 1`), body)
}
