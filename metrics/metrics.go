package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"flight-scraper/models"
	"flight-scraper/utils"
)

// Metrics holds all prometheus metrics of a scrape run.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	RoutesFinished  *prometheus.CounterVec
	RouteAttempts   prometheus.Counter
	DaysExtracted   prometheus.Counter
	RecordsInserted prometheus.Counter
	RecordsDropped  prometheus.Counter
	ActiveRoutes    prometheus.Gauge
	RouteDuration   prometheus.Histogram
	ErrorsCount     *prometheus.CounterVec
}

// NewMetrics creates the metrics on a private registry.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		RoutesFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routes_finished_total",
			Help:      "Routes that reached a terminal outcome",
		}, []string{"outcome"}),
		RouteAttempts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_attempts_total",
			Help:      "Browser sessions opened for a route",
		}),
		DaysExtracted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "days_extracted_total",
			Help:      "Day pages extracted and persisted",
		}),
		RecordsInserted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_inserted_total",
			Help:      "Flight records stored",
		}),
		RecordsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dropped_total",
			Help:      "Flight records dropped by the uniqueness policy",
		}),
		ActiveRoutes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_routes",
			Help:      "Routes currently being scraped",
		}),
		RouteDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "route_duration_seconds",
			Help:      "Wall time spent on one route across all attempts",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		ErrorsCount: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "The total number of errors",
		}, []string{"operation"}),
	}
}

func (m *Metrics) RouteStarted() {
	if m == nil {
		return
	}
	m.ActiveRoutes.Inc()
	m.RouteAttempts.Inc()
}

func (m *Metrics) RouteRetried() {
	if m == nil {
		return
	}
	m.RouteAttempts.Inc()
}

// RouteFinished records the terminal outcome of a route.
func (m *Metrics) RouteFinished(res models.RouteResult) {
	if m == nil {
		return
	}
	m.ActiveRoutes.Dec()
	m.RoutesFinished.WithLabelValues(string(res.Outcome)).Inc()
	m.RouteDuration.Observe(res.Duration.Seconds())
}

// DayStored records one persisted day page.
func (m *Metrics) DayStored(inserted, dropped int) {
	if m == nil {
		return
	}
	m.DaysExtracted.Inc()
	m.RecordsInserted.Add(float64(inserted))
	m.RecordsDropped.Add(float64(dropped))
}

func (m *Metrics) Error(operation string) {
	if m == nil {
		return
	}
	m.ErrorsCount.WithLabelValues(operation).Inc()
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics and /health on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *utils.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Healthy"))
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("[metrics] Shutdown failed: %v", err)
		}
	}()

	logger.Info("[metrics] Serving on %s", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
