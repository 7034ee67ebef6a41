/*
Package metrics exposes Prometheus collectors for the cashbook service.

COLLECTORS:
  cashbook_recalculations_total           Engine passes that committed
  cashbook_recalculation_duration_seconds Engine pass latency
  cashbook_recalculated_rows              Active rows in the last pass
  cashbook_changed_rows_total             Rows whose stored values changed
  cashbook_sequence_collisions            Shared positions in the last pass
  cashbook_mutations_total{op,result}     Ledger mutations by outcome
  cashbook_backups_total{result}          Database backups by outcome
  cashbook_last_backup_timestamp_seconds  Time of the last good backup
  http_requests_total{method,route,status}
  http_request_duration_seconds{method,route}

USAGE:
  m := metrics.New(prometheus.DefaultRegisterer)
  ledger.Observer = m
  r.Use(m.Middleware)
  r.Handle("/metrics", promhttp.Handler())
*/
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gemiprint/ledger-engine/cashbook"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Collector struct {
	Recalculations      prometheus.Counter
	RecalculationTime   prometheus.Histogram
	RecalculatedRows    prometheus.Gauge
	ChangedRows         prometheus.Counter
	SequenceCollisions  prometheus.Gauge
	Mutations           *prometheus.CounterVec
	Backups             *prometheus.CounterVec
	LastBackup          prometheus.Gauge
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		Recalculations: f.NewCounter(prometheus.CounterOpts{
			Name: "cashbook_recalculations_total",
			Help: "Number of committed recalculation passes.",
		}),
		RecalculationTime: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "cashbook_recalculation_duration_seconds",
			Help:    "Duration of one recalculation pass.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		RecalculatedRows: f.NewGauge(prometheus.GaugeOpts{
			Name: "cashbook_recalculated_rows",
			Help: "Active rows processed by the last recalculation.",
		}),
		ChangedRows: f.NewCounter(prometheus.CounterOpts{
			Name: "cashbook_changed_rows_total",
			Help: "Rows whose stored values were rewritten by recalculation.",
		}),
		SequenceCollisions: f.NewGauge(prometheus.GaugeOpts{
			Name: "cashbook_sequence_collisions",
			Help: "Sequence positions shared by more than one active row in the last recalculation.",
		}),
		Mutations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cashbook_mutations_total",
			Help: "Ledger mutations by operation and result.",
		}, []string{"op", "result"}),
		Backups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cashbook_backups_total",
			Help: "Database backups by result.",
		}, []string{"result"}),
		LastBackup: f.NewGauge(prometheus.GaugeOpts{
			Name: "cashbook_last_backup_timestamp_seconds",
			Help: "Unix time of the last successful backup.",
		}),
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// =============================================================================
// LEDGER OBSERVER (cashbook.Observer)
// =============================================================================

func (c *Collector) ObserveRecalculation(r cashbook.Recalculation) {
	c.Recalculations.Inc()
	c.RecalculationTime.Observe(r.Duration.Seconds())
	c.RecalculatedRows.Set(float64(len(r.Entries)))
	c.ChangedRows.Add(float64(len(r.Changed)))
	c.SequenceCollisions.Set(float64(len(r.Collisions)))
}

func (c *Collector) ObserveMutation(op string, err error) {
	c.Mutations.WithLabelValues(op, result(err)).Inc()
}

// =============================================================================
// BACKUP OBSERVER
// =============================================================================

func (c *Collector) ObserveBackup(at time.Time, err error) {
	c.Backups.WithLabelValues(result(err)).Inc()
	if err == nil {
		c.LastBackup.Set(float64(at.Unix()))
	}
}

// =============================================================================
// HTTP MIDDLEWARE
// =============================================================================

// Middleware records request counts and latency. Requests are labelled by
// chi route pattern so entry ids do not explode label cardinality.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		c.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
		c.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
