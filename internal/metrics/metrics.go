// Package metrics exposes Prometheus collectors for the worker pool and the
// HTTP front end.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cryguy/titan/internal/pool"
)

const namespace = "titan"

// Metrics owns a registry and every collector registered on it. It
// implements pool.Observer.
type Metrics struct {
	reg *prometheus.Registry

	executions     *prometheus.CounterVec
	execDuration   prometheus.Histogram
	workersStarted prometheus.Counter
	workerExits    *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

var _ pool.Observer = (*Metrics)(nil)

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pool_executions_total",
				Help:      "Commands executed by pool workers, by outcome.",
			},
			[]string{"outcome"},
		),
		execDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "pool_execution_duration_seconds",
				Help:      "Time an engine spent executing one command, in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		workersStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pool_workers_started_total",
				Help:      "Worker threads whose engine came up.",
			},
		),
		workerExits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pool_worker_exits_total",
				Help:      "Worker threads that exited, by reason.",
			},
			[]string{"reason"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests served, by method, route and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency, in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.executions, m.execDuration, m.workersStarted, m.workerExits,
		m.httpRequests, m.httpDuration,
	)

	// Pre-initialize label combinations so they appear with value 0.
	for _, o := range []string{pool.OutcomeDelivered, pool.OutcomeDiscarded, pool.OutcomeFailed, pool.OutcomePanicked} {
		m.executions.WithLabelValues(o)
	}
	m.workerExits.WithLabelValues("shutdown")
	m.workerExits.WithLabelValues("crashed")
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) ObserveExecution(outcome string, d time.Duration) {
	m.executions.WithLabelValues(outcome).Inc()
	m.execDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveWorkerStarted(int) {
	m.workersStarted.Inc()
}

func (m *Metrics) ObserveWorkerExited(_ int, crashed bool) {
	reason := "shutdown"
	if crashed {
		reason = "crashed"
	}
	m.workerExits.WithLabelValues(reason).Inc()
}

// StatsSource is satisfied by *pool.Manager.
type StatsSource interface {
	Stats() pool.Stats
}

// WatchPool registers gauges that read queue depth, capacity, live workers
// and restarts from src at scrape time.
func (m *Metrics) WatchPool(src StatsSource) {
	gauge := func(name, help string, read func(pool.Stats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return read(src.Stats()) })
	}
	m.reg.MustRegister(
		gauge("pool_queue_depth", "Commands waiting in the dispatch queue.",
			func(s pool.Stats) float64 { return float64(s.QueueLen) }),
		gauge("pool_queue_capacity", "Dispatch queue bound.",
			func(s pool.Stats) float64 { return float64(s.QueueCap) }),
		gauge("pool_live_workers", "Worker threads currently alive.",
			func(s pool.Stats) float64 { return float64(s.Live) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_worker_restarts_total",
			Help:      "Crashed workers replaced by a fresh thread.",
		}, func() float64 { return float64(src.Stats().Restarts) }),
	)
}

// Middleware records request counts and latency keyed by chi route pattern.
// Requests that matched no route share the "unmatched" label.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
