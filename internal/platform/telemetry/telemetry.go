// Package telemetry exposes Prometheus metrics for the HTTP server and the
// similarity engine.
package telemetry

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "casematch"

var (
	durationBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	countBuckets    = []float64{0, 1, 5, 10, 15, 25, 50, 100, 250}
)

// Provider owns a private registry. It satisfies the similarity engine's
// Metrics interface.
type Provider struct {
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	httpInFlight   prometheus.Gauge
	searches       *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec
	scanned        prometheus.Histogram
	returned       prometheus.Histogram
	candidateFails prometheus.Counter
}

func NewProvider() *Provider {
	p := &Provider{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: durationBuckets,
		}, []string{"method", "route"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_in_flight",
			Help: "HTTP requests currently being served.",
		}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "similarity", Name: "searches_total",
			Help: "Similar-patient searches by search type and outcome.",
		}, []string{"search_type", "outcome"}),
		searchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "similarity", Name: "search_duration_seconds",
			Help:    "End-to-end similar-patient search latency.",
			Buckets: durationBuckets,
		}, []string{"search_type"}),
		scanned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "similarity", Name: "candidates_scanned",
			Help:    "Candidates considered per search.",
			Buckets: countBuckets,
		}),
		returned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "similarity", Name: "results_returned",
			Help:    "Similar cases returned per search.",
			Buckets: countBuckets,
		}),
		candidateFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "similarity", Name: "candidate_failures_total",
			Help: "Candidates skipped because their history could not be read.",
		}),
	}

	p.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.httpRequests, p.httpDuration, p.httpInFlight,
		p.searches, p.searchDuration, p.scanned, p.returned, p.candidateFails,
	)
	return p
}

func (p *Provider) ObserveSearch(searchType, outcome string, elapsed time.Duration, scanned, returned int) {
	if searchType == "" {
		searchType = "unknown"
	}
	p.searches.WithLabelValues(searchType, outcome).Inc()
	p.searchDuration.WithLabelValues(searchType).Observe(elapsed.Seconds())
	if outcome == "ok" {
		p.scanned.Observe(float64(scanned))
		p.returned.Observe(float64(returned))
	}
}

func (p *Provider) CandidateFailed() {
	p.candidateFails.Inc()
}

// RegisterGaugeFunc exposes a value sampled at scrape time, e.g. pool stats.
func (p *Provider) RegisterGaugeFunc(subsystem, name, help string, fn func() float64) {
	p.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	}, fn))
}

// Middleware records request count and latency labeled by route pattern,
// never by raw path.
func (p *Provider) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Path() == "/metrics" {
				return next(c)
			}
			p.httpInFlight.Inc()
			defer p.httpInFlight.Dec()

			start := time.Now()
			err := next(c)

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			p.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			p.httpRequests.WithLabelValues(method, route, strconv.Itoa(status(c, err))).Inc()
			return err
		}
	}
}

func status(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Provider) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
}
