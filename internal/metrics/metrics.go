// Package metrics exports engine and HTTP metrics in the Prometheus format.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mamadbah2/shellsale/internal/domain/models"
)

const namespace = "shellsale"

// Recorder implements the sales engine recorder on a private Prometheus registry.
type Recorder struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	clamps     *prometheus.CounterVec
	requests   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

// NewRecorder registers every collector on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Sales engine operations by outcome.",
		}, []string{"operation", "outcome"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of sales engine operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		clamps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bag_clamps_total",
			Help:      "Bag values corrected by the weight-loss cap or the density band.",
		}, []string{"kind"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	r.registry.MustRegister(
		r.operations, r.durations, r.clamps, r.requests, r.latency,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveOperation records the outcome and latency of an engine operation.
func (r *Recorder) ObserveOperation(operation string, err error, elapsed time.Duration) {
	r.operations.WithLabelValues(operation, Outcome(err)).Inc()
	r.durations.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveClamp counts a corrected bag value.
func (r *Recorder) ObserveClamp(kind string) {
	r.clamps.WithLabelValues(kind).Inc()
}

// Outcome names the error kind for labelling.
func Outcome(err error) string {
	switch kind := models.KindOf(err); {
	case kind == nil:
		return "ok"
	case errors.Is(kind, models.ErrValidation):
		return "validation"
	case errors.Is(kind, models.ErrNotFound):
		return "not_found"
	case errors.Is(kind, models.ErrConflict):
		return "conflict"
	default:
		return "internal"
	}
}

// Middleware measures every request under its route template.
func (r *Recorder) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		r.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		r.latency.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
