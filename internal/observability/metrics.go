package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the webhook gateway.
type Metrics struct {
	registry *prometheus.Registry

	rpcTotal     *prometheus.CounterVec
	rpcDuration  *prometheus.HistogramVec
	httpInFlight prometheus.Gauge
	httpDuration *prometheus.HistogramVec
}

// NewMetrics constructs and registers the gateway collectors on a
// private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rpcTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paygate_rpc_requests_total",
			Help: "Processor RPC calls by method and protocol outcome.",
		}, []string{"method", "code"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "paygate_rpc_duration_seconds",
			Help:    "Processor RPC handling latency by method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "paygate_http_in_flight_requests",
			Help: "HTTP requests currently being served.",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "paygate_http_request_duration_seconds",
			Help:    "HTTP request latency by path and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "status"}),
	}
	m.registry.MustRegister(m.rpcTotal, m.rpcDuration, m.httpInFlight, m.httpDuration)
	return m
}

// ObserveRPC records one protocol method call. A zero code means success.
func (m *Metrics) ObserveRPC(method string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := "ok"
	if code != 0 {
		label = strconv.Itoa(code)
	}
	m.rpcTotal.WithLabelValues(method, label).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// Handler exposes the registry for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware tracks in-flight count and latency for every HTTP request.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.httpDuration.
			WithLabelValues(path, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
