// Package telemetry wires the ambient /healthz and /metrics surface shared
// by all three services, grounded on the teacher's cmd/dex/serve.go use of
// go-sundheit (health checks) and prometheus/client_golang (metrics).
package telemetry

import (
	"net/http"
	"time"

	gosundheit "github.com/AppsFlyer/go-sundheit"
	"github.com/AppsFlyer/go-sundheit/checks"
	gosundheithttp "github.com/AppsFlyer/go-sundheit/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the health-check registry and the request-latency
// histogram (registered with Prometheus's default registry) for one
// service process.
type Registry struct {
	Health   gosundheit.Health
	Requests *prometheus.HistogramVec
}

// New creates a Registry labeled with serviceName, registering a trivial
// "alive" check (additional checks, e.g. store reachability, can be
// registered by the caller on the returned Registry.Health).
func New(serviceName string) *Registry {
	h := gosundheit.New()
	_ = h.RegisterCheck(&gosundheit.Config{
		Check: &checks.CustomCheck{
			CheckName: "alive",
			CheckFunc: func() (details interface{}, err error) {
				return "ok", nil
			},
		},
		ExecutionPeriod:  30 * time.Second,
		InitiallyPassing: true,
	})

	requests := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "health_companion",
		Subsystem: serviceName,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"path", "method", "status"})
	prometheus.MustRegister(requests)

	return &Registry{Health: h, Requests: requests}
}

// Handlers returns the /healthz and /metrics http.Handlers to mount.
func (r *Registry) Handlers() (healthz, metrics http.Handler) {
	return gosundheithttp.HandleHealthJSON(r.Health), promhttp.Handler()
}

// Instrument wraps h, recording request latency into the Requests histogram.
func (r *Registry) Instrument(path string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, req)
		r.Requests.WithLabelValues(path, req.Method, http.StatusText(rec.status)).
			Observe(time.Since(start).Seconds())
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
