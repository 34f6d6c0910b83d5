// Package metrics defines the Prometheus metrics exported by the service.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Upstream sources and results used as label values.
const (
	SourceRegistry     = "registry"
	SourceOrchestrator = "orchestrator"

	ResultOK          = "ok"
	ResultUnavailable = "unavailable"
	ResultFailed      = "failed"
)

var (
	registerOnce sync.Once
	registerErr  error

	httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	upstreamFetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "emrfleet_upstream_fetch_total",
		Help: "Whole-fleet fetches by source and result",
	}, []string{"source", "result"})

	dispatchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "emrfleet_dispatch_total",
		Help: "Lifecycle commands dispatched by action and result",
	}, []string{"action", "result"})

	dispatchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "emrfleet_dispatch_duration_seconds",
		Help:    "Executor round trip latency",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"action"})

	clustersByState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "emrfleet_clusters",
		Help: "Configured clusters by last observed state",
	}, []string{"state"})
)

// Register registers the service metrics on reg (or the default registerer
// if nil) and returns the handler for the metrics endpoint.
func Register(reg prometheus.Registerer) (http.Handler, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	registerOnce.Do(func() {
		for _, c := range []prometheus.Collector{
			httpRequestsTotal,
			httpRequestDuration,
			upstreamFetchTotal,
			dispatchTotal,
			dispatchDuration,
			clustersByState,
		} {
			if err := registerCollector(reg, c); err != nil {
				registerErr = err
				return
			}
		}
	})
	if registerErr != nil {
		return nil, registerErr
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		return promhttp.HandlerFor(g, promhttp.HandlerOpts{}), nil
	}
	return promhttp.Handler(), nil
}

// registerCollector registers c on reg, ignoring duplicates.
func registerCollector(reg prometheus.Registerer, c prometheus.Collector) error {
	if err := reg.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}

// RecordFetch counts a whole-fleet fetch.
func RecordFetch(source string, available bool) {
	result := ResultOK
	if !available {
		result = ResultUnavailable
	}
	upstreamFetchTotal.WithLabelValues(source, result).Inc()
}

// RecordDispatch counts a dispatched command and its latency.
func RecordDispatch(action string, err error, elapsed time.Duration) {
	result := ResultOK
	if err != nil {
		result = ResultFailed
	}
	dispatchTotal.WithLabelValues(action, result).Inc()
	dispatchDuration.WithLabelValues(action).Observe(elapsed.Seconds())
}

// SetClusterStates replaces the per-state cluster gauge.
func SetClusterStates(counts map[string]int) {
	clustersByState.Reset()
	for state, n := range counts {
		clustersByState.WithLabelValues(state).Set(float64(n))
	}
}

// Middleware instruments requests, labelling them with the matched route
// template so cluster names do not explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := strings.ToUpper(r.Method)
		path := routeTemplate(r)
		start := time.Now()

		rec := &statusRecorder{ResponseWriter: w}
		defer func() {
			httpRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
		}()

		next.ServeHTTP(rec, r)
	})
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}
