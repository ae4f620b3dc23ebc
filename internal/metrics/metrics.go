package metrics

import (
	"net/url"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lox/yieldwatch/internal/httputil"
	"github.com/lox/yieldwatch/internal/models"
)

var (
	BackendCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yieldwatch_backend_calls_total",
			Help: "Total calls to the geo, ML and ingestion services",
		},
		[]string{"service", "endpoint", "status"},
	)

	BackendLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "yieldwatch_backend_latency_seconds",
			Help:    "Backend call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)

	BackendUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "yieldwatch_backend_up",
			Help: "Whether the last health probe of each service succeeded (1) or not (0)",
		},
		[]string{"service"},
	)

	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yieldwatch_uploads_total",
			Help: "Total file uploads by route and result",
		},
		[]string{"route", "result"},
	)
)

// ObserveCall records one transport call. Query strings are stripped so
// label cardinality stays bounded.
func ObserveCall(call httputil.Call) {
	endpoint := call.URL
	if u, err := url.Parse(call.URL); err == nil {
		endpoint = u.Path
	}
	var status string
	switch {
	case call.Result.Status > 0:
		status = strconv.Itoa(call.Result.Status)
	case call.Result.Err != nil:
		status = call.Result.Err.Kind.String()
	default:
		status = "unknown"
	}
	BackendCallsTotal.WithLabelValues(call.Service, endpoint, status).Inc()
	BackendLatency.WithLabelValues(call.Service, endpoint).Observe(call.Elapsed.Seconds())
}

// ObserveHealth updates the per-service up gauges.
func ObserveHealth(h models.APIHealth) {
	BackendUp.WithLabelValues("geo").Set(boolGauge(h.Geo))
	BackendUp.WithLabelValues("ml").Set(boolGauge(h.ML))
	BackendUp.WithLabelValues("ingestion").Set(boolGauge(h.Ingestion))
}

// ObserveUpload counts a finished upload.
func ObserveUpload(route models.UploadRoute, ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	UploadsTotal.WithLabelValues(string(route), result).Inc()
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
