package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/lox/yieldwatch/internal/httputil"
	"github.com/lox/yieldwatch/internal/models"
)

func TestObserveCall(t *testing.T) {
	ObserveCall(httputil.Call{
		Service: "geo",
		Method:  "GET",
		URL:     "http://localhost:8000/v1/regions?year=2024",
		Result:  httputil.Result{Status: 200, Body: []byte(`[]`)},
		Elapsed: 15 * time.Millisecond,
	})
	if got := testutil.ToFloat64(BackendCallsTotal.WithLabelValues("geo", "/v1/regions", "200")); got != 1 {
		t.Errorf("calls{geo,/v1/regions,200} = %v, want 1", got)
	}

	ObserveCall(httputil.Call{
		Service: "ml",
		Method:  "GET",
		URL:     "http://localhost:8001/health",
		Result: httputil.Result{Err: &httputil.Failure{
			Kind: httputil.NetworkUnreachable,
			Err:  errors.New("dial tcp: connection refused"),
		}},
	})
	if got := testutil.ToFloat64(BackendCallsTotal.WithLabelValues("ml", "/health", "network_unreachable")); got != 1 {
		t.Errorf("calls{ml,/health,network_unreachable} = %v, want 1", got)
	}
}

func TestObserveHealth(t *testing.T) {
	ObserveHealth(models.APIHealth{Geo: true, ML: false, Ingestion: true})
	tests := map[string]float64{"geo": 1, "ml": 0, "ingestion": 1}
	for service, want := range tests {
		if got := testutil.ToFloat64(BackendUp.WithLabelValues(service)); got != want {
			t.Errorf("up{%s} = %v, want %v", service, got, want)
		}
	}
}

func TestObserveUpload(t *testing.T) {
	ObserveUpload(models.RouteCSV, true)
	ObserveUpload(models.RouteCSV, false)
	ObserveUpload(models.RouteCSV, false)
	if got := testutil.ToFloat64(UploadsTotal.WithLabelValues("csv", "failure")); got != 2 {
		t.Errorf("uploads{csv,failure} = %v, want 2", got)
	}
}
