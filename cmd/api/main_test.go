package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMetricPath(t *testing.T) {
	cases := map[string]string{
		"/v1/allocations":                      "/v1/allocations",
		"/v1/allocations/upload":               "/v1/allocations/upload",
		"/v1/allocations/abc":                  "/v1/allocations/{id}",
		"/v1/allocations/abc/geojson":          "/v1/allocations/{id}/geojson",
		"/v1/admin/webhook-dlq/x/requeue":      "/v1/admin/webhook-dlq/{id}/requeue",
		"/v1/admin/webhook-deliveries/y/retry": "/v1/admin/webhook-deliveries/{id}/retry",
		"/healthz":                             "/healthz",
	}
	for in, want := range cases {
		if got := metricPath(in); got != want {
			t.Fatalf("metricPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLogMiddlewareStatus(t *testing.T) {
	h := logMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := w.(http.Flusher); !ok {
			t.Fatalf("middleware hides http.Flusher")
		}
		w.WriteHeader(http.StatusTeapot)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/allocations/abc", nil))
	if rr.Code != http.StatusTeapot {
		t.Fatalf("status %d", rr.Code)
	}
}
