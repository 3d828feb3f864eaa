package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/quillhub/quillhub/pkg/observability"
)

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = observability.GetRequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if seen == "" {
		t.Error("Expected a generated request id in context")
	}
	if w.Header().Get("X-Request-ID") != seen {
		t.Error("Expected the request id to be echoed in the response header")
	}
}

func TestRequestID_HonorsIncomingHeader(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = observability.GetRequestID(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "upstream-id")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "upstream-id" {
		t.Errorf("Expected upstream id to be kept, got %q", seen)
	}
}

func TestLogging_EmitsStatusAndPath(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.InfoLevel, &buf)

	router := mux.NewRouter()
	router.Use(Logging(logger))
	router.HandleFunc("/teapot", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/teapot", nil))

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("Failed to decode log line: %v", err)
	}
	if line["status"] != float64(http.StatusTeapot) {
		t.Errorf("Expected status 418 in log, got %v", line["status"])
	}
	if line["path"] != "/teapot" {
		t.Errorf("Expected path in log, got %v", line["path"])
	}
}

func TestMetrics_UsesRouteTemplate(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	router := mux.NewRouter()
	router.Use(Metrics(metrics))
	router.HandleFunc("/api/v1/permissions/{userID}/pages/{pageID}", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/v1/permissions/user-1/pages/page-1", nil))

	count := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/permissions/{userID}/pages/{pageID}", "200"))
	if count != 1 {
		t.Errorf("Expected 1 request recorded under the route template, got %f", count)
	}
}
