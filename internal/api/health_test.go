package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHealthzEndpoint(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	var body healthResponse
	if status := doJSON(t, ts, http.MethodGet, "/healthz", &body); status != http.StatusOK {
		t.Errorf("status = %d, want 200", status)
	}
	if body.Status != "ok" || body.Modules != 0 {
		t.Errorf("body = %+v", body)
	}

	rt := runtimeOf(srv)
	if _, err := rt.RequireSync("b"); err != nil {
		t.Fatal(err)
	}
	if _, err := rt.RequireSync("bad"); err == nil {
		t.Fatal("bad.js loaded without error")
	}
	doJSON(t, ts, http.MethodGet, "/healthz", &body)
	if body.Modules != 2 || body.Failed != 1 {
		t.Errorf("after requires: %+v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	// Make a request to generate metrics.
	http.Get(ts.URL + "/healthz")

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	bodyBytes, _ := io.ReadAll(resp.Body)
	body := string(bodyBytes)

	for _, name := range []string{
		"modloader_http_requests_total",
		"modloader_http_request_duration_seconds",
		"modloader_fetch_attempts_total",
		"modloader_scheduler_deferrals_total",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
