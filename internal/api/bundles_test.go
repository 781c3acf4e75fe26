package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/seantiz/modloader/internal/store"
)

func TestPreloadAndEvictBundle(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	err := srv.store.PutBundle(context.Background(), &store.Bundle{
		Name: "lib/all.js",
		Modules: map[string]string{
			"lib/x.js": `define("X");`,
			"lib/y.js": `define(["./x"], function (x) { return x + "Y"; });`,
		},
	})
	if err != nil {
		t.Fatalf("PutBundle: %v", err)
	}

	var list listBundlesResponse
	doJSON(t, ts, http.MethodGet, "/v1/bundles", &list)
	if len(list.Bundles) != 1 || list.Bundles[0].Modules != 2 {
		t.Errorf("bundles = %+v", list.Bundles)
	}

	var loaded bundleResponse
	if status := doJSON(t, ts, http.MethodPost, "/v1/bundles/lib/all.js", &loaded); status != http.StatusOK {
		t.Fatalf("preload: status = %d", status)
	}
	if loaded.Modules != 2 {
		t.Errorf("preloaded %d modules, want 2", loaded.Modules)
	}

	v, err := runtimeOf(srv).RequireSync("lib/y")
	if err != nil || v != "XY" {
		t.Fatalf("RequireSync(lib/y) = %v, %v", v, err)
	}

	var evicted bundleResponse
	if status := doJSON(t, ts, http.MethodDelete, "/v1/bundles/lib/all.js", &evicted); status != http.StatusOK {
		t.Fatalf("evict: status = %d", status)
	}
	if evicted.Modules != 2 {
		t.Errorf("evicted %d modules, want 2", evicted.Modules)
	}
	if status := doJSON(t, ts, http.MethodDelete, "/v1/bundles/lib/all.js", nil); status != http.StatusNotFound {
		t.Errorf("second evict: status = %d, want 404", status)
	}
	if status := doJSON(t, ts, http.MethodPost, "/v1/bundles/none.js", nil); status != http.StatusNotFound {
		t.Errorf("unknown bundle: status = %d, want 404", status)
	}
}

func TestFetchLogAndStats(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	rt := runtimeOf(srv)
	rt.RequireSync("a")
	rt.RequireSync("missing")

	var fetches listFetchesResponse
	if status := doJSON(t, ts, http.MethodGet, "/v1/fetches?limit=2", &fetches); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if fetches.Total != 3 || len(fetches.Fetches) != 2 || fetches.Limit != 2 {
		t.Errorf("fetches = %+v", fetches)
	}

	var stats struct {
		Fetches store.FetchStats `json:"fetches"`
		ByState map[string]int   `json:"by_state"`
	}
	doJSON(t, ts, http.MethodGet, "/v1/stats", &stats)
	if stats.Fetches.Total != 3 || stats.Fetches.Failures != 1 {
		t.Errorf("fetch stats = %+v", stats.Fetches)
	}
	if stats.ByState["ready"] != 2 || stats.ByState["failed"] != 1 {
		t.Errorf("by state = %v", stats.ByState)
	}
}
