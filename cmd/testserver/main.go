// testserver starts a modloader API server over in-memory fixture modules
// for E2E testing.
// Usage: go run ./cmd/testserver
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/seantiz/modloader/internal/api"
	"github.com/seantiz/modloader/internal/fetch"
	"github.com/seantiz/modloader/internal/jsrt"
	"github.com/seantiz/modloader/internal/loader"
	"github.com/seantiz/modloader/internal/store"
)

// fixtures are served by stubGetter, keyed by URL path.
var fixtures = map[string]string{
	"app/main.js":   `define(["./greet", "lib/clock"], function (greet, clock) { return greet("e2e") + " @ " + clock.now; });`,
	"app/greet.js":  `define(function () { return function (who) { return "hello " + who; }; });`,
	"lib/clock.js":  `define({now: "t0"});`,
	"app/broken.js": `define(["./missing"], function () { return 1; });`,
	"app/cycle-a.js": `define(["require", "exports", "./cycle-b"], function (require, exports, b) {
		exports.name = "a";
		exports.peer = function () { return b.name; };
	});`,
	"app/cycle-b.js": `define(["require", "exports", "./cycle-a"], function (require, exports, a) {
		exports.name = "b";
		exports.peer = function () { return a.name; };
	});`,
}

// stubGetter serves fixtures after a delay so SSE subscribers can observe
// every transition.
type stubGetter struct {
	delay time.Duration
}

func (g stubGetter) Get(ctx context.Context, rawURL string) (fetch.Response, error) {
	select {
	case <-time.After(g.delay):
	case <-ctx.Done():
		return fetch.Response{}, ctx.Err()
	}
	src, ok := fixtures[strings.TrimPrefix(path.Clean("/"+rawURL), "/")]
	if !ok {
		return fetch.Response{}, &fetch.FetchError{URL: rawURL, Status: http.StatusNotFound}
	}
	return fetch.Response{URL: rawURL, Status: http.StatusOK, Body: []byte(src)}, nil
}

func main() {
	addr := ":8080"
	if v := os.Getenv("MODLOADER_LISTEN_ADDR"); v != "" {
		addr = v
	}

	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	rt, err := jsrt.New(loader.Options{
		BaseURL:  "/",
		Getter:   stubGetter{delay: 200 * time.Millisecond},
		Recorder: &store.FetchLog{Store: db, Logger: logger},
		Logger:   logger,
	})
	if err != nil {
		log.Fatalf("failed to start runtime: %v", err)
	}
	defer rt.Close()

	err = db.PutBundle(context.Background(), &store.Bundle{
		Name: "fixtures",
		Modules: map[string]string{
			"fx/one.js": `define({n: 1});`,
			"fx/two.js": `define(["fx/one"], function (one) { return {n: one.n + 1}; });`,
		},
	})
	if err != nil {
		log.Fatalf("failed to store fixture bundle: %v", err)
	}

	srv := api.NewServer(addr, rt, db, "", logger)

	logger.Info("testserver: starting", "addr", addr)
	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
