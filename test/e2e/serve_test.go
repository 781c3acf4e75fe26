package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

const (
	startupTimeout = 10 * time.Second
	pollInterval   = 100 * time.Millisecond
)

var resources = map[string]string{
	"app/main.js":   `define(["./greet", "lib/clock"], function (greet, clock) { return greet("e2e") + " @ " + clock.now; });`,
	"app/greet.js":  `define(function () { return function (who) { return "hello " + who; }; });`,
	"lib/clock.js":  `define({now: "t0"});`,
	"app/broken.js": `define(["./missing"], function () { return 1; });`,
}

var bundleModules = map[string]string{
	"fx/one.js": `define({n: 1});`,
	"fx/two.js": `define(["fx/one"], function (one) { return {n: one.n + 1}; });`,
}

// lockedBuffer is a thread-safe wrapper around bytes.Buffer.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (lb *lockedBuffer) Write(p []byte) (int, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.buf.Write(p)
}

func (lb *lockedBuffer) String() string {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.buf.String()
}

// serverProc holds the running server subprocess and its output.
type serverProc struct {
	cmd    *exec.Cmd
	stdout *lockedBuffer
	url    string
}

var (
	builtBinary string
	buildOnce   sync.Once
	buildErr    error
)

func getBinary(t *testing.T) string {
	t.Helper()
	buildOnce.Do(func() {
		dir, err := os.MkdirTemp("", "modloader-e2e-*")
		if err != nil {
			buildErr = err
			return
		}
		binary := filepath.Join(dir, "modloader")
		cmd := exec.Command("go", "build", "-o", binary, "./cmd/modloader")
		cmd.Dir = findRepoRoot(t)
		out, err := cmd.CombinedOutput()
		if err != nil {
			buildErr = fmt.Errorf("go build failed: %w\n%s", err, out)
			return
		}
		builtBinary = binary
	})
	if buildErr != nil {
		t.Fatal(buildErr)
	}
	return builtBinary
}

func findRepoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find repo root")
		}
		dir = parent
	}
}

// workspace writes the resource tree and returns it with a database path.
func workspace(t *testing.T) (root, dbPath string) {
	t.Helper()
	root = t.TempDir()
	for name, src := range resources {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(src), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root, filepath.Join(t.TempDir(), "test.db")
}

func env(dbPath string, extra ...string) []string {
	return append(append(os.Environ(),
		"MODLOADER_DB_PATH="+dbPath,
		"MODLOADER_LOG_LEVEL=info",
	), extra...)
}

// runCLI runs a one-shot command and returns its stdout.
func runCLI(t *testing.T, binary, dbPath string, args ...string) string {
	t.Helper()
	cmd := exec.Command(binary, args...)
	cmd.Env = env(dbPath)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		t.Fatalf("modloader %s: %v\nstderr:\n%s", strings.Join(args, " "), err, stderr.String())
	}
	return stdout.String()
}

func startServer(t *testing.T, binary, dbPath string, args ...string) *serverProc {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	stdout := &lockedBuffer{}
	cmd := exec.Command(binary, append([]string{"serve"}, args...)...)
	cmd.Env = env(dbPath, "MODLOADER_LISTEN_ADDR="+addr)
	cmd.Stdout = stdout
	cmd.Stderr = stdout

	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}

	sp := &serverProc{
		cmd:    cmd,
		stdout: stdout,
		url:    "http://" + addr,
	}

	t.Cleanup(func() {
		cmd.Process.Kill()
		cmd.Wait()
	})

	deadline := time.Now().Add(startupTimeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(sp.url + "/healthz")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == 200 {
				return sp
			}
		}
		time.Sleep(pollInterval)
	}
	t.Fatalf("server did not become ready within %v\nstdout:\n%s", startupTimeout, stdout.String())
	return nil
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

type moduleInfo struct {
	Name  string `json:"name"`
	State string `json:"state"`
	Error string `json:"error"`
}

// waitForState polls the module endpoint until the module reaches state.
func waitForState(t *testing.T, sp *serverProc, name, state string) moduleInfo {
	t.Helper()
	deadline := time.Now().Add(startupTimeout)
	var info moduleInfo
	for time.Now().Before(deadline) {
		if getJSON(t, sp.url+"/v1/modules/"+name, &info) == http.StatusOK && info.State == state {
			return info
		}
		time.Sleep(pollInterval)
	}
	t.Fatalf("%s did not reach %s (last %+v)\nstdout:\n%s", name, state, info, sp.stdout.String())
	return info
}

func TestRunPrintsExports(t *testing.T) {
	binary := getBinary(t)
	root, dbPath := workspace(t)

	out := runCLI(t, binary, dbPath, "run", "--root", root, "app/main")

	var got map[string]string
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if got["app/main"] != "hello e2e @ t0" {
		t.Errorf("app/main = %q, want %q", got["app/main"], "hello e2e @ t0")
	}
}

func TestServeStartupModules(t *testing.T) {
	binary := getBinary(t)
	root, dbPath := workspace(t)
	sp := startServer(t, binary, dbPath, "--root", root, "--no-watch",
		"--require", "app/main", "--require", "app/broken")

	waitForState(t, sp, "app/main.js", "ready")
	for _, name := range []string{"app/greet.js", "lib/clock.js"} {
		waitForState(t, sp, name, "ready")
	}
	broken := waitForState(t, sp, "app/broken.js", "failed")
	if !strings.Contains(broken.Error, "app/missing.js") {
		t.Errorf("error = %q, want the missing dependency named", broken.Error)
	}

	var health struct {
		Status  string `json:"status"`
		Modules int    `json:"modules"`
		Failed  int    `json:"failed"`
	}
	if code := getJSON(t, sp.url+"/healthz", &health); code != http.StatusOK {
		t.Fatalf("healthz status = %d", code)
	}
	if health.Failed != 2 {
		t.Errorf("failed = %d, want 2 (broken and missing)", health.Failed)
	}

	var stats struct {
		Fetches struct {
			Total    int `json:"total"`
			Failures int `json:"failures"`
		} `json:"fetches"`
	}
	getJSON(t, sp.url+"/v1/stats", &stats)
	if stats.Fetches.Failures < 1 {
		t.Errorf("failures = %d, want the missing module logged", stats.Fetches.Failures)
	}

	resp, err := http.Post(sp.url+"/v1/reset/app/broken.js", "application/json", nil)
	if err != nil {
		t.Fatalf("POST reset: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("reset status = %d, want 200", resp.StatusCode)
	}
	waitForState(t, sp, "app/broken.js", "unresolved")
}

func TestStoredBundlePreload(t *testing.T) {
	binary := getBinary(t)
	_, dbPath := workspace(t)

	dir := t.TempDir()
	for name, src := range bundleModules {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(src), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	out := runCLI(t, binary, dbPath, "bundle", "add", "fixtures", dir)
	if !strings.Contains(out, "2 modules") {
		t.Errorf("bundle add output = %q", out)
	}
	if out := runCLI(t, binary, dbPath, "bundle", "list"); !strings.Contains(out, "fixtures") {
		t.Errorf("bundle list output = %q", out)
	}

	sp := startServer(t, binary, dbPath, "--root", t.TempDir(), "--no-watch", "--bundle", "fixtures")
	waitForState(t, sp, "fx/one.js", "preloaded")

	req, err := http.NewRequest(http.MethodDelete, sp.url+"/v1/bundles/fixtures", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE bundle: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("evict status = %d: %s", resp.StatusCode, body)
	}
	if code := getJSON(t, sp.url+"/v1/modules/fx/one.js", nil); code != http.StatusNotFound {
		t.Errorf("fx/one.js after evict: status %d, want 404", code)
	}
}
