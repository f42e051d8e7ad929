package assets

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/automation-site/automation-site/internal/config"
	"github.com/automation-site/automation-site/internal/server"
)

const indexHTML = "<!doctype html><html><body>automation audit</body></html>"

func TestNewSelectsImplementationByMode(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	dir := writeBuildDir(t)

	prod := &config.Config{
		Global: config.GlobalConfig{Mode: config.ModeProduction},
		Assets: config.AssetsConfig{PublicDir: dir, DevServerURL: "http://127.0.0.1:5173"},
	}
	srv, err := New(prod, http.DefaultClient, logger)
	if err != nil {
		t.Fatalf("New(production) error: %v", err)
	}
	if _, ok := srv.(*StaticSite); !ok {
		t.Fatalf("production should use StaticSite, got %T", srv)
	}

	dev := &config.Config{
		Global: config.GlobalConfig{Mode: config.ModeDevelopment},
		Assets: config.AssetsConfig{PublicDir: "/does/not/exist", DevServerURL: "http://127.0.0.1:5173"},
	}
	srv, err = New(dev, http.DefaultClient, logger)
	if err != nil {
		t.Fatalf("New(development) error: %v", err)
	}
	if _, ok := srv.(*DevProxy); !ok {
		t.Fatalf("development should use DevProxy, got %T", srv)
	}
}

func TestStaticSiteRequiresIndex(t *testing.T) {
	logger, _ := logtest.NewNullLogger()

	if _, err := NewStaticSite(filepath.Join(t.TempDir(), "missing"), logger); err == nil {
		t.Fatalf("expected error for missing build directory")
	}

	empty := t.TempDir()
	if _, err := NewStaticSite(empty, logger); err == nil || !strings.Contains(err.Error(), "index.html") {
		t.Fatalf("expected index.html error, got %v", err)
	}
}

func TestStaticSiteServesFilesAndFallsBackToIndex(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	site, err := NewStaticSite(writeBuildDir(t), logger)
	if err != nil {
		t.Fatalf("NewStaticSite error: %v", err)
	}
	app := newGateway(t, site)

	status, body := get(t, app, "/assets/app.js")
	if status != fiber.StatusOK || body != "console.log('site')" {
		t.Fatalf("expected asset content, got %d %q", status, body)
	}

	status, root := get(t, app, "/")
	if status != fiber.StatusOK || root != indexHTML {
		t.Fatalf("expected index at root, got %d %q", status, root)
	}

	for _, path := range []string{"/nonexistent/x/y", "/contact"} {
		status, body := get(t, app, path)
		if status != fiber.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, status)
		}
		if body != root {
			t.Fatalf("%s: expected index fallback, got %q", path, body)
		}
	}
}

func TestStaticSiteLeavesAPIPathsAlone(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	site, err := NewStaticSite(writeBuildDir(t), logger)
	if err != nil {
		t.Fatalf("NewStaticSite error: %v", err)
	}
	app := newGateway(t, site)

	status, body := get(t, app, "/api/unknown")
	if status != fiber.StatusNotFound {
		t.Fatalf("expected 404 for API path, got %d", status)
	}
	if strings.Contains(body, "automation audit") {
		t.Fatalf("API paths must never receive the index page")
	}
}

func TestDevProxyForwardsRequests(t *testing.T) {
	type upstreamCall struct {
		req  *http.Request
		body string
	}
	calls := make(chan upstreamCall, 1)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		calls <- upstreamCall{req: r.Clone(context.Background()), body: string(data)}
		w.Header().Set("X-Bundler", "vite")
		w.Header().Set("Proxy-Authenticate", "Basic")
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("from bundler"))
	}))
	defer upstream.Close()

	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	proxy, err := NewDevProxy(upstream.URL+"/", upstream.Client(), logger)
	if err != nil {
		t.Fatalf("NewDevProxy error: %v", err)
	}
	app := newGateway(t, proxy)

	req := httptest.NewRequest("POST", "/src/main.tsx?v=123", strings.NewReader("payload"))
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("X-Custom", "kept")
	req.Header.Set("Proxy-Authorization", "secret")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected upstream status 201, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "from bundler" {
		t.Fatalf("unexpected body %q", body)
	}
	if resp.Header.Get("X-Bundler") != "vite" {
		t.Fatalf("expected upstream header to be copied")
	}
	if resp.Header.Get("Proxy-Authenticate") != "" {
		t.Fatalf("hop-by-hop response header must be stripped")
	}

	var call upstreamCall
	select {
	case call = <-calls:
	default:
		t.Fatalf("upstream was not called")
	}
	captured, capturedBody := call.req, call.body
	if captured.Method != "POST" || captured.URL.Path != "/src/main.tsx" || captured.URL.RawQuery != "v=123" {
		t.Fatalf("unexpected upstream request %s %s?%s", captured.Method, captured.URL.Path, captured.URL.RawQuery)
	}
	if capturedBody != "payload" {
		t.Fatalf("expected body to be forwarded, got %q", capturedBody)
	}
	if captured.Header.Get("X-Custom") != "kept" {
		t.Fatalf("end-to-end header should be forwarded")
	}
	if captured.Header.Get("Proxy-Authorization") != "" {
		t.Fatalf("hop-by-hop request header must be stripped")
	}
	if captured.Header.Get("X-Forwarded-Host") == "" || captured.Header.Get("X-Forwarded-Proto") == "" {
		t.Fatalf("expected X-Forwarded headers, got %v", captured.Header)
	}

	var logged bool
	for _, entry := range hook.AllEntries() {
		if entry.Data["action"] == "dev_proxy" {
			logged = true
			if entry.Level != logrus.DebugLevel || entry.Data["upstream_status"] != http.StatusCreated {
				t.Fatalf("unexpected dev proxy log entry %v %v", entry.Level, entry.Data)
			}
		}
	}
	if !logged {
		t.Fatalf("expected dev_proxy log entry")
	}
}

func TestDevProxyUnavailableReturns502(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	addr := upstream.URL
	upstream.Close()

	logger, _ := logtest.NewNullLogger()
	client := &http.Client{Timeout: 2 * time.Second}
	proxy, err := NewDevProxy(addr, client, logger)
	if err != nil {
		t.Fatalf("NewDevProxy error: %v", err)
	}
	app := newGateway(t, proxy)

	status, body := get(t, app, "/")
	if status != fiber.StatusBadGateway {
		t.Fatalf("expected 502, got %d", status)
	}
	if body != `{"message":"dev server unavailable"}` {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestDevProxySkipsAPIPaths(t *testing.T) {
	var called atomic.Bool
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Store(true)
	}))
	defer upstream.Close()

	logger, _ := logtest.NewNullLogger()
	proxy, err := NewDevProxy(upstream.URL, upstream.Client(), logger)
	if err != nil {
		t.Fatalf("NewDevProxy error: %v", err)
	}
	app := newGateway(t, proxy)

	status, _ := get(t, app, "/api/nothing")
	if status != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
	if called.Load() {
		t.Fatalf("API paths must not reach the bundler")
	}
}

func TestNewDevProxyRejectsInvalidURL(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	for _, raw := range []string{"", "localhost:5173", "ftp://host", "http://"} {
		if _, err := NewDevProxy(raw, http.DefaultClient, logger); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func writeBuildDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte(indexHTML), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "assets"), 0o755); err != nil {
		t.Fatalf("mkdir assets: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "assets", "app.js"), []byte("console.log('site')"), 0o644); err != nil {
		t.Fatalf("write asset: %v", err)
	}
	return dir
}

func newGateway(t *testing.T, assets server.AssetServer) *fiber.App {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	app, err := server.NewApp(server.AppOptions{Logger: logger, Assets: assets})
	if err != nil {
		t.Fatalf("NewApp error: %v", err)
	}
	return app
}

func get(t *testing.T, app *fiber.App, path string) (int, string) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", path, nil))
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}
