package httpserver

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/devserver/internal/config"
	"git.home.luguber.info/inful/devserver/internal/reloadgate"
)

func writeFile(t *testing.T, name, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(name), 0o755))
	require.NoError(t, os.WriteFile(name, []byte(body), 0o600))
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	return newTestServerWithDeps(t, mutate, Deps{})
}

func newTestServerWithDeps(t *testing.T, mutate func(*config.Config), deps Deps) *Server {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "index.html"),
		`<!doctype html><html><head><title>t</title></head><body><script type="module">import "/main.js"</script><img src="/logo.png"></body></html>`)
	writeFile(t, filepath.Join(root, "main.js"), "console.log(1)\n")
	writeFile(t, filepath.Join(root, "docs", "index.html"), "<html><head></head><body>docs</body></html>")
	writeFile(t, filepath.Join(root, "logo.png"), "png")
	writeFile(t, filepath.Join(root, "a.css"), "body{color:red}")
	writeFile(t, filepath.Join(root, "public", "robots.txt"), "User-agent: *\n")

	cfg := config.Default()
	cfg.Root = root
	cfg.Server.PendingReloadTimeout = 50 * time.Millisecond
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Normalize())
	return New(cfg, deps)
}

func get(t *testing.T, h http.Handler, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServesTransformedIndexHTML(t *testing.T) {
	s := newTestServer(t, nil)

	rec := get(t, s.Handler(), "/", http.Header{"Accept": {"text/html"}})
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, `src="/@devserver/client"`)
	require.Contains(t, body, `<script type="module" src="/index.html?html-proxy&index=0.js"></script>`)
	require.Less(t, strings.Index(body, "/@devserver/client"), strings.Index(body, "<title>"))

	rec = get(t, s.Handler(), "/docs/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "/@devserver/client")
}

func TestServesModulesWithETag(t *testing.T) {
	s := newTestServer(t, nil)

	rec := get(t, s.Handler(), "/main.js", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "javascript")
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)
	require.Contains(t, rec.Body.String(), "console.log(1)")

	rec = get(t, s.Handler(), "/main.js", http.Header{"If-None-Match": {etag}})
	require.Equal(t, http.StatusNotModified, rec.Code)
	require.Empty(t, rec.Body.String())

	rec = get(t, s.Handler(), "/index.html?html-proxy&index=0.js", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `import "/main.js"`)
}

func TestStylesheetNavigationAndImportAgree(t *testing.T) {
	for _, first := range []string{"text/html", "*/*"} {
		s := newTestServer(t, nil)
		second := "*/*"
		if first == second {
			second = "text/html"
		}
		for _, accept := range []string{first, second} {
			rec := get(t, s.Handler(), "/a.css", http.Header{"Accept": {accept}})
			require.Equal(t, http.StatusOK, rec.Code)
			require.Contains(t, rec.Header().Get("Content-Type"), "javascript", accept)
			require.Contains(t, rec.Body.String(), "export default", accept)
		}

		rec := get(t, s.Handler(), "/a.css?direct", http.Header{"Accept": {"text/css"}})
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Header().Get("Content-Type"), "text/css")
		require.Equal(t, "body{color:red}", rec.Body.String())
	}
}

func TestServesClientRuntime(t *testing.T) {
	s := newTestServer(t, nil)
	rec := get(t, s.Handler(), "/@devserver/client", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"/@devserver/client/events"`)
}

func TestServesStaticFiles(t *testing.T) {
	s := newTestServer(t, nil)

	rec := get(t, s.Handler(), "/robots.txt", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "User-agent: *\n", rec.Body.String())

	rec = get(t, s.Handler(), "/logo.png", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "png", rec.Body.String())

	rec = get(t, s.Handler(), "/missing.png", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPendingReloadTimesOut(t *testing.T) {
	gate := reloadgate.New()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "main.js"), "export {}\n")
	cfg := config.Default()
	cfg.Root = root
	cfg.Server.PendingReloadTimeout = 30 * time.Millisecond
	require.NoError(t, cfg.Normalize())
	s := New(cfg, Deps{Gate: gate})

	p := gate.Begin()
	defer p.Resolve()

	rec := get(t, s.Handler(), "/main.js", nil)
	require.Equal(t, http.StatusRequestTimeout, rec.Code)
	require.Contains(t, rec.Body.String(), "Something unexpected happened")

	// The client runtime is never parked.
	rec = get(t, s.Handler(), "/@devserver/client", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPendingReloadOnlyParksModuleGETs(t *testing.T) {
	gate := reloadgate.New()
	s := newTestServerWithDeps(t, func(c *config.Config) {
		c.Server.PendingReloadTimeout = 30 * time.Millisecond
	}, Deps{Gate: gate})

	p := gate.Begin()
	defer p.Resolve()

	req := httptest.NewRequest(http.MethodPost, "/main.js", strings.NewReader("x"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = get(t, s.Handler(), "/favicon.ico", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	// "/" is rewritten to its index page only after the gate has let it through.
	rec = get(t, s.Handler(), "/", http.Header{"Accept": {"text/html"}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "/@devserver/client")

	rec = get(t, s.Handler(), "/docs/", nil)
	require.Equal(t, http.StatusRequestTimeout, rec.Code)
}

func TestPendingReloadReleasesRequest(t *testing.T) {
	gate := reloadgate.New()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "main.js"), "export {}\n")
	cfg := config.Default()
	cfg.Root = root
	cfg.Server.PendingReloadTimeout = 5 * time.Second
	require.NoError(t, cfg.Normalize())
	s := New(cfg, Deps{Gate: gate})

	p := gate.Begin()
	go func() {
		time.Sleep(20 * time.Millisecond)
		p.Resolve()
	}()
	rec := get(t, s.Handler(), "/main.js", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBasePath(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.Base = "app" })

	rec := get(t, s.Handler(), "/", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/app/", rec.Header().Get("Location"))

	rec = get(t, s.Handler(), "/app/main.js", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, s.Handler(), "/app/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, `src="/app/@devserver/client"`)
	require.Contains(t, body, `src="/app/logo.png"`)

	rec = get(t, s.Handler(), "/app/@devserver/client", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"/app/@devserver/client/events"`)
}

func TestMetricsRoute(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	cfg.Root = root
	cfg.Metrics.Enabled = true
	require.NoError(t, cfg.Normalize())
	s := New(cfg, Deps{MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "metrics")
	})})

	rec := get(t, s.Handler(), "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "metrics", rec.Body.String())
}

func TestStartStop(t *testing.T) {
	s := newTestServer(t, nil)
	require.Empty(t, s.Addr())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, s.StartWithListener(ln))
	addr := s.Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/main.js")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}
