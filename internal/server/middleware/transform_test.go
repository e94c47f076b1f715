package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/devserver/internal/foundation/errors"
	"git.home.luguber.info/inful/devserver/internal/modulegraph"
	"git.home.luguber.info/inful/devserver/internal/server/send"
	"git.home.luguber.info/inful/devserver/internal/transform"
	"git.home.luguber.info/inful/devserver/internal/urlcanon"
)

type stubTransformer struct {
	calls []string
	opts  []transform.Options
	res   *modulegraph.TransformResult
	err   error
}

func (s *stubTransformer) TransformRequest(_ context.Context, url string, opts transform.Options) (*modulegraph.TransformResult, error) {
	s.calls = append(s.calls, url)
	s.opts = append(s.opts, opts)
	return s.res, s.err
}

type harness struct {
	graph  *modulegraph.MemoryGraph
	stub   *stubTransformer
	errs   []error
	nexted int
	h      http.Handler
}

func newHarness() *harness {
	hs := &harness{graph: modulegraph.NewMemoryGraph(), stub: &stubTransformer{}}
	mw := Transform(TransformDeps{
		Canon:       urlcanon.New(urlcanon.Rules{CacheDirPrefix: "/node_modules/.devserver/"}),
		Graph:       hs.graph,
		Transformer: hs.stub,
		OnError: func(w http.ResponseWriter, _ *http.Request, err error) {
			hs.errs = append(hs.errs, err)
			w.WriteHeader(http.StatusTeapot)
		},
	})
	hs.h = mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hs.nexted++
		w.WriteHeader(http.StatusNotFound)
	}))
	return hs
}

func (hs *harness) do(method, target string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	hs.h.ServeHTTP(rec, req)
	return rec
}

func TestTransform_NotModifiedSkipsTransformer(t *testing.T) {
	hs := newHarness()
	require.NoError(t, hs.graph.SetTransformResult(context.Background(), "/src/a.js", "/srv/src/a.js", time.Time{},
		&modulegraph.TransformResult{Code: "x", ETag: `"abc"`}))

	rec := hs.do(http.MethodGet, "/src/a.js", map[string]string{"If-None-Match": `"abc"`})
	require.Equal(t, http.StatusNotModified, rec.Code)
	require.Empty(t, rec.Body.String())
	require.Empty(t, hs.stub.calls)
}

func TestTransform_StaleETagTransforms(t *testing.T) {
	hs := newHarness()
	require.NoError(t, hs.graph.SetTransformResult(context.Background(), "/src/a.js", "/srv/src/a.js", time.Time{},
		&modulegraph.TransformResult{Code: "x", ETag: `"old"`}))
	hs.stub.res = &modulegraph.TransformResult{Code: "y", ETag: `"new"`}

	rec := hs.do(http.MethodGet, "/src/a.js", map[string]string{"If-None-Match": `"abc"`})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "y", rec.Body.String())
	require.Equal(t, `"new"`, rec.Header().Get("ETag"))
	require.Len(t, hs.stub.calls, 1)
}

func TestTransform_SourceMap(t *testing.T) {
	hs := newHarness()
	m := &modulegraph.SourceMap{Version: 3, Sources: []string{"a.ts"}, Names: []string{}, Mappings: "AAAA"}
	require.NoError(t, hs.graph.SetTransformResult(context.Background(), "/src/a.js", "/srv/src/a.js", time.Time{},
		&modulegraph.TransformResult{Code: "x", Map: m, ETag: `"abc"`}))
	want, err := m.JSON()
	require.NoError(t, err)

	rec := hs.do(http.MethodGet, "/src/a.js.map", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, string(want), rec.Body.String())
	require.Equal(t, send.ContentType(send.TypeJSON), rec.Header().Get("Content-Type"))
	require.Empty(t, hs.stub.calls)
}

func TestTransform_SourceMapMissingFallsThrough(t *testing.T) {
	hs := newHarness()
	rec := hs.do(http.MethodGet, "/src/b.js.map", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, 1, hs.nexted)
}

func TestTransform_ModuleResponse(t *testing.T) {
	hs := newHarness()
	hs.stub.res = &modulegraph.TransformResult{Code: "export {}", ETag: `W/"1"`}

	rec := hs.do(http.MethodGet, "/src/a.js?import&t=1700000000000", map[string]string{"Accept": "*/*"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "export {}", rec.Body.String())
	require.Equal(t, send.NoCache, rec.Header().Get("Cache-Control"))
	require.Equal(t, send.ContentType(send.TypeJS), rec.Header().Get("Content-Type"))
	require.Equal(t, []string{"/src/a.js"}, hs.stub.calls)
}

func TestTransform_DependencyCaching(t *testing.T) {
	hs := newHarness()
	hs.stub.res = &modulegraph.TransformResult{Code: "dep", ETag: `W/"2"`}

	rec := hs.do(http.MethodGet, "/node_modules/.devserver/react.js?v=3f2a1b", nil)
	require.Equal(t, send.Immutable, rec.Header().Get("Cache-Control"))

	rec = hs.do(http.MethodGet, "/lib/x.js?v=abc", nil)
	require.Equal(t, send.Immutable, rec.Header().Get("Cache-Control"))
}

func TestTransform_DirectCSS(t *testing.T) {
	hs := newHarness()
	hs.stub.res = &modulegraph.TransformResult{Code: "body{}", ETag: `W/"3"`}

	rec := hs.do(http.MethodGet, "/style.css", map[string]string{"Accept": "text/css,*/*;q=0.1"})
	require.Equal(t, send.ContentType(send.TypeCSS), rec.Header().Get("Content-Type"))
	require.Equal(t, []string{"/style.css?direct"}, hs.stub.calls)
}

func TestTransform_AcceptHTMLFlag(t *testing.T) {
	hs := newHarness()
	hs.stub.res = &modulegraph.TransformResult{Code: "x", ETag: `W/"4"`}

	hs.do(http.MethodGet, "/src/a.ts", map[string]string{"Accept": "text/html"})
	require.Equal(t, []transform.Options{{HTML: true}}, hs.stub.opts)
}

func TestTransform_NoResultFallsThrough(t *testing.T) {
	hs := newHarness()
	rec := hs.do(http.MethodGet, "/src/missing.js", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, 1, hs.nexted)
	require.Len(t, hs.stub.calls, 1)
}

func TestTransform_ErrorsAreForwarded(t *testing.T) {
	hs := newHarness()
	boom := errors.New("boom")
	hs.stub.err = boom

	rec := hs.do(http.MethodGet, "/src/a.js", nil)
	require.Equal(t, http.StatusTeapot, rec.Code)
	require.Len(t, hs.errs, 1)
	require.ErrorIs(t, hs.errs[0], boom)
	require.Zero(t, hs.nexted)
}

func TestTransform_MalformedURLForwarded(t *testing.T) {
	hs := newHarness()
	rec := hs.do(http.MethodGet, "/%E0%A4.js", nil)
	require.Equal(t, http.StatusTeapot, rec.Code)
	require.Len(t, hs.errs, 1)
	require.True(t, ferrors.HasCategory(hs.errs[0], ferrors.CategoryRequest))
	require.Empty(t, hs.stub.calls)
}

func TestTransform_IgnoredRequests(t *testing.T) {
	hs := newHarness()
	hs.stub.res = &modulegraph.TransformResult{Code: "x"}

	hs.do(http.MethodPost, "/src/a.js", nil)
	hs.do(http.MethodGet, "/", nil)
	hs.do(http.MethodGet, "/favicon.ico", nil)
	hs.do(http.MethodGet, "/index.html", nil)
	require.Equal(t, 4, hs.nexted)
	require.Empty(t, hs.stub.calls)
}
