package middleware

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"git.home.luguber.info/inful/devserver/internal/logfields"
	"git.home.luguber.info/inful/devserver/internal/metrics"
	"git.home.luguber.info/inful/devserver/internal/modulegraph"
	"git.home.luguber.info/inful/devserver/internal/server/send"
	"git.home.luguber.info/inful/devserver/internal/transform"
	"git.home.luguber.info/inful/devserver/internal/urlcanon"
)

// KnownIgnoreList are request URIs the transform middleware never handles.
var KnownIgnoreList = []string{"/", "/favicon.ico"}

// TransformDeps are the collaborators of the transform middleware.
type TransformDeps struct {
	Canon       *urlcanon.Canonicalizer
	Graph       modulegraph.Graph
	Transformer transform.Transformer
	// OnError receives canonicalization and transform failures. Nothing has
	// been written to the response when it is called.
	OnError  ErrorHandler
	Recorder metrics.Recorder
}

func (d *TransformDeps) recorder() metrics.Recorder {
	if d.Recorder == nil {
		return metrics.NoopRecorder{}
	}
	return d.Recorder
}

// Transform serves source maps and transformed modules. Requests it cannot
// answer pass to next untouched.
func Transform(deps TransformDeps) func(http.Handler) http.Handler {
	rec := deps.recorder()
	deps.OnError = orDefault(deps.OnError)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet || slices.Contains(KnownIgnoreList, r.URL.RequestURI()) {
				next.ServeHTTP(w, r)
				return
			}

			req, err := deps.Canon.Canonicalize(r.Method, r.URL.RequestURI(), r.Header)
			if err != nil {
				deps.OnError(w, r, err)
				return
			}
			rec.IncRequest(req.Kind.String())

			switch req.Kind {
			case urlcanon.KindSourceMap:
				if !serveSourceMap(w, r, deps, rec, req) {
					next.ServeHTTP(w, r)
				}
				return
			case urlcanon.KindModule:
				if req.PublicPathHint != "" {
					warnPublicPath(req)
				}
				handled, err := serveModule(w, r, deps, rec, req)
				if err != nil {
					deps.OnError(w, r, err)
					return
				}
				if !handled {
					next.ServeHTTP(w, r)
				}
				return
			default:
				if req.PublicPathHint != "" {
					warnPublicPath(req)
				}
				next.ServeHTTP(w, r)
			}
		})
	}
}

func warnPublicPath(req urlcanon.Request) {
	slog.Warn("Files in the public directory are served at the root path",
		logfields.URL(req.URL),
		slog.String("use", req.PublicPathHint))
}

// serveSourceMap answers with the cached map of the module the request
// points at. It reports false when there is none.
func serveSourceMap(w http.ResponseWriter, r *http.Request, deps TransformDeps, rec metrics.Recorder, req urlcanon.Request) bool {
	mod, err := deps.Graph.GetModuleByURL(r.Context(), req.URL)
	if err != nil {
		slog.Warn("Module graph lookup failed", logfields.URL(req.URL), logfields.Error(err))
		return false
	}
	if mod == nil || mod.TransformResult == nil || mod.TransformResult.Map == nil {
		rec.IncSourceMapRequest(metrics.SourceMapMissed)
		return false
	}
	body, err := mod.TransformResult.Map.JSON()
	if err != nil {
		slog.Warn("Source map serialization failed", logfields.URL(req.URL), logfields.Error(err))
		return false
	}
	rec.IncSourceMapRequest(metrics.SourceMapServed)
	if err := send.Send(w, r, string(body), send.TypeJSON, send.Options{}); err != nil {
		slog.Debug("Writing source map failed", logfields.URL(req.URL), logfields.Error(err))
	}
	return true
}

// serveModule answers a module request: 304 from the cached ETag, otherwise
// the transformer's output. It reports false when the transformer has nothing.
func serveModule(w http.ResponseWriter, r *http.Request, deps TransformDeps, rec metrics.Recorder, req urlcanon.Request) (bool, error) {
	if inm := r.Header.Get("If-None-Match"); inm != "" {
		mod, err := deps.Graph.GetModuleByURL(r.Context(), req.URL)
		if err != nil {
			slog.Warn("Module graph lookup failed", logfields.URL(req.URL), logfields.Error(err))
		} else if mod != nil && mod.TransformResult != nil && mod.TransformResult.ETag == inm {
			rec.IncNotModified()
			w.WriteHeader(http.StatusNotModified)
			return true, nil
		}
	}

	start := time.Now()
	res, err := deps.Transformer.TransformRequest(r.Context(), req.URL, transform.Options{HTML: req.AcceptsHTML})
	rec.ObserveTransformDuration(time.Since(start))
	if err != nil {
		return false, err
	}
	if res == nil {
		return false, nil
	}

	typ := send.TypeJS
	if req.DirectCSS {
		typ = send.TypeCSS
	}
	cacheControl := send.NoCache
	if req.IsDependency {
		cacheControl = send.Immutable
	}
	if err := send.Send(w, r, res.Code, typ, send.Options{ETag: res.ETag, CacheControl: cacheControl, Map: res.Map}); err != nil {
		slog.Debug("Writing module failed", logfields.URL(req.URL), logfields.Error(err))
	}
	return true, nil
}
