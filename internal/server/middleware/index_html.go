package middleware

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	ferrors "git.home.luguber.info/inful/devserver/internal/foundation/errors"
	"git.home.luguber.info/inful/devserver/internal/htmltransform"
	"git.home.luguber.info/inful/devserver/internal/logfields"
	"git.home.luguber.info/inful/devserver/internal/metrics"
	"git.home.luguber.info/inful/devserver/internal/server/send"
	"git.home.luguber.info/inful/devserver/internal/urlcanon"
)

// IndexHTMLDeps are the collaborators of the index HTML middleware.
type IndexHTMLDeps struct {
	Canon    *urlcanon.Canonicalizer
	Pipeline *htmltransform.Pipeline
	OnError  ErrorHandler
	Recorder metrics.Recorder
}

// IndexHTML serves HTML pages through the transform pipeline. Pages that do
// not exist on disk pass to next.
func IndexHTML(deps IndexHTMLDeps) func(http.Handler) http.Handler {
	rec := deps.Recorder
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	deps.OnError = orDefault(deps.OnError)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req, err := deps.Canon.Canonicalize(r.Method, r.URL.RequestURI(), r.Header)
			if err != nil {
				deps.OnError(w, r, err)
				return
			}
			if req.Kind != urlcanon.KindHTML {
				next.ServeHTTP(w, r)
				return
			}

			filename := deps.Pipeline.FilenameFor(req.WithoutQuery)
			info, err := os.Stat(filename)
			if err != nil || !info.Mode().IsRegular() {
				if err != nil && !errors.Is(err, fs.ErrNotExist) {
					slog.Debug("Index HTML stat failed", logfields.File(filename), logfields.Error(err))
				}
				next.ServeHTTP(w, r)
				return
			}

			raw, err := os.ReadFile(filename)
			if err != nil {
				deps.OnError(w, r, ferrors.WrapError(err, ferrors.CategoryFileSystem, "read html page").
					WithContext("file", filename).
					Build())
				return
			}

			start := time.Now()
			html, err := deps.Pipeline.TransformIndexHTML(r.Context(), req.WithoutQuery, string(raw))
			rec.ObserveHTMLTransformDuration(time.Since(start))
			if err != nil {
				deps.OnError(w, r, err)
				return
			}
			if err := send.Send(w, r, html, send.TypeHTML, send.Options{}); err != nil {
				slog.Debug("Writing page failed", logfields.URL(req.WithoutQuery), logfields.Error(err))
			}
		})
	}
}
