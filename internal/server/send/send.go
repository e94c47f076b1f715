// Package send writes transformed content with the dev server's caching headers.
package send

import (
	"log/slog"
	"net/http"
	"strconv"

	"git.home.luguber.info/inful/devserver/internal/logfields"
	"git.home.luguber.info/inful/devserver/internal/modulegraph"
)

// Content types understood by Send.
const (
	TypeJS   = "js"
	TypeCSS  = "css"
	TypeHTML = "html"
	TypeJSON = "json"
)

// Cache-Control values.
const (
	NoCache   = "no-cache"
	Immutable = "max-age=31536000,immutable"
)

var mimeTypes = map[string]string{
	TypeJS:   "application/javascript",
	TypeCSS:  "text/css",
	TypeHTML: "text/html",
	TypeJSON: "application/json",
}

// Options tune a response. Zero values mean: ETag computed from content,
// Cache-Control no-cache, no source map.
type Options struct {
	ETag         string
	CacheControl string
	Map          *modulegraph.SourceMap
}

// ContentType returns the Content-Type header value for typ.
func ContentType(typ string) string {
	mt, ok := mimeTypes[typ]
	if !ok {
		mt = typ
	}
	return mt + "; charset=utf-8"
}

// Send writes content as typ. When the request's If-None-Match equals the
// ETag it answers 304 with an empty body. JS content with a non-empty source
// map gets an inline sourceMappingURL comment.
func Send(w http.ResponseWriter, r *http.Request, content, typ string, opts Options) error {
	etag := opts.ETag
	if etag == "" {
		etag = modulegraph.ETag(content)
	}
	h := w.Header()
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		h.Set("Etag", etag)
		w.WriteHeader(http.StatusNotModified)
		return nil
	}

	cacheControl := opts.CacheControl
	if cacheControl == "" {
		cacheControl = NoCache
	}

	if typ == TypeJS && !opts.Map.Empty() {
		if dataURL, err := opts.Map.DataURL(); err == nil {
			content += "\n//# sourceMappingURL=" + dataURL
		} else {
			slog.Warn("Dropping unserializable source map", logfields.URL(r.URL.Path), logfields.Error(err))
		}
	}

	h.Set("Content-Type", ContentType(typ))
	h.Set("Cache-Control", cacheControl)
	h.Set("Etag", etag)
	h.Set("Content-Length", strconv.Itoa(len(content)))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return nil
	}
	_, err := w.Write([]byte(content))
	return err
}
