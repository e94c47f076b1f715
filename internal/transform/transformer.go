// Package transform produces the code served for module requests.
//
// FileTransformer is the stock implementation. It serves the client runtime
// as a virtual module, extracts html-proxy inline modules from their pages,
// wraps stylesheets in a JS module unless the URL carries the direct marker,
// and passes script files through. Results are cached in the module graph and
// reused while the file's modification time is unchanged.
package transform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	ferrors "git.home.luguber.info/inful/devserver/internal/foundation/errors"
	"git.home.luguber.info/inful/devserver/internal/htmltransform"
	"git.home.luguber.info/inful/devserver/internal/logfields"
	"git.home.luguber.info/inful/devserver/internal/modulegraph"
	"git.home.luguber.info/inful/devserver/internal/urlcanon"
)

// Options carry request context into a transform.
type Options struct {
	// HTML is set when the client accepts text/html, i.e. the module URL was
	// opened directly rather than imported. It never changes the code produced
	// for a URL: results are cached per URL and raw CSS is selected by the
	// direct marker alone.
	HTML bool
}

// Transformer turns a canonical module URL into code. It returns nil and no
// error when it cannot produce the module.
type Transformer interface {
	TransformRequest(ctx context.Context, url string, opts Options) (*modulegraph.TransformResult, error)
}

// FileTransformer serves modules from files under Root.
type FileTransformer struct {
	Root  string
	Graph modulegraph.Graph
	Canon *urlcanon.Canonicalizer
	// ClientPath is the URL of the virtual client runtime module.
	ClientPath string
	// ClientCode is the client runtime source.
	ClientCode string
}

var _ Transformer = (*FileTransformer)(nil)

// FileFor maps a module URL to the file it is read from.
func (t *FileTransformer) FileFor(url string) string {
	p := urlcanon.CleanURL(url)
	if strings.HasPrefix(p, urlcanon.FSPrefix) {
		return filepath.FromSlash(urlcanon.FSPathFromID(p))
	}
	return filepath.Join(t.Root, filepath.FromSlash(strings.TrimPrefix(path.Clean("/"+p), "/")))
}

// TransformRequest implements Transformer.
func (t *FileTransformer) TransformRequest(ctx context.Context, url string, _ Options) (*modulegraph.TransformResult, error) {
	if t.ClientPath != "" && urlcanon.CleanURL(url) == t.ClientPath {
		return &modulegraph.TransformResult{Code: t.ClientCode, ETag: modulegraph.ETag(t.ClientCode)}, nil
	}

	file := t.FileFor(url)
	if strings.ContainsRune(file, 0) {
		// Virtual ids of other tools; nothing on disk can match.
		return nil, nil
	}
	info, err := os.Stat(file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "stat module file").
			WithContext("file", file).
			Build()
	}
	if info.IsDir() {
		return nil, nil
	}

	if cached, err := t.cached(ctx, url, file, info.ModTime()); err != nil || cached != nil {
		return cached, err
	}

	start := time.Now()
	res, err := t.load(url, file)
	if err != nil || res == nil {
		return nil, err
	}
	res.ETag = modulegraph.ETag(res.Code)

	if err := t.Graph.SetTransformResult(ctx, url, file, info.ModTime(), res); err != nil {
		// The response can still be served without the cache entry.
		slog.Warn("Failed to cache transform result", logfields.URL(url), logfields.Error(err))
	}
	slog.Debug("Transformed module",
		logfields.URL(url),
		logfields.File(file),
		logfields.ETag(res.ETag),
		logfields.DurationMS(float64(time.Since(start).Microseconds())/1000))
	return res, nil
}

func (t *FileTransformer) cached(ctx context.Context, url, file string, modTime time.Time) (*modulegraph.TransformResult, error) {
	mod, err := t.Graph.GetModuleByURL(ctx, url)
	if err != nil {
		return nil, err
	}
	if mod == nil || mod.TransformResult == nil || mod.File != file || !mod.ModTime.Equal(modTime) {
		return nil, nil
	}
	return mod.TransformResult, nil
}

func (t *FileTransformer) load(url, file string) (*modulegraph.TransformResult, error) {
	src, err := os.ReadFile(file)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "read module file").
			WithContext("file", file).
			Build()
	}

	if idx, ok := urlcanon.HTMLProxyIndex(url); ok {
		return inlineModule(url, string(src), idx)
	}

	clean := urlcanon.CleanURL(url)
	if t.Canon.IsCSSRequest(clean) {
		if urlcanon.IsDirectRequest(url) {
			return &modulegraph.TransformResult{Code: string(src)}, nil
		}
		return &modulegraph.TransformResult{Code: cssModule(clean, string(src))}, nil
	}

	if !t.Canon.IsJSRequest(clean) {
		return nil, nil
	}
	return &modulegraph.TransformResult{Code: string(src), Map: siblingSourceMap(file)}, nil
}

func inlineModule(url, page, idx string) (*modulegraph.TransformResult, error) {
	n, err := strconv.Atoi(idx)
	if err != nil {
		return nil, ferrors.TransformError("invalid html-proxy index").WithContext("url", url).Build()
	}
	code, ok, err := htmltransform.ExtractInlineModule(page, n)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryHTML, "scan page for inline modules").
			WithContext("url", url).
			Build()
	}
	if !ok {
		return nil, ferrors.NotFoundError(fmt.Sprintf("no inline module script at index %d", n)).
			WithContext("url", url).
			Build()
	}
	return &modulegraph.TransformResult{Code: code}, nil
}

// cssModule wraps a stylesheet in a module that installs it as a <style>
// element and exports the CSS text.
func cssModule(id, css string) string {
	idLit, _ := json.Marshal(id)
	cssLit, _ := json.Marshal(css)
	return fmt.Sprintf(`const __devserver__id = %s;
const __devserver__css = %s;
let style = document.querySelector('style[data-devserver-dev-id="' + __devserver__id + '"]');
if (!style) {
  style = document.createElement('style');
  style.setAttribute('type', 'text/css');
  style.setAttribute('data-devserver-dev-id', __devserver__id);
  document.head.appendChild(style);
}
style.textContent = __devserver__css;
export default __devserver__css;
`, idLit, cssLit)
}

// siblingSourceMap loads "<file>.map" when present.
func siblingSourceMap(file string) *modulegraph.SourceMap {
	raw, err := os.ReadFile(file + ".map")
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Debug("Ignoring unreadable source map", logfields.File(file+".map"), logfields.Error(err))
		}
		return nil
	}
	var m modulegraph.SourceMap
	if err := json.Unmarshal(raw, &m); err != nil {
		slog.Warn("Ignoring malformed source map", logfields.File(file+".map"), logfields.Error(err))
		return nil
	}
	return &m
}
