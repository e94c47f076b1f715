package httpserver

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// stripBase removes base from request paths so routing sees root-relative
// URLs. "/" and "/index.html" outside base redirect to base.
func stripBase(base string, next http.Handler) http.Handler {
	if base == "" || base == "/" {
		return next
	}
	trimmed := strings.TrimSuffix(base, "/")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Path
		switch {
		case p == trimmed || strings.HasPrefix(p, base):
			r2 := r.Clone(r.Context())
			r2.URL.Path = "/" + strings.TrimPrefix(strings.TrimPrefix(p, trimmed), "/")
			if r.URL.RawPath != "" {
				r2.URL.RawPath = "/" + strings.TrimPrefix(strings.TrimPrefix(r.URL.RawPath, trimmed), "/")
			}
			next.ServeHTTP(w, r2)
		case p == "/" || p == "/index.html":
			http.Redirect(w, r, base, http.StatusFound)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// spaFallback rewrites directory URLs to their index.html when one exists.
func spaFallback(root string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasSuffix(r.URL.Path, "/") || (r.Method != http.MethodGet && r.Method != http.MethodHead) {
				next.ServeHTTP(w, r)
				return
			}
			index := r.URL.Path + "index.html"
			if !isFile(filepath.Join(root, filepath.FromSlash(path.Clean(index)))) {
				next.ServeHTTP(w, r)
				return
			}
			r2 := r.Clone(r.Context())
			r2.URL.Path = index
			r2.URL.RawPath = ""
			next.ServeHTTP(w, r2)
		})
	}
}

// staticHandler serves files as-is, trying each dir in order.
func staticHandler(dirs ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		rel := filepath.FromSlash(strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/"))
		for _, dir := range dirs {
			if dir == "" {
				continue
			}
			name := filepath.Join(dir, rel)
			if !isFile(name) {
				continue
			}
			f, err := os.Open(name)
			if err != nil {
				continue
			}
			info, err := f.Stat()
			if err != nil {
				_ = f.Close()
				continue
			}
			http.ServeContent(w, r, info.Name(), info.ModTime(), f)
			_ = f.Close()
			return
		}
		http.NotFound(w, r)
	})
}

func isFile(name string) bool {
	info, err := os.Stat(name)
	return err == nil && info.Mode().IsRegular()
}
