package reloadgate

import (
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"git.home.luguber.info/inful/devserver/internal/logfields"
	"git.home.luguber.info/inful/devserver/internal/metrics"
)

// DefaultTimeout bounds how long a request waits for a pending reload.
const DefaultTimeout = time.Second

var strict = bluemonday.StrictPolicy()

// WithRecorder sets the metrics recorder used by Middleware.
func (g *Gate) WithRecorder(r metrics.Recorder) *Gate {
	g.mu.Lock()
	g.recorder = r
	g.mu.Unlock()
	return g
}

func (g *Gate) rec() metrics.Recorder {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.recorder == nil {
		return metrics.NoopRecorder{}
	}
	return g.recorder
}

// TimeoutBody renders the 408 explanation for url.
func TimeoutBody(url string) string {
	return fmt.Sprintf(`<h1>[devserver] Something unexpected happened while optimizing "%s"</h1>`+
		`<p>The current page should have reloaded by now</p>`, strict.Sanitize(url))
}

// Middleware parks GET requests while a reload is pending. Other methods and
// requests for which exempt returns true always pass. A parked request proceeds once the reload
// resolves; if that takes longer than timeout it is answered with 408. A client
// that goes away while parked gets no response.
func (g *Gate) Middleware(timeout time.Duration, exempt func(*http.Request) bool) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}
			p := g.Current()
			if p == nil || (exempt != nil && exempt(r)) {
				next.ServeHTTP(w, r)
				return
			}

			timer := time.NewTimer(timeout)
			defer timer.Stop()

			select {
			case <-p.Done():
				g.rec().IncReloadGateWait(metrics.GateResolved)
				next.ServeHTTP(w, r)
			case <-timer.C:
				g.rec().IncReloadGateWait(metrics.GateTimeout)
				slog.Warn("Request timed out waiting for dependency reload",
					logfields.URL(r.URL.RequestURI()),
					slog.Duration("timeout", timeout))
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				w.WriteHeader(http.StatusRequestTimeout)
				_, _ = w.Write([]byte(TimeoutBody(r.URL.RequestURI())))
			case <-r.Context().Done():
				g.rec().IncReloadGateWait(metrics.GateCanceled)
			}
		})
	}
}

// ExemptPrefixes exempts requests whose path starts with any of prefixes.
func ExemptPrefixes(prefixes ...string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		for _, p := range prefixes {
			if p != "" && strings.HasPrefix(r.URL.Path, p) {
				return true
			}
		}
		return false
	}
}

// ExemptURIs exempts requests whose request URI is exactly one of uris.
func ExemptURIs(uris ...string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		return slices.Contains(uris, r.URL.RequestURI())
	}
}

// ExemptAny exempts a request when any of fns does.
func ExemptAny(fns ...func(*http.Request) bool) func(*http.Request) bool {
	return func(r *http.Request) bool {
		for _, fn := range fns {
			if fn(r) {
				return true
			}
		}
		return false
	}
}
