package errors

import (
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"maps"
	"net/http"
	"strings"

	"git.home.luguber.info/inful/devserver/internal/logfields"
)

// requestIDHeader mirrors the header set by the request ID middleware.
const requestIDHeader = "X-Request-ID"

// HTTPErrorAdapter renders forwarded errors. Browsers navigating to a page get
// an HTML error page; module and fetch requests get JSON.
type HTTPErrorAdapter struct {
	logger *slog.Logger
}

// NewHTTPErrorAdapter returns an adapter logging to logger, or slog.Default when nil.
func NewHTTPErrorAdapter(logger *slog.Logger) *HTTPErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPErrorAdapter{logger: logger}
}

// HTTPErrorResponse is the JSON error payload.
type HTTPErrorResponse struct {
	Error     string         `json:"error"`
	Code      string         `json:"code,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Retryable bool           `json:"retryable,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// StatusCodeFor maps an error's category to a status. Unclassified errors are 500.
func (a *HTTPErrorAdapter) StatusCodeFor(err error) int {
	switch GetCategory(err) {
	case CategoryRequest, CategoryValidation, CategoryConfig:
		return http.StatusBadRequest
	case CategoryNotFound:
		return http.StatusNotFound
	case CategoryNetwork:
		return http.StatusBadGateway
	case CategoryRuntime:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteErrorResponse answers r with err and logs it at the error's severity.
func (a *HTTPErrorAdapter) WriteErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	status := a.StatusCodeFor(err)
	payload := a.FormatErrorResponse(err)
	payload.RequestID = w.Header().Get(requestIDHeader)

	level := slog.LevelError
	if c, ok := AsClassified(err); ok {
		level = levelFor(c.Severity())
	}
	a.logger.Log(r.Context(), level, "Request failed",
		logfields.Error(err),
		logfields.Path(r.URL.Path),
		logfields.Status(status),
		logfields.RequestID(payload.RequestID))

	if wantsHTML(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_, _ = fmt.Fprint(w, errorPage(status, payload))
		return
	}

	b, jerr := json.Marshal(payload)
	if jerr != nil {
		b = []byte(`{"error":"internal error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

// FormatErrorResponse converts err into the JSON payload.
func (a *HTTPErrorAdapter) FormatErrorResponse(err error) HTTPErrorResponse {
	c, ok := AsClassified(err)
	if !ok {
		return HTTPErrorResponse{Error: err.Error(), Code: string(CategoryInternal)}
	}
	resp := HTTPErrorResponse{Error: c.Message(), Code: string(c.Category()), Retryable: c.CanRetry()}
	if len(c.Context()) > 0 || c.Unwrap() != nil {
		resp.Details = make(map[string]any, len(c.Context())+1)
		maps.Copy(resp.Details, c.Context())
	}
	if c.Unwrap() != nil {
		resp.Details["cause"] = c.Unwrap().Error()
	}
	return resp
}

// wantsHTML reports a top-level page navigation.
func wantsHTML(r *http.Request) bool {
	if dest := r.Header.Get("Sec-Fetch-Dest"); dest != "" {
		return dest == "document"
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func errorPage(status int, p HTTPErrorResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<!doctype html><html><head><title>%d %s</title></head><body>", status, http.StatusText(status))
	fmt.Fprintf(&b, "<h1>[devserver] %s</h1>", html.EscapeString(p.Error))
	if cause, ok := p.Details["cause"].(string); ok {
		fmt.Fprintf(&b, "<pre>%s</pre>", html.EscapeString(cause))
	}
	if p.RequestID != "" {
		fmt.Fprintf(&b, "<p>request %s</p>", html.EscapeString(p.RequestID))
	}
	b.WriteString("</body></html>")
	return b.String()
}

func levelFor(s ErrorSeverity) slog.Level {
	switch s {
	case SeverityInfo:
		return slog.LevelInfo
	case SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
