package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyURL        = "url"
	KeyMethod     = "method"
	KeyPath       = "path"
	KeyStatus     = "status"
	KeyETag       = "etag"
	KeyKind       = "kind"
	KeyRequestID  = "request_id"
	KeyUserAgent  = "user_agent"
	KeyRemoteAddr = "remote_addr"
	KeyFile       = "file"
	KeyDurationMS = "duration_ms"
	KeyHash       = "hash"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func URL(u string) slog.Attr           { return slog.String(KeyURL, u) }
func Method(m string) slog.Attr        { return slog.String(KeyMethod, m) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func Status(code int) slog.Attr        { return slog.Int(KeyStatus, code) }
func ETag(tag string) slog.Attr        { return slog.String(KeyETag, tag) }
func Kind(k string) slog.Attr          { return slog.String(KeyKind, k) }
func RequestID(id string) slog.Attr    { return slog.String(KeyRequestID, id) }
func UserAgent(ua string) slog.Attr    { return slog.String(KeyUserAgent, ua) }
func RemoteAddr(addr string) slog.Attr { return slog.String(KeyRemoteAddr, addr) }
func File(f string) slog.Attr          { return slog.String(KeyFile, f) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func Hash(h string) slog.Attr          { return slog.String(KeyHash, h) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
