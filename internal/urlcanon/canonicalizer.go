// Package urlcanon turns raw dev-server request URLs into canonical module
// identifiers and classifies them.
package urlcanon

import (
	"net/http"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"git.home.luguber.info/inful/devserver/internal/foundation/errors"
)

// Kind classifies a request for the middleware chain.
type Kind int

const (
	// KindOther requests fall through untouched.
	KindOther Kind = iota
	// KindSourceMap requests ask for the map of a previously transformed module.
	KindSourceMap
	// KindModule requests address a script, style, import specifier or html-proxy module.
	KindModule
	// KindHTML requests address an HTML page.
	KindHTML
)

func (k Kind) String() string {
	switch k {
	case KindSourceMap:
		return "sourcemap"
	case KindModule:
		return "module"
	case KindHTML:
		return "html"
	default:
		return "other"
	}
}

// DefaultJSExtensions lists the file extensions treated as script modules.
var DefaultJSExtensions = []string{"js", "jsx", "ts", "tsx", "mjs", "vue", "marko", "svelte"}

// DefaultCSSExtensions lists the file extensions treated as stylesheets.
var DefaultCSSExtensions = []string{"css", "less", "sass", "scss", "styl", "stylus", "pcss", "postcss"}

// Rules configures classification.
type Rules struct {
	JSExtensions  []string
	CSSExtensions []string
	// CacheDirPrefix is the url prefix of the dependency cache directory (see CacheDirPrefix).
	CacheDirPrefix string
}

// Request is the canonical form of one incoming request. It is immutable.
type Request struct {
	// RawURL is the request URI as received.
	RawURL string
	// URL is the canonical lookup key. For source-map requests it is the url of
	// the module the map belongs to.
	URL string
	// WithoutQuery is the decoded url without query string or fragment.
	WithoutQuery string
	Kind         Kind
	// AcceptsHTML reports whether the Accept header lists text/html.
	AcceptsHTML bool
	// IsDependency marks pre-bundled dependency urls that may be cached forever.
	IsDependency bool
	// DirectCSS marks stylesheet requests that must be served as raw CSS.
	DirectCSS bool
	// PublicPathHint is the corrected url when the request wrongly uses /public/.
	PublicPathHint string
}

// Canonicalizer classifies requests according to Rules. It is safe for concurrent use.
type Canonicalizer struct {
	rules Rules
	jsRE  *regexp.Regexp
	cssRE *regexp.Regexp
}

// New compiles the classification rules. Empty extension lists fall back to the defaults.
func New(rules Rules) *Canonicalizer {
	if len(rules.JSExtensions) == 0 {
		rules.JSExtensions = DefaultJSExtensions
	}
	if len(rules.CSSExtensions) == 0 {
		rules.CSSExtensions = DefaultCSSExtensions
	}
	return &Canonicalizer{
		rules: rules,
		jsRE:  extensionRE(rules.JSExtensions),
		cssRE: extensionRE(rules.CSSExtensions),
	}
}

func extensionRE(exts []string) *regexp.Regexp {
	quoted := make([]string, 0, len(exts))
	for _, e := range exts {
		quoted = append(quoted, regexp.QuoteMeta(strings.TrimPrefix(e, ".")))
	}
	return regexp.MustCompile(`\.(?:` + strings.Join(quoted, "|") + `)(?:$|\?)`)
}

// CacheDirPrefix returns the configured dependency cache url prefix.
func (c *Canonicalizer) CacheDirPrefix() string { return c.rules.CacheDirPrefix }

// IsJSRequest reports whether url looks like a script module: a known script
// extension, or no extension at all (bare virtual ids such as /@devserver/client).
func (c *Canonicalizer) IsJSRequest(url string) bool {
	if c.jsRE.MatchString(url) {
		return true
	}
	url = CleanURL(url)
	return path.Ext(url) == "" && !strings.HasSuffix(url, "/")
}

// IsCSSRequest reports whether url addresses a stylesheet.
func (c *Canonicalizer) IsCSSRequest(url string) bool {
	return c.cssRE.MatchString(url)
}

// IsDirectCSSRequest reports whether url is a stylesheet that asks for raw CSS.
func (c *Canonicalizer) IsDirectCSSRequest(url string) bool {
	return c.IsCSSRequest(url) && IsDirectRequest(url)
}

// IsDependencyURL reports whether url addresses an immutable pre-bundled dependency.
func (c *Canonicalizer) IsDependencyURL(url string) bool {
	if HasDependencyVersion(url) {
		return true
	}
	return c.rules.CacheDirPrefix != "" && strings.HasPrefix(url, c.rules.CacheDirPrefix)
}

// Canonicalize decodes and classifies a request. It fails with a classified
// request error when the url cannot be decoded.
func (c *Canonicalizer) Canonicalize(method, rawURL string, h http.Header) (Request, error) {
	decoded, err := decodeURI(RemoveTimestampQuery(rawURL))
	if err != nil {
		return Request{}, malformed(rawURL, err)
	}
	url := strings.ReplaceAll(decoded, NullBytePlaceholder, "\x00")

	req := Request{
		RawURL:       rawURL,
		URL:          url,
		WithoutQuery: CleanURL(url),
		AcceptsHTML:  strings.Contains(h.Get("Accept"), "text/html"),
	}

	if strings.HasSuffix(req.WithoutQuery, ".map") {
		req.Kind = KindSourceMap
		req.URL = StripSourceMapSuffix(url)
		return req, nil
	}

	if strings.HasPrefix(url, PublicDirURLPrefix) {
		req.PublicPathHint = "/" + strings.TrimPrefix(url, PublicDirURLPrefix)
	}

	switch {
	case c.IsJSRequest(url) || IsImportRequest(url) || c.IsCSSRequest(url) || IsHTMLProxy(url):
		url = UnwrapID(RemoveImportQuery(url))
		if c.IsCSSRequest(url) && strings.Contains(h.Get("Accept"), "text/css") {
			url = InjectQuery(url, DirectQuery)
		}
		req.Kind = KindModule
		req.URL = url
		req.DirectCSS = c.IsDirectCSSRequest(url)
		req.IsDependency = c.IsDependencyURL(url)
	case method == http.MethodGet && strings.HasSuffix(req.WithoutQuery, ".html") && h.Get("Sec-Fetch-Dest") != "script":
		req.Kind = KindHTML
	default:
		req.Kind = KindOther
	}
	return req, nil
}

// IsMalformed reports whether err came from Canonicalize rejecting a url.
func IsMalformed(err error) bool {
	return errors.HasCategory(err, errors.CategoryRequest)
}

func malformed(rawURL string, cause error) error {
	msg := "encountered a suspiciously malformed request " + rawURL
	if strings.HasPrefix(rawURL, "/%PUBLIC") {
		// Leftover from create-react-app style templates.
		msg = "index.html shouldn't include environment variables like %PUBLIC_URL%; " +
			"reference files relative to the project root instead"
	}
	return errors.WrapError(cause, errors.CategoryRequest, msg).
		UserAction().
		WithContext("url", rawURL).
		Build()
}

// uriReserved are the characters decodeURI leaves percent-encoded.
const uriReserved = ";/?:@&=+$,#"

// decodeURI percent-decodes s except for escapes of reserved characters,
// rejecting truncated escapes and invalid UTF-8.
func decodeURI(s string) (string, error) {
	if !strings.Contains(s, "%") {
		return s, nil
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch != '%' {
			b.WriteByte(ch)
			continue
		}
		if i+2 >= len(s) || !isHex(s[i+1]) || !isHex(s[i+2]) {
			return "", errors.RequestError("invalid percent-encoding").WithContext("offset", i).Build()
		}
		v := unhex(s[i+1])<<4 | unhex(s[i+2])
		if v < utf8.RuneSelf && strings.IndexByte(uriReserved, v) >= 0 {
			b.WriteString(s[i : i+3])
		} else {
			b.WriteByte(v)
		}
		i += 2
	}
	out := b.String()
	if !utf8.ValidString(out) {
		return "", errors.RequestError("percent-encoding yields invalid UTF-8").Build()
	}
	return out, nil
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
