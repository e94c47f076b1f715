package urlcanon

import (
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// Virtual URL grammar shared by the canonicalizer, the HTML hooks and the
// transform collaborator.
const (
	// NullBytePlaceholder stands in for a NUL byte, which cannot travel in a URL.
	NullBytePlaceholder = "__x00__"
	// ValidIDPrefix marks resolved ids that are not valid browser import specifiers.
	ValidIDPrefix = "/@id/"
	// FSPrefix marks a filesystem-absolute path served outside root.
	FSPrefix = "/@fs/"
	// PublicDirURLPrefix is the path users mistakenly put in front of public assets.
	PublicDirURLPrefix = "/public/"
	// HTMLProxyQuery marks an inline module extracted from an HTML page.
	HTMLProxyQuery = "html-proxy"
	// DirectQuery asks for raw stylesheet content instead of a JS wrapper.
	DirectQuery = "direct"
)

var (
	timestampRE       = regexp.MustCompile(`\bt=\d{13}&?\b`)
	trailingSepRE     = regexp.MustCompile(`[?&]$`)
	queryHashRE       = regexp.MustCompile(`(?s)[?#].*$`)
	importQueryRE     = regexp.MustCompile(`(\?|&)import=?(?:&|$)`)
	directRequestRE   = regexp.MustCompile(`(\?|&)direct\b`)
	htmlProxyRE       = regexp.MustCompile(`\?html-proxy&index=(\d+)\.js$`)
	depVersionRE      = regexp.MustCompile(`[?&](v=[\w.-]+)\b`)
	sourceMapSuffixRE = regexp.MustCompile(`\.map($|\?)`)
	windowsVolumeRE   = regexp.MustCompile(`^[A-Za-z]:/`)
)

// replaceFirst substitutes only the leftmost match, expanding $n references.
func replaceFirst(re *regexp.Regexp, s, repl string) string {
	loc := re.FindStringSubmatchIndex(s)
	if loc == nil {
		return s
	}
	var dst []byte
	dst = re.ExpandString(dst, repl, s, loc)
	return s[:loc[0]] + string(dst) + s[loc[1]:]
}

// RemoveTimestampQuery strips the t=<13 digit> cache-busting marker.
func RemoveTimestampQuery(url string) string {
	return trailingSepRE.ReplaceAllString(replaceFirst(timestampRE, url, ""), "")
}

// CleanURL drops the query string and fragment.
func CleanURL(url string) string {
	return queryHashRE.ReplaceAllString(url, "")
}

// IsImportRequest reports whether the url carries the import marker.
func IsImportRequest(url string) bool {
	return importQueryRE.MatchString(url)
}

// RemoveImportQuery strips the import marker.
func RemoveImportQuery(url string) string {
	return trailingSepRE.ReplaceAllString(replaceFirst(importQueryRE, url, "$1"), "")
}

// UnwrapID removes the ValidIDPrefix from resolved ids.
func UnwrapID(id string) string {
	return strings.TrimPrefix(id, ValidIDPrefix)
}

// IsHTMLProxy reports whether url addresses an inline module of an HTML page.
func IsHTMLProxy(url string) bool {
	return htmlProxyRE.MatchString(url)
}

// HTMLProxyIndex returns the inline module index encoded in an html-proxy url.
func HTMLProxyIndex(url string) (string, bool) {
	m := htmlProxyRE.FindStringSubmatch(url)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// IsDirectRequest reports whether url carries the direct marker.
func IsDirectRequest(url string) bool {
	return directRequestRE.MatchString(url)
}

// HasDependencyVersion reports whether url carries a dependency version marker (?v=...).
func HasDependencyVersion(url string) bool {
	return depVersionRE.MatchString(url)
}

// StripSourceMapSuffix turns "/a.js.map?x" into "/a.js?x".
func StripSourceMapSuffix(url string) string {
	return replaceFirst(sourceMapSuffixRE, url, "$1")
}

// InjectQuery adds query as the first query parameter, keeping existing
// parameters and the fragment.
func InjectQuery(url, query string) string {
	pathname, hash := url, ""
	if i := strings.IndexByte(pathname, '#'); i >= 0 {
		pathname, hash = pathname[:i], pathname[i:]
	}
	search := ""
	if i := strings.IndexByte(pathname, '?'); i >= 0 {
		pathname, search = pathname[:i], pathname[i+1:]
	}
	out := pathname + "?" + query
	if search != "" {
		out += "&" + search
	}
	return out + hash
}

// FSPathFromID converts a /@fs/ url back to an absolute filesystem path.
func FSPathFromID(id string) string {
	fsPath := strings.TrimPrefix(id, FSPrefix)
	fsPath = filepath.ToSlash(fsPath)
	if strings.HasPrefix(fsPath, "/") || windowsVolumeRE.MatchString(fsPath) {
		return fsPath
	}
	return "/" + fsPath
}

// CacheDirPrefix derives the url prefix under which files of the dependency
// cache directory are served. A cache dir inside root maps to its root-relative
// path; one outside root maps to a /@fs/ path built from its absolute path.
// It returns "" when cacheDir is empty.
func CacheDirPrefix(root, cacheDir string) string {
	if cacheDir == "" {
		return ""
	}
	if !filepath.IsAbs(cacheDir) {
		cacheDir = filepath.Join(root, cacheDir)
	}
	rel, err := filepath.Rel(root, cacheDir)
	if err != nil {
		return FSPrefix + strings.TrimPrefix(filepath.ToSlash(cacheDir), "/")
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return FSPrefix + strings.TrimPrefix(filepath.ToSlash(cacheDir), "/")
	}
	return path.Clean("/" + rel)
}
