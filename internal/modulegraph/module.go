// Package modulegraph caches transform results per module URL.
//
// The request pipeline reads cached results (for ETag checks and source map
// requests) and the transformer writes them. MemoryGraph is the default
// store; RedisGraph shares the cache between server processes.
package modulegraph

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// SourceMap is a version 3 source map.
type SourceMap struct {
	Version        int      `json:"version"`
	File           string   `json:"file,omitempty"`
	SourceRoot     string   `json:"sourceRoot,omitempty"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent,omitempty"`
	Names          []string `json:"names"`
	Mappings       string   `json:"mappings"`
}

// Empty reports whether the map carries no mappings.
func (m *SourceMap) Empty() bool { return m == nil || m.Mappings == "" }

// JSON returns the serialized map.
func (m *SourceMap) JSON() ([]byte, error) { return json.Marshal(m) }

// DataURL returns the map as a base64 data URL for inline sourceMappingURL comments.
func (m *SourceMap) DataURL() (string, error) {
	b, err := m.JSON()
	if err != nil {
		return "", err
	}
	return "data:application/json;base64," + base64.StdEncoding.EncodeToString(b), nil
}

// TransformResult is the output of transforming one module.
type TransformResult struct {
	Code string     `json:"code"`
	Map  *SourceMap `json:"map,omitempty"`
	ETag string     `json:"etag"`
}

// Module is a graph node.
type Module struct {
	URL             string           `json:"url"`
	File            string           `json:"file"`
	ModTime         time.Time        `json:"mod_time"`
	TransformResult *TransformResult `json:"transform_result,omitempty"`
}

// Graph stores modules by URL. GetModuleByURL returns nil and no error for
// unknown URLs.
type Graph interface {
	GetModuleByURL(ctx context.Context, url string) (*Module, error)
	SetTransformResult(ctx context.Context, url, file string, modTime time.Time, result *TransformResult) error
	InvalidateAll(ctx context.Context) error
}

// ETag returns a weak entity tag for content. It changes whenever content does.
func ETag(content string) string {
	return fmt.Sprintf(`W/"%s-%016x"`, strconv.FormatInt(int64(len(content)), 16), xxhash.Sum64String(content))
}
