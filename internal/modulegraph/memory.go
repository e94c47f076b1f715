package modulegraph

import (
	"context"
	"sync"
	"time"
)

// MemoryGraph is an in-process Graph.
type MemoryGraph struct {
	mu      sync.RWMutex
	modules map[string]*Module
}

// NewMemoryGraph returns an empty graph.
func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{modules: make(map[string]*Module)}
}

func (g *MemoryGraph) GetModuleByURL(_ context.Context, url string) (*Module, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m, ok := g.modules[url]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (g *MemoryGraph) SetTransformResult(_ context.Context, url, file string, modTime time.Time, result *TransformResult) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.modules[url] = &Module{URL: url, File: file, ModTime: modTime, TransformResult: result}
	return nil
}

func (g *MemoryGraph) InvalidateAll(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	clear(g.modules)
	return nil
}

// Len returns the number of cached modules.
func (g *MemoryGraph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.modules)
}
