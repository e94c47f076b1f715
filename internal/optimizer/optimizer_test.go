package optimizer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/devserver/internal/livereload"
	"git.home.luguber.info/inful/devserver/internal/modulegraph"
	"git.home.luguber.info/inful/devserver/internal/reloadgate"
)

type recordingHub struct {
	mu     sync.Mutex
	events []livereload.Event
}

func (h *recordingHub) Broadcast(ev livereload.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *recordingHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

// gateCheckingGraph records whether the gate was closed during invalidation.
type gateCheckingGraph struct {
	*modulegraph.MemoryGraph
	gate          *reloadgate.Gate
	invalidations int
	gateWasClosed bool
}

func (g *gateCheckingGraph) InvalidateAll(ctx context.Context) error {
	g.invalidations++
	g.gateWasClosed = g.gate.Current() != nil
	return g.MemoryGraph.InvalidateAll(ctx)
}

func setup(t *testing.T) (*Optimizer, *gateCheckingGraph, *recordingHub, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "package-lock.json"), []byte(`{"v":1}`), 0o644))
	gate := reloadgate.New()
	graph := &gateCheckingGraph{MemoryGraph: modulegraph.NewMemoryGraph(), gate: gate}
	hub := &recordingHub{}
	o, err := New(Config{Root: root, Debounce: 20 * time.Millisecond}, gate, graph, hub)
	require.NoError(t, err)
	return o, graph, hub, root
}

func TestComputeHash(t *testing.T) {
	root := t.TempDir()
	empty := ComputeHash(root, DefaultLockfiles)
	require.Len(t, empty, 8)

	require.NoError(t, os.WriteFile(filepath.Join(root, "yarn.lock"), []byte("a"), 0o644))
	withYarn := ComputeHash(root, DefaultLockfiles)
	require.NotEqual(t, empty, withYarn)
	require.Equal(t, withYarn, ComputeHash(root, DefaultLockfiles))
}

func TestRerun_ChangedHash(t *testing.T) {
	o, graph, hub, root := setup(t)
	ctx := context.Background()
	require.NoError(t, graph.SetTransformResult(ctx, "/a.js", "/a.js", time.Time{}, &modulegraph.TransformResult{Code: "a"}))
	before := o.Hash()

	require.NoError(t, os.WriteFile(filepath.Join(root, "package-lock.json"), []byte(`{"v":2}`), 0o644))
	require.NoError(t, o.Rerun(ctx))

	require.NotEqual(t, before, o.Hash())
	require.Equal(t, 1, graph.invalidations)
	require.True(t, graph.gateWasClosed)
	require.Equal(t, 0, graph.Len())
	require.Nil(t, o.gate.Current())
	require.Equal(t, []livereload.Event{{Type: livereload.EventFullReload, Hash: o.Hash()}}, hub.events)
}

func TestRerun_UnchangedHash(t *testing.T) {
	o, graph, hub, _ := setup(t)
	require.NoError(t, o.Rerun(context.Background()))
	require.Zero(t, graph.invalidations)
	require.Zero(t, hub.count())
	require.Nil(t, o.gate.Current())
}

func TestStart_WatchesLockfiles(t *testing.T) {
	o, _, hub, root := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, o.Start(ctx))
	defer func() { require.NoError(t, o.Stop()) }()

	before := o.Hash()
	require.NoError(t, os.WriteFile(filepath.Join(root, "unrelated.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "package-lock.json"), []byte(`{"v":3}`), 0o644))

	require.Eventually(t, func() bool { return hub.count() == 1 }, 3*time.Second, 10*time.Millisecond)
	require.NotEqual(t, before, o.Hash())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{}, reloadgate.New(), modulegraph.NewMemoryGraph(), nil)
	require.Error(t, err)
	_, err = New(Config{Root: "."}, nil, modulegraph.NewMemoryGraph(), nil)
	require.Error(t, err)
}
