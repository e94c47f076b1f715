// Package reloadgate parks requests while a dependency re-optimization is in
// flight.
//
// A Gate holds at most one current Pending reload. The optimizer calls Begin
// before it starts work and Resolve once the new dependency graph is in place.
// Gate.Middleware holds every non-exempt GET request until the pending reload
// resolves, or answers it with 408 when resolution takes longer than the
// timeout.
package reloadgate

import (
	"sync"

	"git.home.luguber.info/inful/devserver/internal/metrics"
)

// Pending is one in-flight re-optimization.
type Pending struct {
	gate *Gate
	done chan struct{}
	once sync.Once
}

// Done is closed once the pending reload resolves.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Resolve marks the reload finished and clears the gate if p is still its
// current reload. Calling Resolve more than once is a no-op.
func (p *Pending) Resolve() {
	p.once.Do(func() {
		close(p.done)
		p.gate.clear(p)
	})
}

// Resolved reports whether Resolve has been called.
func (p *Pending) Resolved() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Gate tracks the current pending reload.
type Gate struct {
	mu       sync.Mutex
	current  *Pending
	recorder metrics.Recorder
}

// New returns an open gate.
func New() *Gate {
	return &Gate{}
}

// Begin starts a new pending reload and makes it current. A reload that was
// still current stays unresolved; requests already parked on it keep waiting
// for it or time out.
func (g *Gate) Begin() *Pending {
	p := &Pending{gate: g, done: make(chan struct{})}
	g.mu.Lock()
	g.current = p
	g.mu.Unlock()
	return p
}

// Current returns the pending reload, or nil when the gate is open.
func (g *Gate) Current() *Pending {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

func (g *Gate) clear(p *Pending) {
	g.mu.Lock()
	if g.current == p {
		g.current = nil
	}
	g.mu.Unlock()
}
