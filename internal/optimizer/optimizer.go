// Package optimizer re-optimizes dependencies when a lockfile changes.
//
// A re-optimization opens a pending reload on the gate, recomputes the
// dependency hash, drops every cached transform result and tells connected
// browsers to reload. The pending reload is resolved when that is done, which
// releases the requests the gate parked in the meantime.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"

	ferrors "git.home.luguber.info/inful/devserver/internal/foundation/errors"
	"git.home.luguber.info/inful/devserver/internal/livereload"
	"git.home.luguber.info/inful/devserver/internal/logfields"
	"git.home.luguber.info/inful/devserver/internal/modulegraph"
	"git.home.luguber.info/inful/devserver/internal/reloadgate"
)

// DefaultLockfiles are watched when none are configured.
var DefaultLockfiles = []string{"package-lock.json", "yarn.lock", "pnpm-lock.yaml"}

// DefaultDebounce coalesces bursts of lockfile writes.
const DefaultDebounce = 300 * time.Millisecond

// Broadcaster delivers reload events to browsers.
type Broadcaster interface {
	Broadcast(ev livereload.Event)
}

// Config selects what is watched.
type Config struct {
	Root      string
	Lockfiles []string
	Debounce  time.Duration
}

// Optimizer watches lockfiles under Root.
type Optimizer struct {
	cfg   Config
	gate  *reloadgate.Gate
	graph modulegraph.Graph
	hub   Broadcaster

	mu      sync.RWMutex
	hash    string
	watcher *fsnotify.Watcher

	trigger  chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New validates cfg and returns an optimizer that is not yet watching.
func New(cfg Config, gate *reloadgate.Gate, graph modulegraph.Graph, hub Broadcaster) (*Optimizer, error) {
	if gate == nil || graph == nil {
		return nil, ferrors.ValidationError("optimizer requires a gate and a module graph").Build()
	}
	if cfg.Root == "" {
		return nil, ferrors.ValidationError("optimizer root is required").Build()
	}
	if len(cfg.Lockfiles) == 0 {
		cfg.Lockfiles = DefaultLockfiles
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	return &Optimizer{
		cfg:     cfg,
		gate:    gate,
		graph:   graph,
		hub:     hub,
		hash:    ComputeHash(cfg.Root, cfg.Lockfiles),
		trigger: make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}, nil
}

// ComputeHash fingerprints the lockfiles found in root. Missing lockfiles
// contribute only their name.
func ComputeHash(root string, lockfiles []string) string {
	d := xxhash.New()
	for _, name := range lockfiles {
		_, _ = d.WriteString(name)
		_, _ = d.Write([]byte{0})
		if b, err := os.ReadFile(filepath.Join(root, name)); err == nil {
			_, _ = d.Write(b)
		} else if !errors.Is(err, fs.ErrNotExist) {
			slog.Debug("Lockfile unreadable", logfields.File(name), logfields.Error(err))
		}
		_, _ = d.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", d.Sum64())[:8]
}

// Hash returns the current dependency hash.
func (o *Optimizer) Hash() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.hash
}

// Start watches the root directory until ctx ends or Stop is called.
func (o *Optimizer) Start(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "create lockfile watcher").Build()
	}
	if err := w.Add(o.cfg.Root); err != nil {
		_ = w.Close()
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "watch project root").
			WithContext("root", o.cfg.Root).
			Build()
	}
	o.mu.Lock()
	o.watcher = w
	o.mu.Unlock()

	slog.Info("Watching lockfiles", slog.Any("lockfiles", o.cfg.Lockfiles), logfields.Hash(o.Hash()))
	o.wg.Add(2)
	go o.watchLoop(ctx, w)
	go o.debounceLoop(ctx)
	return nil
}

// Stop ends watching and waits for the loops to exit.
func (o *Optimizer) Stop() error {
	var err error
	o.stopOnce.Do(func() {
		close(o.stop)
		o.mu.Lock()
		w := o.watcher
		o.mu.Unlock()
		if w != nil {
			err = w.Close()
		}
		o.wg.Wait()
	})
	return err
}

func (o *Optimizer) isLockfile(name string) bool {
	base := filepath.Base(name)
	for _, l := range o.cfg.Lockfiles {
		if base == l {
			return true
		}
	}
	return false
}

func (o *Optimizer) watchLoop(ctx context.Context, w *fsnotify.Watcher) {
	defer o.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stop:
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if !o.isLockfile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			slog.Debug("Lockfile change detected", logfields.File(event.Name), slog.String("op", event.Op.String()))
			select {
			case o.trigger <- struct{}{}:
			default:
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			slog.Error("Lockfile watcher error", logfields.Error(err))
		}
	}
}

func (o *Optimizer) debounceLoop(ctx context.Context) {
	defer o.wg.Done()
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-o.stop:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-o.trigger:
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(o.cfg.Debounce)
			fire = timer.C
		case <-fire:
			fire = nil
			if err := o.Rerun(ctx); err != nil {
				slog.Error("Dependency re-optimization failed", logfields.Error(err))
			}
		}
	}
}

// Rerun performs one re-optimization. Requests parked on the gate are
// released when it returns, whether or not the hash changed.
func (o *Optimizer) Rerun(ctx context.Context) error {
	pending := o.gate.Begin()
	defer pending.Resolve()

	next := ComputeHash(o.cfg.Root, o.cfg.Lockfiles)
	o.mu.Lock()
	prev := o.hash
	o.hash = next
	o.mu.Unlock()

	if next == prev {
		slog.Debug("Dependency hash unchanged", logfields.Hash(next))
		return nil
	}
	slog.Info("Dependencies changed, reloading clients", slog.String("previous", prev), logfields.Hash(next))

	if err := o.graph.InvalidateAll(ctx); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "invalidate module graph").Build()
	}
	if o.hub != nil {
		o.hub.Broadcast(livereload.Event{Type: livereload.EventFullReload, Hash: next})
	}
	return nil
}
