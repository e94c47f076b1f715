package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"git.home.luguber.info/inful/devserver/internal/config"
	derrors "git.home.luguber.info/inful/devserver/internal/foundation/errors"
	"git.home.luguber.info/inful/devserver/internal/htmltransform"
	"git.home.luguber.info/inful/devserver/internal/livereload"
	"git.home.luguber.info/inful/devserver/internal/metrics"
	"git.home.luguber.info/inful/devserver/internal/modulegraph"
	"git.home.luguber.info/inful/devserver/internal/reloadgate"
	smw "git.home.luguber.info/inful/devserver/internal/server/middleware"
	"git.home.luguber.info/inful/devserver/internal/transform"
	"git.home.luguber.info/inful/devserver/internal/urlcanon"
)

// Deps are the long-lived collaborators shared with the rest of the process.
// Nil fields get in-process defaults.
type Deps struct {
	Graph    modulegraph.Graph
	Gate     *reloadgate.Gate
	Hub      *livereload.Hub
	Recorder metrics.Recorder
	// MetricsHandler is mounted at the configured metrics path when metrics are enabled.
	MetricsHandler http.Handler
	// PreHooks and PostHooks run around the core HTML hook.
	PreHooks  []htmltransform.Hook
	PostHooks []htmltransform.Hook
	Logger    *slog.Logger
}

// Server is the dev server HTTP endpoint.
type Server struct {
	cfg          *config.Config
	deps         Deps
	errorAdapter *derrors.HTTPErrorAdapter
	handler      http.Handler

	mu  sync.Mutex
	srv *http.Server
	ln  net.Listener
}

// New wires the request pipeline described by cfg.
func New(cfg *config.Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Graph == nil {
		deps.Graph = modulegraph.NewMemoryGraph()
	}
	if deps.Gate == nil {
		deps.Gate = reloadgate.New()
	}
	if deps.Hub == nil {
		deps.Hub = livereload.NewHub()
	}
	if deps.Recorder == nil {
		deps.Recorder = metrics.NoopRecorder{}
	}

	s := &Server{
		cfg:          cfg,
		deps:         deps,
		errorAdapter: derrors.NewHTTPErrorAdapter(deps.Logger),
	}
	s.handler = s.routes()
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

// Hub returns the live reload hub used by the server.
func (s *Server) Hub() *livereload.Hub { return s.deps.Hub }

func (s *Server) routes() http.Handler {
	cfg := s.cfg
	root := cfg.Root
	clientPath := cfg.Client.PublicPath
	onError := smw.AdapterErrorHandler(s.errorAdapter)

	canon := urlcanon.New(urlcanon.Rules{
		JSExtensions:   cfg.Modules.JSExtensions,
		CSSExtensions:  cfg.Modules.CSSExtensions,
		CacheDirPrefix: urlcanon.CacheDirPrefix(root, cfg.ResolvePath(cfg.CacheDir)),
	})
	transformer := &transform.FileTransformer{
		Root:       root,
		Graph:      s.deps.Graph,
		Canon:      canon,
		ClientPath: clientPath,
		ClientCode: livereload.ClientScript(cfg.Base + livereload.EventsPath(clientPath)[1:]),
	}
	pipeline := htmltransform.NewPipeline(root, &htmltransform.DevHook{
		Base:       cfg.Base,
		ClientPath: clientPath,
		AssetAttrs: cfg.HTML.AssetAttributes,
	}, s.deps.PreHooks, s.deps.PostHooks)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(smw.Chain(s.deps.Logger, s.errorAdapter))

	r.Get(livereload.EventsPath(clientPath), s.deps.Hub.ServeHTTP)
	if cfg.Metrics.Enabled && s.deps.MetricsHandler != nil {
		r.Handle(cfg.Metrics.Path, s.deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		// The gate sees the URI before the directory fallback rewrites it.
		r.Use(s.deps.Gate.WithRecorder(s.deps.Recorder).
			Middleware(cfg.Server.PendingReloadTimeout, reloadgate.ExemptAny(
				reloadgate.ExemptURIs(smw.KnownIgnoreList...),
				reloadgate.ExemptPrefixes(clientPath),
			)))
		r.Use(spaFallback(root))
		r.Use(smw.Transform(smw.TransformDeps{
			Canon:       canon,
			Graph:       s.deps.Graph,
			Transformer: transformer,
			OnError:     onError,
			Recorder:    s.deps.Recorder,
		}))
		r.Use(smw.IndexHTML(smw.IndexHTMLDeps{
			Canon:    canon,
			Pipeline: pipeline,
			OnError:  onError,
			Recorder: s.deps.Recorder,
		}))
		r.Handle("/*", staticHandler(cfg.ResolvePath(cfg.PublicDir), root))
	})

	return stripBase(cfg.Base, r)
}

// Start binds the listen address and serves in the background. Bind errors
// are returned synchronously.
func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Server.Addr())
	if err != nil {
		return derrors.WrapError(err, derrors.CategoryNetwork, "http startup failed").
			WithContext("addr", s.cfg.Server.Addr()).Build()
	}
	return s.StartWithListener(ln)
}

// StartWithListener serves on a pre-bound listener.
func (s *Server) StartWithListener(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: the event stream and parked requests are long-lived.
		IdleTimeout: 60 * time.Second,
	}

	s.mu.Lock()
	s.srv = srv
	s.ln = ln
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.deps.Logger.Error("Dev server failed", "error", err)
		}
	}()
	s.deps.Logger.Info("Dev server started", "addr", ln.Addr().String(), "root", s.cfg.Root, "base", s.cfg.Base)
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop closes event streams and gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.deps.Hub.Shutdown()

	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return derrors.WrapError(err, derrors.CategoryNetwork, "dev server shutdown").Build()
	}
	return nil
}
