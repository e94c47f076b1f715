package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/devserver/internal/config"
	"git.home.luguber.info/inful/devserver/internal/livereload"
	"git.home.luguber.info/inful/devserver/internal/metrics"
	"git.home.luguber.info/inful/devserver/internal/modulegraph"
	"git.home.luguber.info/inful/devserver/internal/optimizer"
	"git.home.luguber.info/inful/devserver/internal/reloadgate"
	"git.home.luguber.info/inful/devserver/internal/retry"
	"git.home.luguber.info/inful/devserver/internal/server/httpserver"
)

const shutdownTimeout = 10 * time.Second

// ServeCmd implements the 'serve' command. Flags override the config file.
type ServeCmd struct {
	Root string `help:"Project root to serve" type:"path"`
	Host string `help:"Host to listen on"`
	Port int    `short:"p" help:"Port to listen on"`
	Base string `help:"Public base path"`
}

func (s *ServeCmd) Run(root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}
	s.apply(cfg)
	if err := cfg.Normalize(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return RunServe(ctx, cfg)
}

func (s *ServeCmd) apply(cfg *config.Config) {
	if s.Root != "" {
		cfg.Root = s.Root
	}
	if s.Host != "" {
		cfg.Server.Host = s.Host
	}
	if s.Port != 0 {
		cfg.Server.Port = s.Port
	}
	if s.Base != "" {
		cfg.Base = s.Base
	}
}

// RunServe serves until ctx ends.
func RunServe(ctx context.Context, cfg *config.Config) error {
	graph, closeGraph, err := openGraph(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeGraph()

	deps := httpserver.Deps{
		Graph:    graph,
		Gate:     reloadgate.New(),
		Hub:      livereload.NewHub(),
		Recorder: metrics.NoopRecorder{},
	}
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		deps.Recorder = metrics.NewPrometheusRecorder(reg)
		deps.MetricsHandler = metrics.HTTPHandler(reg)
	}

	srv := httpserver.New(cfg, deps)

	if cfg.Optimizer.Enabled {
		opt, err := optimizer.New(optimizer.Config{
			Root:      cfg.Root,
			Lockfiles: cfg.Optimizer.Lockfiles,
			Debounce:  cfg.Optimizer.Debounce,
		}, deps.Gate, graph, deps.Hub)
		if err != nil {
			return err
		}
		if err := opt.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := opt.Stop(); err != nil {
				slog.Warn("Failed to stop optimizer", "error", err)
			}
		}()
	}

	if err := srv.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	slog.Info("Shutdown signal received, stopping dev server...")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	if err := srv.Stop(stopCtx); err != nil {
		return err
	}
	slog.Info("Dev server stopped")
	return nil
}

// openGraph returns the Redis-backed graph when configured, else an in-memory one.
func openGraph(ctx context.Context, cfg *config.Config) (modulegraph.Graph, func(), error) {
	if cfg.Cache.RedisAddr == "" {
		return modulegraph.NewMemoryGraph(), func() {}, nil
	}
	var g *modulegraph.RedisGraph
	err := retry.DefaultPolicy().Do(ctx, func(ctx context.Context) error {
		var err error
		g, err = modulegraph.DialRedisGraph(ctx, cfg.Cache.RedisAddr, cfg.Cache.TTL)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	slog.Info("Using Redis module cache", "addr", cfg.Cache.RedisAddr)
	return g, func() {
		if err := g.Close(); err != nil {
			slog.Warn("Failed to close Redis module cache", "error", err)
		}
	}, nil
}
