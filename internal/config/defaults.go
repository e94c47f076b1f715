package config

import (
	"strings"
	"time"
)

const (
	DefaultHost                 = "localhost"
	DefaultPort                 = 5173
	DefaultPendingReloadTimeout = time.Second
	DefaultClientPublicPath     = "/@devserver/client"
	DefaultCacheDir             = "node_modules/.devserver"
	DefaultPublicDir            = "public"
	DefaultMetricsPath          = "/metrics"
	DefaultOptimizerDebounce    = 300 * time.Millisecond
	DefaultCacheTTL             = 24 * time.Hour
)

// DefaultLockfiles are the dependency lockfiles watched by the optimizer.
var DefaultLockfiles = []string{"package-lock.json", "yarn.lock", "pnpm-lock.yaml"}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{Optimizer: OptimizerConfig{Enabled: true}}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(c *Config) {
	if c.Root == "" {
		c.Root = "."
	}
	c.Base = NormalizeBase(c.Base)
	if c.CacheDir == "" {
		c.CacheDir = DefaultCacheDir
	}
	if c.PublicDir == "" {
		c.PublicDir = DefaultPublicDir
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.PendingReloadTimeout == 0 {
		c.Server.PendingReloadTimeout = DefaultPendingReloadTimeout
	}
	if c.Client.PublicPath == "" {
		c.Client.PublicPath = DefaultClientPublicPath
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = DefaultCacheTTL
	}
	if len(c.Optimizer.Lockfiles) == 0 {
		c.Optimizer.Lockfiles = append([]string(nil), DefaultLockfiles...)
	}
	if c.Optimizer.Debounce == 0 {
		c.Optimizer.Debounce = DefaultOptimizerDebounce
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

// NormalizeBase returns base with exactly one leading and one trailing slash.
func NormalizeBase(base string) string {
	base = strings.Trim(strings.TrimSpace(base), "/")
	if base == "" {
		return "/"
	}
	return "/" + base + "/"
}
