package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/devserver/internal/foundation/errors"
)

// Config represents the dev server configuration.
type Config struct {
	// Root is the project directory served by the dev server.
	Root string `yaml:"root"`
	// Base is the public base path. It always starts and ends with "/".
	Base string `yaml:"base"`
	// CacheDir holds pre-bundled dependencies; relative paths resolve against Root.
	CacheDir string `yaml:"cache_dir"`
	// PublicDir holds files served as-is; relative paths resolve against Root.
	PublicDir string `yaml:"public_dir"`

	Server    ServerConfig    `yaml:"server"`
	Client    ClientConfig    `yaml:"client"`
	Modules   ModulesConfig   `yaml:"modules"`
	HTML      HTMLConfig      `yaml:"html"`
	Cache     CacheConfig     `yaml:"cache"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// PendingReloadTimeout bounds how long a request waits for a dependency re-optimization.
	PendingReloadTimeout time.Duration `yaml:"pending_reload_timeout"`
}

// ClientConfig configures the browser client runtime.
type ClientConfig struct {
	PublicPath string `yaml:"public_path"`
}

// ModulesConfig configures request classification.
type ModulesConfig struct {
	JSExtensions  []string `yaml:"js_extensions,omitempty"`
	CSSExtensions []string `yaml:"css_extensions,omitempty"`
}

// HTMLConfig configures the core HTML hook.
type HTMLConfig struct {
	// AssetAttributes maps element names to URL-bearing attributes rebased onto Base.
	AssetAttributes map[string][]string `yaml:"asset_attributes,omitempty"`
}

// CacheConfig selects the module graph backend.
type CacheConfig struct {
	// RedisAddr enables the Redis-backed module graph when set.
	RedisAddr string        `yaml:"redis_addr,omitempty"`
	TTL       time.Duration `yaml:"ttl,omitempty"`
}

// OptimizerConfig configures the dependency lockfile watcher.
type OptimizerConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Lockfiles []string      `yaml:"lockfiles,omitempty"`
	Debounce  time.Duration `yaml:"debounce"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ResolvePath resolves p against Root unless it is absolute or empty.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

// Load reads configPath, expands ${VAR} references, applies defaults and validates the result.
// A missing file yields the defaults.
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	cfg := &Config{Optimizer: OptimizerConfig{Enabled: true}}
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read config file").
				WithContext("path", configPath).Build()
		default:
			if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
				return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to unmarshal config").
					WithContext("path", configPath).Build()
			}
		}
	}

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Normalize applies defaults and validates. Callers that override fields after
// Load (e.g. from CLI flags) call it again.
func (c *Config) Normalize() error {
	applyDefaults(c)
	return Validate(c)
}

// Init creates a new configuration file with example content.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return ferrors.ConfigError("configuration file already exists (use --force to overwrite)").
			WithContext("path", configPath).Build()
	}

	example := Default()
	example.HTML.AssetAttributes = map[string][]string{"img": {"src", "srcset"}, "link": {"href"}}
	example.Cache.RedisAddr = "${DEVSERVER_REDIS_ADDR}"

	data, err := yaml.Marshal(example)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "failed to marshal config").Build()
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to write config file").
			WithContext("path", configPath).Build()
	}
	return nil
}
