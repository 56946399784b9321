// Package config loads runtime configuration from YAML or TOML files.
//
// Both formats decode into a generic map first and then into Config with
// mapstructure, so the two formats accept exactly the same keys. Unknown
// keys are rejected; numbers and booleans written as strings are accepted.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/roach88/rgf/internal/observability"
	"github.com/roach88/rgf/internal/plugin"
	"github.com/roach88/rgf/internal/reactive"
	"github.com/roach88/rgf/internal/runtime"
)

// Format is a configuration file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// DefaultShutdownGrace bounds how long Run waits for shutdown.
const DefaultShutdownGrace = 5 * time.Second

// Config is the runtime configuration.
type Config struct {
	MaxTickPasses     int           `mapstructure:"max_tick_passes"`
	MaxResolverPasses int           `mapstructure:"max_resolver_passes"`
	ShutdownGrace     time.Duration `mapstructure:"shutdown_grace"`
	Manifests         []string      `mapstructure:"manifests"`
	Plugins           PluginsConfig `mapstructure:"plugins"`
	Store             StoreConfig   `mapstructure:"store"`
	Log               LogConfig     `mapstructure:"log"`
	Metrics           MetricsConfig `mapstructure:"metrics"`
}

type PluginsConfig struct {
	// Disabled plugins are never installed.
	Disabled []string `mapstructure:"disabled"`
}

type StoreConfig struct {
	// Path of the SQLite journal. Empty disables journaling.
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	// Addr of the metrics and health endpoint. Empty disables it.
	Addr string `mapstructure:"addr"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		MaxTickPasses:     reactive.DefaultMaxPasses,
		MaxResolverPasses: plugin.DefaultMaxPasses,
		ShutdownGrace:     DefaultShutdownGrace,
		Log:               LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path, choosing the format by extension. Relative manifest
// and store paths are resolved against the directory of path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	format, err := formatOf(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := Parse(format, data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

func formatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	}
	return "", fmt.Errorf("unsupported config extension %q", filepath.Ext(path))
}

// Parse decodes data in the given format over Default and validates it.
func Parse(format Format, data []byte) (Config, error) {
	raw := map[string]any{}
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Config{}, fmt.Errorf("parse yaml: %w", err)
		}
	case FormatTOML:
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return Config{}, fmt.Errorf("parse toml: %w", err)
		}
	default:
		return Config{}, fmt.Errorf("unknown config format %q", format)
	}

	cfg := Default()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return Config{}, err
	}
	if err := dec.Decode(raw); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	if c.MaxTickPasses < 1 {
		return fmt.Errorf("max_tick_passes must be positive, got %d", c.MaxTickPasses)
	}
	if c.MaxResolverPasses < 1 {
		return fmt.Errorf("max_resolver_passes must be positive, got %d", c.MaxResolverPasses)
	}
	if c.ShutdownGrace < 0 {
		return fmt.Errorf("shutdown_grace must not be negative, got %s", c.ShutdownGrace)
	}
	if _, err := observability.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	return nil
}

func (c *Config) resolvePaths(dir string) {
	for i, m := range c.Manifests {
		if !filepath.IsAbs(m) {
			c.Manifests[i] = filepath.Join(dir, m)
		}
	}
	if c.Store.Path != "" && c.Store.Path != ":memory:" && !filepath.IsAbs(c.Store.Path) {
		c.Store.Path = filepath.Join(dir, c.Store.Path)
	}
}

// Enabled reports whether plugin name may be installed.
func (c Config) Enabled(name string) bool {
	return !slices.Contains(c.Plugins.Disabled, name)
}

// RuntimeOptions converts the pass limits into runtime options.
func (c Config) RuntimeOptions() []runtime.Option {
	return []runtime.Option{
		runtime.WithMaxTickPasses(c.MaxTickPasses),
		runtime.WithMaxResolverPasses(c.MaxResolverPasses),
	}
}
