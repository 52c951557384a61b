// Package config handles layered YAML configuration with environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all sldview configuration.
type Config struct {
	Source   Source   `yaml:"source"`
	Reloader Reloader `yaml:"reloader"`
	Export   Export   `yaml:"export"`
}

// Source selects and configures the diagram backend.
type Source struct {
	Kind    string        `yaml:"kind"`    // "http" | "dir"
	URL     string        `yaml:"url"`     // http: network service API root
	Dir     string        `yaml:"dir"`     // dir: directory of <id>.svg/<id>.json
	Timeout time.Duration `yaml:"timeout"` // Per-load limit

	// RateLimit caps http requests per second; 0 is unlimited.
	RateLimit float64 `yaml:"rate_limit"`
}

// Reloader holds reload state machine settings.
type Reloader struct {
	Dwell       time.Duration `yaml:"dwell"`        // Time in loaded before an auto-refresh
	CacheSize   int           `yaml:"cache_size"`   // Cached diagrams kept; 0 is unbounded
	AutoRefresh bool          `yaml:"auto_refresh"` // Enable auto-refresh after the first load
}

// Export holds diagram export settings.
type Export struct {
	Dir string `yaml:"dir"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Source: Source{
			Kind:    "http",
			URL:     "http://localhost:8000/api/v1",
			Timeout: 30 * time.Second,
		},
		Reloader: Reloader{
			Dwell:     60 * time.Second,
			CacheSize: 64,
		},
		Export: Export{
			Dir: "diagrams",
		},
	}
}

// Load reads a single YAML config file at path and returns a Config.
// For merging multiple config sources, use LoadLayered instead.
// If the file does not exist, defaults are returned without error.
// If the file contains invalid YAML or unknown fields, an error is returned.
func Load(path string) (*Config, error) {
	return LoadLayered(path)
}

// LoadLayered loads config from multiple paths with increasing priority.
// Later paths override earlier ones. Missing files are skipped.
func LoadLayered(paths ...string) (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range paths {
		layer, err := loadLayer(path)
		if err != nil {
			return nil, err
		}
		if layer == nil {
			continue
		}
		cfg.merge(layer)
	}

	return &cfg, nil
}

// Validate checks that config values are usable.
func (c *Config) Validate() error {
	switch c.Source.Kind {
	case "http":
		if c.Source.URL == "" {
			return errors.New("config: source.url cannot be empty for kind \"http\"")
		}
	case "dir":
		if c.Source.Dir == "" {
			return errors.New("config: source.dir cannot be empty for kind \"dir\"")
		}
	case "":
		return errors.New("config: source.kind cannot be empty")
	default:
		return fmt.Errorf("config: source.kind must be \"http\" or \"dir\", got %q", c.Source.Kind)
	}
	if c.Source.Timeout <= 0 {
		return fmt.Errorf("config: source.timeout must be positive, got %v", c.Source.Timeout)
	}
	if c.Source.RateLimit < 0 {
		return fmt.Errorf("config: source.rate_limit must be non-negative, got %v", c.Source.RateLimit)
	}
	if c.Reloader.Dwell <= 0 {
		return fmt.Errorf("config: reloader.dwell must be positive, got %v", c.Reloader.Dwell)
	}
	if c.Reloader.CacheSize < 0 {
		return fmt.Errorf("config: reloader.cache_size must be non-negative, got %d", c.Reloader.CacheSize)
	}
	if c.Export.Dir == "" {
		return errors.New("config: export.dir cannot be empty")
	}
	return nil
}

// ApplyEnv applies environment variable overrides to the config.
// Supported variables: SLDVIEW_SOURCE, SLDVIEW_URL, SLDVIEW_DIR, SLDVIEW_TIMEOUT,
// SLDVIEW_RATE_LIMIT, SLDVIEW_DWELL, SLDVIEW_CACHE_SIZE, SLDVIEW_EXPORT_DIR.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("SLDVIEW_SOURCE"); v != "" {
		c.Source.Kind = v
	}
	if v := os.Getenv("SLDVIEW_URL"); v != "" {
		c.Source.URL = v
	}
	if v := os.Getenv("SLDVIEW_DIR"); v != "" {
		c.Source.Dir = v
	}
	if v := os.Getenv("SLDVIEW_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: invalid SLDVIEW_TIMEOUT %q: %w", v, err)
		}
		c.Source.Timeout = d
	}
	if v := os.Getenv("SLDVIEW_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: invalid SLDVIEW_RATE_LIMIT %q: %w", v, err)
		}
		c.Source.RateLimit = f
	}
	if v := os.Getenv("SLDVIEW_DWELL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: invalid SLDVIEW_DWELL %q: %w", v, err)
		}
		c.Reloader.Dwell = d
	}
	if v := os.Getenv("SLDVIEW_CACHE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid SLDVIEW_CACHE_SIZE %q: %w", v, err)
		}
		c.Reloader.CacheSize = n
	}
	if v := os.Getenv("SLDVIEW_EXPORT_DIR"); v != "" {
		c.Export.Dir = v
	}
	return nil
}

// rawConfig mirrors Config but uses pointers to distinguish set vs unset fields.
type rawConfig struct {
	Source   *rawSource   `yaml:"source"`
	Reloader *rawReloader `yaml:"reloader"`
	Export   *rawExport   `yaml:"export"`
}

type rawSource struct {
	Kind    *string        `yaml:"kind"`
	URL     *string        `yaml:"url"`
	Dir     *string        `yaml:"dir"`
	Timeout   *time.Duration `yaml:"timeout"`
	RateLimit *float64       `yaml:"rate_limit"`
}

type rawReloader struct {
	Dwell       *time.Duration `yaml:"dwell"`
	CacheSize   *int           `yaml:"cache_size"`
	AutoRefresh *bool          `yaml:"auto_refresh"`
}

type rawExport struct {
	Dir *string `yaml:"dir"`
}

// loadLayer reads a single config file into a rawConfig for selective merging.
// Returns nil if the file does not exist. Rejects unknown fields.
func loadLayer(path string) (*rawConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if len(data) == 0 {
		return nil, nil
	}

	var raw rawConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		// Comment-only YAML files produce EOF with no decoded content.
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return &raw, nil
}

// merge applies non-nil fields from a rawConfig layer onto this Config.
func (c *Config) merge(layer *rawConfig) {
	if s := layer.Source; s != nil {
		setIf(&c.Source.Kind, s.Kind)
		setIf(&c.Source.URL, s.URL)
		setIf(&c.Source.Dir, s.Dir)
		setIf(&c.Source.Timeout, s.Timeout)
		setIf(&c.Source.RateLimit, s.RateLimit)
	}
	if r := layer.Reloader; r != nil {
		setIf(&c.Reloader.Dwell, r.Dwell)
		setIf(&c.Reloader.CacheSize, r.CacheSize)
		setIf(&c.Reloader.AutoRefresh, r.AutoRefresh)
	}
	if e := layer.Export; e != nil {
		setIf(&c.Export.Dir, e.Dir)
	}
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
