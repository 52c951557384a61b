package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, "sldview.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Source.Kind != "http" {
		t.Errorf("default source = %q, want %q", cfg.Source.Kind, "http")
	}
	if cfg.Reloader.Dwell != time.Minute {
		t.Errorf("default dwell = %v, want %v", cfg.Reloader.Dwell, time.Minute)
	}
	if cfg.Reloader.CacheSize != 64 {
		t.Errorf("default cache size = %d, want 64", cfg.Reloader.CacheSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir(), `
source:
  kind: dir
  dir: /srv/diagrams
  timeout: 5s
  rate_limit: 4
reloader:
  dwell: 15s
  cache_size: 8
  auto_refresh: true
export:
  dir: /tmp/out
`)

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := Config{
		Source:   Source{Kind: "dir", URL: DefaultConfig().Source.URL, Dir: "/srv/diagrams", Timeout: 5 * time.Second, RateLimit: 4},
		Reloader: Reloader{Dwell: 15 * time.Second, CacheSize: 8, AutoRefresh: true},
		Export:   Export{Dir: "/tmp/out"},
	}
	if *cfg != want {
		t.Errorf("Load() = %+v, want %+v", *cfg, want)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/sldview.yaml")
	if err != nil {
		t.Fatalf("Load() should return defaults for missing file, got error: %v", err)
	}
	if want := DefaultConfig(); *cfg != want {
		t.Errorf("Load(missing) = %+v, want defaults %+v", *cfg, want)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir(), "source: [unclosed")

	if _, err := Load(cfgPath); err == nil {
		t.Fatal("Load() should return error for invalid YAML")
	}
}

func TestLoad_UnknownField(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir(), `
reloader:
  dwel: 10s
`)

	if _, err := Load(cfgPath); err == nil {
		t.Fatal("Load() should return error for unknown field 'dwel'")
	}
}

func TestLoad_LayeredPriority(t *testing.T) {
	// Setup: user config sets the source, project config overrides dwell.
	userCfg := writeConfig(t, t.TempDir(), `
source:
  url: http://grid.example/api/v1
reloader:
  dwell: 2m
  auto_refresh: true
`)
	projectCfg := writeConfig(t, t.TempDir(), `
reloader:
  dwell: 10s
`)

	cfg, err := LoadLayered(userCfg, projectCfg)
	if err != nil {
		t.Fatalf("LoadLayered() error = %v", err)
	}
	// URL from user config (project doesn't set it).
	if cfg.Source.URL != "http://grid.example/api/v1" {
		t.Errorf("url = %q", cfg.Source.URL)
	}
	// Dwell from project config (overrides user).
	if cfg.Reloader.Dwell != 10*time.Second {
		t.Errorf("dwell = %v, want 10s", cfg.Reloader.Dwell)
	}
	// Unset bool keeps the user layer's value.
	if !cfg.Reloader.AutoRefresh {
		t.Error("auto_refresh should stay true from user layer")
	}
	// Export dir retains default when neither layer sets it.
	if cfg.Export.Dir != "diagrams" {
		t.Errorf("export dir = %q, want default", cfg.Export.Dir)
	}
}

func TestLoad_ExplicitZeroOverrides(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir(), `
reloader:
  cache_size: 0
`)

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Reloader.CacheSize != 0 {
		t.Errorf("cache size = %d, want explicit 0", cfg.Reloader.CacheSize)
	}
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name    string
		envs    map[string]string
		wantErr bool
		check   func(*testing.T, Config)
	}{
		{
			name: "SLDVIEW_SOURCE and SLDVIEW_DIR select dir source",
			envs: map[string]string{"SLDVIEW_SOURCE": "dir", "SLDVIEW_DIR": "/srv/sld"},
			check: func(t *testing.T, c Config) {
				if c.Source.Kind != "dir" || c.Source.Dir != "/srv/sld" {
					t.Errorf("source = %+v", c.Source)
				}
			},
		},
		{
			name: "SLDVIEW_URL overrides url",
			envs: map[string]string{"SLDVIEW_URL": "https://grid.example/api/v1"},
			check: func(t *testing.T, c Config) {
				if c.Source.URL != "https://grid.example/api/v1" {
					t.Errorf("url = %q", c.Source.URL)
				}
			},
		},
		{
			name: "durations",
			envs: map[string]string{"SLDVIEW_TIMEOUT": "3s", "SLDVIEW_DWELL": "250ms"},
			check: func(t *testing.T, c Config) {
				if c.Source.Timeout != 3*time.Second || c.Reloader.Dwell != 250*time.Millisecond {
					t.Errorf("timeout = %v dwell = %v", c.Source.Timeout, c.Reloader.Dwell)
				}
			},
		},
		{
			name: "cache size and export dir",
			envs: map[string]string{"SLDVIEW_CACHE_SIZE": "4", "SLDVIEW_EXPORT_DIR": "/out"},
			check: func(t *testing.T, c Config) {
				if c.Reloader.CacheSize != 4 || c.Export.Dir != "/out" {
					t.Errorf("reloader = %+v export = %+v", c.Reloader, c.Export)
				}
			},
		},
		{
			name: "SLDVIEW_RATE_LIMIT sets requests per second",
			envs: map[string]string{"SLDVIEW_RATE_LIMIT": "2.5"},
			check: func(t *testing.T, c Config) {
				if c.Source.RateLimit != 2.5 {
					t.Errorf("rate limit = %v, want 2.5", c.Source.RateLimit)
				}
			},
		},
		{
			name:    "invalid SLDVIEW_RATE_LIMIT returns error",
			envs:    map[string]string{"SLDVIEW_RATE_LIMIT": "fast"},
			wantErr: true,
		},
		{
			name:    "invalid SLDVIEW_TIMEOUT returns error",
			envs:    map[string]string{"SLDVIEW_TIMEOUT": "notaduration"},
			wantErr: true,
		},
		{
			name:    "invalid SLDVIEW_DWELL returns error",
			envs:    map[string]string{"SLDVIEW_DWELL": "soon"},
			wantErr: true,
		},
		{
			name:    "invalid SLDVIEW_CACHE_SIZE returns error",
			envs:    map[string]string{"SLDVIEW_CACHE_SIZE": "many"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envs {
				t.Setenv(k, v)
			}
			cfg := DefaultConfig()
			err := cfg.ApplyEnv()

			if tt.wantErr {
				if err == nil {
					t.Fatal("ApplyEnv() should return error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ApplyEnv() error = %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "defaults are valid", modify: func(*Config) {}},
		{name: "dir source with dir", modify: func(c *Config) { c.Source.Kind = "dir"; c.Source.Dir = "." }},
		{name: "unbounded cache", modify: func(c *Config) { c.Reloader.CacheSize = 0 }},
		{name: "empty source kind", modify: func(c *Config) { c.Source.Kind = "" }, wantErr: true},
		{name: "unknown source kind", modify: func(c *Config) { c.Source.Kind = "grpc" }, wantErr: true},
		{name: "http without url", modify: func(c *Config) { c.Source.URL = "" }, wantErr: true},
		{name: "dir without dir", modify: func(c *Config) { c.Source.Kind = "dir" }, wantErr: true},
		{name: "zero timeout", modify: func(c *Config) { c.Source.Timeout = 0 }, wantErr: true},
		{name: "negative rate limit", modify: func(c *Config) { c.Source.RateLimit = -1 }, wantErr: true},
		{name: "negative dwell", modify: func(c *Config) { c.Reloader.Dwell = -time.Second }, wantErr: true},
		{name: "negative cache size", modify: func(c *Config) { c.Reloader.CacheSize = -1 }, wantErr: true},
		{name: "empty export dir", modify: func(c *Config) { c.Export.Dir = "" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_CommentOnlyFile(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir(), "# just a comment\n")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load(comment-only) error = %v", err)
	}
	if want := DefaultConfig(); *cfg != want {
		t.Errorf("Load(comment-only) = %+v, want defaults %+v", *cfg, want)
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir(), "")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load(empty) error = %v", err)
	}
	if want := DefaultConfig(); *cfg != want {
		t.Errorf("Load(empty) = %+v, want defaults %+v", *cfg, want)
	}
}

func TestLoadLayered_AllMissing(t *testing.T) {
	cfg, err := LoadLayered("/no/user.yaml", "/no/project.yaml")
	if err != nil {
		t.Fatalf("LoadLayered(all missing) error = %v", err)
	}
	if want := DefaultConfig(); *cfg != want {
		t.Errorf("got %+v, want defaults %+v", *cfg, want)
	}
}
