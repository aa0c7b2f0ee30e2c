package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseBBox(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
		set     bool
	}{
		{in: "", set: false},
		{in: "7.1,51.2,7.3,51.3", set: true},
		{in: "7.1,51.2,7.3", wantErr: true},
		{in: "7.3,51.2,7.1,51.3", wantErr: true},
		{in: "a,b,c,d", wantErr: true},
	}
	for _, tt := range tests {
		b, err := ParseBBox(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseBBox(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseBBox(%q): %v", tt.in, err)
		}
		if b.IsSet != tt.set {
			t.Errorf("ParseBBox(%q).IsSet = %v, want %v", tt.in, b.IsSet, tt.set)
		}
	}

	b, _ := ParseBBox("7.1,51.2,7.3,51.3")
	if !b.Contains(51.25, 7.15) {
		t.Error("expected point inside bbox")
	}
	if b.Contains(51.25, 7.5) {
		t.Error("expected point outside bbox")
	}
	var unset *BBox
	if !unset.Contains(0, 0) {
		t.Error("nil bbox must contain everything")
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "osmindex.yaml")
	data := []byte(`backend: postgres
directory_backend: mmap
meta_mode: attic
skip_unchanged: true
db_schema: osm
metrics_interval: 5s
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend != BackendPostgres || cfg.DirectoryBackend != BackendMmap {
		t.Errorf("backends = %s/%s", cfg.Backend, cfg.DirectoryBackend)
	}
	if cfg.MetaMode != "attic" || !cfg.SkipUnchanged {
		t.Errorf("update settings not loaded: %+v", cfg)
	}
	if cfg.DBSchema != "osm" || cfg.DBHost != "localhost" {
		t.Errorf("db settings = %s@%s", cfg.DBSchema, cfg.DBHost)
	}
	if cfg.MetricsInterval != 5*time.Second {
		t.Errorf("metrics interval = %v", cfg.MetricsInterval)
	}
	if cfg.BatchSize != 100000 {
		t.Errorf("batch size default lost: %d", cfg.BatchSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if !cfg.NeedsDatabase() {
		t.Error("postgres backend needs a database")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"backend", func(c *Config) { c.Backend = "sqlite" }},
		{"directory", func(c *Config) { c.DirectoryBackend = "file" }},
		{"capacity", func(c *Config) { c.DirectoryBackend = BackendMmap; c.DirectoryCapacity = 0 }},
		{"meta mode", func(c *Config) { c.MetaMode = "full" }},
		{"change log", func(c *Config) { c.ChangeLogFormat = "csv" }},
		{"batch", func(c *Config) { c.BatchSize = 0 }},
		{"workers", func(c *Config) { c.Workers = 0 }},
		{"expire zooms", func(c *Config) { c.ExpireOutput = "expire.list"; c.ExpireMinZoom = 19 }},
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	for _, tt := range tests {
		cfg := DefaultConfig()
		tt.modify(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}

func TestConnectionString(t *testing.T) {
	cfg := DefaultConfig()
	want := "host=localhost port=5432 dbname=osm user=postgres sslmode=disable"
	if got := cfg.ConnectionString(); got != want {
		t.Errorf("ConnectionString() = %q, want %q", got, want)
	}
	cfg.DBPassword = "secret"
	if got := cfg.ConnectionString(); got != want+" password=secret" {
		t.Errorf("ConnectionString() = %q", got)
	}
}
