package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigDefaults(t *testing.T) {
	cfg := &Config{}

	if got := cfg.ChunkSize(); got != DefaultChunkSize {
		t.Errorf("ChunkSize() = %d, want %d", got, DefaultChunkSize)
	}
	if got := cfg.PerPage(); got != DefaultPerPage {
		t.Errorf("PerPage() = %d, want %d", got, DefaultPerPage)
	}
	if got := cfg.DatabasePath(); got != DefaultDatabase {
		t.Errorf("DatabasePath() = %q, want %q", got, DefaultDatabase)
	}
	if got := cfg.OutputFormat(); got != "auto" {
		t.Errorf("OutputFormat() = %q, want auto", got)
	}
}

func TestConfigDatabasePathExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := &Config{Database: "~/data/blog.db"}
	want := filepath.Join(home, "data", "blog.db")
	if got := cfg.DatabasePath(); got != want {
		t.Errorf("DatabasePath() = %q, want %q", got, want)
	}
}

func TestConfigOutputFormat(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "auto"},
		{"JSON", "json"},
		{" table ", "table"},
		{"yaml", "auto"},
	}
	for _, tt := range tests {
		cfg := &Config{Output: OutputConfig{Format: tt.in}}
		if got := cfg.OutputFormat(); got != tt.want {
			t.Errorf("OutputFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoadFrom(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	content := `database = "/tmp/blog.db"
catalog = "catalog.yaml"

[batch]
chunk_size = 50

[pagination]
per_page = 25

[output]
format = "json"

[ui]
accent = "39"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFrom(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Database != "/tmp/blog.db" {
		t.Errorf("expected database '/tmp/blog.db', got %q", cfg.Database)
	}
	if cfg.Catalog != "catalog.yaml" {
		t.Errorf("expected catalog 'catalog.yaml', got %q", cfg.Catalog)
	}
	if cfg.ChunkSize() != 50 {
		t.Errorf("expected chunk size 50, got %d", cfg.ChunkSize())
	}
	if cfg.PerPage() != 25 {
		t.Errorf("expected per page 25, got %d", cfg.PerPage())
	}
	if cfg.OutputFormat() != "json" {
		t.Errorf("expected output json, got %q", cfg.OutputFormat())
	}
	if cfg.UI.Accent != "39" {
		t.Errorf("expected ui.accent '39', got %q", cfg.UI.Accent)
	}
}

func TestLoadFromInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	content := `this is not valid toml {{{{`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	_, err := LoadFrom(configPath)
	if err == nil {
		t.Error("expected error for invalid TOML")
	}
}

func TestLoadFromUnknownKey(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("[batch]\nchunk = 10\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	_, err := LoadFrom(configPath)
	if err == nil || !strings.Contains(err.Error(), "batch.chunk") {
		t.Fatalf("expected unknown key error naming batch.chunk, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "xdg"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected non-nil config")
	}
	if cfg.ChunkSize() != DefaultChunkSize {
		t.Errorf("expected default chunk size, got %d", cfg.ChunkSize())
	}
}

func TestCreateDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relq", "config.toml")

	got, err := CreateDefault(path)
	if err != nil {
		t.Fatalf("CreateDefault: %v", err)
	}
	if got != path {
		t.Errorf("CreateDefault returned %q, want %q", got, path)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("default config should parse: %v", err)
	}
	if cfg.ChunkSize() != DefaultChunkSize || cfg.PerPage() != DefaultPerPage {
		t.Errorf("unexpected defaults: chunk=%d per_page=%d", cfg.ChunkSize(), cfg.PerPage())
	}

	// An existing file is left alone.
	if err := os.WriteFile(path, []byte("database = \"x.db\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := CreateDefault(path); err != nil {
		t.Fatalf("CreateDefault: %v", err)
	}
	cfg, err = LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Database != "x.db" {
		t.Errorf("existing config overwritten: database = %q", cfg.Database)
	}
}
