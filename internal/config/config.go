// Package config handles relq's TOML configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/aidanlsb/relq/internal/atomicfile"
)

// Defaults applied when the file leaves a value unset.
const (
	DefaultChunkSize = 500
	DefaultPerPage   = 15
	DefaultDatabase  = "relq.db"
)

// Config represents the relq configuration.
type Config struct {
	// Database is the SQLite file path. "~/" expands to the home directory.
	Database string `toml:"database"`

	// Catalog is an optional YAML catalog replacing the built-in blog catalog.
	Catalog string `toml:"catalog"`

	Batch      BatchConfig      `toml:"batch"`
	Pagination PaginationConfig `toml:"pagination"`
	Output     OutputConfig     `toml:"output"`
	UI         UIConfig         `toml:"ui"`
}

// BatchConfig tunes batch mutations.
type BatchConfig struct {
	ChunkSize int `toml:"chunk_size"`
}

// PaginationConfig tunes paginated listings.
type PaginationConfig struct {
	PerPage int `toml:"per_page"`
}

// OutputConfig selects the output format: "auto", "table" or "json".
// "auto" prints tables on a terminal and JSON otherwise.
type OutputConfig struct {
	Format string `toml:"format"`
}

// UIConfig represents optional CLI theming preferences.
type UIConfig struct {
	// Accent is an ANSI color code ("0" to "255") or hex color ("#RRGGBB").
	Accent string `toml:"accent"`
}

// DatabasePath returns the configured database path with "~" expanded.
func (c *Config) DatabasePath() string {
	path := c.Database
	if path == "" {
		path = DefaultDatabase
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// ChunkSize returns the batch chunk size, falling back to DefaultChunkSize.
func (c *Config) ChunkSize() int {
	if c.Batch.ChunkSize > 0 {
		return c.Batch.ChunkSize
	}
	return DefaultChunkSize
}

// PerPage returns the page size, falling back to DefaultPerPage.
func (c *Config) PerPage() int {
	if c.Pagination.PerPage > 0 {
		return c.Pagination.PerPage
	}
	return DefaultPerPage
}

// OutputFormat returns the normalized output format.
func (c *Config) OutputFormat() string {
	switch f := strings.ToLower(strings.TrimSpace(c.Output.Format)); f {
	case "table", "json":
		return f
	default:
		return "auto"
	}
}

// Load loads the configuration from the default location.
// Returns a default config if the file doesn't exist.
func Load() (*Config, error) {
	configPath := DefaultPath()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return &Config{}, nil
	}

	return LoadFrom(configPath)
}

// LoadFrom loads the configuration from a specific path.
func LoadFrom(path string) (*Config, error) {
	var config Config
	md, err := toml.DecodeFile(path, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config %s: unknown key %q", path, undecoded[0].String())
	}
	return &config, nil
}

// DefaultPath returns the default config file path.
// Checks ~/.config/relq/config.toml first (XDG style),
// then falls back to the OS-specific location.
func DefaultPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		xdgPath := filepath.Join(home, ".config", "relq", "config.toml")
		if _, err := os.Stat(xdgPath); err == nil {
			return xdgPath
		}
	}

	if configDir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(configDir, "relq", "config.toml")
	}

	return filepath.Join(".", "config.toml")
}

const defaultConfig = `# relq configuration

# SQLite database file
# database = "~/relq/blog.db"

# YAML catalog to use instead of the built-in blog catalog
# catalog = "/path/to/catalog.yaml"

[batch]
# Rows per INSERT statement for batch inserts
chunk_size = 500

[pagination]
per_page = 15

[output]
# auto, table or json
format = "auto"

# [ui]
# accent = "39"
`

// CreateDefault writes a commented default config to path if nothing exists
// there yet. An empty path means DefaultPath.
func CreateDefault(path string) (string, error) {
	if path == "" {
		path = DefaultPath()
	}

	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	if err := atomicfile.WriteFile(path, []byte(defaultConfig), 0o644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}

	return path, nil
}
