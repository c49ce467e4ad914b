// Package config loads the noteindex configuration file.
//
// The file is JSON5 (~/.noteindex/config.json5 by default) or YAML when the
// extension is .yaml/.yml. Missing fields keep their Default() values and a
// small set of NOTEINDEX_* environment variables override the file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/titanous/json5"
	"gopkg.in/yaml.v3"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the root configuration.
type Config struct {
	DefaultWorkspace string            `json:"default_workspace" yaml:"default_workspace"`
	Workspaces       []WorkspaceConfig `json:"workspaces,omitempty" yaml:"workspaces,omitempty"`
	Database         DatabaseConfig    `json:"database" yaml:"database"`
	Memory           MemoryConfig      `json:"memory" yaml:"memory"`
	Tools            ToolsConfig       `json:"tools" yaml:"tools"`
	Telemetry        TelemetryConfig   `json:"telemetry" yaml:"telemetry"`
	Log              LogConfig         `json:"log" yaml:"log"`

	mu sync.RWMutex
}

// WorkspaceConfig names one indexed note tree.
type WorkspaceConfig struct {
	ID    string `json:"id" yaml:"id"`
	Root  string `json:"root" yaml:"root"`
	Watch bool   `json:"watch,omitempty" yaml:"watch,omitempty"`
}

// DatabaseConfig selects the store backend.
type DatabaseConfig struct {
	Driver      string `json:"driver" yaml:"driver"` // "sqlite" (default) or "postgres"
	Path        string `json:"path" yaml:"path"`     // sqlite file
	PostgresDSN string `json:"postgres_dsn,omitempty" yaml:"postgres_dsn,omitempty"`
	DisableFTS  bool   `json:"disable_fts,omitempty" yaml:"disable_fts,omitempty"`
}

// MemoryConfig tunes chunking, scheduling and caching.
type MemoryConfig struct {
	TargetChars   int    `json:"target_chars" yaml:"target_chars"`
	MinChars      int    `json:"min_chars" yaml:"min_chars"`
	OverlapLines  int    `json:"overlap_lines" yaml:"overlap_lines"`
	CooldownMs    int    `json:"cooldown_ms" yaml:"cooldown_ms"`
	QuickDelayMs  int    `json:"quick_delay_ms" yaml:"quick_delay_ms"`
	ForcedDelayMs int    `json:"forced_delay_ms" yaml:"forced_delay_ms"`
	CacheSize     int    `json:"cache_size" yaml:"cache_size"`
	EmbeddingDims int    `json:"embedding_dims" yaml:"embedding_dims"`
	TokenEncoding string `json:"token_encoding,omitempty" yaml:"token_encoding,omitempty"`
}

// ToolsConfig configures the agent tool surface.
type ToolsConfig struct {
	DefaultLimit    int `json:"default_limit" yaml:"default_limit"`
	RateLimitPerMin int `json:"rate_limit_per_minute" yaml:"rate_limit_per_minute"` // 0 = unlimited
	TimelineWindow  int `json:"timeline_window" yaml:"timeline_window"`
}

// TelemetryConfig configures OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled" yaml:"enabled"`
	Endpoint    string            `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Protocol    string            `json:"protocol,omitempty" yaml:"protocol,omitempty"` // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty" yaml:"insecure,omitempty"`
	ServiceName string            `json:"service_name,omitempty" yaml:"service_name,omitempty"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // text or json
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		DefaultWorkspace: DefaultWorkspaceID,
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			Path:   "~/.noteindex/index.db",
		},
		Memory: MemoryConfig{
			TargetChars:   1200,
			MinChars:      300,
			OverlapLines:  2,
			CooldownMs:    15000,
			QuickDelayMs:  250,
			ForcedDelayMs: 1500,
			CacheSize:     64,
			EmbeddingDims: 256,
			TokenEncoding: "cl100k_base",
		},
		Tools: ToolsConfig{
			DefaultLimit:   8,
			TimelineWindow: 2,
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "noteindex",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPath returns ~/.noteindex/config.json5, honoring NOTEINDEX_CONFIG.
func DefaultPath() string {
	if p := os.Getenv("NOTEINDEX_CONFIG"); p != "" {
		return ExpandHome(p)
	}
	return ExpandHome("~/.noteindex/config.json5")
}

// Load reads path over Default() and applies env overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json5.Unmarshal(data, cfg)
	}
}

// Save writes cfg as indented JSON, which is valid JSON5.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	cfg.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

func (c *Config) applyEnv() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("NOTEINDEX_DB_DRIVER", &c.Database.Driver)
	envStr("NOTEINDEX_DB_PATH", &c.Database.Path)
	envStr("NOTEINDEX_PG_DSN", &c.Database.PostgresDSN)
	envStr("NOTEINDEX_LOG_LEVEL", &c.Log.Level)

	// A DSN without an explicit driver selects postgres.
	if os.Getenv("NOTEINDEX_PG_DSN") != "" && os.Getenv("NOTEINDEX_DB_DRIVER") == "" {
		c.Database.Driver = DriverPostgres
	}
}

func (c *Config) normalize() {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.Driver == "" || c.Database.Driver == "sqlite3" {
		c.Database.Driver = DriverSQLite
	}
	if c.Database.Driver == "postgresql" || c.Database.Driver == "pg" {
		c.Database.Driver = DriverPostgres
	}
	c.Database.Path = ExpandHome(c.Database.Path)

	c.DefaultWorkspace = NormalizeWorkspaceID(c.DefaultWorkspace)
	for i := range c.Workspaces {
		c.Workspaces[i].ID = NormalizeWorkspaceID(c.Workspaces[i].ID)
		c.Workspaces[i].Root = ExpandHome(c.Workspaces[i].Root)
	}
}

// Validate reports configuration errors that would fail at startup.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("config: database.path is required for sqlite")
		}
	case DriverPostgres:
		if c.Database.PostgresDSN == "" {
			return errors.New("config: database.postgres_dsn is required for postgres")
		}
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	}

	seen := make(map[string]bool, len(c.Workspaces))
	for _, ws := range c.Workspaces {
		if seen[ws.ID] {
			return fmt.Errorf("config: duplicate workspace %q", ws.ID)
		}
		seen[ws.ID] = true
		if ws.Root == "" {
			return fmt.Errorf("config: workspace %q has no root", ws.ID)
		}
	}
	return nil
}

// Workspace returns the configured workspace with the given id.
func (c *Config) Workspace(id string) (WorkspaceConfig, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id = NormalizeWorkspaceID(id)
	for _, ws := range c.Workspaces {
		if ws.ID == id {
			return ws, true
		}
	}
	return WorkspaceConfig{}, false
}

// ReplaceFrom copies src's reloadable fields into c. Database settings are
// kept since the open store cannot change underneath a running process.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.DefaultWorkspace = src.DefaultWorkspace
	c.Workspaces = append([]WorkspaceConfig(nil), src.Workspaces...)
	c.Memory = src.Memory
	c.Tools = src.Tools
	c.Log = src.Log
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
