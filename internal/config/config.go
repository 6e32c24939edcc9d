// Package config loads the refine configuration: config.toml, an optional
// config.<env>.toml overlay, and REFINE_* environment variables, in that order
// of precedence from lowest to highest.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/JaimeStill/refine/internal/events"
	"github.com/JaimeStill/refine/internal/executor"
	"github.com/JaimeStill/refine/internal/prompts"
	"github.com/JaimeStill/refine/pkg/database"
	"github.com/JaimeStill/refine/pkg/pagination"
	"github.com/JaimeStill/refine/pkg/storage"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvRefineEnv             = "REFINE_ENV"
	EnvRefineShutdownTimeout = "REFINE_SHUTDOWN_TIMEOUT"
	EnvRefineVersion         = "REFINE_VERSION"
	EnvRefineLogLevel        = "REFINE_LOG_LEVEL"
)

var databaseEnv = &database.Env{
	Host:            "REFINE_DB_HOST",
	Port:            "REFINE_DB_PORT",
	Name:            "REFINE_DB_NAME",
	User:            "REFINE_DB_USER",
	Password:        "REFINE_DB_PASSWORD",
	SSLMode:         "REFINE_DB_SSL_MODE",
	ApplicationName: "REFINE_DB_APPLICATION_NAME",
	MaxOpenConns:    "REFINE_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "REFINE_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "REFINE_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "REFINE_DB_CONN_TIMEOUT",
}

var storageEnv = &storage.Env{
	ContainerName:    "REFINE_STORAGE_CONTAINER_NAME",
	ConnectionString: "REFINE_STORAGE_CONNECTION_STRING",
	MaxListSize:      "REFINE_STORAGE_MAX_LIST_SIZE",
}

var paginationEnv = &pagination.Env{
	DefaultPageSize: "REFINE_PAGINATION_DEFAULT_PAGE_SIZE",
	MaxPageSize:     "REFINE_PAGINATION_MAX_PAGE_SIZE",
}

var agentEnv = &executor.Env{
	BaseURL:   "REFINE_AGENT_BASE_URL",
	Model:     "REFINE_AGENT_MODEL",
	Token:     "REFINE_AGENT_TOKEN",
	MaxTokens: "REFINE_AGENT_MAX_TOKENS",
	Timeout:   "REFINE_AGENT_TIMEOUT",
}

var eventsEnv = &events.Env{
	URL:    "REFINE_NATS_URL",
	Prefix: "REFINE_NATS_PREFIX",
}

// Config is the root configuration for refine.
type Config struct {
	Server          ServerConfig      `toml:"server"`
	Sessions        SessionsConfig    `toml:"sessions"`
	Documents       DocumentsConfig   `toml:"documents"`
	Database        database.Config   `toml:"database"`
	Storage         storage.Config    `toml:"storage"`
	Pagination      pagination.Config `toml:"pagination"`
	Agent           executor.Config   `toml:"agent"`
	Events          events.Config     `toml:"events"`
	Prompts         prompts.Config    `toml:"prompts"`
	ShutdownTimeout string            `toml:"shutdown_timeout"`
	Version         string            `toml:"version"`
	LogLevel        string            `toml:"log_level"`

	archive bool
}

// Env returns the REFINE_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvRefineEnv); env != "" {
		return env
	}
	return "local"
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// Level returns LogLevel as a slog.Level.
func (c *Config) Level() slog.Level {
	var l slog.Level
	_ = l.UnmarshalText([]byte(c.LogLevel))
	return l
}

// ArchiveEnabled reports whether blob storage is configured for session archives.
func (c *Config) ArchiveEnabled() bool {
	return c.archive
}

// Load reads config.toml from the working directory.
func Load() (*Config, error) {
	return LoadFrom(BaseConfigFile)
}

// LoadFrom reads the base config at path (if present), applies the
// config.<env>.toml overlay beside it, and finalizes all values. If no base
// config exists, defaults and environment variables provide all configuration.
func LoadFrom(path string) (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(path); err == nil {
		loaded, err := load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if overlay := overlayPath(filepath.Dir(path)); overlay != "" {
		o, err := load(overlay)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", overlay, err)
		}
		cfg.Merge(o)
	}

	if err := cfg.Finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	if overlay.LogLevel != "" {
		c.LogLevel = overlay.LogLevel
	}
	c.Server.Merge(&overlay.Server)
	c.Sessions.Merge(&overlay.Sessions)
	c.Documents.Merge(&overlay.Documents)
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
	c.Pagination.Merge(&overlay.Pagination)
	c.Agent.Merge(&overlay.Agent)
	c.Events.Merge(&overlay.Events)
	c.Prompts.Merge(&overlay.Prompts)
}

// Finalize applies defaults, environment overrides, and validation to every
// sub-config. Database settings are only required by the postgres session
// backend, and storage settings only when a connection string is present.
func (c *Config) Finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Server.Finalize(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Sessions.Finalize(); err != nil {
		return fmt.Errorf("sessions: %w", err)
	}
	if err := c.Documents.Finalize(); err != nil {
		return fmt.Errorf("documents: %w", err)
	}
	if c.Sessions.Backend == BackendPostgres {
		if err := c.Database.Finalize(databaseEnv); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if c.Storage.ConnectionString != "" || os.Getenv(storageEnv.ConnectionString) != "" {
		if err := c.Storage.Finalize(storageEnv); err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		c.archive = true
	}
	if err := c.Pagination.Finalize(paginationEnv); err != nil {
		return fmt.Errorf("pagination: %w", err)
	}
	if err := c.Agent.Finalize(agentEnv); err != nil {
		return fmt.Errorf("agent: %w", err)
	}
	if err := c.Events.Finalize(eventsEnv); err != nil {
		return fmt.Errorf("events: %w", err)
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvRefineShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvRefineVersion); v != "" {
		c.Version = v
	}
	if v := os.Getenv(EnvRefineLogLevel); v != "" {
		c.LogLevel = v
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

func overlayPath(dir string) string {
	env := os.Getenv(EnvRefineEnv)
	if env == "" || strings.ContainsAny(env, `/\`) {
		return ""
	}
	path := filepath.Join(dir, fmt.Sprintf(OverlayConfigPattern, env))
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}
