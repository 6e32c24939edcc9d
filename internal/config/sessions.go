package config

import (
	"fmt"
	"os"
	"time"

	"github.com/JaimeStill/refine/pkg/formatting"
)

// Session backends.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

const (
	EnvSessionsBackend        = "REFINE_SESSIONS_BACKEND"
	EnvSessionsAutosaveDelay  = "REFINE_SESSIONS_AUTOSAVE_DELAY"
	EnvSessionsMaxArchiveSize = "REFINE_SESSIONS_MAX_ARCHIVE_SIZE"
	EnvDocumentsMaxSize       = "REFINE_DOCUMENTS_MAX_SIZE"
)

// SessionsConfig selects the session backend and tunes persistence.
type SessionsConfig struct {
	Backend        string `toml:"backend"`
	AutosaveDelay  string `toml:"autosave_delay"`
	MaxArchiveSize string `toml:"max_archive_size"`
	MemoryTTL      string `toml:"memory_ttl"`
}

// AutosaveDelayDuration returns AutosaveDelay as a time.Duration.
func (c *SessionsConfig) AutosaveDelayDuration() time.Duration {
	d, _ := time.ParseDuration(c.AutosaveDelay)
	return d
}

// MemoryTTLDuration returns MemoryTTL as a time.Duration. Zero keeps
// in-memory sessions until exit.
func (c *SessionsConfig) MemoryTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.MemoryTTL)
	return d
}

// MaxArchiveSizeBytes returns MaxArchiveSize in bytes.
func (c *SessionsConfig) MaxArchiveSizeBytes() int64 {
	size, err := formatting.ParseBytes(c.MaxArchiveSize)
	if err != nil {
		return 10 * 1024 * 1024
	}
	return size
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *SessionsConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *SessionsConfig) Merge(overlay *SessionsConfig) {
	if overlay.Backend != "" {
		c.Backend = overlay.Backend
	}
	if overlay.AutosaveDelay != "" {
		c.AutosaveDelay = overlay.AutosaveDelay
	}
	if overlay.MaxArchiveSize != "" {
		c.MaxArchiveSize = overlay.MaxArchiveSize
	}
	if overlay.MemoryTTL != "" {
		c.MemoryTTL = overlay.MemoryTTL
	}
}

func (c *SessionsConfig) loadDefaults() {
	if c.Backend == "" {
		c.Backend = BackendPostgres
	}
	if c.AutosaveDelay == "" {
		c.AutosaveDelay = "1s"
	}
	if c.MaxArchiveSize == "" {
		c.MaxArchiveSize = "10MB"
	}
	if c.MemoryTTL == "" {
		c.MemoryTTL = "0s"
	}
}

func (c *SessionsConfig) loadEnv() {
	if v := os.Getenv(EnvSessionsBackend); v != "" {
		c.Backend = v
	}
	if v := os.Getenv(EnvSessionsAutosaveDelay); v != "" {
		c.AutosaveDelay = v
	}
	if v := os.Getenv(EnvSessionsMaxArchiveSize); v != "" {
		c.MaxArchiveSize = v
	}
}

func (c *SessionsConfig) validate() error {
	switch c.Backend {
	case BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if d, err := time.ParseDuration(c.AutosaveDelay); err != nil || d < 0 {
		return fmt.Errorf("invalid autosave_delay %q", c.AutosaveDelay)
	}
	if _, err := time.ParseDuration(c.MemoryTTL); err != nil {
		return fmt.Errorf("invalid memory_ttl: %w", err)
	}
	if _, err := formatting.ParseBytes(c.MaxArchiveSize); err != nil {
		return fmt.Errorf("invalid max_archive_size: %w", err)
	}
	return nil
}

// DocumentsConfig limits document loading.
type DocumentsConfig struct {
	MaxSize string `toml:"max_size"`
}

// MaxSizeBytes returns MaxSize in bytes.
func (c *DocumentsConfig) MaxSizeBytes() int64 {
	size, err := formatting.ParseBytes(c.MaxSize)
	if err != nil {
		return 4 * 1024 * 1024
	}
	return size
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *DocumentsConfig) Finalize() error {
	if c.MaxSize == "" {
		c.MaxSize = "4MB"
	}
	if v := os.Getenv(EnvDocumentsMaxSize); v != "" {
		c.MaxSize = v
	}
	if _, err := formatting.ParseBytes(c.MaxSize); err != nil {
		return fmt.Errorf("invalid max_size: %w", err)
	}
	return nil
}

// Merge overwrites non-zero fields from overlay.
func (c *DocumentsConfig) Merge(overlay *DocumentsConfig) {
	if overlay.MaxSize != "" {
		c.MaxSize = overlay.MaxSize
	}
}
