package events

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds the NATS connection used to publish pipeline events.
// An empty URL disables publishing.
type Config struct {
	URL           string `toml:"url"`
	Prefix        string `toml:"prefix"`
	Name          string `toml:"name"`
	MaxReconnects int    `toml:"max_reconnects"`
	ReconnectWait string `toml:"reconnect_wait"`
}

// Env names the environment variables that override each Config field.
type Env struct {
	URL    string
	Prefix string
}

// Enabled reports whether a NATS URL is configured.
func (c *Config) Enabled() bool {
	return c.URL != ""
}

// ReconnectWaitDuration returns ReconnectWait as a time.Duration.
func (c *Config) ReconnectWaitDuration() time.Duration {
	d, _ := time.ParseDuration(c.ReconnectWait)
	return d
}

// Finalize applies defaults, environment overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites fields that are set in overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.URL != "" {
		c.URL = overlay.URL
	}
	if overlay.Prefix != "" {
		c.Prefix = overlay.Prefix
	}
	if overlay.Name != "" {
		c.Name = overlay.Name
	}
	if overlay.MaxReconnects != 0 {
		c.MaxReconnects = overlay.MaxReconnects
	}
	if overlay.ReconnectWait != "" {
		c.ReconnectWait = overlay.ReconnectWait
	}
}

func (c *Config) loadDefaults() {
	if c.Prefix == "" {
		c.Prefix = "refine"
	}
	if c.Name == "" {
		c.Name = "refine"
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = 5
	}
	if c.ReconnectWait == "" {
		c.ReconnectWait = "2s"
	}
}

func (c *Config) loadEnv(env *Env) {
	if v := os.Getenv(env.URL); env.URL != "" && v != "" {
		c.URL = v
	}
	if v := os.Getenv(env.Prefix); env.Prefix != "" && v != "" {
		c.Prefix = v
	}
}

func (c *Config) validate() error {
	if strings.ContainsAny(c.Prefix, " *>") || strings.HasSuffix(c.Prefix, ".") {
		return fmt.Errorf("invalid subject prefix %q", c.Prefix)
	}
	if _, err := time.ParseDuration(c.ReconnectWait); err != nil {
		return fmt.Errorf("invalid reconnect_wait: %w", err)
	}
	return nil
}
