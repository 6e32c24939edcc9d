package executor

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config describes the OpenAI-compatible endpoint stages are executed against.
type Config struct {
	BaseURL          string  `toml:"base_url"`
	Model            string  `toml:"model"`
	Token            string  `toml:"token"`
	MaxTokens        int     `toml:"max_tokens"`
	Temperature      float32 `toml:"temperature"`
	Timeout          string  `toml:"timeout"`
	ProgressInterval int     `toml:"progress_interval"`
}

// Env names the environment variables that override each Config field.
type Env struct {
	BaseURL   string
	Model     string
	Token     string
	MaxTokens string
	Timeout   string
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *Config) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
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
	if overlay.BaseURL != "" {
		c.BaseURL = overlay.BaseURL
	}
	if overlay.Model != "" {
		c.Model = overlay.Model
	}
	if overlay.Token != "" {
		c.Token = overlay.Token
	}
	if overlay.MaxTokens != 0 {
		c.MaxTokens = overlay.MaxTokens
	}
	if overlay.Temperature != 0 {
		c.Temperature = overlay.Temperature
	}
	if overlay.Timeout != "" {
		c.Timeout = overlay.Timeout
	}
	if overlay.ProgressInterval != 0 {
		c.ProgressInterval = overlay.ProgressInterval
	}
}

func (c *Config) loadDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.Timeout == "" {
		c.Timeout = "5m"
	}
	if c.ProgressInterval == 0 {
		c.ProgressInterval = 16
	}
}

func (c *Config) loadEnv(env *Env) {
	if v := os.Getenv(env.BaseURL); env.BaseURL != "" && v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv(env.Model); env.Model != "" && v != "" {
		c.Model = v
	}
	if v := os.Getenv(env.Token); env.Token != "" && v != "" {
		c.Token = v
	}
	if v := os.Getenv(env.MaxTokens); env.MaxTokens != "" && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxTokens = n
		}
	}
	if v := os.Getenv(env.Timeout); env.Timeout != "" && v != "" {
		c.Timeout = v
	}
}

func (c *Config) validate() error {
	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must not be negative")
	}
	if c.ProgressInterval < 1 {
		return fmt.Errorf("progress_interval must be positive")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	return nil
}
