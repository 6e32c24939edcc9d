package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/refine/internal/config"
)

const baseConfig = `
shutdown_timeout = "20s"
log_level = "debug"

[server]
port = 9100

[sessions]
backend = "postgres"
autosave_delay = "500ms"
max_archive_size = "2MB"

[documents]
max_size = "1MB"

[database]
host = "localhost"
name = "refine"
user = "refine"
password = "refine"

[storage]
container_name = "archives"
connection_string = "UseDevelopmentStorage=true"

[pagination]
default_page_size = 10
max_page_size = 50

[agent]
base_url = "http://localhost:11434/v1"
model = "llama3.1:8b"

[events]
url = "nats://localhost:4222"
prefix = "workbench"

[prompts]
system = "Be brief."

[prompts.sources.house.instructions]
transform = "Rewrite in house style."
`

const overlayConfig = `
[database]
host = "prodhost"

[agent]
model = "gpt-4o"
`

const memoryConfig = `
[sessions]
backend = "memory"
`

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFrom(t *testing.T) {
	path := writeConfig(t, t.TempDir(), config.BaseConfigFile, baseConfig)

	cfg, err := config.LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, 20*time.Second, cfg.ShutdownTimeoutDuration())
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.True(t, cfg.Server.Enabled())
	assert.Equal(t, "127.0.0.1:9100", cfg.Server.Addr())
	assert.Equal(t, 500*time.Millisecond, cfg.Sessions.AutosaveDelayDuration())
	assert.Equal(t, int64(2*1024*1024), cfg.Sessions.MaxArchiveSizeBytes())
	assert.Equal(t, int64(1024*1024), cfg.Documents.MaxSizeBytes())
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "archives", cfg.Storage.ContainerName)
	assert.True(t, cfg.ArchiveEnabled())
	assert.Equal(t, 10, cfg.Pagination.DefaultPageSize)
	assert.Equal(t, "llama3.1:8b", cfg.Agent.Model)
	assert.True(t, cfg.Events.Enabled())
	assert.Equal(t, "workbench", cfg.Events.Prefix)
	assert.Equal(t, "Be brief.", cfg.Prompts.System)
	assert.Equal(t, "Rewrite in house style.", cfg.Prompts.Sources["house"].Instructions["transform"])
}

func TestLoadWithOverlay(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, config.BaseConfigFile, baseConfig)
	writeConfig(t, dir, "config.staging.toml", overlayConfig)
	t.Setenv(config.EnvRefineEnv, "staging")

	cfg, err := config.LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Env())
	assert.Equal(t, "prodhost", cfg.Database.Host)
	assert.Equal(t, "refine", cfg.Database.Name, "base value kept")
	assert.Equal(t, "gpt-4o", cfg.Agent.Model)
	assert.Equal(t, "http://localhost:11434/v1", cfg.Agent.BaseURL)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, t.TempDir(), config.BaseConfigFile, baseConfig)

	t.Setenv("REFINE_VERSION", "2.0.0")
	t.Setenv("REFINE_SERVER_PORT", "3000")
	t.Setenv("REFINE_DB_HOST", "db.internal")
	t.Setenv("REFINE_AGENT_MODEL", "mistral")
	t.Setenv("REFINE_NATS_PREFIX", "refine.dev")
	t.Setenv("REFINE_SESSIONS_AUTOSAVE_DELAY", "2s")
	t.Setenv("REFINE_PAGINATION_DEFAULT_PAGE_SIZE", "5")

	cfg, err := config.LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "2.0.0", cfg.Version)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "mistral", cfg.Agent.Model)
	assert.Equal(t, "refine.dev", cfg.Events.Prefix)
	assert.Equal(t, 2*time.Second, cfg.Sessions.AutosaveDelayDuration())
	assert.Equal(t, 5, cfg.Pagination.DefaultPageSize)
}

func TestLoadMemoryBackendWithoutFile(t *testing.T) {
	t.Setenv(config.EnvSessionsBackend, config.BackendMemory)

	cfg, err := config.LoadFrom(filepath.Join(t.TempDir(), config.BaseConfigFile))
	require.NoError(t, err)

	assert.Equal(t, config.BackendMemory, cfg.Sessions.Backend)
	assert.False(t, cfg.Server.Enabled())
	assert.False(t, cfg.ArchiveEnabled())
	assert.False(t, cfg.Events.Enabled())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, time.Second, cfg.Sessions.AutosaveDelayDuration())
	assert.Equal(t, int64(4*1024*1024), cfg.Documents.MaxSizeBytes())
}

func TestLoadPostgresRequiresDatabase(t *testing.T) {
	_, err := config.LoadFrom(filepath.Join(t.TempDir(), config.BaseConfigFile))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database")

	t.Setenv("REFINE_DB_NAME", "refine")
	t.Setenv("REFINE_DB_USER", "refine")
	_, err = config.LoadFrom(filepath.Join(t.TempDir(), config.BaseConfigFile))
	assert.NoError(t, err)
}

func TestLoadStorageFromEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, config.BaseConfigFile, memoryConfig)
	t.Setenv("REFINE_STORAGE_CONNECTION_STRING", "UseDevelopmentStorage=true")

	cfg, err := config.LoadFrom(path)
	require.NoError(t, err)
	assert.True(t, cfg.ArchiveEnabled())
	assert.Equal(t, "sessions", cfg.Storage.ContainerName)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", `shutdown_timeout = `},
		{"shutdown timeout", memoryConfig + "\nshutdown_timeout = \"soon\"\n"},
		{"log level", "log_level = \"chatty\"\n" + memoryConfig},
		{"backend", "[sessions]\nbackend = \"sqlite\"\n"},
		{"archive size", "[sessions]\nbackend = \"memory\"\nmax_archive_size = \"lots\"\n"},
		{"server port", memoryConfig + "\n[server]\nport = 70000\n"},
		{"events prefix", memoryConfig + "\n[events]\nprefix = \"a.*\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), config.BaseConfigFile, tt.content)
			_, err := config.LoadFrom(path)
			assert.Error(t, err)
		})
	}
}

func TestOverlayIgnoresPathSeparators(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, config.BaseConfigFile, memoryConfig)
	t.Setenv(config.EnvRefineEnv, "../elsewhere")

	cfg, err := config.LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, config.BackendMemory, cfg.Sessions.Backend)
}
