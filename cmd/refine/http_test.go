package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/refine/internal/config"
	"github.com/JaimeStill/refine/internal/infrastructure"
	"github.com/JaimeStill/refine/internal/pipeline"
)

func TestRouter(t *testing.T) {
	t.Setenv(config.EnvSessionsBackend, config.BackendMemory)
	t.Setenv(config.EnvRefineLogLevel, "error")
	cfg, err := config.LoadFrom(filepath.Join(t.TempDir(), config.BaseConfigFile))
	require.NoError(t, err)

	infra, err := infrastructure.New(context.Background(), cfg)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	pipeline.NewMetrics(reg)

	srv := httptest.NewServer(buildRouter(infra, reg))
	t.Cleanup(srv.Close)

	get := func(path string) (int, string) {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	code, body := get("/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok"}`, body)

	code, _ = get("/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	require.NoError(t, infra.Start())
	infra.Lifecycle.WaitForStartup()
	code, _ = get("/readyz")
	assert.Equal(t, http.StatusOK, code)

	code, body = get("/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "refine_quick_iterations_total 0")

	require.NoError(t, infra.Lifecycle.Shutdown(cfg.ShutdownTimeoutDuration()))
}
