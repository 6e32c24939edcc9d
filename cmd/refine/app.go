package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/JaimeStill/refine/internal/config"
	"github.com/JaimeStill/refine/internal/documents"
	"github.com/JaimeStill/refine/internal/events"
	"github.com/JaimeStill/refine/internal/executor"
	"github.com/JaimeStill/refine/internal/infrastructure"
	"github.com/JaimeStill/refine/internal/pipeline"
	"github.com/JaimeStill/refine/internal/prompts"
	"github.com/JaimeStill/refine/internal/workbench"
)

// globalOptions carries the persistent flags. Flags are applied as
// REFINE_* environment overrides so they take precedence over every file.
type globalOptions struct {
	configPath  string
	logLevel    string
	memory      bool
	metricsAddr string
}

func (o *globalOptions) load() (*config.Config, error) {
	if o.logLevel != "" {
		os.Setenv(config.EnvRefineLogLevel, o.logLevel)
	}
	if o.memory {
		os.Setenv(config.EnvSessionsBackend, config.BackendMemory)
	}
	if o.metricsAddr != "" {
		host, port, err := net.SplitHostPort(o.metricsAddr)
		if err != nil {
			return nil, fmt.Errorf("invalid --metrics-addr: %w", err)
		}
		if _, err := strconv.Atoi(port); err != nil {
			return nil, fmt.Errorf("invalid --metrics-addr port %q", port)
		}
		if host != "" {
			os.Setenv(config.EnvServerHost, host)
		}
		os.Setenv(config.EnvServerPort, port)
	}

	path := o.configPath
	if path == "" {
		path = config.BaseConfigFile
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return config.LoadFrom(path)
}

// App wires the workbench, pipeline, and their adapters for one command.
type App struct {
	cfg          *config.Config
	infra        *infrastructure.Infrastructure
	store        *workbench.Store
	manager      *workbench.Manager
	saver        *workbench.Saver
	orchestrator *pipeline.Orchestrator
	loader       *documents.Loader
	bridge       *events.Bridge
	http         *httpServer
}

// NewApp builds every component but starts nothing.
func NewApp(cfg *config.Config) (*App, error) {
	// The lifecycle outlives interrupts so an aborted run still saves and drains.
	infra, err := infrastructure.New(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	logger := infra.Logger

	registry, err := prompts.FromConfig(&cfg.Prompts, logger)
	if err != nil {
		return nil, fmt.Errorf("prompt registry: %w", err)
	}

	store := workbench.NewStore(infra.Loop, logger)
	saver := workbench.NewSaver(store, infra.Sessions, cfg.Sessions.AutosaveDelayDuration(), logger)

	opts := []workbench.Option{workbench.WithFlusher(saver)}
	if infra.Archiver != nil {
		opts = append(opts, workbench.WithArchiver(infra.Archiver))
	}
	manager := workbench.NewManager(store, infra.Sessions, logger, opts...)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	orchestrator := pipeline.New(
		store,
		manager,
		executor.New(&cfg.Agent, logger),
		pipeline.DependenciesFrom(registry),
		logger,
		pipeline.WithMetrics(pipeline.NewMetrics(reg)),
	)

	app := &App{
		cfg:          cfg,
		infra:        infra,
		store:        store,
		manager:      manager,
		saver:        saver,
		orchestrator: orchestrator,
		loader:       documents.NewLoader(cfg.Documents.MaxSizeBytes()),
	}

	if infra.Events != nil {
		app.bridge = events.NewBridge(store, infra.Events, cfg.Events.Prefix, logger)
	}
	if cfg.Server.Enabled() {
		app.http = newHTTPServer(&cfg.Server, buildRouter(infra, reg), logger)
	}

	logger.Debug(
		"app initialized",
		"version", cfg.Version,
		"env", cfg.Env(),
		"sessions", cfg.Sessions.Backend,
		"archive", cfg.ArchiveEnabled(),
		"events", cfg.Events.Enabled(),
	)

	return app, nil
}

// Start starts infrastructure and the store listeners, then waits for
// startup hooks. A database that failed its startup ping is an error.
func (a *App) Start() error {
	if err := a.infra.Start(); err != nil {
		return err
	}
	if err := a.saver.Start(a.infra.Lifecycle); err != nil {
		return err
	}
	if a.bridge != nil {
		if err := a.bridge.Start(a.infra.Lifecycle); err != nil {
			return err
		}
	}
	if a.http != nil {
		if err := a.http.Start(a.infra.Lifecycle); err != nil {
			return err
		}
	}

	a.infra.Lifecycle.WaitForStartup()
	if !a.infra.Ready() {
		return errors.New("infrastructure not ready")
	}
	return nil
}

// Close delivers pending notifications, saves the active session, and shuts
// the lifecycle down.
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeoutDuration())
	defer cancel()

	if err := a.infra.Loop.Sync(ctx); err != nil {
		a.infra.Logger.Warn("notification sync failed", "error", err)
	}
	if err := a.saver.Flush(ctx); err != nil {
		a.infra.Logger.Warn("final save failed", "error", err)
	}
	return a.infra.Lifecycle.Shutdown(a.cfg.ShutdownTimeoutDuration())
}

// open loads configuration, builds the app, and starts it.
func open(opts *globalOptions) (*App, error) {
	cfg, err := opts.load()
	if err != nil {
		return nil, err
	}
	app, err := NewApp(cfg)
	if err != nil {
		return nil, err
	}
	if err := app.Start(); err != nil {
		_ = app.infra.Lifecycle.Shutdown(time.Second)
		return nil, err
	}
	return app, nil
}

// selectDocument loads path and makes it the workbench subject.
func (a *App) selectDocument(ctx context.Context, path string) (*documents.Document, error) {
	doc, err := a.loader.Load(path)
	if err != nil {
		return nil, err
	}
	if err := a.manager.SelectDocument(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}
