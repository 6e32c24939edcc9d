// Package infrastructure provides core service initialization for application startup.
// It assembles the dependencies (logging, scheduling, persistence, messaging)
// that the workbench and pipeline require.
package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/nats-io/nats.go"

	"github.com/JaimeStill/refine/internal/config"
	"github.com/JaimeStill/refine/internal/events"
	"github.com/JaimeStill/refine/internal/sessions"
	"github.com/JaimeStill/refine/pkg/database"
	"github.com/JaimeStill/refine/pkg/lifecycle"
	"github.com/JaimeStill/refine/pkg/reactive"
	"github.com/JaimeStill/refine/pkg/storage"
)

// Infrastructure holds the core systems shared by every command.
// Database, Storage, Archiver, and Events are nil when their
// configuration leaves them disabled.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Loop      *reactive.Loop
	Database  database.System
	Storage   storage.System
	Sessions  sessions.System
	Archiver  *sessions.Archiver
	Events    *nats.Conn
}

// New creates an Infrastructure from the application configuration. The
// lifecycle context derives from ctx, so cancelling ctx begins shutdown.
// It initializes all systems but does not start them; call Start separately.
func New(ctx context.Context, cfg *config.Config) (*Infrastructure, error) {
	lc := lifecycle.NewWithContext(ctx)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Level(),
	}))

	infra := &Infrastructure{
		Lifecycle: lc,
		Logger:    logger,
		Loop:      reactive.NewLoop(logger),
	}

	switch cfg.Sessions.Backend {
	case config.BackendPostgres:
		db, err := database.New(&cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("database init failed: %w", err)
		}
		infra.Database = db
		infra.Sessions = sessions.New(db.Connection(), logger, cfg.Pagination)
	default:
		infra.Sessions = sessions.NewMemory(cfg.Sessions.MemoryTTLDuration(), logger, cfg.Pagination)
	}

	if cfg.ArchiveEnabled() {
		store, err := storage.New(&cfg.Storage, logger)
		if err != nil {
			return nil, fmt.Errorf("storage init failed: %w", err)
		}
		infra.Storage = store
		infra.Archiver = sessions.NewArchiver(store, cfg.Sessions.MaxArchiveSizeBytes(), logger)
	}

	if cfg.Events.Enabled() {
		nc, err := events.Connect(&cfg.Events, lc, logger)
		if err != nil {
			return nil, fmt.Errorf("events init failed: %w", err)
		}
		infra.Events = nc
	}

	return infra, nil
}

// Start registers all infrastructure systems with the lifecycle coordinator.
func (i *Infrastructure) Start() error {
	if err := i.Loop.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("loop start failed: %w", err)
	}
	if i.Database != nil {
		if err := i.Database.Start(i.Lifecycle); err != nil {
			return fmt.Errorf("database start failed: %w", err)
		}
	}
	if i.Storage != nil {
		if err := i.Storage.Start(i.Lifecycle); err != nil {
			return fmt.Errorf("storage start failed: %w", err)
		}
	}
	return nil
}

// Ready reports whether every started system finished its startup hooks.
func (i *Infrastructure) Ready() bool {
	if !i.Lifecycle.Ready() {
		return false
	}
	if i.Database != nil && !i.Database.Ready() {
		return false
	}
	return true
}
