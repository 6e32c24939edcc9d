// Package events mirrors pipeline activity onto NATS. A Bridge watches the
// workbench store and publishes a status snapshot whenever the pipeline
// slice changes and every newly recorded stage result.
package events

import (
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/JaimeStill/refine/pkg/lifecycle"
)

// Publisher sends a message to a subject. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Connect opens a NATS connection for cfg and drains it on shutdown.
func Connect(cfg *Config, lc *lifecycle.Coordinator, logger *slog.Logger) (*nats.Conn, error) {
	logger = logger.With("system", "nats")

	nc, err := nats.Connect(
		cfg.URL,
		nats.Name(cfg.Name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWaitDuration()),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		if err := nc.Drain(); err != nil {
			logger.Error("nats drain failed", "error", err)
			return
		}
		logger.Info("nats connection drained")
	})

	logger.Info("nats connected", "url", cfg.URL)
	return nc, nil
}
