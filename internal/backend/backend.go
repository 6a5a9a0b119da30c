// Package backend opens the configured ledger store and, when a broker is
// configured, the client that publishes ledger events.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"ledger/internal/amqp"
	"ledger/internal/config"
	"ledger/internal/services"
	"ledger/internal/storage"
)

// Type names a store implementation.
type Type string

const (
	SQLite   Type = "sqlite"
	Postgres Type = "postgres"
	Memory   Type = "memory"
)

// Types lists the registered store implementations in a stable order.
func Types() []Type {
	out := make([]Type, 0, len(stores))
	for t := range stores {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// Config selects a store and, optionally, an event broker.
type Config struct {
	Type        Type
	SQLitePath  string
	DatabaseURL string
	// SeedDir is read by the memory store at startup; empty means "data".
	SeedDir string
	AMQP    AMQPConfig
}

// AMQPConfig is empty when events are disabled.
type AMQPConfig struct {
	URL      string
	Exchange string
	Queue    string
}

// FromConfig picks the backend settings out of the application config.
func FromConfig(c *config.Config) (Config, error) {
	if c == nil {
		return Config{}, errors.New("backend: nil application config")
	}
	bc := Config{
		Type:        Type(c.DataBackend),
		SQLitePath:  c.SQLiteDBPath,
		DatabaseURL: c.DatabaseURL,
		SeedDir:     c.MemoryDataDir,
		AMQP: AMQPConfig{
			URL:      c.AMQPURL,
			Exchange: c.AMQPExchange,
			Queue:    c.AMQPQueue,
		},
	}
	return bc, bc.Validate()
}

// Validate checks that the selected store has what it needs to open.
func (c Config) Validate() error {
	s, ok := stores[c.Type]
	if !ok {
		names := make([]string, 0, len(stores))
		for _, t := range Types() {
			names = append(names, string(t))
		}
		return fmt.Errorf("backend: unknown type %q (want one of %s)", c.Type, strings.Join(names, ", "))
	}
	if s.check != nil {
		if err := s.check(c); err != nil {
			return fmt.Errorf("backend %s: %w", c.Type, err)
		}
	}
	if c.AMQP.URL != "" && (c.AMQP.Exchange == "" || c.AMQP.Queue == "") {
		return errors.New("backend: AMQP exchange and queue are required when AMQP_URL is set")
	}
	return nil
}

// Backend is an opened store plus the optional event client.
type Backend struct {
	Store storage.Store
	// Events is nil when no broker is configured or reachable.
	Events *amqp.Client
}

// Open validates cfg, opens its store and dials the broker. A broker that
// cannot be reached disables events instead of failing startup.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	store, err := stores[cfg.Type].open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Type, err)
	}

	b := &Backend{Store: store}
	if cfg.AMQP.URL != "" {
		client, err := amqp.NewClient(cfg.AMQP.URL, cfg.AMQP.Exchange, cfg.AMQP.Queue)
		if err != nil {
			logger.Warn("AMQP unavailable, ledger events disabled", "error", err)
		} else {
			logger.Info("Publishing ledger events", "exchange", cfg.AMQP.Exchange, "queue", cfg.AMQP.Queue)
			b.Events = client
		}
	}
	return b, nil
}

// Close releases the event client and the store.
func (b *Backend) Close() error {
	var errs []error
	if b.Events != nil {
		errs = append(errs, b.Events.Close())
	}
	errs = append(errs, b.Store.Close())
	return errors.Join(errs...)
}

// Ready pings the store when it supports it. In-memory stores are always ready.
func (b *Backend) Ready(ctx context.Context) error {
	if p, ok := b.Store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Publisher returns the event client, or a nil interface when events are off.
func (b *Backend) Publisher() services.EventPublisher {
	if b.Events == nil {
		return nil
	}
	return b.Events
}
