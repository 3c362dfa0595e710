package runtime

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/eks-observability/access-relay/internal/core/ports"
	"github.com/eks-observability/access-relay/internal/pkg/config"
	"github.com/eks-observability/access-relay/internal/server"
	"github.com/eks-observability/access-relay/internal/storage/memory"
	"github.com/eks-observability/access-relay/internal/storage/sqlite"
)

// Option is a functional option for configuring a Relay.
type Option func(*Relay) error

// WithConfig uses an already loaded configuration.
func WithConfig(cfg *config.Config) Option {
	return func(r *Relay) error {
		r.cfg = cfg
		return nil
	}
}

// WithConfigFile loads configuration from path plus RELAY_ environment overrides.
func WithConfigFile(path string) Option {
	return func(r *Relay) error {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		r.cfg = cfg
		return nil
	}
}

// WithSQLiteJournal records delivery failures in a SQLite database.
func WithSQLiteJournal(path string) Option {
	return func(r *Relay) error {
		j, err := sqlite.New(path)
		if err != nil {
			return fmt.Errorf("create sqlite journal: %w", err)
		}
		r.journal = j
		return nil
	}
}

// WithMemoryJournal keeps the most recent delivery failures in memory.
func WithMemoryJournal(capacity int) Option {
	return func(r *Relay) error {
		r.journal = memory.New(capacity)
		return nil
	}
}

// WithJournal sets a custom failure journal.
func WithJournal(j ports.FailureJournal) Option {
	return func(r *Relay) error {
		r.journal = j
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) error {
		r.logger = logger
		return nil
	}
}

// WithIdentityResolver sets how the host's authenticated visitor is found.
func WithIdentityResolver(fn server.IdentityResolver) Option {
	return func(r *Relay) error {
		r.identify = fn
		return nil
	}
}

// WithCollectorTransport overrides the HTTP transport used to reach the collector.
func WithCollectorTransport(rt http.RoundTripper) Option {
	return func(r *Relay) error {
		r.transport = rt
		return nil
	}
}
