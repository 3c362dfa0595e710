// Package runtime assembles the access relay: configuration, the failure
// journal, the collector client, the classification pipeline and the host
// HTTP server, with lifecycle management for all of them.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"

	"github.com/eks-observability/access-relay/internal/classify"
	"github.com/eks-observability/access-relay/internal/core/domain"
	"github.com/eks-observability/access-relay/internal/core/ports"
	"github.com/eks-observability/access-relay/internal/delivery"
	"github.com/eks-observability/access-relay/internal/pipeline"
	"github.com/eks-observability/access-relay/internal/pkg/config"
	"github.com/eks-observability/access-relay/internal/server"
	"github.com/eks-observability/access-relay/internal/storage/memory"
	"github.com/eks-observability/access-relay/internal/storage/sqlite"
	"github.com/eks-observability/access-relay/internal/telemetry"
)

const instrumentationName = "github.com/eks-observability/access-relay"

// FailuresPath lists recent delivery failures as JSON.
const FailuresPath = "/_relay/failures"

// MetricsPath serves Prometheus metrics when telemetry.metrics is enabled.
const MetricsPath = "/metrics"

// Relay observes the host server's requests and ships access records to
// the collector. Hosts register their routes on Router before Start.
type Relay struct {
	// Dependencies (injected via options)
	cfg       *config.Config
	journal   ports.FailureJournal
	logger    *slog.Logger
	identify  server.IdentityResolver
	transport http.RoundTripper

	// Assembled components
	client   *delivery.Client
	pipeline *pipeline.Pipeline
	observer *server.Observer
	server   *server.Server
	metrics  *telemetry.Metrics

	shutdowns []telemetry.ShutdownFunc

	mu      sync.Mutex
	started bool
}

// New creates a Relay with the given options. Without WithConfig or
// WithConfigFile it loads config.yaml and the environment.
func New(opts ...Option) (*Relay, error) {
	r := &Relay{
		logger: slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if r.cfg == nil {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		r.cfg = cfg
	}

	if r.journal == nil {
		if r.cfg.Journal.Path != "" {
			j, err := sqlite.New(r.cfg.Journal.Path)
			if err != nil {
				return nil, fmt.Errorf("create sqlite journal: %w", err)
			}
			r.journal = j
		} else {
			r.logger.Info("no journal path configured, keeping delivery failures in memory")
			r.journal = memory.New(0)
		}
	}

	if err := r.initTelemetry(); err != nil {
		r.closeResources(context.Background())
		return nil, err
	}

	r.client = delivery.New(delivery.Config{
		URL:                r.cfg.Collector.URL,
		Timeout:            r.cfg.Collector.Timeout,
		FailureLogInterval: r.cfg.Collector.FailureLogInterval,
		Transport:          r.transport,
		Journal:            r.journal,
		Logger:             r.logger,
		Meter:              otel.Meter(instrumentationName),
		Tracer:             otel.Tracer(instrumentationName),
	})

	r.pipeline = pipeline.New(r.client,
		pipeline.WithContentClassifier(classify.NewContentClassifier(
			classify.WithExtensionTable(ExtensionTable(r.cfg.Classifier)),
		)),
		pipeline.WithLogger(r.logger),
	)
	r.observer = server.NewObserver(r.pipeline, r.identify)
	r.observer.Exclude(FailuresPath, MetricsPath)
	r.server = server.New(r.cfg.Server.Port, r.logger, r.observer)

	r.server.Router.Get(FailuresPath, r.handleFailures)
	if r.metrics != nil {
		r.server.Router.Handle(MetricsPath, r.metrics.Handler())
	}

	r.logger.Info("access relay configured",
		slog.String("collector", r.client.URL()),
		slog.Int("port", r.cfg.Server.Port))

	return r, nil
}

// ExtensionTable merges configured extensions over the built-in table.
func ExtensionTable(cfg config.ClassifierConfig) *classify.ExtensionTable {
	extra := make(map[domain.ContentCategory][]string, len(cfg.Extensions))
	for category, exts := range cfg.Extensions {
		extra[domain.ContentCategory(category)] = exts
	}
	return classify.NewExtensionTable(classify.DefaultExtensions, extra)
}

func (r *Relay) initTelemetry() error {
	name := r.cfg.Telemetry.ServiceName
	if r.cfg.Telemetry.Tracing {
		shutdown, err := telemetry.InitTracer(name, r.logger)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		r.shutdowns = append(r.shutdowns, shutdown)
	}
	if r.cfg.Telemetry.Metrics {
		m, err := telemetry.InitMetrics(name, r.logger)
		if err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
		r.metrics = m
		r.shutdowns = append(r.shutdowns, m.Shutdown())
	}
	return nil
}

// Router is the host's route table. Routes registered here are observed.
func (r *Relay) Router() chi.Router {
	return r.server.Router
}

// Handler returns the complete HTTP handler, for embedding or tests.
func (r *Relay) Handler() http.Handler {
	return r.server.Router
}

// Observer returns the request observer, used by handlers that emit events.
func (r *Relay) Observer() *server.Observer {
	return r.observer
}

// Pipeline returns the access pipeline.
func (r *Relay) Pipeline() *pipeline.Pipeline {
	return r.pipeline
}

// Journal returns the delivery-failure journal.
func (r *Relay) Journal() ports.FailureJournal {
	return r.journal
}

// Config returns the effective configuration.
func (r *Relay) Config() *config.Config {
	return r.cfg
}

// Start serves the host in the background.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return fmt.Errorf("relay already started")
	}
	r.started = true

	go func() {
		if err := r.server.Start(); err != nil {
			r.logger.Error("server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Shutdown stops the server, then waits for in-flight deliveries before
// closing the journal and telemetry providers.
func (r *Relay) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Info("shutting down access relay")

	if err := r.server.Shutdown(ctx); err != nil {
		r.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
		r.closeResources(ctx)
		return err
	}

	r.closeResources(ctx)

	r.logger.Info("access relay shutdown complete")
	return nil
}

func (r *Relay) closeResources(ctx context.Context) {
	if r.client != nil {
		if err := r.client.Close(ctx); err != nil {
			r.logger.Warn("collector deliveries still in flight", slog.String("error", err.Error()))
		}
	}

	if r.journal != nil {
		if err := r.journal.Close(); err != nil {
			r.logger.Error("failed to close journal", slog.String("error", err.Error()))
		}
	}

	for _, shutdown := range r.shutdowns {
		if err := shutdown(ctx); err != nil {
			r.logger.Error("failed to shutdown telemetry", slog.String("error", err.Error()))
		}
	}
}

func (r *Relay) handleFailures(w http.ResponseWriter, req *http.Request) {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	failures, err := r.journal.Recent(req.Context(), limit)
	if err != nil {
		r.logger.Error("failed to read journal", slog.String("error", err.Error()))
		http.Error(w, "journal unavailable", http.StatusInternalServerError)
		return
	}
	if failures == nil {
		failures = []domain.DeliveryFailure{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"collector": r.client.URL(),
		"failures":  failures,
	}); err != nil {
		r.logger.Error("failed to encode failures", slog.String("error", err.Error()))
	}
}
