// Package delivery ships formatted access records to the remote collector.
//
// Delivery is fire-and-forget and at-most-once: Ship hands the record to its
// own goroutine and returns immediately. Failures are logged (throttled),
// counted and optionally journaled, and never reach the caller.
package delivery

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/eks-observability/access-relay/internal/core/domain"
	"github.com/eks-observability/access-relay/internal/core/ports"
)

const instrumentationName = "github.com/eks-observability/access-relay/internal/delivery"

// Defaults used when Config leaves a field empty.
const (
	DefaultURL                = "http://logstash:5044"
	DefaultTimeout            = 2 * time.Second
	DefaultFailureLogInterval = 10 * time.Second
)

// Config configures a Client.
type Config struct {
	URL     string
	Timeout time.Duration

	// FailureLogInterval is the minimum spacing between failure log lines.
	FailureLogInterval time.Duration

	Transport http.RoundTripper
	Journal   ports.FailureJournal
	Logger    *slog.Logger
	Meter     metric.Meter
	Tracer    trace.Tracer
}

// Client posts records to the collector.
type Client struct {
	url     string
	timeout time.Duration
	client  *http.Client
	journal ports.FailureJournal
	logger  *slog.Logger
	tracer  trace.Tracer

	failureLog *rate.Limiter
	suppressed atomic.Int64

	shipped metric.Int64Counter
	failed  metric.Int64Counter
	dropped metric.Int64Counter

	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup
}

var _ ports.Shipper = (*Client)(nil)

// New creates a Client.
func New(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.FailureLogInterval <= 0 {
		cfg.FailureLogInterval = DefaultFailureLogInterval
	}
	if cfg.Transport == nil {
		cfg.Transport = http.DefaultTransport
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Meter == nil {
		cfg.Meter = otel.Meter(instrumentationName)
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(instrumentationName)
	}

	return &Client{
		url:     cfg.URL,
		timeout: cfg.Timeout,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(cfg.Transport),
		},
		journal:    cfg.Journal,
		logger:     cfg.Logger,
		tracer:     cfg.Tracer,
		failureLog: rate.NewLimiter(rate.Every(cfg.FailureLogInterval), 1),
		shipped:    counter(cfg.Meter, "relay.records.shipped", "Records accepted by the collector"),
		failed:     counter(cfg.Meter, "relay.records.failed", "Records the collector did not accept"),
		dropped:    counter(cfg.Meter, "relay.records.dropped", "Records dropped because the client was closed"),
	}
}

// URL returns the collector endpoint.
func (c *Client) URL() string {
	return c.url
}

// Ship dispatches rec and returns without waiting for the collector.
func (c *Client) Ship(rec domain.LogRecord) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		c.dropped.Add(context.Background(), 1, metric.WithAttributes(kindAttr(rec)))
		return
	}
	c.inflight.Add(1)
	c.mu.RUnlock()

	go func() {
		defer c.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("collector delivery panicked", slog.String("panic", fmt.Sprint(r)))
			}
		}()
		c.deliver(rec)
	}()
}

// Close stops accepting records and waits for in-flight deliveries until
// ctx is done.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for in-flight deliveries: %w", ctx.Err())
	}
}

// deliver runs detached from any request context, bounded by the client timeout.
func (c *Client) deliver(rec domain.LogRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	ctx, span := c.tracer.Start(ctx, "collector.ship",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(kindAttr(rec), attribute.Int("relay.record.bytes", len(rec.Line))))
	defer span.End()

	if err := c.send(ctx, rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.failed.Add(ctx, 1, metric.WithAttributes(kindAttr(rec)))
		c.reportFailure(rec, err)
		return
	}

	c.shipped.Add(ctx, 1, metric.WithAttributes(kindAttr(rec)))
}

func (c *Client) send(ctx context.Context, rec domain.LogRecord) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(rec.Line))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("collector request failed: %w", err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused; the body carries no meaning.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("collector returned status %d", resp.StatusCode)
	}

	return nil
}

func (c *Client) reportFailure(rec domain.LogRecord, err error) {
	if c.failureLog.Allow() {
		c.logger.Warn("collector delivery failed",
			slog.String("error", err.Error()),
			slog.String("endpoint", c.url),
			slog.String("kind", string(rec.Kind)),
			slog.String("request_id", rec.RequestID),
			slog.Int64("suppressed", c.suppressed.Swap(0)))
	} else {
		c.suppressed.Add(1)
	}

	if c.journal == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	failure := &domain.DeliveryFailure{
		OccurredAt: time.Now(),
		Endpoint:   c.url,
		Kind:       rec.Kind,
		RequestID:  rec.RequestID,
		Error:      err.Error(),
		Bytes:      len(rec.Line),
	}
	if jerr := c.journal.Append(ctx, failure); jerr != nil {
		c.logger.Debug("failed to journal delivery failure", slog.String("error", jerr.Error()))
	}
}

func kindAttr(rec domain.LogRecord) attribute.KeyValue {
	return attribute.String("relay.record.kind", string(rec.Kind))
}

func counter(m metric.Meter, name, desc string) metric.Int64Counter {
	c, err := m.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		otel.Handle(err)
	}
	if c == nil {
		return noop.Int64Counter{}
	}
	return c
}
