package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/eks-observability/access-relay/internal/classify"
	"github.com/eks-observability/access-relay/internal/core/domain"
	"github.com/eks-observability/access-relay/internal/core/ports"
	"github.com/eks-observability/access-relay/internal/record"
)

// ContentClassifier detects a file extension and content category.
type ContentClassifier interface {
	Classify(uri string) (string, domain.ContentCategory)
}

// PageClassifier assigns a page category to non-file requests.
type PageClassifier interface {
	Classify(uri string, rs domain.RoutingState) domain.PageCategory
}

// Formatter renders records.
type Formatter interface {
	EstimateSize(cr domain.ClassificationResult, rs domain.RoutingState) int
	Format(rc *domain.RequestContext, cr domain.ClassificationResult) domain.LogRecord
	ContentView(rc *domain.RequestContext) domain.LogRecord
	Login(rc *domain.RequestContext) domain.LogRecord
	Logout(rc *domain.RequestContext) domain.LogRecord
	Register(rc *domain.RequestContext) domain.LogRecord
	Subscribe(rc *domain.RequestContext, sub domain.Subscription, path string) domain.LogRecord
}

// Pipeline exposes one entry point per observed event kind.
type Pipeline struct {
	content   ContentClassifier
	pages     PageClassifier
	formatter Formatter
	shipper   ports.Shipper
	logger    *slog.Logger
	skipped   metric.Int64Counter
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithContentClassifier(c ContentClassifier) Option {
	return func(p *Pipeline) { p.content = c }
}

func WithPageClassifier(c PageClassifier) Option {
	return func(p *Pipeline) { p.pages = c }
}

func WithFormatter(f Formatter) Option {
	return func(p *Pipeline) { p.formatter = f }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a Pipeline that ships through shipper.
func New(shipper ports.Shipper, opts ...Option) *Pipeline {
	p := &Pipeline{
		content:   classify.NewContentClassifier(),
		pages:     classify.NewPageClassifier(),
		formatter: record.NewFormatter(),
		shipper:   shipper,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	skipped, err := otel.Meter("github.com/eks-observability/access-relay/internal/pipeline").
		Int64Counter("relay.records.skipped", metric.WithDescription("Page views suppressed by the skip policy"))
	if err != nil {
		otel.Handle(err)
	}
	p.skipped = skipped

	return p
}

// Classify derives the classification for rc, including the synthetic size.
func (p *Pipeline) Classify(rc *domain.RequestContext) domain.ClassificationResult {
	ext, category := p.content.Classify(rc.URI)
	cr := domain.ClassificationResult{
		FileExtension:   ext,
		ContentCategory: category,
	}
	if ext == "" {
		cr.ContentCategory = domain.ContentWebpage
		cr.PageCategory = p.pages.Classify(rc.URI, rc.Routing)
	}
	cr.EstimatedSize = p.formatter.EstimateSize(cr, rc.Routing)
	return cr
}

// PageServed logs a served page unless the skip policy suppresses it.
// It reports whether a record was dispatched.
func (p *Pipeline) PageServed(rc *domain.RequestContext) bool {
	return p.guard("page_served", func() bool {
		if p.skip(rc) {
			return false
		}
		cr := p.Classify(rc)
		p.shipper.Ship(p.formatter.Format(rc, cr))
		return true
	})
}

// ContentViewed logs the content item behind single and page routes.
func (p *Pipeline) ContentViewed(rc *domain.RequestContext) bool {
	return p.guard("content_viewed", func() bool {
		if !rc.Routing.IsSingle && !rc.Routing.IsPage {
			return false
		}
		if p.skip(rc) {
			return false
		}
		p.shipper.Ship(p.formatter.ContentView(rc))
		return true
	})
}

// Login logs a successful login for rc.Identity.
func (p *Pipeline) Login(rc *domain.RequestContext) bool {
	return p.guard("login", func() bool {
		p.shipper.Ship(p.formatter.Login(rc))
		return true
	})
}

// Logout logs a logout. Anonymous requests produce no record.
func (p *Pipeline) Logout(rc *domain.RequestContext) bool {
	return p.guard("logout", func() bool {
		if rc.Identity == nil {
			return false
		}
		p.shipper.Ship(p.formatter.Logout(rc))
		return true
	})
}

// Registered logs a new account; rc.Identity is the new account.
func (p *Pipeline) Registered(rc *domain.RequestContext) bool {
	return p.guard("registered", func() bool {
		p.shipper.Ship(p.formatter.Register(rc))
		return true
	})
}

// Subscribed logs a newsletter sign-up submitted through the ajax endpoint.
func (p *Pipeline) Subscribed(rc *domain.RequestContext, sub domain.Subscription) bool {
	return p.guard("subscribed", func() bool {
		p.shipper.Ship(p.formatter.Subscribe(rc, sub, ""))
		return true
	})
}

// ContactFormSubmitted logs a contact form that carries an email field as
// a newsletter subscription. Forms without an email are ignored.
func (p *Pipeline) ContactFormSubmitted(rc *domain.RequestContext, fields map[string]string) bool {
	return p.guard("contact_form", func() bool {
		email := firstNonEmpty(fields, "your-email", "email")
		if email == "" {
			return false
		}
		sub := domain.Subscription{
			Email: email,
			Name:  firstNonEmpty(fields, "your-name", "name"),
			Type:  "newsletter",
		}
		p.shipper.Ship(p.formatter.Subscribe(rc, sub, rc.URI))
		return true
	})
}

func (p *Pipeline) skip(rc *domain.RequestContext) bool {
	reason := ShouldSkip(rc)
	if reason == SkipNone {
		return false
	}
	if p.skipped != nil {
		p.skipped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", string(reason))))
	}
	p.logger.Debug("access record skipped",
		slog.String("reason", string(reason)),
		slog.String("request_id", rc.RequestID))
	return true
}

// guard keeps a failing entry point from ever reaching the host request.
func (p *Pipeline) guard(entry string, fn func() bool) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("access pipeline panicked",
				slog.String("entry", entry),
				slog.String("panic", fmt.Sprint(r)))
			ok = false
		}
	}()
	return fn()
}

func firstNonEmpty(fields map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := fields[k]; v != "" {
			return v
		}
	}
	return ""
}
