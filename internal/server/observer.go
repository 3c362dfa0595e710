package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/eks-observability/access-relay/internal/core/domain"
	"github.com/eks-observability/access-relay/internal/pipeline"
)

// IdentityResolver returns the authenticated visitor of r, or nil.
type IdentityResolver func(r *http.Request) *domain.Identity

// Observer feeds served requests into the access pipeline.
type Observer struct {
	pipeline *pipeline.Pipeline
	identify IdentityResolver
	excluded []string
}

// NewObserver creates an Observer. A nil identify treats everyone as anonymous.
func NewObserver(p *pipeline.Pipeline, identify IdentityResolver) *Observer {
	if identify == nil {
		identify = func(*http.Request) *domain.Identity { return nil }
	}
	return &Observer{pipeline: p, identify: identify}
}

// Exclude stops requests for the given paths, and anything below them, from
// being logged.
// The relay's own endpoints are excluded this way.
func (o *Observer) Exclude(prefixes ...string) {
	o.excluded = append(o.excluded, prefixes...)
}

func (o *Observer) isExcluded(p string) bool {
	for _, prefix := range o.excluded {
		prefix = strings.TrimSuffix(prefix, "/")
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}

// Pipeline returns the pipeline behind the observer.
func (o *Observer) Pipeline() *pipeline.Pipeline {
	return o.pipeline
}

// Middleware runs the handler first and then hands the finished request to
// the pipeline. Shipping is asynchronous, so the response is not delayed.
func (o *Observer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if o.isExcluded(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		ctx, _ := withRouting(r.Context())
		r = r.WithContext(ctx)

		wrapped := newStatusWriter(w)
		next.ServeHTTP(wrapped, r)

		rc := o.Snapshot(r, wrapped.status)
		if o.pipeline.PageServed(rc) {
			AddLogField(ctx, "access_record", "shipped")
		} else {
			AddLogField(ctx, "access_record", "skipped")
		}
		o.pipeline.ContentViewed(rc)
	})
}

// Snapshot captures r as an immutable RequestContext.
func (o *Observer) Snapshot(r *http.Request, status int) *domain.RequestContext {
	return &domain.RequestContext{
		Method:     r.Method,
		URI:        r.URL.RequestURI(),
		RemoteAddr: r.RemoteAddr,
		Headers:    r.Header.Clone(),
		StatusCode: status,
		Identity:   o.identify(r),
		Routing:    RoutingFrom(r.Context()),
		Trigger:    DetectTrigger(r),
		RequestID:  GetRequestID(r.Context()),
		Timestamp:  time.Now(),
	}
}

// DetectTrigger classifies background request cycles by their endpoints.
func DetectTrigger(r *http.Request) domain.Trigger {
	switch {
	case strings.HasSuffix(r.URL.Path, "/admin-ajax.php"),
		strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest"):
		return domain.TriggerAjax
	case strings.HasSuffix(r.URL.Path, "/wp-cron.php"), r.URL.Query().Has("doing_wp_cron"):
		return domain.TriggerCron
	}
	return domain.TriggerInteractive
}
