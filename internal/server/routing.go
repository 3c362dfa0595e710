package server

import (
	"context"
	"net/http"

	"github.com/eks-observability/access-relay/internal/core/domain"
)

// routingKey identifies the mutable routing state of a request.
type routingKey struct{}

func withRouting(ctx context.Context) (context.Context, *domain.RoutingState) {
	rs := &domain.RoutingState{}
	return context.WithValue(ctx, routingKey{}, rs), rs
}

// MarkRoute lets a handler record what kind of route it served. The access
// observer reads the flags after the handler returns. No-op outside the
// observer middleware.
func MarkRoute(r *http.Request, mark func(rs *domain.RoutingState)) {
	if rs, ok := r.Context().Value(routingKey{}).(*domain.RoutingState); ok {
		mark(rs)
	}
}

// RoutingFrom returns a copy of the routing state recorded so far.
func RoutingFrom(ctx context.Context) domain.RoutingState {
	if rs, ok := ctx.Value(routingKey{}).(*domain.RoutingState); ok {
		return *rs
	}
	return domain.RoutingState{}
}
