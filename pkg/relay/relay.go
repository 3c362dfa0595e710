// Package relay provides the public API for embedding the access relay in
// a host HTTP server. This is the stable API for external consumers.
package relay

import (
	"github.com/eks-observability/access-relay/internal/core/domain"
	"github.com/eks-observability/access-relay/internal/runtime"
	"github.com/eks-observability/access-relay/internal/server"
)

// Relay observes host requests and ships access records to the collector.
// See internal/runtime.Relay for full documentation.
type Relay = runtime.Relay

// Option is a functional option for configuring a Relay.
type Option = runtime.Option

// New creates a new Relay with the given options.
// Example:
//
//	r, err := relay.New(
//	    relay.WithConfigFile("config.yaml"),
//	    relay.WithSQLiteJournal("./data/failures.db"),
//	)
var New = runtime.New

// Configuration options
var (
	// Config sources
	WithConfig     = runtime.WithConfig
	WithConfigFile = runtime.WithConfigFile

	// Failure journal
	WithSQLiteJournal = runtime.WithSQLiteJournal
	WithMemoryJournal = runtime.WithMemoryJournal
	WithJournal       = runtime.WithJournal

	// Advanced options
	WithLogger             = runtime.WithLogger
	WithIdentityResolver   = runtime.WithIdentityResolver
	WithCollectorTransport = runtime.WithCollectorTransport
)

// Host integration types.
type (
	Identity         = domain.Identity
	RoutingState     = domain.RoutingState
	RequestContext   = domain.RequestContext
	Subscription     = domain.Subscription
	IdentityResolver = server.IdentityResolver
)

// MarkRoute records what kind of route a host handler served.
var MarkRoute = server.MarkRoute
