package pipeline

import (
	"mime"
	"strings"

	"github.com/eks-observability/access-relay/internal/core/domain"
)

// SkipReason explains why a request was not logged. Empty means log it.
type SkipReason string

const (
	SkipNone      SkipReason = ""
	SkipAjax      SkipReason = "ajax"
	SkipCron      SkipReason = "cron"
	SkipCLI       SkipReason = "cli"
	SkipJSON      SkipReason = "json"
	SkipRESTRoute SkipReason = "rest"
)

// restPrefix is the REST API namespace; requests under it are machine traffic.
const restPrefix = "/wp-json"

// ShouldSkip applies the skip policy to a page-served request.
func ShouldSkip(rc *domain.RequestContext) SkipReason {
	switch rc.Trigger {
	case domain.TriggerAjax:
		return SkipAjax
	case domain.TriggerCron:
		return SkipCron
	case domain.TriggerCLI:
		return SkipCLI
	}

	if strings.HasPrefix(rc.URI, restPrefix) {
		return SkipRESTRoute
	}

	if rc.Headers != nil {
		if acceptsJSON(rc.Headers.Values("Accept")) || isJSONMediaType(rc.Headers.Get("Content-Type")) {
			return SkipJSON
		}
	}

	return SkipNone
}

func acceptsJSON(values []string) bool {
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if isJSONMediaType(part) {
				return true
			}
		}
	}
	return false
}

// isJSONMediaType matches application/json and application/*+json.
func isJSONMediaType(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		return false
	}
	if mt == "application/json" {
		return true
	}
	return strings.HasPrefix(mt, "application/") && strings.HasSuffix(mt, "+json")
}
