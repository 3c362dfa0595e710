package server

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/eks-observability/access-relay/internal/core/domain"
	"github.com/eks-observability/access-relay/internal/pipeline"
)

type captureShipper struct {
	mu      sync.Mutex
	records []domain.LogRecord
}

func (s *captureShipper) Ship(rec domain.LogRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

func (s *captureShipper) all() []domain.LogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.LogRecord(nil), s.records...)
}

func newTestServer(identify IdentityResolver) (*Server, *captureShipper, *bytes.Buffer) {
	ship := &captureShipper{}
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(logs, nil))
	srv := New(8080, logger, NewObserver(pipeline.New(ship, pipeline.WithLogger(logger)), identify))
	return srv, ship, logs
}

func TestObserver_PageRecord(t *testing.T) {
	srv, ship, logs := newTestServer(func(r *http.Request) *domain.Identity {
		if r.Header.Get("Cookie") == "user=maria" {
			return &domain.Identity{DisplayName: "maria", Role: "editor"}
		}
		return nil
	})
	srv.Router.Get("/{slug}/", func(w http.ResponseWriter, r *http.Request) {
		MarkRoute(r, func(rs *domain.RoutingState) {
			rs.IsPage = true
			rs.PostType = "page"
			rs.PostID = 12
		})
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/about-us/?ref=home", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Cookie", "user=maria")
	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, req)

	recs := ship.all()
	if len(recs) != 2 {
		t.Fatalf("shipped %d records, want page access and content view", len(recs))
	}

	page := recs[0]
	if page.Kind != domain.RecordPageAccess {
		t.Errorf("Kind = %q", page.Kind)
	}
	for _, want := range []string{
		"203.0.113.5 - maria [",
		`"GET /about-us/?ref=home HTTP/1.1" 200 `,
		`"test-agent" [USER_ROLE:editor] [PAGE:page]`,
	} {
		if !strings.Contains(page.Line, want) {
			t.Errorf("line %s missing %q", page.Line, want)
		}
	}
	if page.RequestID == "" || page.RequestID != rec.Header().Get(RequestIDHeader) {
		t.Errorf("RequestID = %q, header = %q", page.RequestID, rec.Header().Get(RequestIDHeader))
	}
	if !strings.HasSuffix(recs[1].Line, "[CONTENT:page:ID:12]") {
		t.Errorf("content view line = %s", recs[1].Line)
	}
	if !strings.Contains(logs.String(), `"access_record":"shipped"`) {
		t.Errorf("operational log missing access_record field: %s", logs.String())
	}
}

func TestObserver_CapturesStatus(t *testing.T) {
	srv, ship, _ := newTestServer(nil)
	srv.Router.Get("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	srv.Router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/missing", nil))

	recs := ship.all()
	if len(recs) != 1 {
		t.Fatalf("shipped %d records, want 1", len(recs))
	}
	if recs[0].Status != http.StatusNotFound || !strings.HasSuffix(recs[0].Line, "[USER_ROLE:guest] [PAGE:unknown]") {
		t.Errorf("record = %+v", recs[0])
	}
}

func TestObserver_SkipsBackgroundRequests(t *testing.T) {
	srv, ship, logs := newTestServer(nil)
	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }
	srv.Router.Post("/wp-admin/admin-ajax.php", ok)
	srv.Router.Get("/wp-cron.php", ok)
	srv.Router.Get("/feed", ok)

	reqs := []*http.Request{
		httptest.NewRequest("POST", "/wp-admin/admin-ajax.php", nil),
		httptest.NewRequest("GET", "/wp-cron.php?doing_wp_cron=1", nil),
	}
	jsonReq := httptest.NewRequest("GET", "/feed", nil)
	jsonReq.Header.Set("Accept", "application/json")
	reqs = append(reqs, jsonReq)

	for _, req := range reqs {
		srv.Router.ServeHTTP(httptest.NewRecorder(), req)
	}

	if n := len(ship.all()); n != 0 {
		t.Errorf("shipped %d records, want 0", n)
	}
	if !strings.Contains(logs.String(), `"access_record":"skipped"`) {
		t.Errorf("operational log missing skipped marker: %s", logs.String())
	}
}

func TestDetectTrigger(t *testing.T) {
	tests := []struct {
		name   string
		target string
		xrw    string
		want   domain.Trigger
	}{
		{"page", "/about-us/", "", domain.TriggerInteractive},
		{"admin ajax", "/wp-admin/admin-ajax.php?action=x", "", domain.TriggerAjax},
		{"xhr header", "/anything", "XMLHttpRequest", domain.TriggerAjax},
		{"cron endpoint", "/wp-cron.php", "", domain.TriggerCron},
		{"cron query", "/?doing_wp_cron=1700000000", "", domain.TriggerCron},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.target, nil)
			if tt.xrw != "" {
				req.Header.Set("X-Requested-With", tt.xrw)
			}
			if got := DetectTrigger(req); got != tt.want {
				t.Errorf("DetectTrigger() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	t.Run("keeps upstream uuid", func(t *testing.T) {
		const upstream = "6f1c1f4e-8a55-4b0e-9a8e-0c1d2e3f4a5b"
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set(RequestIDHeader, upstream)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if seen != upstream || rec.Header().Get(RequestIDHeader) != upstream {
			t.Errorf("request id = %q, header = %q", seen, rec.Header().Get(RequestIDHeader))
		}
	})

	t.Run("replaces malformed id", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set(RequestIDHeader, "not-a-uuid\n")
		handler.ServeHTTP(httptest.NewRecorder(), req)
		if seen == "" || seen == "not-a-uuid\n" {
			t.Errorf("request id = %q, want a generated uuid", seen)
		}
	})
}

func TestMarkRoute_OutsideObserver(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	MarkRoute(req, func(rs *domain.RoutingState) { rs.IsFrontPage = true })
	if RoutingFrom(req.Context()).IsFrontPage {
		t.Error("MarkRoute() without observer should be a no-op")
	}
}

func TestObserver_ExcludedPaths(t *testing.T) {
	ship := &captureShipper{}
	obs := NewObserver(pipeline.New(ship), nil)
	obs.Exclude("/_relay/")
	srv := New(8080, slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)), obs)
	srv.Router.Get("/_relay/failures", func(w http.ResponseWriter, r *http.Request) {})
	srv.Router.Get("/", func(w http.ResponseWriter, r *http.Request) {})

	srv.Router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/_relay/failures", nil))
	if n := len(ship.all()); n != 0 {
		t.Fatalf("excluded path shipped %d records", n)
	}

	srv.Router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	if n := len(ship.all()); n != 1 {
		t.Errorf("shipped %d records, want 1", n)
	}
}

func TestObserver_ExcludeMatchesWholeSegments(t *testing.T) {
	ship := &captureShipper{}
	obs := NewObserver(pipeline.New(ship), nil)
	obs.Exclude("/metrics")
	srv := New(8080, slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)), obs)
	ok := func(w http.ResponseWriter, r *http.Request) {}
	srv.Router.Get("/metrics", ok)
	srv.Router.Get("/metrics/detail", ok)
	srv.Router.Get("/metrics-report", ok)

	for _, target := range []string{"/metrics", "/metrics/detail"} {
		srv.Router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", target, nil))
	}
	if n := len(ship.all()); n != 0 {
		t.Fatalf("excluded paths shipped %d records", n)
	}

	srv.Router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/metrics-report", nil))
	recs := ship.all()
	if len(recs) != 1 || recs[0].URI != "/metrics-report" {
		t.Errorf("records = %+v, want one for /metrics-report", recs)
	}
}
