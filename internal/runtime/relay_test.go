package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eks-observability/access-relay/internal/core/domain"
	"github.com/eks-observability/access-relay/internal/pkg/config"
	"github.com/eks-observability/access-relay/internal/server"
	"github.com/eks-observability/access-relay/internal/storage/memory"
)

type fakeCollector struct {
	mu     sync.Mutex
	bodies []string
	status int
}

func (c *fakeCollector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	c.mu.Lock()
	c.bodies = append(c.bodies, string(body))
	status := c.status
	c.mu.Unlock()
	if status != 0 {
		w.WriteHeader(status)
	}
}

func (c *fakeCollector) received() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.bodies...)
}

func testConfig(collectorURL string) *config.Config {
	return &config.Config{
		Collector: config.CollectorConfig{URL: collectorURL, Timeout: time.Second},
		Telemetry: config.TelemetryConfig{ServiceName: "access-relay-test"},
	}
}

func newTestRelay(t *testing.T, collectorURL string) *Relay {
	t.Helper()
	r, err := New(
		WithConfig(testConfig(collectorURL)),
		WithMemoryJournal(16),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	r.Router().Get("/", func(w http.ResponseWriter, req *http.Request) {
		server.MarkRoute(req, func(rs *domain.RoutingState) { rs.IsFrontPage = true })
		w.Write([]byte("home"))
	})
	return r
}

func TestRelay_ShipsObservedRequests(t *testing.T) {
	collector := &fakeCollector{}
	ts := httptest.NewServer(collector)
	defer ts.Close()

	r := newTestRelay(t, ts.URL)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("User-Agent", "relay-test")
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "home" {
		t.Fatalf("host response = %d %q", rec.Code, rec.Body.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	got := collector.received()
	if len(got) != 1 {
		t.Fatalf("collector received %d records, want 1", len(got))
	}
	if !strings.Contains(got[0], `"GET / HTTP/1.1" 200`) || !strings.HasSuffix(got[0], "[USER_ROLE:guest] [PAGE:homepage]") {
		t.Errorf("record = %s", got[0])
	}
}

func TestRelay_FailuresEndpoint(t *testing.T) {
	collector := &fakeCollector{status: http.StatusServiceUnavailable}
	ts := httptest.NewServer(collector)
	defer ts.Close()

	r := newTestRelay(t, ts.URL)
	defer r.Shutdown(context.Background())

	r.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	deadline := time.Now().Add(3 * time.Second)
	for {
		failures, _ := r.Journal().Recent(context.Background(), 0)
		if len(failures) > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("delivery failure was never journaled")
		}
		time.Sleep(10 * time.Millisecond)
	}

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", FailuresPath, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body struct {
		Collector string                   `json:"collector"`
		Failures  []domain.DeliveryFailure `json:"failures"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Collector != ts.URL {
		t.Errorf("collector = %q, want %q", body.Collector, ts.URL)
	}
	if len(body.Failures) != 1 || body.Failures[0].Kind != domain.RecordPageAccess {
		t.Errorf("failures = %+v", body.Failures)
	}

	// The failures endpoint itself is never logged.
	if n := len(collector.received()); n != 1 {
		t.Errorf("collector received %d posts, want 1", n)
	}
}

func TestRelay_StartTwice(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Server.Port = 0
	r, err := New(WithConfig(cfg), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer r.Shutdown(context.Background())

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := r.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}
}

func TestExtensionTable_MergesConfig(t *testing.T) {
	table := ExtensionTable(config.ClassifierConfig{
		Extensions: map[string][]string{
			"image":    {"heic", ".avif"},
			"document": {"epub"},
		},
	})

	tests := map[string]domain.ContentCategory{
		"heic": domain.ContentImage,
		"avif": domain.ContentImage,
		"epub": domain.ContentDocument,
		"pdf":  domain.ContentDocument,
		"mp3":  domain.ContentAudio,
		"xyz":  domain.ContentOther,
	}
	for ext, want := range tests {
		if got := table.Category(ext); got != want {
			t.Errorf("Category(%q) = %q, want %q", ext, got, want)
		}
	}
}

func TestNew_SQLiteJournalFromConfig(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Journal.Path = t.TempDir() + "/failures.db"

	r, err := New(WithConfig(cfg), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer r.Shutdown(context.Background())

	failures, err := r.Journal().Recent(context.Background(), 10)
	if err != nil || len(failures) != 0 {
		t.Errorf("Recent() = %v, %v", failures, err)
	}
}

type closeTrackingJournal struct {
	*memory.Journal
	mu     sync.Mutex
	closed bool
}

func (j *closeTrackingJournal) Close() error {
	j.mu.Lock()
	j.closed = true
	j.mu.Unlock()
	return j.Journal.Close()
}

func (j *closeTrackingJournal) isClosed() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.closed
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestRelay_ShutdownClosesResourcesWhenServerTimesOut(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Server.Port = freePort(t)
	journal := &closeTrackingJournal{Journal: memory.New(4)}

	r, err := New(WithConfig(cfg), WithJournal(journal), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	var conn net.Conn
	deadline := time.Now().Add(3 * time.Second)
	for {
		conn, err = net.Dial("tcp", addr)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never listened: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	defer conn.Close()

	// A half-sent request keeps the connection active past the shutdown deadline.
	if _, err := conn.Write([]byte("GET / HTTP/1.1\r\nHost: x\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := r.Shutdown(ctx); err == nil {
		t.Fatal("Shutdown() should report the server timeout")
	}
	if !journal.isClosed() {
		t.Error("journal was not closed after a failed server shutdown")
	}
}
