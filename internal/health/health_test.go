package health

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/vietddude/mpath/internal/fabric"
	"github.com/vietddude/mpath/internal/infra/target/mem"
	"github.com/vietddude/mpath/internal/mpath"
)

// =============================================================================
// Fixtures
// =============================================================================

type fixture struct {
	host  *fabric.Host
	ports map[string]*mem.Port
	ctrls map[string]*fabric.Controller
	clock *clock.Mock
}

func newFixture(t *testing.T, ctrls ...string) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := &fixture{
		ports: make(map[string]*mem.Port),
		ctrls: make(map[string]*fabric.Controller),
		clock: clock.NewMock(),
	}
	f.host = fabric.NewHost(fabric.HostOptions{
		Multipath: mpath.DefaultConfig(),
		Reconnect: fabric.DefaultReconnectConfig,
		Clock:     f.clock,
		Logger:    log,
	})
	t.Cleanup(func() { _ = f.host.Shutdown(context.Background()) })

	target := mem.NewTarget(log)
	if _, err := target.AddNamespace(1, 1<<20, 512); err != nil {
		t.Fatalf("add namespace: %v", err)
	}

	subsys := f.host.AddSubsystem("nqn.2024-01.io.mpath:health", fabric.CMICSharedNamespaces)
	for i, name := range ctrls {
		port := target.Port(name)
		c, err := f.host.AddController(subsys, name, uint16(i+1), false, port)
		if err != nil {
			t.Fatalf("add controller %s: %v", name, err)
		}
		if err := c.Connect(context.Background()); err != nil {
			t.Fatalf("connect %s: %v", name, err)
		}
		f.ports[name] = port
		f.ctrls[name] = c
	}
	return f
}

// takeDown fails a controller's link and leaves it waiting on the backoff timer.
func (f *fixture) takeDown(name string) {
	f.ports[name].SetDown(true)
	f.ctrls[name].Reset()
}

// =============================================================================
// Tests
// =============================================================================

func TestMonitor_Healthy(t *testing.T) {
	f := newFixture(t, "a", "b")
	monitor := NewMonitor(f.host, f.clock, 0)

	report := monitor.CheckHealth(context.Background())
	head, ok := report.Heads["nvme0n1"]
	if !ok {
		t.Fatalf("expected head nvme0n1, got %v", report.Heads)
	}

	if head.Status != StatusHealthy {
		t.Errorf("expected healthy, got %s", head.Status)
	}
	if head.LivePaths != 2 || len(head.Paths) != 2 {
		t.Errorf("expected 2/2 live paths, got %d/%d", head.LivePaths, len(head.Paths))
	}
	if !head.Aggregate {
		t.Error("expected aggregate disk")
	}
	if report.Controllers["a"] != "live" {
		t.Errorf("expected controller a live, got %q", report.Controllers["a"])
	}
}

func TestMonitor_Degraded(t *testing.T) {
	f := newFixture(t, "a", "b")
	monitor := NewMonitor(f.host, f.clock, 0)

	f.takeDown("a")

	report := monitor.CheckHealth(context.Background())
	head := report.Heads["nvme0n1"]

	if head.Status != StatusDegraded {
		t.Errorf("expected degraded, got %s", head.Status)
	}
	if head.LivePaths != 1 {
		t.Errorf("expected 1 live path, got %d", head.LivePaths)
	}
	if report.SystemStatus != StatusDegraded {
		t.Errorf("expected system degraded, got %s", report.SystemStatus)
	}
}

func TestMonitor_Critical(t *testing.T) {
	f := newFixture(t, "a", "b")
	monitor := NewMonitor(f.host, f.clock, 0)

	f.takeDown("a")
	f.takeDown("b")

	report := monitor.CheckHealth(context.Background())

	if report.Heads["nvme0n1"].Status != StatusCritical {
		t.Errorf("expected critical, got %s", report.Heads["nvme0n1"].Status)
	}
	if report.SystemStatus != StatusCritical {
		t.Errorf("expected system critical, got %s", report.SystemStatus)
	}
}

func TestMonitor_ReusesRecentReport(t *testing.T) {
	f := newFixture(t, "a", "b")
	monitor := NewMonitor(f.host, f.clock, 10*time.Second)

	first := monitor.CheckHealth(context.Background())
	f.takeDown("a")

	if got := monitor.CheckHealth(context.Background()); got != first {
		t.Error("expected cached report within minAge")
	}

	f.clock.Add(11 * time.Second)
	got := monitor.CheckHealth(context.Background())
	if got.SystemStatus != StatusDegraded {
		t.Errorf("expected fresh degraded report, got %s", got.SystemStatus)
	}
}

func TestServer_HealthEndpoint(t *testing.T) {
	f := newFixture(t, "a")
	srv := NewServer(NewMonitor(f.host, f.clock, 0), 0)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	f.takeDown("a")

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != string(StatusCritical) {
		t.Errorf("expected critical, got %q", body["status"])
	}
}

func TestServer_DetailedEndpoint(t *testing.T) {
	f := newFixture(t, "a", "b")
	srv := NewServer(NewMonitor(f.host, f.clock, 0), 0)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/detailed", nil))

	var report HealthReport
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	head := report.Heads["nvme0n1"]
	if len(head.Paths) != 2 {
		t.Fatalf("expected 2 paths, got %d", len(head.Paths))
	}
	if head.Paths[0].Controller != "a" {
		t.Errorf("expected first path on controller a, got %q", head.Paths[0].Controller)
	}
}
