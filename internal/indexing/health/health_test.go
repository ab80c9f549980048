package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// =============================================================================
// Helpers
// =============================================================================

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func newTestMonitor(interval time.Duration) (*Monitor, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	m := NewMonitor(interval)
	m.started = clock.t
	m.now = clock.Now
	return m, clock
}

// =============================================================================
// Monitor
// =============================================================================

func TestMonitor_Statuses(t *testing.T) {
	m, clock := newTestMonitor(5 * time.Second)

	if got := m.Report().SystemStatus; got != StatusHealthy {
		t.Fatalf("fresh monitor: expected healthy, got %s", got)
	}

	m.RecordSuccess("p1", 10)
	if got := m.Report().SystemStatus; got != StatusHealthy {
		t.Errorf("after success: expected healthy, got %s", got)
	}

	for i := 0; i < CriticalAfter-1; i++ {
		clock.t = clock.t.Add(time.Second)
		m.RecordFailure("p", "transient", errors.New("node down"))
		if got := m.Report().SystemStatus; got != StatusDegraded {
			t.Errorf("after %d failures: expected degraded, got %s", i+1, got)
		}
	}

	m.RecordFailure("p", "transient", errors.New("node down"))
	if got := m.Report().SystemStatus; got != StatusCritical {
		t.Errorf("after %d failures: expected critical, got %s", CriticalAfter, got)
	}

	m.RecordSuccess("p9", 12)
	report := m.Report()
	if report.SystemStatus != StatusHealthy {
		t.Errorf("after recovery: expected healthy, got %s", report.SystemStatus)
	}
	if report.Passes.ConsecutiveFailures != 0 {
		t.Errorf("expected failures reset, got %d", report.Passes.ConsecutiveFailures)
	}
	if report.Passes.PeakHeight != 12 {
		t.Errorf("expected peak 12, got %d", report.Passes.PeakHeight)
	}
	if report.Passes.TotalPasses != uint64(CriticalAfter+2) {
		t.Errorf("expected %d passes, got %d", CriticalAfter+2, report.Passes.TotalPasses)
	}
}

func TestMonitor_StaleSuccessIsCritical(t *testing.T) {
	m, clock := newTestMonitor(5 * time.Second)
	m.RecordSuccess("p1", 1)

	clock.t = clock.t.Add(49 * time.Second)
	if got := m.Report().SystemStatus; got != StatusHealthy {
		t.Errorf("expected healthy within 10 intervals, got %s", got)
	}

	clock.t = clock.t.Add(2 * time.Second)
	if got := m.Report().SystemStatus; got != StatusCritical {
		t.Errorf("expected critical after 10 intervals, got %s", got)
	}
}

func TestMonitor_NeverSucceeded(t *testing.T) {
	m, clock := newTestMonitor(time.Second)
	clock.t = clock.t.Add(11 * time.Second)
	if got := m.Report().SystemStatus; got != StatusCritical {
		t.Errorf("expected critical, got %s", got)
	}
}

func TestMonitor_StandbyStaysHealthy(t *testing.T) {
	m, clock := newTestMonitor(time.Second)

	for i := 0; i < 3*StaleIntervals; i++ {
		clock.t = clock.t.Add(time.Second)
		m.RecordSkipped("standby")
		if got := m.Report().SystemStatus; got != StatusHealthy {
			t.Fatalf("skipped pass %d: expected healthy, got %s", i, got)
		}
	}

	report := m.Report()
	if !report.Passes.Standby {
		t.Error("expected standby to be reported")
	}
	if report.Passes.LastSuccess != nil {
		t.Error("a skipped pass must not count as a success")
	}

	clock.t = clock.t.Add(11 * time.Second)
	if got := m.Report().SystemStatus; got != StatusCritical {
		t.Errorf("expected critical once skipped passes stop, got %s", got)
	}

	m.RecordSuccess("p1", 5)
	if m.Report().Passes.Standby {
		t.Error("expected standby cleared after taking over")
	}
}

func TestMonitor_SkipClearsFailures(t *testing.T) {
	m, _ := newTestMonitor(time.Second)
	m.RecordFailure("p1", "transient", errors.New("redis down"))
	m.RecordSkipped("p2")
	if got := m.Report().SystemStatus; got != StatusHealthy {
		t.Errorf("expected healthy, got %s", got)
	}
}

// =============================================================================
// Server
// =============================================================================

func TestServer_Health(t *testing.T) {
	m, _ := newTestMonitor(5 * time.Second)
	m.SetNetwork("mainnet")
	m.RecordSuccess("p1", 42)
	srv := NewServer(m, 0)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != string(StatusHealthy) {
		t.Errorf("expected healthy, got %q", body["status"])
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/detailed", nil))
	var report HealthReport
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Network != "mainnet" || report.Passes.PeakHeight != 42 {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestServer_CriticalIs503(t *testing.T) {
	m, _ := newTestMonitor(5 * time.Second)
	for i := 0; i < CriticalAfter; i++ {
		m.RecordFailure("p", "inconsistency", errors.New("broken history"))
	}

	rec := httptest.NewRecorder()
	NewServer(m, 0).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestServer_Metrics(t *testing.T) {
	m, _ := newTestMonitor(time.Second)
	rec := httptest.NewRecorder()
	NewServer(m, 0).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
