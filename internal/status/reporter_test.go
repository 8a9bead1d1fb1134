package status

import (
	"errors"
	"location-tracker/internal/domain"
	"location-tracker/internal/platform/clock"
	"location-tracker/internal/ports"
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

func TestReportClearsAfterExactlyFiveSeconds(t *testing.T) {
	clk := clock.Fake(t0)
	r := NewReporter(clk, 0, nil)
	defer r.Close()

	r.Reportf("Error getting location: %v", ports.ErrPermissionDenied)

	clk.Advance(5*time.Second - time.Millisecond)
	if r.Message() == "" {
		t.Fatal("message cleared early")
	}

	clk.Advance(time.Millisecond)
	if got := r.Message(); got != "" {
		t.Fatalf("message = %q, want cleared", got)
	}
}

func TestNewReportRestartsDelay(t *testing.T) {
	clk := clock.Fake(t0)
	r := NewReporter(clk, 5*time.Second, nil)
	defer r.Close()

	r.Report(errors.New("first"))
	clk.Advance(3 * time.Second)
	r.Report(errors.New("second"))

	clk.Advance(3 * time.Second)
	if got := r.Message(); got != "second" {
		t.Fatalf("message = %q, want second", got)
	}

	clk.Advance(2 * time.Second)
	if got := r.Message(); got != "" {
		t.Fatalf("message = %q, want cleared", got)
	}
}

func TestReportUsesUserMessage(t *testing.T) {
	r := NewReporter(clock.Fake(t0), 0, nil)
	defer r.Close()

	r.Report(&ports.RouteError{Kind: ports.RouteZeroResults, Err: errors.New("code 2009")})

	if got := r.Message(); got != "No route could be found between the origin and destination" {
		t.Fatalf("message = %q", got)
	}
}

func TestSnapshotReadsConnectionState(t *testing.T) {
	state := domain.Connecting
	r := NewReporter(clock.Fake(t0), 0, func() domain.ConnectionState { return state })
	defer r.Close()

	if got := r.Snapshot().Connection; got != domain.Connecting {
		t.Fatalf("connection = %v", got)
	}
	state = domain.Connected
	if got := r.Snapshot().Connection; got != domain.Connected {
		t.Fatalf("connection = %v", got)
	}
}

func TestCloseStopsTimer(t *testing.T) {
	clk := clock.Fake(t0)
	r := NewReporter(clk, 0, nil)

	r.Report(errors.New("boom"))
	r.Close()

	if clk.PendingTimers() != 0 {
		t.Fatalf("pending timers = %d, want 0", clk.PendingTimers())
	}
	r.Report(errors.New("ignored"))
	if got := r.Message(); got != "boom" {
		t.Fatalf("message = %q", got)
	}
}
