package geofeed

import (
	"context"
	"errors"
	"location-tracker/internal/domain"
	"location-tracker/internal/platform/clock"
	"location-tracker/internal/platform/obs"
	"location-tracker/internal/ports"
	"sync"
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

// stubSensor hands out a fresh channel per Watch and records the
// subscription contexts.
type stubSensor struct {
	mu   sync.Mutex
	chs  []chan ports.SensorReading
	ctxs []context.Context
}

func (s *stubSensor) Watch(ctx context.Context, opts ports.SensorOptions) (<-chan ports.SensorReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan ports.SensorReading)
	s.chs = append(s.chs, ch)
	s.ctxs = append(s.ctxs, ctx)
	return ch, nil
}

func (s *stubSensor) watches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chs)
}

func (s *stubSensor) latest() (chan ports.SensorReading, context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chs[len(s.chs)-1], s.ctxs[len(s.ctxs)-1]
}

func (s *stubSensor) push(t *testing.T, r ports.SensorReading) {
	t.Helper()
	ch, ctx := s.latest()
	select {
	case ch <- r:
	case <-ctx.Done():
		t.Fatal("subscription already released")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out pushing reading")
	}
}

func sample(lat, lng float64, ts time.Time) ports.SensorReading {
	return ports.SensorReading{Sample: domain.PositionSample{Coordinate: domain.LatLng{Lat: lat, Lng: lng}, Timestamp: ts}}
}

func receive(t *testing.T, f *Feed) Reading {
	t.Helper()
	select {
	case r := <-f.Readings():
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reading")
		return Reading{}
	}
}

func released(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-time.After(2 * time.Second):
		return false
	}
}

func newFeed(clk clock.Clock) (*Feed, *stubSensor) {
	s := &stubSensor{}
	return New(s, clk, obs.Discard()), s
}

func TestFeedDeliversValidSamples(t *testing.T) {
	f, s := newFeed(clock.Fake(t0))
	defer f.Stop()

	if err := f.Start(context.Background(), Options{HighAccuracy: true}); err != nil {
		t.Fatalf("start: %v", err)
	}

	s.push(t, sample(200, 0, t0))
	s.push(t, sample(37.7, -122.4, t0.Add(-time.Second)))
	s.push(t, sample(37.7, -122.4, t0))

	r := receive(t, f)
	if r.Err != nil || r.Sample.Coordinate != (domain.LatLng{Lat: 37.7, Lng: -122.4}) {
		t.Fatalf("reading = %+v", r)
	}
}

func TestFeedMaxSampleAge(t *testing.T) {
	f, s := newFeed(clock.Fake(t0))
	defer f.Stop()

	if err := f.Start(context.Background(), Options{MaxSampleAge: 10 * time.Second}); err != nil {
		t.Fatalf("start: %v", err)
	}

	s.push(t, sample(1, 1, t0.Add(-11*time.Second)))
	s.push(t, sample(2, 2, t0.Add(-9*time.Second)))

	if r := receive(t, f); r.Sample.Coordinate.Lat != 2 {
		t.Fatalf("expected cached sample within age, got %+v", r)
	}
}

func TestFeedFailureHaltsSampling(t *testing.T) {
	f, s := newFeed(clock.Fake(t0))
	defer f.Stop()

	if err := f.Start(context.Background(), DefaultOptions); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, ctx := s.latest()

	s.push(t, ports.SensorReading{Err: ports.ErrPermissionDenied})

	r := receive(t, f)
	if !errors.Is(r.Err, ports.ErrPermissionDenied) {
		t.Fatalf("err = %v", r.Err)
	}
	if !released(ctx) {
		t.Fatal("sensor subscription not released after failure")
	}
	if f.Active() {
		t.Fatal("feed should be inactive after failure")
	}

	// Re-enabling resumes from a fresh subscription.
	if err := f.SetEnabled(true); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if s.watches() != 2 || !f.Active() {
		t.Fatalf("watches = %d, active = %v", s.watches(), f.Active())
	}
}

func TestFeedUnknownSensorErrorIsUnavailable(t *testing.T) {
	f, s := newFeed(clock.Fake(t0))
	defer f.Stop()

	_ = f.Start(context.Background(), Options{})
	s.push(t, ports.SensorReading{Err: errors.New("gps chip offline")})

	if r := receive(t, f); !errors.Is(r.Err, ports.ErrPositionUnavailable) {
		t.Fatalf("err = %v", r.Err)
	}
}

func TestFeedTimeout(t *testing.T) {
	clk := clock.Fake(t0)
	f, _ := newFeed(clk)
	defer f.Stop()

	if err := f.Start(context.Background(), Options{Timeout: 5 * time.Second}); err != nil {
		t.Fatalf("start: %v", err)
	}

	clk.WaitForTimers(1)
	clk.Advance(5 * time.Second)

	if r := receive(t, f); !errors.Is(r.Err, ports.ErrPositionTimeout) {
		t.Fatalf("err = %v", r.Err)
	}
}

func TestFeedStopIsIdempotent(t *testing.T) {
	f, s := newFeed(clock.Fake(t0))

	f.Stop()

	_ = f.Start(context.Background(), Options{})
	_, ctx := s.latest()

	f.Stop()
	f.Stop()

	if !released(ctx) {
		t.Fatal("stop did not release the subscription")
	}
	if f.Active() {
		t.Fatal("feed still active after stop")
	}
}

func TestFeedStartReplacesSubscription(t *testing.T) {
	f, s := newFeed(clock.Fake(t0))
	defer f.Stop()

	_ = f.Start(context.Background(), Options{})
	_, first := s.latest()
	_ = f.Start(context.Background(), Options{HighAccuracy: true})

	if !released(first) {
		t.Fatal("first subscription not released")
	}
	if s.watches() != 2 {
		t.Fatalf("watches = %d, want 2", s.watches())
	}
}

func TestFeedDisableKeepsOptions(t *testing.T) {
	f, s := newFeed(clock.Fake(t0))
	defer f.Stop()

	_ = f.Start(context.Background(), Options{})
	_, ctx := s.latest()

	if err := f.SetEnabled(false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if !released(ctx) || f.Enabled() {
		t.Fatal("disable did not release the subscription")
	}

	// Start while disabled only records options.
	_ = f.Start(context.Background(), Options{HighAccuracy: true})
	if s.watches() != 1 {
		t.Fatalf("watches = %d, want 1", s.watches())
	}

	if err := f.SetEnabled(true); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if s.watches() != 2 || !f.Active() {
		t.Fatalf("watches = %d, active = %v", s.watches(), f.Active())
	}
}
