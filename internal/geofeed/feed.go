// Package geofeed turns a continuous position sensor into a stream of
// validated samples and user-facing failures.
package geofeed

import (
	"context"
	"errors"
	"fmt"
	"location-tracker/internal/domain"
	"location-tracker/internal/platform/clock"
	"location-tracker/internal/ports"
	"log/slog"
	"sync"
	"time"
)

// Options controls one sensor subscription.
type Options = ports.SensorOptions

// DefaultOptions asks for high accuracy with no cached
// positions and a 5 s acquisition timeout.
var DefaultOptions = Options{HighAccuracy: true, MaxSampleAge: 0, Timeout: 5 * time.Second}

// Reading is either a Sample or a terminal Err. Err wraps one of
// ports.ErrPermissionDenied, ports.ErrPositionUnavailable or
// ports.ErrPositionTimeout.
type Reading struct {
	Sample domain.PositionSample
	Err    error
}

// Feed owns at most one sensor subscription. A failure ends the
// subscription; sampling resumes only on Start or SetEnabled(true).
type Feed struct {
	sensor ports.PositionSensor
	clock  clock.Clock
	logger *slog.Logger

	out chan Reading

	// opMu serializes Start, Stop and SetEnabled.
	opMu sync.Mutex

	mu      sync.Mutex
	opts    Options
	hasOpts bool
	enabled bool
	cancel  context.CancelFunc
	done    chan struct{}
	halted  bool
	parent  context.Context
}

func New(sensor ports.PositionSensor, clk clock.Clock, logger *slog.Logger) *Feed {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		sensor:  sensor,
		clock:   clk,
		logger:  logger,
		out:     make(chan Reading),
		enabled: true,
	}
}

// Readings is shared across subscriptions; it is never closed.
func (f *Feed) Readings() <-chan Reading { return f.out }

// Start subscribes with opts, replacing any active subscription. When the
// feed is disabled the options are kept and sampling begins on
// SetEnabled(true). The subscription ends when ctx is cancelled.
func (f *Feed) Start(ctx context.Context, opts Options) error {
	f.opMu.Lock()
	defer f.opMu.Unlock()

	f.stop()

	f.mu.Lock()
	f.opts = opts
	f.hasOpts = true
	f.parent = ctx
	enabled := f.enabled
	f.mu.Unlock()

	if !enabled {
		return nil
	}
	return f.subscribe(ctx, opts)
}

// Stop releases the subscription and waits for its goroutine. It is safe
// to call repeatedly and without a prior Start.
func (f *Feed) Stop() {
	f.opMu.Lock()
	defer f.opMu.Unlock()

	f.stop()

	f.mu.Lock()
	f.hasOpts = false
	f.mu.Unlock()
}

// SetEnabled toggles sampling without forgetting the last options.
// Enabling resumes from a fresh subscription when Start was called before.
func (f *Feed) SetEnabled(enabled bool) error {
	f.opMu.Lock()
	defer f.opMu.Unlock()

	f.mu.Lock()
	f.enabled = enabled
	opts, hasOpts, parent := f.opts, f.hasOpts, f.parent
	f.mu.Unlock()

	if !enabled {
		f.stop()
		return nil
	}
	if !hasOpts || f.Active() {
		return nil
	}
	// Release a halted subscription before resubscribing.
	f.stop()
	return f.subscribe(parent, opts)
}

func (f *Feed) Enabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

// Active reports whether a subscription is running.
func (f *Feed) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done != nil && !f.halted
}

func (f *Feed) subscribe(parent context.Context, opts Options) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	readings, err := f.sensor.Watch(ctx, opts)
	if err != nil {
		cancel()
		return fmt.Errorf("start position sensor: %w", err)
	}

	done := make(chan struct{})

	f.mu.Lock()
	f.cancel = cancel
	f.done = done
	f.halted = false
	f.mu.Unlock()

	f.logger.Debug("position feed started", "high_accuracy", opts.HighAccuracy, "timeout", opts.Timeout)

	go f.pump(ctx, cancel, done, readings, opts)
	return nil
}

func (f *Feed) stop() {
	f.mu.Lock()
	cancel, done := f.cancel, f.done
	f.cancel, f.done = nil, nil
	f.halted = false
	f.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	f.logger.Debug("position feed stopped")
}

func (f *Feed) pump(
	ctx context.Context,
	cancel context.CancelFunc,
	done chan struct{},
	readings <-chan ports.SensorReading,
	opts Options,
) {
	defer close(done)
	defer cancel()

	subscribedAt := f.clock.Now()

	var timeout <-chan time.Time
	arm := func() {
		if opts.Timeout > 0 {
			timeout = f.clock.After(opts.Timeout)
		}
	}
	arm()

	for {
		select {
		case <-ctx.Done():
			return

		case <-timeout:
			f.fail(ctx, done, ports.ErrPositionTimeout)
			return

		case r, ok := <-readings:
			if !ok {
				return
			}
			if r.Err != nil {
				f.fail(ctx, done, classify(r.Err))
				return
			}

			if !f.accept(r.Sample, opts, subscribedAt) {
				continue
			}
			arm()

			select {
			case f.out <- Reading{Sample: r.Sample}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (f *Feed) accept(s domain.PositionSample, opts Options, subscribedAt time.Time) bool {
	if !s.Coordinate.Valid() {
		f.logger.Warn("dropping invalid position sample", "coordinate", s.Coordinate.String())
		return false
	}
	if s.Accuracy != nil && *s.Accuracy < 0 {
		f.logger.Warn("dropping position sample with negative accuracy", "accuracy", *s.Accuracy)
		return false
	}

	oldest := subscribedAt
	if opts.MaxSampleAge > 0 {
		oldest = f.clock.Now().Add(-opts.MaxSampleAge)
	}
	if s.Timestamp.Before(oldest) {
		f.logger.Debug("dropping stale position sample", "timestamp", s.Timestamp)
		return false
	}
	return true
}

// fail marks the subscription halted and delivers a terminal reading.
// The goroutine stays reclaimable by stop until the reading is taken.
func (f *Feed) fail(ctx context.Context, done chan struct{}, err error) {
	f.mu.Lock()
	if f.done == done {
		f.halted = true
	}
	f.mu.Unlock()

	f.logger.Warn("position feed halted", "err", err)

	select {
	case f.out <- Reading{Err: err}:
	case <-ctx.Done():
	}
}

func classify(err error) error {
	switch {
	case errors.Is(err, ports.ErrPermissionDenied),
		errors.Is(err, ports.ErrPositionUnavailable),
		errors.Is(err, ports.ErrPositionTimeout):
		return err
	default:
		return fmt.Errorf("%w: %v", ports.ErrPositionUnavailable, err)
	}
}
