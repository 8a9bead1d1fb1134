// Package status keeps the most recent user-facing error and exposes the
// transport's connection state next to it.
package status

import (
	"errors"
	"fmt"
	"location-tracker/internal/domain"
	"location-tracker/internal/platform/clock"
	"sync"
	"time"
)

// DefaultClearAfter is how long a reported message stays visible.
const DefaultClearAfter = 5 * time.Second

// Snapshot is the status as shown to the user.
type Snapshot struct {
	Message    string
	ReportedAt time.Time
	Connection domain.ConnectionState
}

// Reporter holds at most one message. A new report replaces the previous
// message and restarts its clear timer.
type Reporter struct {
	clock      clock.Clock
	clearAfter time.Duration
	connection func() domain.ConnectionState

	mu         sync.Mutex
	message    string
	reportedAt time.Time
	timer      *clock.Timer
	generation uint64
	closed     bool
}

// NewReporter creates a Reporter. connection is read on every Snapshot;
// nil reports disconnected.
func NewReporter(clk clock.Clock, clearAfter time.Duration, connection func() domain.ConnectionState) *Reporter {
	if clk == nil {
		clk = clock.Real()
	}
	if clearAfter <= 0 {
		clearAfter = DefaultClearAfter
	}
	return &Reporter{clock: clk, clearAfter: clearAfter, connection: connection}
}

// Report shows err. Errors carrying their own user-facing text through a
// Message method are shown with that text.
func (r *Reporter) Report(err error) {
	if err == nil {
		return
	}

	text := err.Error()
	var m interface{ Message() string }
	if errors.As(err, &m) {
		text = m.Message()
	}
	r.set(text)
}

func (r *Reporter) Reportf(format string, args ...any) {
	r.set(fmt.Sprintf(format, args...))
}

func (r *Reporter) set(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	if r.timer != nil {
		r.timer.Stop()
	}

	r.generation++
	gen := r.generation
	r.message = text
	r.reportedAt = r.clock.Now()
	r.timer = r.clock.AfterFunc(r.clearAfter, func() { r.clear(gen) })
}

func (r *Reporter) clear(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// A newer report owns the message now.
	if gen != r.generation {
		return
	}
	r.message = ""
	r.reportedAt = time.Time{}
	r.timer = nil
}

// Message returns the visible message or "".
func (r *Reporter) Message() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.message
}

func (r *Reporter) Snapshot() Snapshot {
	r.mu.Lock()
	s := Snapshot{Message: r.message, ReportedAt: r.reportedAt}
	r.mu.Unlock()

	if r.connection != nil {
		s.Connection = r.connection()
	}
	return s
}

// Close stops the pending clear timer. Later reports are ignored.
func (r *Reporter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
