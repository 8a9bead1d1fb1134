package motion

import (
	"context"
	"location-tracker/internal/domain"
	"location-tracker/internal/platform/clock"
	"sync"
	"time"
)

const (
	DefaultDuration = 1500 * time.Millisecond
	DefaultFrame    = 16 * time.Millisecond
)

// Frame is one rendered position of a participant.
type Frame struct {
	ParticipantID string
	Position      domain.LatLng
	Done          bool
}

// Mover runs at most one animation per participant. A new target cancels
// the running animation and starts from the position last displayed, so
// the newest target always wins and moves never blend.
type Mover struct {
	clock    clock.Clock
	duration time.Duration
	frame    time.Duration
	onFrame  func(Frame)

	// emitMu orders frames: it is held across the ownership check and
	// onFrame, and while MoveTo or Retain replace a task.
	emitMu sync.Mutex

	mu        sync.Mutex
	tasks     map[string]*task
	displayed map[string]domain.LatLng
	closed    bool

	wg sync.WaitGroup
}

type task struct {
	cancel context.CancelFunc
}

// NewMover creates a Mover. onFrame may be nil; it is called from the
// animation goroutines and must not call back into the Mover.
func NewMover(clk clock.Clock, duration, frame time.Duration, onFrame func(Frame)) *Mover {
	if clk == nil {
		clk = clock.Real()
	}
	if duration <= 0 {
		duration = DefaultDuration
	}
	if frame <= 0 {
		frame = DefaultFrame
	}
	return &Mover{
		clock:     clk,
		duration:  duration,
		frame:     frame,
		onFrame:   onFrame,
		tasks:     make(map[string]*task),
		displayed: make(map[string]domain.LatLng),
	}
}

// MoveTo animates id toward target. The first position seen for an id is
// displayed immediately without animation.
func (m *Mover) MoveTo(id string, target domain.LatLng) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	if prev, ok := m.tasks[id]; ok {
		prev.cancel()
		delete(m.tasks, id)
	}

	from, seen := m.displayed[id]
	if !seen || from == target {
		m.displayed[id] = target
		m.mu.Unlock()
		m.emit(Frame{ParticipantID: id, Position: target, Done: true})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel}
	m.tasks[id] = t

	anim := Animation{From: from, To: target, Start: m.clock.Now(), Duration: m.duration}
	ticker := m.clock.NewTicker(m.frame)

	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(ctx, id, t, anim, ticker)
}

func (m *Mover) run(ctx context.Context, id string, t *task, anim Animation, ticker *clock.Ticker) {
	defer m.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			pos, done := anim.At(now)
			if !m.step(id, t, pos, done) || done {
				return
			}
		}
	}
}

// step displays and emits one frame of t. It reports false when t no
// longer owns id.
func (m *Mover) step(id string, t *task, pos domain.LatLng, done bool) bool {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	if m.tasks[id] != t {
		m.mu.Unlock()
		return false
	}
	m.displayed[id] = pos
	if done {
		delete(m.tasks, id)
		t.cancel()
	}
	m.mu.Unlock()

	m.emit(Frame{ParticipantID: id, Position: pos, Done: done})
	return true
}

// Position returns the currently displayed position of id.
func (m *Mover) Position(id string) (domain.LatLng, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.displayed[id]
	return p, ok
}

// Animating reports whether id has a running animation.
func (m *Mover) Animating(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tasks[id]
	return ok
}

// Retain drops displayed positions and animations for ids not in keep.
// Used after a bulk snapshot replaces the participant set.
func (m *Mover) Retain(keep map[string]struct{}) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	for id := range m.displayed {
		if _, ok := keep[id]; ok {
			continue
		}
		if t, ok := m.tasks[id]; ok {
			t.cancel()
			delete(m.tasks, id)
		}
		delete(m.displayed, id)
	}
}

// Close cancels every animation and waits for their goroutines.
func (m *Mover) Close() {
	m.mu.Lock()
	m.closed = true
	for id, t := range m.tasks {
		t.cancel()
		delete(m.tasks, id)
	}
	m.mu.Unlock()

	m.wg.Wait()
}

func (m *Mover) emit(f Frame) {
	if m.onFrame != nil {
		m.onFrame(f)
	}
}
