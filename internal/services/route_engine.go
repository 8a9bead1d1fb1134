package services

import (
	"context"
	"errors"
	"fmt"
	"location-tracker/internal/domain"
	"location-tracker/internal/platform/obs"
	"location-tracker/internal/ports"
	"sync"
)

var ErrNoDestination = errors.New("no destination selected")

// Lifecycle of the tracked route.
type RouteState int

const (
	RouteNone RouteState = iota
	// Waiting for a route to a new destination or participant; nothing shown.
	RouteRequested
	RouteActive
	// Refreshing an active route; the previous route stays visible.
	RouteRecomputing
)

func (s RouteState) String() string {
	switch s {
	case RouteRequested:
		return "requested"
	case RouteActive:
		return "active"
	case RouteRecomputing:
		return "recomputing"
	default:
		return "none"
	}
}

// A route computation issued by Request. Completing a request that has
// since been superseded is a no-op.
type RouteRequest struct {
	ID            uint64
	Generation    uint64
	ParticipantID string
	Origin        domain.LatLng
	Destination   domain.LatLng
}

// Read-only copy of the engine state.
type RouteSnapshot struct {
	State         RouteState
	Destination   *domain.Destination
	Generation    uint64
	ParticipantID string
	Progress      domain.ProgressState
	Err           error
}

// RouteEngine owns the active destination, the tracked route and its
// progress. Each destination change bumps a generation used to discard
// results computed for an earlier destination.
//
// The engine is safe for concurrent use; network calls are made without
// holding its lock.
type RouteEngine struct {
	provider ports.RoutingProvider

	mu            sync.Mutex
	destination   *domain.Destination
	generation    uint64
	state         RouteState
	pending       uint64
	nextID        uint64
	participantID string
	progress      domain.ProgressState
	err           error
}

func NewRouteEngine(provider ports.RoutingProvider) *RouteEngine {
	return &RouteEngine{provider: provider}
}

// SetDestination replaces the active destination and returns its
// generation. A route in flight or on display must be requested again.
func (e *RouteEngine) SetDestination(d domain.Destination) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.destination = &d
	e.generation++

	if e.state != RouteNone {
		e.state = RouteRequested
		e.progress = domain.ProgressState{}
		e.err = nil
		// Whatever is in flight targets the old destination.
		e.pending = 0
	}

	return e.generation
}

func (e *RouteEngine) Destination() (domain.Destination, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destination == nil {
		return domain.Destination{}, false
	}
	return *e.destination, true
}

func (e *RouteEngine) Generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}

func (e *RouteEngine) State() RouteState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// TrackedParticipant returns the participant whose route is tracked, if any.
func (e *RouteEngine) TrackedParticipant() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == RouteNone {
		return ""
	}
	return e.participantID
}

// Request starts a route computation for participantID from origin.
// Re-requesting the participant of an active route keeps it visible while
// the new one is computed; anything else drops the current route. Any
// earlier outstanding request is superseded.
func (e *RouteEngine) Request(participantID string, origin domain.LatLng) (RouteRequest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.destination == nil {
		return RouteRequest{}, ErrNoDestination
	}

	if (e.state == RouteActive || e.state == RouteRecomputing) && participantID == e.participantID {
		e.state = RouteRecomputing
	} else {
		e.state = RouteRequested
		e.progress = domain.ProgressState{}
	}
	e.participantID = participantID
	e.err = nil

	e.nextID++
	e.pending = e.nextID

	return RouteRequest{
		ID:            e.pending,
		Generation:    e.generation,
		ParticipantID: participantID,
		Origin:        origin,
		Destination:   e.destination.Coordinate,
	}, nil
}

// Complete applies the outcome of req. It reports false when req was
// superseded and the outcome was discarded. A failure returns the engine
// to RouteNone and keeps err for display.
func (e *RouteEngine) Complete(req RouteRequest, route *domain.Route, err error) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if req.ID != e.pending || req.Generation != e.generation {
		return false
	}
	e.pending = 0

	if err != nil {
		e.state = RouteNone
		e.progress = domain.ProgressState{}
		e.err = err
		return true
	}

	e.state = RouteActive
	e.progress = Progress(route, req.Origin)
	e.err = nil
	return true
}

// Current reports whether req is still the outstanding request.
func (e *RouteEngine) Current(req RouteRequest) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return req.ID == e.pending && req.Generation == e.generation
}

// Track updates progress from a new position of the tracked participant.
// It reports false when participantID is not the one being tracked or no
// route is on display.
func (e *RouteEngine) Track(participantID string, pos domain.LatLng) (domain.ProgressState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if participantID != e.participantID || e.progress.Route == nil {
		return domain.ProgressState{}, false
	}
	if e.state != RouteActive && e.state != RouteRecomputing {
		return domain.ProgressState{}, false
	}

	e.progress = Progress(e.progress.Route, pos)
	return e.progress, true
}

// Fail ends the route lifecycle with err when no request could be issued.
func (e *RouteEngine) Fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state = RouteNone
	e.pending = 0
	e.progress = domain.ProgressState{}
	e.err = err
}

// Clear drops the tracked route and any outstanding request. The
// destination is kept.
func (e *RouteEngine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state = RouteNone
	e.pending = 0
	e.participantID = ""
	e.progress = domain.ProgressState{}
	e.err = nil
}

func (e *RouteEngine) Snapshot() RouteSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := RouteSnapshot{
		State:         e.state,
		Generation:    e.generation,
		ParticipantID: e.participantID,
		Progress:      e.progress,
		Err:           e.err,
	}
	if e.destination != nil {
		d := *e.destination
		s.Destination = &d
	}
	return s
}

// ComputeRoute returns the route from origin to the active destination.
// Without a destination it fails with ErrNoDestination and makes no
// network call. Provider failures come back as *ports.RouteError.
func (e *RouteEngine) ComputeRoute(ctx context.Context, origin domain.LatLng) (*domain.Route, error) {
	dest, ok := e.Destination()
	if !ok {
		return nil, ErrNoDestination
	}
	return e.directions(ctx, origin, dest.Coordinate)
}

// ComputeETA returns the travel time from origin to the active
// destination, with the same failure contract as ComputeRoute.
func (e *RouteEngine) ComputeETA(ctx context.Context, origin domain.LatLng) (domain.ETA, error) {
	dest, ok := e.Destination()
	if !ok {
		return domain.ETA{}, ErrNoDestination
	}
	return e.travelTime(ctx, origin, dest.Coordinate)
}

// Resolve computes the route for req against the destination it was
// issued for.
func (e *RouteEngine) Resolve(ctx context.Context, req RouteRequest) (*domain.Route, error) {
	return e.directions(ctx, req.Origin, req.Destination)
}

func (e *RouteEngine) directions(ctx context.Context, origin, destination domain.LatLng) (route *domain.Route, err error) {
	defer obs.Time(ctx, "engine.ComputeRoute")(&err)

	route, err = e.provider.Directions(ctx, origin, destination)
	if err != nil {
		return nil, classifyProviderError(ctx, err)
	}
	if route == nil || len(route.Legs) == 0 {
		return nil, &ports.RouteError{Kind: ports.RouteZeroResults}
	}
	return route, nil
}

func (e *RouteEngine) travelTime(ctx context.Context, origin, destination domain.LatLng) (eta domain.ETA, err error) {
	defer obs.Time(ctx, "engine.ComputeETA")(&err)

	eta, err = e.provider.TravelTime(ctx, origin, destination)
	if err != nil {
		return domain.ETA{}, classifyProviderError(ctx, err)
	}
	return eta, nil
}

// classifyProviderError leaves cancellation untouched so callers can tell
// an abandoned request from a failed one.
func classifyProviderError(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return fmt.Errorf("routing cancelled: %w", err)
	}
	return ports.ClassifyRouteError(err)
}
