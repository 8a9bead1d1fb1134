package services

import (
	"context"
	"errors"
	"fmt"
	"location-tracker/internal/domain"
	"location-tracker/internal/geofeed"
	"location-tracker/internal/motion"
	"location-tracker/internal/participants"
	"location-tracker/internal/platform/clock"
	"location-tracker/internal/ports"
	"location-tracker/internal/status"
	"location-tracker/internal/transport"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrEmptyQuery         = errors.New("empty search query")
	ErrUnknownParticipant = errors.New("unknown participant")
	ErrTrackerStopped     = errors.New("tracker stopped")
)

const (
	DefaultAutocompleteLimit = 5
	DefaultRetryDelay        = time.Second
)

// The part of the transport session the tracker drives.
type Session interface {
	Events() <-chan transport.Event
	State() domain.ConnectionState
	PublishLocation(coord domain.LatLng, accuracy *float64) bool
	UpdatePermissions(sharing bool) bool
}

type TrackerDeps struct {
	Session  Session
	Feed     *geofeed.Feed
	Store    *participants.Store
	Mover    *motion.Mover
	Engine   *RouteEngine
	Board    *ETABoard
	Reporter *status.Reporter
	Geocoder ports.Geocoder
	Clock    clock.Clock
	Logger   *slog.Logger
}

type TrackerOptions struct {
	Self domain.Identity
	Feed geofeed.Options
	// Extra attempts for transient routing failures.
	RetryAttempts int
	// Delay before the first retry; doubled per attempt.
	RetryDelay     time.Duration
	ETAConcurrency int
}

// Tracker wires the feed, the session, the store and the route engine
// together. Every state change happens on the goroutine running Run;
// network calls run on their own goroutines and post results back.
type Tracker struct {
	session  Session
	feed     *geofeed.Feed
	store    *participants.Store
	mover    *motion.Mover
	engine   *RouteEngine
	board    *ETABoard
	reporter *status.Reporter
	geocoder ports.Geocoder
	clock    clock.Clock
	logger   *slog.Logger
	opts     TrackerOptions

	cmds    chan func()
	results chan func()
	done    chan struct{}
	running atomic.Bool

	// Owned by the loop.
	bg context.Context
	wg sync.WaitGroup

	// Set when the sensor failed; only the user may resume sampling.
	sensorHalted bool
}

// A participant as shown to a reader.
type ParticipantView struct {
	participants.View
	// Animated position; equals Coordinate once motion settles.
	Position domain.LatLng
	ETA      *ETAEntry
}

type TrackerSnapshot struct {
	Self         domain.Identity
	Participants []ParticipantView
	Route        RouteSnapshot
	ETAs         []ETAEntry
	Status       status.Snapshot
	Sharing      bool
	Tracking     bool
}

func NewTracker(deps TrackerDeps, opts TrackerOptions) (*Tracker, error) {
	switch {
	case deps.Session == nil:
		return nil, errors.New("new tracker: session is nil")
	case deps.Feed == nil:
		return nil, errors.New("new tracker: feed is nil")
	case deps.Store == nil:
		return nil, errors.New("new tracker: store is nil")
	case deps.Mover == nil:
		return nil, errors.New("new tracker: mover is nil")
	case deps.Engine == nil:
		return nil, errors.New("new tracker: engine is nil")
	case deps.Reporter == nil:
		return nil, errors.New("new tracker: reporter is nil")
	case deps.Geocoder == nil:
		return nil, errors.New("new tracker: geocoder is nil")
	}
	if opts.Self.ParticipantID == "" {
		return nil, errors.New("new tracker: self participant id is empty")
	}

	if deps.Board == nil {
		deps.Board = NewETABoard()
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.ETAConcurrency <= 0 {
		opts.ETAConcurrency = DefaultETAConcurrency
	}

	return &Tracker{
		session:  deps.Session,
		feed:     deps.Feed,
		store:    deps.Store,
		mover:    deps.Mover,
		engine:   deps.Engine,
		board:    deps.Board,
		reporter: deps.Reporter,
		geocoder: deps.Geocoder,
		clock:    deps.Clock,
		logger:   deps.Logger,
		opts:     opts,
		cmds:     make(chan func()),
		results:  make(chan func()),
		done:     make(chan struct{}),
	}, nil
}

// Run starts position sampling and processes events until ctx is
// cancelled. On return the feed is stopped and every request goroutine
// has exited. A Tracker runs once.
func (t *Tracker) Run(ctx context.Context) error {
	if !t.running.CompareAndSwap(false, true) {
		return errors.New("tracker: already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	t.bg = ctx

	unsubscribe := t.store.Subscribe(t.onStoreChange)

	defer func() {
		unsubscribe()
		t.feed.Stop()
		cancel()
		t.wg.Wait()
		close(t.done)
	}()

	if err := t.feed.Start(ctx, t.opts.Feed); err != nil {
		t.logger.Error("position feed did not start", "err", err)
		t.reporter.Report(err)
	}

	t.logger.Info("tracker running", "participant_id", t.opts.Self.ParticipantID)

	events := t.session.Events()
	readings := t.feed.Readings()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("tracker stopping")
			return nil
		case ev := <-events:
			t.handleEvent(ev)
		case r := <-readings:
			t.handleReading(r)
		case fn := <-t.cmds:
			fn()
		case fn := <-t.results:
			fn()
		}
	}
}

// do runs fn on the loop and waits for it to finish.
func (t *Tracker) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	cmd := func() {
		defer close(finished)
		fn()
	}

	select {
	case t.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return ErrTrackerStopped
	}

	<-finished
	return nil
}

// post hands a request result back to the loop.
func (t *Tracker) post(ctx context.Context, fn func()) {
	select {
	case t.results <- fn:
	case <-ctx.Done():
	}
}

func (t *Tracker) handleEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventIndividualLocation:
		if err := t.store.ApplyIndividual(ev.Participant); err != nil {
			t.logger.Warn("dropping participant update", "participant_id", ev.Participant.ID, "err", err)
		}

	case transport.EventBulkLocations:
		if skipped := t.store.ApplyBulk(ev.Participants); skipped > 0 {
			t.logger.Warn("bulk update had invalid entries", "skipped", skipped)
		}

	case transport.EventPermissionsChanged:
		t.setSharing(ev.LocationSharing, false)

	case transport.EventError:
		t.reporter.Report(ev.Err)

	case transport.EventConnectionState:
		t.logger.Info("connection state changed", "state", ev.State.String())
	}
}

func (t *Tracker) handleReading(r geofeed.Reading) {
	if r.Err != nil {
		t.sensorHalted = true
		t.reporter.Reportf("Error getting location: %s", r.Err.Error())
		return
	}

	s := r.Sample
	if !t.session.PublishLocation(s.Coordinate, s.Accuracy) {
		t.logger.Debug("location not published", "state", t.session.State().String())
	}

	self := domain.Participant{
		ID:          t.opts.Self.ParticipantID,
		Coordinate:  s.Coordinate,
		Accuracy:    s.Accuracy,
		DisplayName: t.opts.Self.DisplayName,
	}
	if err := t.store.ApplyIndividual(self); err != nil {
		t.logger.Warn("dropping own position", "err", err)
	}
}

// onStoreChange runs on the loop, synchronously with the store write.
func (t *Tracker) onStoreChange(c participants.Change) {
	if c.Kind == participants.ChangeBulk {
		keep := make(map[string]struct{}, len(c.IDs))
		for _, id := range c.IDs {
			keep[id] = struct{}{}
		}
		t.mover.Retain(keep)
	}

	for _, id := range c.IDs {
		p, ok := t.store.Get(id)
		if !ok {
			continue
		}
		t.mover.MoveTo(id, p.Coordinate)

		if progress, ok := t.engine.Track(id, p.Coordinate); ok {
			t.logger.Debug("route progress",
				"participant_id", id,
				"leg", progress.NearestLegIndex,
				"percent", progress.PercentComplete,
			)
		}
	}
}

func (t *Tracker) setDestination(dest domain.Destination) {
	gen := t.engine.SetDestination(dest)

	all := t.store.All()
	ids := make([]string, 0, len(all))
	for _, p := range all {
		ids = append(ids, p.ID)
	}
	t.board.Reset(gen, ids)

	t.logger.Info("destination selected", "label", dest.Label, "coordinate", dest.Coordinate.String(), "generation", gen)

	t.fetchETAs(gen, dest, all)

	if id := t.engine.TrackedParticipant(); id != "" {
		if err := t.requestRoute(id); err != nil {
			t.engine.Fail(err)
			t.reporter.Report(err)
		}
	}
}

func (t *Tracker) fetchETAs(gen uint64, dest domain.Destination, ps []domain.Participant) {
	if len(ps) == 0 {
		return
	}

	ctx := t.bg
	compute := func(ctx context.Context, origin domain.LatLng) (domain.ETA, error) {
		return t.engine.travelTime(ctx, origin, dest.Coordinate)
	}
	deliver := func(r ETAResult) {
		t.post(ctx, func() { t.applyETA(r) })
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if err := FetchETAs(ctx, compute, gen, ps, t.opts.ETAConcurrency, deliver); err != nil && ctx.Err() == nil {
			t.logger.Warn("eta fan-out failed", "generation", gen, "err", err)
		}
	}()
}

func (t *Tracker) applyETA(r ETAResult) {
	if !t.board.Apply(r) {
		t.logger.Debug("discarding stale eta", "participant_id", r.ParticipantID, "generation", r.Generation)
		return
	}
	if r.Err != nil {
		t.logger.Warn("eta failed", "participant_id", r.ParticipantID, "err", r.Err)
	}
}

func (t *Tracker) requestRoute(participantID string) error {
	p, ok := t.store.Get(participantID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownParticipant, participantID)
	}

	req, err := t.engine.Request(participantID, p.Coordinate)
	if err != nil {
		return err
	}

	ctx := t.bg
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		route, err := t.resolveWithRetry(ctx, req)
		if ctx.Err() != nil {
			return
		}
		t.post(ctx, func() { t.finishRoute(req, route, err) })
	}()

	return nil
}

// resolveWithRetry retries transient routing failures with exponential
// backoff. Terminal failures and superseded requests return at once.
func (t *Tracker) resolveWithRetry(ctx context.Context, req RouteRequest) (*domain.Route, error) {
	delay := t.opts.RetryDelay

	for attempt := 0; ; attempt++ {
		route, err := t.engine.Resolve(ctx, req)
		if err == nil {
			return route, nil
		}

		var re *ports.RouteError
		if !errors.As(err, &re) || !re.Transient() || attempt >= t.opts.RetryAttempts || !t.engine.Current(req) {
			return nil, err
		}

		t.logger.Warn("route request failed, retrying",
			"participant_id", req.ParticipantID,
			"attempt", attempt+1,
			"delay", delay,
			"err", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.clock.After(delay):
		}
		delay *= 2
	}
}

func (t *Tracker) finishRoute(req RouteRequest, route *domain.Route, err error) {
	if !t.engine.Complete(req, route, err) {
		t.logger.Debug("discarding superseded route", "participant_id", req.ParticipantID, "request", req.ID)
		return
	}
	if err != nil {
		t.logger.Warn("route failed", "participant_id", req.ParticipantID, "err", err)
		t.reporter.Report(err)
		return
	}
	t.logger.Info("route ready",
		"participant_id", req.ParticipantID,
		"legs", len(route.Legs),
		"distance", route.TotalDistanceText,
		"duration", route.TotalDurationText,
	)
}

// setSharing toggles sampling and, when announce is set, tells the server.
// Changes without announce come from the server: they may stop sampling
// but never resume a feed halted by a sensor error.
func (t *Tracker) setSharing(enabled, announce bool) {
	if announce {
		t.sensorHalted = false
	} else if enabled && t.sensorHalted {
		t.logger.Info("server allowed location sharing, sampling stays halted")
		return
	}

	if err := t.feed.SetEnabled(enabled); err != nil {
		t.reporter.Report(err)
	}
	// The feed may never have been started or was stopped.
	if enabled && !t.feed.Active() {
		if err := t.feed.Start(t.bg, t.opts.Feed); err != nil {
			t.reporter.Report(err)
		}
	}
	if announce {
		t.session.UpdatePermissions(enabled)
	}
	t.logger.Info("location sharing changed", "enabled", enabled)
}

// SearchDestination geocodes query and makes the result the active
// destination. ETAs are requested for every known participant and a
// tracked route is recomputed.
func (t *Tracker) SearchDestination(ctx context.Context, query string) (domain.Destination, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return domain.Destination{}, ErrEmptyQuery
	}

	place, err := t.geocoder.Geocode(ctx, q)
	if err != nil {
		report := func() { t.reporter.Report(err) }
		if errors.Is(err, ports.ErrPlaceNotFound) {
			report = func() { t.reporter.Reportf("Location not found. Please try again.") }
		}
		if derr := t.do(ctx, report); derr != nil {
			return domain.Destination{}, derr
		}
		return domain.Destination{}, fmt.Errorf("search destination: %w", err)
	}

	dest := domain.Destination{Coordinate: place.Coordinate, Label: place.FormattedAddress}
	if err := t.do(ctx, func() { t.setDestination(dest) }); err != nil {
		return domain.Destination{}, err
	}
	return dest, nil
}

// Autocomplete returns place suggestions for a partial query.
func (t *Tracker) Autocomplete(ctx context.Context, query string, limit int) ([]domain.Place, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return []domain.Place{}, nil
	}
	if limit <= 0 {
		limit = DefaultAutocompleteLimit
	}

	places, err := t.geocoder.Autocomplete(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("autocomplete: %w", err)
	}
	return places, nil
}

// SelectParticipant routes participantID to the active destination and
// tracks its progress. An empty id refreshes the tracked route. If
// position sampling is stopped it is restarted.
func (t *Tracker) SelectParticipant(ctx context.Context, participantID string) error {
	var err error
	derr := t.do(ctx, func() {
		if _, ok := t.engine.Destination(); !ok {
			t.reporter.Reportf("Please search for a destination first")
			err = ErrNoDestination
			return
		}

		id := strings.TrimSpace(participantID)
		if id == "" {
			id = t.engine.TrackedParticipant()
		}
		if id == "" {
			err = fmt.Errorf("%w: no participant selected", ErrUnknownParticipant)
			return
		}
		if _, ok := t.store.Get(id); !ok {
			err = fmt.Errorf("%w: %q", ErrUnknownParticipant, id)
			return
		}

		if !t.feed.Active() {
			t.setSharing(true, true)
		}

		err = t.requestRoute(id)
	})
	if derr != nil {
		return derr
	}
	return err
}

// ClearRoute stops tracking the current route.
func (t *Tracker) ClearRoute(ctx context.Context) error {
	return t.do(ctx, t.engine.Clear)
}

// SetSharing starts or stops sampling and publishing the local position.
func (t *Tracker) SetSharing(ctx context.Context, enabled bool) error {
	return t.do(ctx, func() { t.setSharing(enabled, true) })
}

func (t *Tracker) Snapshot(ctx context.Context) (TrackerSnapshot, error) {
	var s TrackerSnapshot
	err := t.do(ctx, func() {
		s.Self = t.opts.Self
		s.Route = t.engine.Snapshot()
		s.ETAs = t.board.Entries()
		s.Status = t.reporter.Snapshot()
		s.Sharing = t.feed.Enabled()
		s.Tracking = t.feed.Active()

		views := participants.Project(t.store.All(), t.opts.Self.ParticipantID)
		s.Participants = make([]ParticipantView, 0, len(views))
		for _, v := range views {
			pv := ParticipantView{View: v, Position: v.Coordinate}
			if pos, ok := t.mover.Position(v.ID); ok {
				pv.Position = pos
			}
			if e, ok := t.board.Get(v.ID); ok {
				pv.ETA = &e
			}
			s.Participants = append(s.Participants, pv)
		}
	})
	return s, err
}
