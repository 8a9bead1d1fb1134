// Package transport owns the connection to the location rebroadcast server.
package transport

import (
	"context"
	"errors"
	"location-tracker/internal/domain"
	"location-tracker/internal/platform/clock"
	"location-tracker/internal/ports"
	"log/slog"
	"sync"
	"time"
)

type EventKind int

const (
	EventIndividualLocation EventKind = iota
	EventBulkLocations
	EventPermissionsChanged
	EventError
	EventConnectionState
)

func (k EventKind) String() string {
	switch k {
	case EventIndividualLocation:
		return "individualLocation"
	case EventBulkLocations:
		return "bulkLocations"
	case EventPermissionsChanged:
		return "permissionsChanged"
	case EventError:
		return "error"
	case EventConnectionState:
		return "connectionState"
	default:
		return "unknown"
	}
}

// Event is one inbound notification. Only the fields of its Kind are set.
type Event struct {
	Kind            EventKind
	Participant     domain.Participant
	Participants    []domain.Participant
	LocationSharing bool
	Err             error
	State           domain.ConnectionState
}

// ServerError is an error signaled by the server or the socket layer.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string { return e.Message }

// ConnectionError wraps a dial or read failure.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string { return "connection error: " + e.Err.Error() }
func (e *ConnectionError) Unwrap() error { return e.Err }

// Message is the user-facing text.
func (e *ConnectionError) Message() string { return "Connection error: " + e.Err.Error() }

var (
	ErrAlreadyConnected = errors.New("transport: session already started")
	ErrNoURL            = errors.New("transport: no server url")
)

// Payload selects the outbound location event shape.
type Payload int

const (
	// sendLocation {lat, lng}
	PayloadSimple Payload = iota
	// updateLocation {userId, location, accuracy}
	PayloadRich
)

type Options struct {
	URL                string
	ReconnectDelay     time.Duration
	ReconnectDelayMax  time.Duration
	ReconnectAttempts  int
	ReplayLastLocation bool
	Payload            Payload
}

// DefaultOptions matches the web client: 1 s base delay, 5 s cap, 5 attempts.
func DefaultOptions(url string) Options {
	return Options{
		URL:                url,
		ReconnectDelay:     time.Second,
		ReconnectDelayMax:  5 * time.Second,
		ReconnectAttempts:  5,
		ReplayLastLocation: true,
	}
}

type Credentials struct {
	ParticipantID string
	Token         string
}

type publishedLocation struct {
	coord    domain.LatLng
	accuracy *float64
}

// Session keeps one connection alive, reconnecting with exponential
// backoff. Failures surface as events and state; no method blocks on the
// network except Disconnect, which waits for the connection goroutine.
type Session struct {
	dialer ports.Dialer
	opts   Options
	clock  clock.Clock
	logger *slog.Logger

	events chan Event

	mu      sync.Mutex
	state   domain.ConnectionState
	conn    ports.Conn
	creds   *Credentials
	last    *publishedLocation
	cancel  context.CancelFunc
	running bool

	wg sync.WaitGroup
}

func NewSession(dialer ports.Dialer, opts Options, clk clock.Clock, logger *slog.Logger) *Session {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = time.Second
	}
	if opts.ReconnectDelayMax < opts.ReconnectDelay {
		opts.ReconnectDelayMax = opts.ReconnectDelay
	}
	return &Session{
		dialer: dialer,
		opts:   opts,
		clock:  clk,
		logger: logger,
		events: make(chan Event, 64),
		state:  domain.Disconnected,
	}
}

// Events delivers inbound events and connection state changes in order.
// It is never closed.
func (s *Session) Events() <-chan Event { return s.events }

func (s *Session) State() domain.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect starts the connection goroutine. creds may be nil for an
// anonymous session. The only errors are misuse errors.
func (s *Session) Connect(ctx context.Context, creds *Credentials) error {
	if s.opts.URL == "" {
		return ErrNoURL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyConnected
	}
	// A session that gave up reconnecting may be started again.
	if s.cancel != nil {
		s.cancel()
	}

	if creds != nil {
		c := *creds
		s.creds = &c
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go s.run(runCtx)

	return nil
}

// Disconnect closes the socket, stops reconnecting and waits for the
// connection goroutine. It is safe to call repeatedly.
func (s *Session) Disconnect() {
	s.mu.Lock()
	cancel, conn := s.cancel, s.conn
	if cancel != nil {
		cancel()
	}
	s.cancel = nil
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	s.wg.Wait()

	s.mu.Lock()
	changed := s.state != domain.Disconnected
	s.state = domain.Disconnected
	s.mu.Unlock()

	// The reader may already be gone; drop the event rather than block.
	if changed {
		select {
		case s.events <- Event{Kind: EventConnectionState, State: domain.Disconnected}:
		default:
			s.logger.Debug("final connection state dropped, events buffer full")
		}
	}
}

// PublishLocation sends the local position when connected and reports
// whether it was handed to the socket. Nothing is queued or retried.
func (s *Session) PublishLocation(coord domain.LatLng, accuracy *float64) bool {
	s.mu.Lock()
	conn, state := s.conn, s.state
	var userID string
	if s.creds != nil {
		userID = s.creds.ParticipantID
	}
	s.mu.Unlock()

	if state != domain.Connected || conn == nil {
		return false
	}

	if err := s.sendLocation(conn, userID, coord, accuracy); err != nil {
		s.logger.Debug("location publish dropped", "err", err)
		return false
	}

	s.mu.Lock()
	s.last = &publishedLocation{coord: coord, accuracy: accuracy}
	s.mu.Unlock()

	return true
}

// UpdatePermissions tells the server whether this participant shares its
// location. Like PublishLocation it is a no-op unless connected.
func (s *Session) UpdatePermissions(sharing bool) bool {
	s.mu.Lock()
	conn, state := s.conn, s.state
	s.mu.Unlock()

	if state != domain.Connected || conn == nil {
		return false
	}
	if err := conn.Send(evUpdatePermissions, permissionsPayload{LocationSharing: sharing}); err != nil {
		s.logger.Debug("permissions update dropped", "err", err)
		return false
	}
	return true
}

func (s *Session) sendLocation(conn ports.Conn, userID string, coord domain.LatLng, accuracy *float64) error {
	if s.opts.Payload == PayloadRich {
		return conn.Send(evUpdateLocation, updateLocationPayload{UserID: userID, Location: coord, Accuracy: accuracy})
	}
	return conn.Send(evSendLocation, sendLocationPayload{Lat: coord.Lat, Lng: coord.Lng})
}

func (s *Session) run(ctx context.Context) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	failures := 0
	connectedBefore := false

	for {
		s.setState(ctx, domain.Connecting)

		conn, err := s.dialer.Dial(ctx, s.opts.URL)
		if ctx.Err() != nil {
			if conn != nil {
				_ = conn.Close()
			}
			return
		}

		if err == nil {
			err = s.handshake(ctx, conn, connectedBefore)
		}

		if err == nil {
			failures = 0
			connectedBefore = true
			s.logger.Info("transport connected", "url", s.opts.URL)

			err = s.readLoop(ctx, conn)
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("transport disconnected", "err", err)
		} else {
			s.logger.Warn("transport connect failed", "url", s.opts.URL, "err", err)
		}

		s.emit(ctx, Event{Kind: EventError, Err: &ConnectionError{Err: err}})

		failures++
		if failures > s.opts.ReconnectAttempts {
			s.setState(ctx, domain.ConnectionError)
			s.logger.Error("transport giving up", "attempts", s.opts.ReconnectAttempts)
			return
		}

		s.setState(ctx, domain.Disconnected)

		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(s.backoff(failures)):
		}
	}
}

// handshake installs conn, authenticates and, on reconnects, replays the
// last published location. The session reports connected only afterwards
// so no location can overtake authentication.
func (s *Session) handshake(ctx context.Context, conn ports.Conn, reconnect bool) error {
	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		_ = conn.Close()
		return ctx.Err()
	}
	s.conn = conn
	creds, last := s.creds, s.last
	s.mu.Unlock()

	fail := func(err error) error {
		s.dropConn(conn)
		return err
	}

	if creds != nil {
		if err := conn.Send(evAuthenticate, authenticatePayload{UserID: creds.ParticipantID, Token: creds.Token}); err != nil {
			return fail(err)
		}
		if err := conn.Send(evRegister, registerPayload{UserID: creds.ParticipantID}); err != nil {
			return fail(err)
		}
	}

	if reconnect && s.opts.ReplayLastLocation && last != nil {
		var userID string
		if creds != nil {
			userID = creds.ParticipantID
		}
		if err := s.sendLocation(conn, userID, last.coord, last.accuracy); err != nil {
			return fail(err)
		}
	}

	s.setState(ctx, domain.Connected)
	return nil
}

func (s *Session) readLoop(ctx context.Context, conn ports.Conn) error {
	defer s.dropConn(conn)

	for {
		msg, err := conn.Receive()
		if err != nil {
			return err
		}

		ev, ok, err := decodeEvent(msg)
		if err != nil {
			s.emit(ctx, Event{Kind: EventError, Err: err})
			continue
		}
		if !ok {
			s.logger.Debug("ignoring inbound event", "event", msg.Event)
			continue
		}
		s.emit(ctx, ev)
	}
}

func (s *Session) dropConn(conn ports.Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
	_ = conn.Close()
}

// backoff returns the delay before reconnect attempt n (1-based):
// ReconnectDelay doubled per attempt, capped at ReconnectDelayMax.
func (s *Session) backoff(n int) time.Duration {
	d := s.opts.ReconnectDelay
	for i := 1; i < n; i++ {
		d *= 2
		if d >= s.opts.ReconnectDelayMax {
			return s.opts.ReconnectDelayMax
		}
	}
	return d
}

func (s *Session) setState(ctx context.Context, state domain.ConnectionState) {
	s.mu.Lock()
	changed := s.state != state
	s.state = state
	s.mu.Unlock()

	if changed {
		s.emit(ctx, Event{Kind: EventConnectionState, State: state})
	}
}

func (s *Session) emit(ctx context.Context, ev Event) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}
