package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"location-tracker/internal/domain"
	"location-tracker/internal/platform/clock"
	"location-tracker/internal/platform/obs"
	"location-tracker/internal/ports"
	"sync"
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

type sentFrame struct {
	event   string
	payload []byte
}

type fakeConn struct {
	inbox chan ports.Message
	sent  chan sentFrame

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbox:  make(chan ports.Message, 16),
		sent:   make(chan sentFrame, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Send(event string, payload any) error {
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	default:
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.sent <- sentFrame{event: event, payload: b}
	return nil
}

func (c *fakeConn) Receive() (ports.Message, error) {
	select {
	case m := <-c.inbox:
		return m, nil
	case <-c.closed:
		return ports.Message{}, io.EOF
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) deliver(event, payload string) {
	c.inbox <- ports.NewMessage(event, []byte(payload), json.Unmarshal)
}

// fakeDialer hands out queued results in order; once the queue is empty
// every dial fails.
type fakeDialer struct {
	mu      sync.Mutex
	results []dialResult
	dials   int
}

type dialResult struct {
	conn *fakeConn
	err  error
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (ports.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.results) == 0 {
		return nil, errors.New("connection refused")
	}
	r := d.results[0]
	d.results = d.results[1:]
	if r.err != nil {
		return nil, r.err
	}
	return r.conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func newTestSession(t *testing.T, d *fakeDialer, opts Options) (*Session, *clock.FakeClock) {
	t.Helper()
	clk := clock.Fake(t0)
	s := NewSession(d, opts, clk, obs.Discard())
	t.Cleanup(s.Disconnect)
	return s, clk
}

func nextEvent(t *testing.T, s *Session) Event {
	t.Helper()
	select {
	case ev := <-s.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

// waitState drains events until the session reports want.
func waitState(t *testing.T, s *Session, want domain.ConnectionState) []Event {
	t.Helper()
	var seen []Event
	for {
		ev := nextEvent(t, s)
		seen = append(seen, ev)
		if ev.Kind == EventConnectionState && ev.State == want {
			return seen
		}
	}
}

func nextSent(t *testing.T, c *fakeConn) sentFrame {
	t.Helper()
	select {
	case f := <-c.sent:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound frame")
		return sentFrame{}
	}
}

func noSent(t *testing.T, c *fakeConn) {
	t.Helper()
	select {
	case f := <-c.sent:
		t.Fatalf("unexpected outbound %s %s", f.event, f.payload)
	default:
	}
}

func TestConnectAuthenticatesBeforeConnected(t *testing.T) {
	conn := newFakeConn()
	s, _ := newTestSession(t, &fakeDialer{results: []dialResult{{conn: conn}}}, DefaultOptions("ws://test"))

	if err := s.Connect(context.Background(), &Credentials{ParticipantID: "me", Token: "tok"}); err != nil {
		t.Fatalf("connect: %v", err)
	}

	events := waitState(t, s, domain.Connected)
	if events[0].State != domain.Connecting {
		t.Fatalf("first state = %v, want connecting", events[0].State)
	}

	auth := nextSent(t, conn)
	if auth.event != "authenticate" || string(auth.payload) != `{"userId":"me","token":"tok"}` {
		t.Fatalf("auth = %s %s", auth.event, auth.payload)
	}
	reg := nextSent(t, conn)
	if reg.event != "register" || string(reg.payload) != `{"userId":"me"}` {
		t.Fatalf("register = %s %s", reg.event, reg.payload)
	}

	if err := s.Connect(context.Background(), nil); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("second connect err = %v", err)
	}
}

func TestPublishOnlyWhenConnected(t *testing.T) {
	conn := newFakeConn()
	s, _ := newTestSession(t, &fakeDialer{results: []dialResult{{conn: conn}}}, DefaultOptions("ws://test"))

	if s.PublishLocation(domain.LatLng{Lat: 1, Lng: 2}, nil) {
		t.Fatal("publish before connect should be a no-op")
	}

	_ = s.Connect(context.Background(), nil)
	waitState(t, s, domain.Connected)

	if !s.PublishLocation(domain.LatLng{Lat: 1, Lng: 2}, nil) {
		t.Fatal("publish while connected should succeed")
	}
	f := nextSent(t, conn)
	if f.event != "sendLocation" || string(f.payload) != `{"lat":1,"lng":2}` {
		t.Fatalf("frame = %s %s", f.event, f.payload)
	}

	if !s.UpdatePermissions(false) {
		t.Fatal("permissions update should succeed")
	}
	if f := nextSent(t, conn); f.event != "updatePermissions" || string(f.payload) != `{"locationSharing":false}` {
		t.Fatalf("frame = %s %s", f.event, f.payload)
	}
}

func TestRichPayload(t *testing.T) {
	conn := newFakeConn()
	opts := DefaultOptions("ws://test")
	opts.Payload = PayloadRich
	s, _ := newTestSession(t, &fakeDialer{results: []dialResult{{conn: conn}}}, opts)

	_ = s.Connect(context.Background(), &Credentials{ParticipantID: "me"})
	waitState(t, s, domain.Connected)
	nextSent(t, conn)
	nextSent(t, conn)

	acc := 12.5
	s.PublishLocation(domain.LatLng{Lat: 1, Lng: 2}, &acc)

	f := nextSent(t, conn)
	want := `{"userId":"me","location":{"lat":1,"lng":2},"accuracy":12.5}`
	if f.event != "updateLocation" || string(f.payload) != want {
		t.Fatalf("frame = %s %s", f.event, f.payload)
	}
}

func TestInboundEvents(t *testing.T) {
	conn := newFakeConn()
	s, _ := newTestSession(t, &fakeDialer{results: []dialResult{{conn: conn}}}, DefaultOptions("ws://test"))

	_ = s.Connect(context.Background(), nil)
	waitState(t, s, domain.Connected)

	conn.deliver("individualLocation", `{"userId":"a","lat":1,"lng":2}`)
	conn.deliver("locationUpdate", `{"userId":"b","location":{"lat":3,"lng":4},"accuracy":8}`)
	conn.deliver("updateLocations", `[{"id":"c","lat":5,"lng":6},{"userId":"d","lat":7,"lng":8}]`)
	conn.deliver("permissionsUpdated", `{"locationSharing":true}`)
	conn.deliver("error", `{"message":"rate limited"}`)
	conn.deliver("individualLocation", `{"lat":1,"lng":2}`)
	conn.deliver("somethingElse", `{}`)
	conn.deliver("connect_error", `"bad token"`)

	ev := nextEvent(t, s)
	if ev.Kind != EventIndividualLocation || ev.Participant.ID != "a" || ev.Participant.Coordinate != (domain.LatLng{Lat: 1, Lng: 2}) {
		t.Fatalf("event 1 = %+v", ev)
	}

	ev = nextEvent(t, s)
	if ev.Participant.ID != "b" || ev.Participant.Accuracy == nil || *ev.Participant.Accuracy != 8 {
		t.Fatalf("event 2 = %+v", ev)
	}

	ev = nextEvent(t, s)
	if ev.Kind != EventBulkLocations || len(ev.Participants) != 2 || ev.Participants[0].ID != "c" || ev.Participants[1].ID != "d" {
		t.Fatalf("event 3 = %+v", ev)
	}

	ev = nextEvent(t, s)
	if ev.Kind != EventPermissionsChanged || !ev.LocationSharing {
		t.Fatalf("event 4 = %+v", ev)
	}

	ev = nextEvent(t, s)
	var se *ServerError
	if ev.Kind != EventError || !errors.As(ev.Err, &se) || se.Message != "rate limited" {
		t.Fatalf("event 5 = %+v", ev)
	}

	// Missing user id surfaces as an error, not a participant.
	ev = nextEvent(t, s)
	if ev.Kind != EventError {
		t.Fatalf("event 6 = %+v", ev)
	}

	// The unknown event is skipped.
	ev = nextEvent(t, s)
	if ev.Kind != EventError || ev.Err.Error() != "bad token" {
		t.Fatalf("event 7 = %+v", ev)
	}
}

func TestReconnectReauthenticatesAndReplays(t *testing.T) {
	for _, replay := range []bool{true, false} {
		name := "replay"
		if !replay {
			name = "no replay"
		}
		t.Run(name, func(t *testing.T) {
			first, second := newFakeConn(), newFakeConn()
			d := &fakeDialer{results: []dialResult{{conn: first}, {conn: second}}}
			opts := DefaultOptions("ws://test")
			opts.ReplayLastLocation = replay
			s, clk := newTestSession(t, d, opts)

			_ = s.Connect(context.Background(), &Credentials{ParticipantID: "me"})
			waitState(t, s, domain.Connected)
			nextSent(t, first)
			nextSent(t, first)

			s.PublishLocation(domain.LatLng{Lat: 1, Lng: 1}, nil)
			nextSent(t, first)

			first.Close()
			events := waitState(t, s, domain.Disconnected)
			var ce *ConnectionError
			if !errors.As(events[0].Err, &ce) {
				t.Fatalf("expected connection error event, got %+v", events[0])
			}

			if s.PublishLocation(domain.LatLng{Lat: 2, Lng: 2}, nil) {
				t.Fatal("publish while disconnected should be a no-op")
			}

			clk.WaitForTimers(1)
			clk.Advance(time.Second)
			waitState(t, s, domain.Connected)

			if f := nextSent(t, second); f.event != "authenticate" {
				t.Fatalf("first frame after reconnect = %s", f.event)
			}
			if f := nextSent(t, second); f.event != "register" {
				t.Fatalf("second frame after reconnect = %s", f.event)
			}
			if replay {
				f := nextSent(t, second)
				if f.event != "sendLocation" || string(f.payload) != `{"lat":1,"lng":1}` {
					t.Fatalf("replayed frame = %s %s", f.event, f.payload)
				}
			}
			noSent(t, second)
		})
	}
}

func TestBackoffGivesUpAfterAttempts(t *testing.T) {
	d := &fakeDialer{}
	opts := DefaultOptions("ws://test")
	opts.ReconnectAttempts = 3
	s, clk := newTestSession(t, d, opts)

	_ = s.Connect(context.Background(), nil)

	for i, delay := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		waitState(t, s, domain.Disconnected)
		clk.WaitForTimers(1)

		clk.Advance(delay - time.Millisecond)
		if got := d.dialCount(); got != i+1 {
			t.Fatalf("dials before delay %v = %d, want %d", delay, got, i+1)
		}
		clk.Advance(time.Millisecond)
	}

	waitState(t, s, domain.ConnectionError)
	if got := d.dialCount(); got != 4 {
		t.Fatalf("dials = %d, want 4", got)
	}
	if s.State() != domain.ConnectionError {
		t.Fatalf("state = %v", s.State())
	}
}

func TestBackoffDelays(t *testing.T) {
	s := NewSession(&fakeDialer{}, DefaultOptions("ws://test"), nil, obs.Discard())

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := s.backoff(i + 1); got != w {
			t.Fatalf("backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestDisconnectReleasesSocket(t *testing.T) {
	conn := newFakeConn()
	s, _ := newTestSession(t, &fakeDialer{results: []dialResult{{conn: conn}, {conn: newFakeConn()}}}, DefaultOptions("ws://test"))

	_ = s.Connect(context.Background(), nil)
	waitState(t, s, domain.Connected)

	s.Disconnect()
	s.Disconnect()

	select {
	case <-conn.closed:
	default:
		t.Fatal("socket not closed")
	}
	if ev := nextEvent(t, s); ev.Kind != EventConnectionState || ev.State != domain.Disconnected {
		t.Fatalf("event = %+v, want disconnected state", ev)
	}
	select {
	case ev := <-s.Events():
		t.Fatalf("unexpected event after disconnect: %+v", ev)
	default:
	}
	if s.State() != domain.Disconnected {
		t.Fatalf("state = %v", s.State())
	}
	if s.PublishLocation(domain.LatLng{}, nil) {
		t.Fatal("publish after disconnect should be a no-op")
	}

	if err := s.Connect(context.Background(), nil); err != nil {
		t.Fatalf("reconnect after disconnect: %v", err)
	}
}

func TestConnectRequiresURL(t *testing.T) {
	s := NewSession(&fakeDialer{}, Options{}, nil, obs.Discard())
	if err := s.Connect(context.Background(), nil); !errors.Is(err, ErrNoURL) {
		t.Fatalf("err = %v", err)
	}
}
