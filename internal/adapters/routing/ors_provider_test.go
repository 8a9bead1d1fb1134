package routing

import (
	"context"
	"errors"
	"location-tracker/internal/domain"
	"location-tracker/internal/ports"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
)

const directionsBody = `{
  "features": [{
    "geometry": {"coordinates": [[-122.40,37.78],[-122.41,37.79],[-122.42,37.80]]},
    "properties": {
      "segments": [{
        "steps": [
          {"distance": 400.4, "duration": 61.2, "instruction": "Head north", "way_points": [0,1]},
          {"distance": 850.0, "duration": 119.6, "instruction": "Turn left", "way_points": [1,2]}
        ]
      }],
      "summary": {"distance": 1300.4, "duration": 180.8}
    }
  }]
}`

type memGeocodeCache struct {
	mu sync.Mutex
	m  map[string]domain.Place
}

func (c *memGeocodeCache) GetMany(ctx context.Context, queries []string) (map[string]domain.Place, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := map[string]domain.Place{}
	for _, q := range queries {
		if p, ok := c.m[q]; ok {
			out[q] = p
		}
	}
	return out, nil
}

func (c *memGeocodeCache) PutMany(ctx context.Context, results map[string]domain.Place) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range results {
		c.m[k] = v
	}
	return nil
}

type memETACache struct {
	mu sync.Mutex
	m  map[string]domain.ETA
}

func (c *memETACache) Get(ctx context.Context, o, d domain.LatLng) (domain.ETA, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	eta, ok := c.m[o.String()+"|"+d.String()]
	return eta, ok, nil
}

func (c *memETACache) Put(ctx context.Context, o, d domain.LatLng, eta domain.ETA) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[o.String()+"|"+d.String()] = eta
	return nil
}

func newTestProvider(t *testing.T, h http.HandlerFunc, gc ports.GeocodeCache, ec ports.ETACache) *ORSProvider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	p, err := NewORSProvider(ORSConfig{APIKey: "test-key", BaseURL: srv.URL}, gc, ec)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return p
}

func TestNewORSProviderRequiresKey(t *testing.T) {
	if _, err := NewORSProvider(ORSConfig{}, nil, nil); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func TestDirectionsBuildsLegs(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/directions/driving-car" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "test-key" {
			t.Errorf("authorization = %q", got)
		}
		if got := r.URL.Query().Get("start"); got != "-122.400000,37.780000" {
			t.Errorf("start = %q", got)
		}
		w.Write([]byte(directionsBody))
	}, nil, nil)

	origin := domain.LatLng{Lat: 37.78, Lng: -122.40}
	dest := domain.LatLng{Lat: 37.80, Lng: -122.42}

	route, err := p.Directions(context.Background(), origin, dest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(route.Legs) != 2 {
		t.Fatalf("expected 2 legs, got %d", len(route.Legs))
	}
	if route.Legs[1].Start != (domain.LatLng{Lat: 37.79, Lng: -122.41}) {
		t.Fatalf("leg 1 start = %v", route.Legs[1].Start)
	}
	if route.Legs[0].Instruction != "Head north" {
		t.Fatalf("instruction = %q", route.Legs[0].Instruction)
	}
	if route.TotalDistanceMeters != 1300 || route.TotalDurationSeconds != 181 {
		t.Fatalf("totals = %d m, %d s", route.TotalDistanceMeters, route.TotalDurationSeconds)
	}
	if route.TotalDurationText != "4 mins" {
		t.Fatalf("duration text = %q", route.TotalDurationText)
	}
	if route.TotalDistanceText != "1.3 km" {
		t.Fatalf("distance text = %q", route.TotalDistanceText)
	}
}

func TestDirectionsClassifiesFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   ports.RouteErrorKind
	}{
		{"denied", http.StatusForbidden, `{"error":"Access to this API has been disallowed"}`, ports.RouteRequestDenied},
		{"quota", http.StatusTooManyRequests, `{"error":"Rate Limit Exceeded"}`, ports.RouteQuotaExceeded},
		{"zero results", http.StatusNotFound, `{"error":{"code":2009,"message":"Route could not be found"}}`, ports.RouteZeroResults},
		{"point not found", http.StatusNotFound, `{"error":{"code":2010,"message":"Could not find routable point"}}`, ports.RouteNotFound},
		{"bad request", http.StatusBadRequest, `{"error":{"code":2003}}`, ports.RouteUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}, nil, nil)

			_, err := p.Directions(context.Background(), domain.LatLng{Lat: 1, Lng: 1}, domain.LatLng{Lat: 2, Lng: 2})

			var re *ports.RouteError
			if !errors.As(err, &re) {
				t.Fatalf("expected *RouteError, got %v", err)
			}
			if re.Kind != tc.want {
				t.Fatalf("kind = %v, want %v", re.Kind, tc.want)
			}
		})
	}
}

func TestDirectionsRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(directionsBody))
	}, nil, nil)

	if _, err := p.Directions(context.Background(), domain.LatLng{Lat: 1, Lng: 1}, domain.LatLng{Lat: 2, Lng: 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
}

func TestDirectionsDoesNotRetryQuota(t *testing.T) {
	var calls atomic.Int32
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}, nil, nil)

	_, err := p.Directions(context.Background(), domain.LatLng{Lat: 1, Lng: 1}, domain.LatLng{Lat: 2, Lng: 2})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestTravelTimeUsesCache(t *testing.T) {
	var calls atomic.Int32
	cache := &memETACache{m: map[string]domain.ETA{}}
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(directionsBody))
	}, nil, cache)

	o := domain.LatLng{Lat: 1, Lng: 1}
	d := domain.LatLng{Lat: 2, Lng: 2}

	for i := 0; i < 2; i++ {
		eta, err := p.TravelTime(context.Background(), o, d)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if eta.DurationSeconds != 181 || eta.DurationText != "4 mins" {
			t.Fatalf("eta = %+v", eta)
		}
	}

	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestGeocodeCachesNormalizedQuery(t *testing.T) {
	var calls atomic.Int32
	cache := &memGeocodeCache{m: map[string]domain.Place{}}
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if got := r.URL.Query().Get("text"); got != "1 Market St" {
			t.Errorf("text = %q", got)
		}
		w.Write([]byte(`{"features":[{"geometry":{"coordinates":[-122.39,37.79]},"properties":{"label":"1 Market St, San Francisco, CA, USA"}}]}`))
	}, cache, nil)

	for _, q := range []string{"1 Market St", "  1   Market St "} {
		place, err := p.Geocode(context.Background(), q)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if place.Coordinate != (domain.LatLng{Lat: 37.79, Lng: -122.39}) {
			t.Fatalf("coordinate = %v", place.Coordinate)
		}
	}

	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestGeocodeNoResults(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"features":[]}`))
	}, nil, nil)

	_, err := p.Geocode(context.Background(), "nowhere at all")
	if !errors.Is(err, ports.ErrPlaceNotFound) {
		t.Fatalf("expected ErrPlaceNotFound, got %v", err)
	}
}

func TestAutocompleteLimitsSuggestions(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/geocode/autocomplete" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("size"); got != "2" {
			t.Errorf("size = %q", got)
		}
		w.Write([]byte(`{"features":[
			{"geometry":{"coordinates":[1,1]},"properties":{"label":"A"}},
			{"geometry":{"coordinates":[2,2]},"properties":{"label":"B"}},
			{"geometry":{"coordinates":[3,3]},"properties":{"label":"C"}}
		]}`))
	}, nil, nil)

	places, err := p.Autocomplete(context.Background(), "ma", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(places) != 2 || places[1].FormattedAddress != "B" {
		t.Fatalf("places = %+v", places)
	}
}
