package routing

import (
	"context"
	"fmt"
	"location-tracker/internal/domain"
	"location-tracker/internal/ports"
	"sort"
	"strings"
	"sync"
)

// MockRoutingProvider serves straight-line routes and travel times derived
// from great-circle distance at a fixed speed. Places are looked up by exact
// normalized query. It is used for local runs without an API key.
type MockRoutingProvider struct {
	mu     sync.Mutex
	places map[string]domain.Place
	// Meters per second used to derive durations.
	speed float64
	// Returned from every routing call when set.
	err   error
	calls int
}

func NewMockRoutingProvider(places []domain.Place, speedMPS float64) *MockRoutingProvider {
	m := make(map[string]domain.Place, len(places))
	for _, p := range places {
		m[strings.ToLower(p.FormattedAddress)] = p
	}
	if speedMPS <= 0 {
		speedMPS = 13.9
	}
	return &MockRoutingProvider{places: m, speed: speedMPS}
}

// FailWith makes subsequent routing calls return err. Nil clears it.
func (p *MockRoutingProvider) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Calls reports the number of Directions and TravelTime calls made.
func (p *MockRoutingProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *MockRoutingProvider) Directions(ctx context.Context, origin, destination domain.LatLng) (*domain.Route, error) {
	if err := p.begin(ctx); err != nil {
		return nil, err
	}

	meters := int(origin.DistanceMeters(destination))
	seconds := int(float64(meters) / p.speed)

	return &domain.Route{
		Origin:      origin,
		Destination: destination,
		Legs: []domain.Leg{{
			Start:           origin,
			End:             destination,
			Instruction:     "Head to destination",
			DistanceMeters:  meters,
			DurationSeconds: seconds,
			DurationText:    domain.FormatDuration(seconds),
		}},
		TotalDistanceMeters:  meters,
		TotalDurationSeconds: seconds,
		TotalDistanceText:    domain.FormatDistance(meters),
		TotalDurationText:    domain.FormatDuration(seconds),
	}, nil
}

func (p *MockRoutingProvider) TravelTime(ctx context.Context, origin, destination domain.LatLng) (domain.ETA, error) {
	if err := p.begin(ctx); err != nil {
		return domain.ETA{}, err
	}
	seconds := int(origin.DistanceMeters(destination) / p.speed)
	return domain.ETA{DurationSeconds: seconds, DurationText: domain.FormatDuration(seconds)}, nil
}

func (p *MockRoutingProvider) Geocode(ctx context.Context, query string) (domain.Place, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	place, ok := p.places[strings.ToLower(strings.TrimSpace(query))]
	if !ok {
		return domain.Place{}, fmt.Errorf("%w: %q", ports.ErrPlaceNotFound, query)
	}
	return place, nil
}

func (p *MockRoutingProvider) Autocomplete(ctx context.Context, query string, limit int) ([]domain.Place, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	q := strings.ToLower(strings.TrimSpace(query))
	out := []domain.Place{}
	for key, place := range p.places {
		if q != "" && strings.Contains(key, q) {
			out = append(out, place)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FormattedAddress < out[j].FormattedAddress })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (p *MockRoutingProvider) begin(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return p.err
	}
	return nil
}
