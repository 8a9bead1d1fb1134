// Package sensor provides PositionSensor implementations for hosts without
// a platform location service.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"location-tracker/internal/domain"
	"location-tracker/internal/motion"
	"location-tracker/internal/platform/clock"
	"location-tracker/internal/ports"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Horizontal accuracy reported for replayed samples, in meters.
const (
	highAccuracyMeters   = 5.0
	coarseAccuracyMeters = 50.0
)

// ReplaySensor replays a fixed coordinate track, one point per interval.
// The first point is delivered as soon as Watch is called. After the last
// point the sensor goes quiet unless Loop is set.
type ReplaySensor struct {
	Track    []domain.LatLng
	Interval time.Duration
	Loop     bool
	Clock    clock.Clock

	mu sync.Mutex
	// Injected failure delivered after failAfter samples.
	failErr   error
	failAfter int
}

func NewReplaySensor(track []domain.LatLng, interval time.Duration, clk clock.Clock) *ReplaySensor {
	if clk == nil {
		clk = clock.Real()
	}
	return &ReplaySensor{Track: track, Interval: interval, Clock: clk}
}

// FailAfter makes the next Watch report err once n samples were delivered.
// A nil err clears the injection.
func (s *ReplaySensor) FailAfter(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAfter = n
	s.failErr = err
}

func (s *ReplaySensor) Watch(ctx context.Context, opts ports.SensorOptions) (<-chan ports.SensorReading, error) {
	if len(s.Track) == 0 {
		return nil, errors.New("replay sensor: empty track")
	}
	if s.Interval <= 0 {
		return nil, errors.New("replay sensor: interval must be positive")
	}

	s.mu.Lock()
	failErr, failAfter := s.failErr, s.failAfter
	s.mu.Unlock()

	accuracy := coarseAccuracyMeters
	if opts.HighAccuracy {
		accuracy = highAccuracyMeters
	}

	out := make(chan ports.SensorReading)
	ticker := s.Clock.NewTicker(s.Interval)

	go func() {
		defer close(out)
		defer ticker.Stop()

		send := func(r ports.SensorReading) bool {
			select {
			case out <- r:
				return true
			case <-ctx.Done():
				return false
			}
		}

		delivered := 0
		i := 0
		for {
			if failErr != nil && delivered >= failAfter {
				send(ports.SensorReading{Err: failErr})
				return
			}

			if i < len(s.Track) {
				acc := accuracy
				sample := domain.PositionSample{
					Coordinate: s.Track[i],
					Accuracy:   &acc,
					Timestamp:  s.Clock.Now(),
				}
				if !send(ports.SensorReading{Sample: sample}) {
					return
				}
				delivered++
				i++
				if i == len(s.Track) && s.Loop {
					i = 0
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return out, nil
}

// LoadTrack reads a track file: a YAML or JSON list of {lat, lng} points.
func LoadTrack(path string) ([]domain.LatLng, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load track: read %q: %w", path, err)
	}

	var points []struct {
		Lat float64 `yaml:"lat"`
		Lng float64 `yaml:"lng"`
	}
	if err := yaml.Unmarshal(b, &points); err != nil {
		return nil, fmt.Errorf("load track: parse %q: %w", path, err)
	}

	track := make([]domain.LatLng, 0, len(points))
	for i, p := range points {
		c := domain.LatLng{Lat: p.Lat, Lng: p.Lng}
		if !c.Valid() {
			return nil, fmt.Errorf("load track: point %d out of range", i+1)
		}
		track = append(track, c)
	}
	if len(track) == 0 {
		return nil, fmt.Errorf("load track: %q has no points", path)
	}

	return track, nil
}

// TrackFromRoute walks a route's legs, emitting stepsPerLeg evenly spaced
// points along each leg and ending exactly at the last leg's end.
func TrackFromRoute(r *domain.Route, stepsPerLeg int) []domain.LatLng {
	if r == nil || len(r.Legs) == 0 {
		return nil
	}
	if stepsPerLeg < 1 {
		stepsPerLeg = 1
	}

	track := make([]domain.LatLng, 0, len(r.Legs)*stepsPerLeg+1)
	for _, leg := range r.Legs {
		for step := 0; step < stepsPerLeg; step++ {
			track = append(track, motion.Interpolate(leg.Start, leg.End, time.Duration(step), time.Duration(stepsPerLeg)))
		}
	}
	track = append(track, r.Legs[len(r.Legs)-1].End)

	return track
}
