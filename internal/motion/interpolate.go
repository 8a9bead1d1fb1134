// Package motion turns discrete position jumps into continuous movement.
package motion

import (
	"location-tracker/internal/domain"
	"time"
)

// Interpolate returns the linear point between from and to after elapsed
// of d. Latitude and longitude move independently. Elapsed at or past d
// yields to exactly.
func Interpolate(from, to domain.LatLng, elapsed, d time.Duration) domain.LatLng {
	if d <= 0 || elapsed >= d {
		return to
	}
	if elapsed <= 0 {
		return from
	}

	frac := float64(elapsed) / float64(d)
	return domain.LatLng{
		Lat: from.Lat + (to.Lat-from.Lat)*frac,
		Lng: from.Lng + (to.Lng-from.Lng)*frac,
	}
}

// Animation is a single finite move from From to To starting at Start.
// It is not restartable; a new target gets a new Animation.
type Animation struct {
	From     domain.LatLng
	To       domain.LatLng
	Start    time.Time
	Duration time.Duration
}

// At reports the position at now and whether the animation has finished.
func (a Animation) At(now time.Time) (domain.LatLng, bool) {
	elapsed := now.Sub(a.Start)
	if elapsed >= a.Duration {
		return a.To, true
	}
	return Interpolate(a.From, a.To, elapsed, a.Duration), false
}
