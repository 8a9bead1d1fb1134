package services

import (
	"location-tracker/internal/domain"
	"math"
)

// Find the leg whose start coordinate is nearest to pos.
//
// Distance is great-circle distance; ties go to the lowest index so the
// earliest leg in route order wins. Returns -1 for a route without legs.
//
// This is a nearest-waypoint heuristic, not a projection onto the path.
// On a route that doubles back (a tight loop) a sample can sit closer to
// an earlier leg's start than to the leg actually being driven, and the
// reported progress goes backwards.
func NearestLegIndex(route *domain.Route, pos domain.LatLng) int {
	if route == nil || len(route.Legs) == 0 {
		return -1
	}

	best := -1
	minDistance := math.Inf(1)

	for i, leg := range route.Legs {
		d := leg.Start.DistanceMeters(pos)
		// Strict comparison keeps the earliest leg on ties.
		if d < minDistance {
			minDistance = d
			best = i
		}
	}

	return best
}

// Compute progress of pos along route as the share of legs before the
// nearest one. The result lies in [0, 100].
func Progress(route *domain.Route, pos domain.LatLng) domain.ProgressState {
	idx := NearestLegIndex(route, pos)
	if idx < 0 {
		return domain.ProgressState{Route: route}
	}

	percent := float64(idx) / float64(len(route.Legs)) * 100

	return domain.ProgressState{
		Route:           route,
		NearestLegIndex: idx,
		PercentComplete: math.Max(0, math.Min(100, percent)),
	}
}
