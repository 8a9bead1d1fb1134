package ports

import (
	"context"
	"location-tracker/internal/domain"
)

// Contract for computing a driving route and travel time between two points.
//
// Failures are returned as *RouteError so callers can decide whether to
// retry.
type RoutingProvider interface {
	// Return the ordered legs between origin and destination.
	Directions(ctx context.Context, origin, destination domain.LatLng) (*domain.Route, error)
	// Return only the travel duration between origin and destination.
	TravelTime(ctx context.Context, origin, destination domain.LatLng) (domain.ETA, error)
}

// Cache of travel times keyed by (origin, destination).
type ETACache interface {
	Get(ctx context.Context, origin, destination domain.LatLng) (domain.ETA, bool, error)
	Put(ctx context.Context, origin, destination domain.LatLng, eta domain.ETA) error
}
