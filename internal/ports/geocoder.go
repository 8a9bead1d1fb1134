package ports

import (
	"context"
	"errors"
	"location-tracker/internal/domain"
)

// Contract for resolving free-text place queries to coordinates.
type Geocoder interface {
	// Return the best match for query.
	Geocode(ctx context.Context, query string) (domain.Place, error)
	// Return up to limit suggestions for a partial query.
	Autocomplete(ctx context.Context, query string, limit int) ([]domain.Place, error)
}

// Persistent cache mapping normalized queries to places.
type GeocodeCache interface {
	GetMany(ctx context.Context, queries []string) (map[string]domain.Place, error)
	PutMany(ctx context.Context, results map[string]domain.Place) error
}

// Returned by Geocode when the query matches nothing.
var ErrPlaceNotFound = errors.New("place not found")
