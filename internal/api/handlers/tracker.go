package handlers

import (
	"context"
	"location-tracker/internal/domain"
	"location-tracker/internal/services"
)

// Tracker is the part of services.Tracker the HTTP API uses.
type Tracker interface {
	Snapshot(ctx context.Context) (services.TrackerSnapshot, error)
	SearchDestination(ctx context.Context, query string) (domain.Destination, error)
	Autocomplete(ctx context.Context, query string, limit int) ([]domain.Place, error)
	SelectParticipant(ctx context.Context, participantID string) error
	ClearRoute(ctx context.Context) error
	SetSharing(ctx context.Context, enabled bool) error
}
