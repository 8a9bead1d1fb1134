package ports

import (
	"context"
	"errors"
	"location-tracker/internal/domain"
	"time"
)

// Causes of a failed sensor reading. Messages are user-facing.
var (
	ErrPermissionDenied    = errors.New("user denied the request for geolocation")
	ErrPositionUnavailable = errors.New("location information is unavailable")
	ErrPositionTimeout     = errors.New("the request to get user location timed out")
)

type SensorOptions struct {
	HighAccuracy bool
	// Oldest cached position the sensor may report. Zero means fresh only.
	MaxSampleAge time.Duration
	// Longest wait for a sample before reporting a timeout. Zero disables.
	Timeout time.Duration
}

// A sensor tick: either a Sample or a terminal Err.
type SensorReading struct {
	Sample domain.PositionSample
	Err    error
}

// Contract for a continuous device position source.
type PositionSensor interface {
	// Watch starts continuous sampling. The channel is closed when ctx is
	// cancelled or after a reading carrying an Err.
	Watch(ctx context.Context, opts SensorOptions) (<-chan SensorReading, error)
}
