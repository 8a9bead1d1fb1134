package domain

import "time"

// Any entity, local or remote, whose location is tracked.
// Identity is the ID; Accuracy is the sensor's horizontal accuracy radius
// in meters when known.
type Participant struct {
	ID            string
	Coordinate    LatLng
	Accuracy      *float64
	DisplayName   string
	LastUpdatedAt time.Time
}

// A single reading from the local position sensor.
type PositionSample struct {
	Coordinate LatLng
	Accuracy   *float64
	Timestamp  time.Time
}

// Device-scoped identity that survives across sessions.
type Identity struct {
	ParticipantID string
	Token         string
	DisplayName   string
}
