package domain

// Represents a single maneuver of a routed path.
// Legs are ordered; the start coordinate of each leg is the waypoint used
// by progress tracking.
type Leg struct {
	Start           LatLng
	End             LatLng
	Instruction     string
	DistanceMeters  int
	DurationSeconds int
	DurationText    string
}

// Represents a routed path between an origin and a destination.
// A Route is the output of the routing service and is immutable:
// it is recomputed, never patched, when origin or destination changes.
type Route struct {
	Origin               LatLng
	Destination          LatLng
	Legs                 []Leg
	TotalDistanceMeters  int
	TotalDurationSeconds int
	TotalDistanceText    string
	TotalDurationText    string
}

// Derived progress of a moving origin along a Route.
type ProgressState struct {
	Route           *Route
	NearestLegIndex int
	PercentComplete float64
}

// Estimated travel duration from one origin to the active destination.
type ETA struct {
	DurationSeconds int
	DurationText    string
}

// A single active destination, replaced wholesale on a new selection.
type Destination struct {
	Coordinate LatLng
	Label      string
}

// A geocoding result.
type Place struct {
	FormattedAddress string
	Coordinate       LatLng
}
