package dto

import "location-tracker/internal/domain"

type DestinationRequest struct {
	Query string `json:"query"`
}

type DestinationResponse struct {
	Label    string        `json:"label"`
	Location domain.LatLng `json:"location"`
}

type PlaceResponse struct {
	FormattedAddress string        `json:"formatted_address"`
	Location         domain.LatLng `json:"location"`
}

type AutocompleteResponse struct {
	Places []PlaceResponse `json:"places"`
}

type RouteRequest struct {
	// Empty refreshes the tracked route.
	ParticipantID string `json:"participant_id"`
}

type LegResponse struct {
	Start           domain.LatLng `json:"start"`
	End             domain.LatLng `json:"end"`
	Instruction     string        `json:"instruction"`
	DistanceMeters  int           `json:"distance_meters"`
	DurationSeconds int           `json:"duration_seconds"`
	DurationText    string        `json:"duration_text"`
}

type RouteResponse struct {
	State                string               `json:"state"`
	ParticipantID        string               `json:"participant_id,omitempty"`
	Destination          *DestinationResponse `json:"destination"`
	TotalDistanceMeters  int                  `json:"total_distance_meters"`
	TotalDurationSeconds int                  `json:"total_duration_seconds"`
	TotalDistanceText    string               `json:"total_distance_text,omitempty"`
	TotalDurationText    string               `json:"total_duration_text,omitempty"`
	Legs                 []LegResponse        `json:"legs"`
	NearestLegIndex      int                  `json:"nearest_leg_index"`
	PercentComplete      float64              `json:"percent_complete"`
	Error                string               `json:"error,omitempty"`
}
