package dto

import (
	"location-tracker/internal/domain"
	"time"
)

type ETAResponse struct {
	ParticipantID   string `json:"participant_id"`
	DurationSeconds int    `json:"duration_seconds"`
	DurationText    string `json:"duration_text,omitempty"`
	Pending         bool   `json:"pending"`
	Error           string `json:"error,omitempty"`
}

type ParticipantResponse struct {
	ID                string        `json:"id"`
	DisplayName       string        `json:"display_name,omitempty"`
	Self              bool          `json:"self"`
	Location          domain.LatLng `json:"location"`
	DisplayedLocation domain.LatLng `json:"displayed_location"`
	Accuracy          *float64      `json:"accuracy,omitempty"`
	LastUpdatedAt     time.Time     `json:"last_updated_at"`
	ETA               *ETAResponse  `json:"eta,omitempty"`
}

type ListParticipantsResponse struct {
	Participants []ParticipantResponse `json:"participants"`
}

type ListETAResponse struct {
	Destination *DestinationResponse `json:"destination"`
	ETAs        []ETAResponse        `json:"etas"`
}
