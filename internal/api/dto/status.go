package dto

import "time"

type StatusResponse struct {
	Message    string     `json:"message"`
	ReportedAt *time.Time `json:"reported_at,omitempty"`
	Connection string     `json:"connection"`
	Sharing    bool       `json:"sharing"`
	Tracking   bool       `json:"tracking"`
}

type SharingRequest struct {
	Enabled *bool `json:"enabled"`
}
