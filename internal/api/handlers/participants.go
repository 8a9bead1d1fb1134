package handlers

import (
	"location-tracker/internal/api/dto"
	"location-tracker/internal/services"
	"net/http"
)

// ParticipantHandler exposes the participant read model with ETAs.
type ParticipantHandler struct {
	Tracker Tracker
}

func (h *ParticipantHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	snap, err := h.Tracker.Snapshot(r.Context())
	if err != nil {
		writeServiceError(w, r, "list participants", err)
		return
	}

	res := dto.ListParticipantsResponse{
		Participants: make([]dto.ParticipantResponse, 0, len(snap.Participants)),
	}
	for _, p := range snap.Participants {
		pr := dto.ParticipantResponse{
			ID:                p.ID,
			DisplayName:       p.DisplayName,
			Self:              p.Self,
			Location:          p.Coordinate,
			DisplayedLocation: p.Position,
			Accuracy:          p.Accuracy,
			LastUpdatedAt:     p.LastUpdatedAt,
		}
		if p.ETA != nil {
			eta := etaResponse(*p.ETA)
			pr.ETA = &eta
		}
		res.Participants = append(res.Participants, pr)
	}

	writeJSON(w, r, http.StatusOK, res)
}

// ETAs lists travel times toward the active destination.
func (h *ParticipantHandler) ETAs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	snap, err := h.Tracker.Snapshot(r.Context())
	if err != nil {
		writeServiceError(w, r, "list etas", err)
		return
	}

	res := dto.ListETAResponse{ETAs: make([]dto.ETAResponse, 0, len(snap.ETAs))}
	if d := snap.Route.Destination; d != nil {
		res.Destination = &dto.DestinationResponse{Label: d.Label, Location: d.Coordinate}
	}
	for _, e := range snap.ETAs {
		res.ETAs = append(res.ETAs, etaResponse(e))
	}

	writeJSON(w, r, http.StatusOK, res)
}

func etaResponse(e services.ETAEntry) dto.ETAResponse {
	res := dto.ETAResponse{
		ParticipantID:   e.ParticipantID,
		DurationSeconds: e.ETA.DurationSeconds,
		DurationText:    e.ETA.DurationText,
		Pending:         e.Pending,
	}
	if e.Err != nil {
		res.Error = userMessage(e.Err)
	}
	return res
}
