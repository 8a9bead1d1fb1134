package handlers

import (
	"location-tracker/internal/api/dto"
	"location-tracker/internal/services"
	"net/http"
	"strconv"
	"strings"
)

// RouteHandler selects the destination and the tracked participant and
// reports route progress.
type RouteHandler struct {
	Tracker Tracker
}

// Destination geocodes the query and makes it the active destination.
func (h *RouteHandler) Destination(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req dto.DestinationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	dest, err := h.Tracker.SearchDestination(r.Context(), req.Query)
	if err != nil {
		writeServiceError(w, r, "search destination", err)
		return
	}

	writeJSON(w, r, http.StatusOK, dto.DestinationResponse{Label: dest.Label, Location: dest.Coordinate})
}

func (h *RouteHandler) Autocomplete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	q := r.URL.Query()
	limit := 0
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 20 {
			writeError(w, r, http.StatusBadRequest, "limit must be between 1 and 20")
			return
		}
		limit = n
	}

	places, err := h.Tracker.Autocomplete(r.Context(), q.Get("q"), limit)
	if err != nil {
		writeServiceError(w, r, "autocomplete", err)
		return
	}

	res := dto.AutocompleteResponse{Places: make([]dto.PlaceResponse, 0, len(places))}
	for _, p := range places {
		res.Places = append(res.Places, dto.PlaceResponse{FormattedAddress: p.FormattedAddress, Location: p.Coordinate})
	}

	writeJSON(w, r, http.StatusOK, res)
}

// Route serves GET (current route and progress), POST (select a
// participant to route) and DELETE (stop tracking).
func (h *RouteHandler) Route(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.writeRoute(w, r, http.StatusOK)

	case http.MethodPost:
		var req dto.RouteRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := h.Tracker.SelectParticipant(r.Context(), req.ParticipantID); err != nil {
			writeServiceError(w, r, "select participant", err)
			return
		}
		h.writeRoute(w, r, http.StatusAccepted)

	case http.MethodDelete:
		if err := h.Tracker.ClearRoute(r.Context()); err != nil {
			writeServiceError(w, r, "clear route", err)
			return
		}
		h.writeRoute(w, r, http.StatusOK)

	default:
		methodNotAllowed(w, r, "GET, POST, DELETE")
	}
}

func (h *RouteHandler) writeRoute(w http.ResponseWriter, r *http.Request, status int) {
	snap, err := h.Tracker.Snapshot(r.Context())
	if err != nil {
		writeServiceError(w, r, "get route", err)
		return
	}
	writeJSON(w, r, status, routeResponse(snap.Route))
}

func routeResponse(s services.RouteSnapshot) dto.RouteResponse {
	res := dto.RouteResponse{
		State:           s.State.String(),
		ParticipantID:   s.ParticipantID,
		Legs:            []dto.LegResponse{},
		NearestLegIndex: s.Progress.NearestLegIndex,
		PercentComplete: s.Progress.PercentComplete,
	}
	if s.State == services.RouteNone {
		res.ParticipantID = ""
	}
	if s.Destination != nil {
		res.Destination = &dto.DestinationResponse{Label: s.Destination.Label, Location: s.Destination.Coordinate}
	}
	if s.Err != nil {
		res.Error = userMessage(s.Err)
	}

	route := s.Progress.Route
	if route == nil {
		return res
	}

	res.TotalDistanceMeters = route.TotalDistanceMeters
	res.TotalDurationSeconds = route.TotalDurationSeconds
	res.TotalDistanceText = route.TotalDistanceText
	res.TotalDurationText = route.TotalDurationText
	for _, l := range route.Legs {
		res.Legs = append(res.Legs, dto.LegResponse{
			Start:           l.Start,
			End:             l.End,
			Instruction:     l.Instruction,
			DistanceMeters:  l.DistanceMeters,
			DurationSeconds: l.DurationSeconds,
			DurationText:    l.DurationText,
		})
	}
	return res
}
