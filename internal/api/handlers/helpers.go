package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"location-tracker/internal/ports"
	"location-tracker/internal/services"
	"log/slog"
	"net/http"
)

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, map[string]string{"error": msg})
}

// decodeBody reads exactly one JSON object into v, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	defer r.Body.Close()
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json body")
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		writeError(w, r, http.StatusBadRequest, "body must contain only one JSON object")
		return false
	}
	return true
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allow string) {
	w.Header().Set("Allow", allow)
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

// userMessage prefers the user-facing text an error carries.
func userMessage(err error) string {
	var m interface{ Message() string }
	if errors.As(err, &m) {
		return m.Message()
	}
	return err.Error()
}

// writeServiceError maps tracker errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var re *ports.RouteError

	switch {
	case errors.Is(err, services.ErrEmptyQuery):
		writeError(w, r, http.StatusBadRequest, "query is required")
	case errors.Is(err, ports.ErrPlaceNotFound):
		writeError(w, r, http.StatusNotFound, "Location not found. Please try again.")
	case errors.Is(err, services.ErrUnknownParticipant):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrNoDestination):
		writeError(w, r, http.StatusConflict, "Please search for a destination first")
	case errors.Is(err, services.ErrTrackerStopped):
		writeError(w, r, http.StatusServiceUnavailable, "tracker stopped")
	case errors.As(err, &re):
		writeError(w, r, http.StatusBadGateway, re.Message())
	case r.Context().Err() != nil && errors.Is(err, r.Context().Err()):
		// Client went away; nothing useful to send.
		slog.Debug("request cancelled", "op", op, "err", err)
	default:
		slog.Error("request failed", "op", op, "err", err)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
	}
}
