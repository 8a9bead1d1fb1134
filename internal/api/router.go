package api

import (
	"location-tracker/internal/api/handlers"
	"log/slog"
	"net/http"
)

// NewRouter wires HTTP handlers with their dependencies and returns an http.Handler.
// This is the API composition root (handlers stay unaware of concrete adapters).
func NewRouter(tracker handlers.Tracker, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	participantHandler := &handlers.ParticipantHandler{Tracker: tracker}
	routeHandler := &handlers.RouteHandler{Tracker: tracker}
	statusHandler := &handlers.StatusHandler{Tracker: tracker}

	mux.HandleFunc("/health", handlers.Health)
	mux.HandleFunc("/participants", participantHandler.List)
	mux.HandleFunc("/eta", participantHandler.ETAs)
	mux.HandleFunc("/destination", routeHandler.Destination)
	mux.HandleFunc("/autocomplete", routeHandler.Autocomplete)
	mux.HandleFunc("/route", routeHandler.Route)
	mux.HandleFunc("/status", statusHandler.Get)
	mux.HandleFunc("/sharing", statusHandler.Sharing)

	return loggingMiddleware(logger, mux)
}
