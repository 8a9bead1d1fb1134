package handlers

import (
	"net/http"
)

// Health reports liveness only; it never touches the tracker loop.
func Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
