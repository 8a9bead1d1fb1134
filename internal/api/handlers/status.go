package handlers

import (
	"location-tracker/internal/api/dto"
	"net/http"
)

// StatusHandler reports the latest error, the connection state and
// whether the local position is being shared.
type StatusHandler struct {
	Tracker Tracker
}

func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	h.write(w, r, "get status")
}

func (h *StatusHandler) write(w http.ResponseWriter, r *http.Request, op string) {
	snap, err := h.Tracker.Snapshot(r.Context())
	if err != nil {
		writeServiceError(w, r, op, err)
		return
	}

	res := dto.StatusResponse{
		Message:    snap.Status.Message,
		Connection: snap.Status.Connection.String(),
		Sharing:    snap.Sharing,
		Tracking:   snap.Tracking,
	}
	if !snap.Status.ReportedAt.IsZero() {
		at := snap.Status.ReportedAt
		res.ReportedAt = &at
	}

	writeJSON(w, r, http.StatusOK, res)
}

// Sharing starts or stops publishing the local position.
func (h *StatusHandler) Sharing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}

	var req dto.SharingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		writeError(w, r, http.StatusBadRequest, "enabled is required")
		return
	}

	if err := h.Tracker.SetSharing(r.Context(), *req.Enabled); err != nil {
		writeServiceError(w, r, "set sharing", err)
		return
	}

	h.write(w, r, "set sharing")
}
