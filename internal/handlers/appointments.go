package handlers

import (
	"net/http"

	"github.com/drivewise/garage-ops/internal/appointments"
	"github.com/drivewise/garage-ops/internal/middleware"
)

// AppointmentHandler exposes appointment booking and triage over HTTP.
type AppointmentHandler struct {
	manager *appointments.Manager
}

// NewAppointmentHandler creates an appointment handler.
func NewAppointmentHandler(manager *appointments.Manager) *AppointmentHandler {
	return &AppointmentHandler{manager: manager}
}

// Book handles POST /api/appointments.
func (h *AppointmentHandler) Book(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	var req appointments.Request
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	appointment, err := h.manager.Book(r.Context(), *claims, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, appointment)
}

// Pending handles GET /api/appointments/pending.
func (h *AppointmentHandler) Pending(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	pending, err := h.manager.FetchPending(r.Context(), *claims)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

// List handles GET /api/appointments?from=2006-01-02&to=2006-01-02,
// returning the org's live appointments in the date range.
func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	list, err := h.manager.FetchWeek(r.Context(), *claims, r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Approve handles POST /api/appointments/{id}/approve.
func (h *AppointmentHandler) Approve(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	var req struct {
		CreateTaskNow bool `json:"create_task_now"`
	}
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	appointment, err := h.manager.Approve(r.Context(), *claims, r.PathValue("id"), req.CreateTaskNow)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appointment)
}

// Promote handles POST /api/appointments/{id}/promote, splitting a task
// off an already approved appointment.
func (h *AppointmentHandler) Promote(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	appointment, err := h.manager.Promote(r.Context(), *claims, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appointment)
}

// Reject handles POST /api/appointments/{id}/reject.
func (h *AppointmentHandler) Reject(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	appointment, err := h.manager.Reject(r.Context(), *claims, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appointment)
}

// Cancel handles POST /api/appointments/{id}/cancel.
func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	appointment, err := h.manager.Cancel(r.Context(), *claims, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appointment)
}

// Reschedule handles POST /api/appointments/{id}/reschedule.
func (h *AppointmentHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	var req struct {
		Date string `json:"date"`
		Time string `json:"time"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	appointment, err := h.manager.Reschedule(r.Context(), *claims, r.PathValue("id"), req.Date, req.Time)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appointment)
}
