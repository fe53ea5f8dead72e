package handlers

import (
	"net/http"
	"time"

	"github.com/drivewise/garage-ops/internal/middleware"
	"github.com/drivewise/garage-ops/internal/workflow"
)

// TaskHandler exposes the task lifecycle over HTTP. Route patterns carry
// the method and the {id} segment; the engine does all authorization.
type TaskHandler struct {
	engine *workflow.Engine
}

// NewTaskHandler creates a task handler.
func NewTaskHandler(engine *workflow.Engine) *TaskHandler {
	return &TaskHandler{engine: engine}
}

// CheckIn handles POST /api/checkin.
func (h *TaskHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	var req workflow.CheckInRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	task, err := h.engine.SubmitCheckIn(r.Context(), *claims, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// Create handles POST /api/tasks.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	var req workflow.CreateTaskRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	task, err := h.engine.CreateTask(r.Context(), *claims, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// Board handles GET /api/tasks/board.
func (h *TaskHandler) Board(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	entries, err := h.engine.Board(r.Context(), *claims)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// Pending handles GET /api/tasks/pending, the manager triage queue.
func (h *TaskHandler) Pending(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	tasks, err := h.engine.PendingApproval(r.Context(), *claims)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

// Claim handles POST /api/tasks/{id}/claim.
func (h *TaskHandler) Claim(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	task, err := h.engine.Claim(r.Context(), *claims, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// Release handles POST /api/tasks/{id}/release. The body is optional:
// co-assigned staff and managers may release without a hand-over note.
func (h *TaskHandler) Release(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	var note *workflow.HandOverInput
	if r.ContentLength > 0 {
		note = &workflow.HandOverInput{}
		if err := decodeBody(r, note); err != nil {
			writeError(w, err)
			return
		}
	}

	task, err := h.engine.Release(r.Context(), *claims, r.PathValue("id"), note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// Complete handles POST /api/tasks/{id}/complete.
func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	task, err := h.engine.Complete(r.Context(), *claims, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// MarkPaid handles POST /api/tasks/{id}/paid.
func (h *TaskHandler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	task, err := h.engine.MarkPaid(r.Context(), *claims, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// approveRequest is the manager's triage decision payload.
type approveRequest struct {
	SendToTeamNow bool       `json:"send_to_team_now"`
	ReminderAt    *time.Time `json:"reminder_at"`
}

// Approve handles POST /api/tasks/{id}/approve.
func (h *TaskHandler) Approve(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	var req approveRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	task, err := h.engine.Approve(r.Context(), *claims, r.PathValue("id"), req.SendToTeamNow, req.ReminderAt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// Reject handles POST /api/tasks/{id}/reject.
func (h *TaskHandler) Reject(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	task, err := h.engine.Reject(r.Context(), *claims, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// Cancel handles POST /api/tasks/{id}/cancel.
func (h *TaskHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	task, err := h.engine.Cancel(r.Context(), *claims, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}
