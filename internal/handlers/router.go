package handlers

import (
	"net/http"

	"github.com/drivewise/garage-ops/internal/middleware"
)

// NewRouter wires every endpoint onto a mux behind authentication and
// rate limiting. Fine-grained authorization stays inside the domain
// packages; the router only gates the obvious role boundaries.
func NewRouter(
	authHandler *AuthHandler,
	taskHandler *TaskHandler,
	appointmentHandler *AppointmentHandler,
	proposalHandler *ProposalHandler,
	calendarHandler *CalendarHandler,
	vehicleHandler *VehicleHandler,
	authMW *middleware.AuthMiddleware,
	rateMW *middleware.RateLimitMiddleware,
) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Auth
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("GET /api/auth/profile", authHandler.GetProfile)
	mux.HandleFunc("PUT /api/auth/profile", authHandler.UpdateProfile)
	mux.HandleFunc("POST /api/auth/change-password", authHandler.ChangePassword)

	// Check-in and tasks
	mux.HandleFunc("POST /api/checkin", taskHandler.CheckIn)
	mux.HandleFunc("POST /api/tasks", taskHandler.Create)
	mux.HandleFunc("GET /api/tasks/board", taskHandler.Board)
	mux.Handle("GET /api/tasks/pending", authMW.RequireManager(http.HandlerFunc(taskHandler.Pending)))
	mux.HandleFunc("POST /api/tasks/{id}/claim", taskHandler.Claim)
	mux.HandleFunc("POST /api/tasks/{id}/release", taskHandler.Release)
	mux.HandleFunc("POST /api/tasks/{id}/complete", taskHandler.Complete)
	mux.HandleFunc("POST /api/tasks/{id}/paid", taskHandler.MarkPaid)
	mux.HandleFunc("POST /api/tasks/{id}/approve", taskHandler.Approve)
	mux.HandleFunc("POST /api/tasks/{id}/reject", taskHandler.Reject)
	mux.HandleFunc("POST /api/tasks/{id}/cancel", taskHandler.Cancel)

	// Appointments
	mux.HandleFunc("POST /api/appointments", appointmentHandler.Book)
	mux.HandleFunc("GET /api/appointments", appointmentHandler.List)
	mux.Handle("GET /api/appointments/pending", authMW.RequireManager(http.HandlerFunc(appointmentHandler.Pending)))
	mux.HandleFunc("POST /api/appointments/{id}/approve", appointmentHandler.Approve)
	mux.HandleFunc("POST /api/appointments/{id}/promote", appointmentHandler.Promote)
	mux.HandleFunc("POST /api/appointments/{id}/reject", appointmentHandler.Reject)
	mux.HandleFunc("POST /api/appointments/{id}/cancel", appointmentHandler.Cancel)
	mux.HandleFunc("POST /api/appointments/{id}/reschedule", appointmentHandler.Reschedule)

	// Proposals
	mux.HandleFunc("POST /api/tasks/{id}/proposals", proposalHandler.Create)
	mux.HandleFunc("GET /api/tasks/{id}/proposals", proposalHandler.ListForTask)
	mux.HandleFunc("GET /api/proposals", proposalHandler.List)
	mux.HandleFunc("POST /api/proposals/{id}/manager-decision", proposalHandler.ManagerDecide)
	mux.HandleFunc("POST /api/proposals/{id}/customer-decision", proposalHandler.CustomerDecide)

	// Vehicles
	mux.HandleFunc("GET /api/vehicles", vehicleHandler.List)
	mux.Handle("DELETE /api/vehicles/{id}", authMW.RequireManager(http.HandlerFunc(vehicleHandler.Remove)))

	// Calendar
	mux.HandleFunc("GET /api/calendar", calendarHandler.Week)

	handler := authMW.Authenticate(mux)
	if rateMW != nil {
		handler = rateMW.RateLimit(120, 60)(handler)
	}
	return handler
}
