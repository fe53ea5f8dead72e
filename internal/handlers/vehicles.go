package handlers

import (
	"net/http"

	"github.com/drivewise/garage-ops/internal/middleware"
	"github.com/drivewise/garage-ops/internal/vehicles"
)

// VehicleHandler exposes the vehicle registry over HTTP.
type VehicleHandler struct {
	resolver *vehicles.Resolver
}

// NewVehicleHandler creates a vehicle handler.
func NewVehicleHandler(resolver *vehicles.Resolver) *VehicleHandler {
	return &VehicleHandler{resolver: resolver}
}

// List handles GET /api/vehicles.
func (h *VehicleHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	list, err := h.resolver.List(r.Context(), *claims)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Remove handles DELETE /api/vehicles/{id}.
func (h *VehicleHandler) Remove(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	if err := h.resolver.Remove(r.Context(), *claims, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Vehicle removed"})
}
