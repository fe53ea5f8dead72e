package handlers

import (
	"net/http"

	"github.com/drivewise/garage-ops/internal/middleware"
	"github.com/drivewise/garage-ops/internal/models"
	"github.com/drivewise/garage-ops/internal/proposals"
)

// ProposalHandler exposes the upsell approval chain over HTTP.
type ProposalHandler struct {
	chain *proposals.Chain
}

// NewProposalHandler creates a proposal handler.
func NewProposalHandler(chain *proposals.Chain) *ProposalHandler {
	return &ProposalHandler{chain: chain}
}

// Create handles POST /api/tasks/{id}/proposals.
func (h *ProposalHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	var req proposals.CreateInput
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	proposal, err := h.chain.Create(r.Context(), *claims, r.PathValue("id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, proposal)
}

// decisionRequest carries an approve/reject decision. The manager's
// approval may override the proposed price.
type decisionRequest struct {
	Approve bool     `json:"approve"`
	Price   *float64 `json:"price"`
}

// ManagerDecide handles POST /api/proposals/{id}/manager-decision.
func (h *ProposalHandler) ManagerDecide(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	var req decisionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	proposal, err := h.chain.ManagerDecide(r.Context(), *claims, r.PathValue("id"), req.Approve, req.Price)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proposal)
}

// CustomerDecide handles POST /api/proposals/{id}/customer-decision.
func (h *ProposalHandler) CustomerDecide(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	var req decisionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	proposal, err := h.chain.CustomerDecide(r.Context(), *claims, r.PathValue("id"), req.Approve)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proposal)
}

// ListForTask handles GET /api/tasks/{id}/proposals.
func (h *ProposalHandler) ListForTask(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	list, err := h.chain.ListForTask(r.Context(), *claims, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// List handles GET /api/proposals. Customers get the proposals waiting on
// them; staff and managers get the org-wide list.
func (h *ProposalHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	var list []models.Proposal
	var err error
	if claims.Role == models.RoleCustomer {
		list, err = h.chain.ListForCustomer(r.Context(), *claims)
	} else {
		list, err = h.chain.ListForOrg(r.Context(), *claims)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
