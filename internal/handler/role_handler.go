// Package handler provides HTTP handlers for the Sentinel Identity API.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/sentinel-identity/internal/service"
)

// RoleHandler handles role management endpoints.
type RoleHandler struct {
	roleService *service.RoleService
	logger      zerolog.Logger
}

// NewRoleHandler creates a new RoleHandler.
func NewRoleHandler(roleService *service.RoleService, logger zerolog.Logger) *RoleHandler {
	return &RoleHandler{
		roleService: roleService,
		logger:      logger.With().Str("handler", "role").Logger(),
	}
}

type createRoleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

// Create handles POST /v1/roles.
func (h *RoleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	role, err := h.roleService.Create(r.Context(), service.CreateRoleInput{
		Name:        req.Name,
		Description: req.Description,
		Permissions: req.Permissions,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, role)
}

// List handles GET /v1/roles.
func (h *RoleHandler) List(w http.ResponseWriter, r *http.Request) {
	roles, err := h.roleService.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"roles": roles})
}

// Get handles GET /v1/roles/{name}.
func (h *RoleHandler) Get(w http.ResponseWriter, r *http.Request) {
	role, err := h.roleService.GetByName(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

// Delete handles DELETE /v1/roles/{name}.
func (h *RoleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.roleService.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Grant handles PUT /v1/accounts/{id}/roles/{name}.
func (h *RoleHandler) Grant(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	if err := h.roleService.Grant(r.Context(), id, chi.URLParam(r, "name")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "granted"})
}

// Revoke handles DELETE /v1/accounts/{id}/roles/{name}.
func (h *RoleHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	if err := h.roleService.Revoke(r.Context(), id, chi.URLParam(r, "name")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
