// Package handler provides HTTP handlers for the Sentinel Identity API.
package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/sentinel-identity/internal/domain"
	"github.com/prn-tf/sentinel-identity/internal/service"
)

// AccountHandler handles account management endpoints.
type AccountHandler struct {
	accountService *service.AccountService
	authService    *service.AuthService
	roleService    *service.RoleService
	logger         zerolog.Logger
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(
	accountService *service.AccountService,
	authService *service.AuthService,
	roleService *service.RoleService,
	logger zerolog.Logger,
) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		authService:    authService,
		roleService:    roleService,
		logger:         logger.With().Str("handler", "account").Logger(),
	}
}

// accountView is the API representation of an account.
type accountView struct {
	ID              int64    `json:"id"`
	Username        string   `json:"username"`
	Email           string   `json:"email"`
	FirstName       string   `json:"first_name,omitempty"`
	LastName        string   `json:"last_name,omitempty"`
	DisplayName     string   `json:"display_name"`
	PhoneNumber     string   `json:"phone_number,omitempty"`
	Bio             string   `json:"bio,omitempty"`
	RoleLabel       string   `json:"role,omitempty"`
	IsActive        bool     `json:"is_active"`
	IsStaff         bool     `json:"is_staff"`
	IsEmailVerified bool     `json:"is_email_verified"`
	Roles           []string `json:"roles,omitempty"`
}

func (h *AccountHandler) view(r *http.Request, account *domain.Account) accountView {
	roles, err := h.roleService.RolesFor(r.Context(), account.ID)
	if err != nil {
		roles = nil
	}
	return accountView{
		ID:              account.ID,
		Username:        account.Username,
		Email:           account.Email,
		FirstName:       account.FirstName,
		LastName:        account.LastName,
		DisplayName:     account.DisplayName(),
		PhoneNumber:     account.PhoneNumber,
		Bio:             account.Bio,
		RoleLabel:       account.RoleLabel,
		IsActive:        account.IsActive,
		IsStaff:         account.IsStaff,
		IsEmailVerified: account.IsEmailVerified,
		Roles:           roles,
	}
}

func accountID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

type registerRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
	Bio         string `json:"bio"`
	RoleLabel   string `json:"role"`
}

// Register handles POST /v1/accounts.
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	out, err := h.accountService.Register(r.Context(), service.RegisterInput{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		PhoneNumber: req.PhoneNumber,
		Bio:         req.Bio,
		RoleLabel:   req.RoleLabel,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.view(r, out.Account))
}

// Get handles GET /v1/accounts/{id}.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	account, err := h.accountService.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(r, account))
}

type listResponse struct {
	Accounts []accountView `json:"accounts"`
	Total    int64         `json:"total"`
}

// List handles GET /v1/accounts.
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	out, err := h.accountService.List(r.Context(), service.ListAccountsInput{Limit: limit, Offset: offset})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	views := make([]accountView, 0, len(out.Accounts))
	for _, account := range out.Accounts {
		views = append(views, h.view(r, account))
	}
	writeJSON(w, http.StatusOK, listResponse{Accounts: views, Total: out.TotalCount})
}

type updateProfileRequest struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
	Bio         string `json:"bio"`
	RoleLabel   string `json:"role"`
}

// UpdateProfile handles PUT /v1/accounts/{id}/profile.
func (h *AccountHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	var req updateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, err := h.accountService.UpdateProfile(r.Context(), service.UpdateProfileInput{
		AccountID:   id,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		PhoneNumber: req.PhoneNumber,
		Bio:         req.Bio,
		RoleLabel:   req.RoleLabel,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(r, account))
}

type updatePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// UpdatePassword handles PUT /v1/accounts/{id}/password.
func (h *AccountHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	var req updatePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err = h.accountService.UpdatePassword(r.Context(), service.UpdatePasswordInput{
		AccountID:   id,
		OldPassword: req.OldPassword,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type setActiveRequest struct {
	IsActive bool `json:"is_active"`
}

// SetActive handles PUT /v1/accounts/{id}/active.
func (h *AccountHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	var req setActiveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.accountService.SetActive(r.Context(), id, req.IsActive); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"is_active": req.IsActive})
}

// Unlock handles POST /v1/accounts/{id}/unlock.
func (h *AccountHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	if err := h.authService.Unlock(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unlocked"})
}

// Attempts handles GET /v1/accounts/{id}/attempts.
func (h *AccountHandler) Attempts(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	attempts, err := h.authService.RecentAttempts(r.Context(), id, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"attempts": attempts})
}

// IssueVerification handles POST /v1/accounts/{id}/verification.
//
// The plaintext token is returned to the caller for delivery; it is not
// stored anywhere.
func (h *AccountHandler) IssueVerification(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	plaintext, err := h.accountService.IssueEmailVerification(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"token": plaintext})
}
