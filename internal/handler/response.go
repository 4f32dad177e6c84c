// Package handler provides HTTP handlers for the Sentinel Identity API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prn-tf/sentinel-identity/internal/service"
)

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeServiceError maps service errors to HTTP status codes. Locked
// accounts get 423 so clients can distinguish lockout from bad credentials.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrAccountLocked):
		writeError(w, http.StatusLocked, err.Error())
	case errors.Is(err, service.ErrAccountInactive):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrAccountNotFound),
		errors.Is(err, service.ErrRoleNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrAccountAlreadyExists),
		errors.Is(err, service.ErrRoleAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidUsername),
		errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrInvalidPassword),
		errors.Is(err, service.ErrInvalidRoleName),
		errors.Is(err, service.ErrVerificationTokenInvalid),
		errors.Is(err, service.ErrVerificationTokenExpired),
		errors.Is(err, service.ErrVerificationTokenUsed):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrTooManyAttempts):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
