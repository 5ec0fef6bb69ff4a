package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/evote-api/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// ChallengeEnvelope wraps register/login responses: an OTP has been issued
// and the next step is confirmation. The code itself is never returned.
type ChallengeEnvelope struct {
	Message   string                  `json:"message,omitempty"`
	Challenge *domain.ChallengeHandle `json:"challenge,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

// AuthEnvelope wraps confirmation responses. Bearer is present only once
// the session is fully authenticated.
type AuthEnvelope struct {
	State   string          `json:"state,omitempty"`
	Bearer  string          `json:"Bearer,omitempty"`
	Session *domain.Session `json:"session,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// VotersEnvelope wraps the admin voter roll listing.
type VotersEnvelope struct {
	Total int            `json:"total"`
	Data  []domain.Voter `json:"data"`
	Error string         `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// statusFor maps domain sentinel errors onto HTTP status codes so handlers
// stay out of the classification business.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrExpired):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrBiometric):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}
