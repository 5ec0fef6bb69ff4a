package handler

import (
	"encoding/json"
	"net/http"

	"github.com/evote-api/internal/application/auth"
	"github.com/evote-api/internal/domain"
	"github.com/evote-api/internal/pkg/validate"
	"github.com/evote-api/internal/transport/http/middleware"
)

// AuthHandler handles enrollment and the two-factor login flow.
type AuthHandler struct {
	svc auth.Service
}

func NewAuthHandler(svc auth.Service) *AuthHandler { return &AuthHandler{svc: svc} }

// Register captures identity details plus a face image and issues the
// enrollment OTP. No voter row exists until the OTP is confirmed.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	handle, err := h.svc.Register(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ChallengeEnvelope{
		Message:   "verification code sent",
		Challenge: handle,
	})
}

// Login issues an authentication OTP for an enrolled phone.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	handle, err := h.svc.Login(r.Context(), req.Phone)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ChallengeEnvelope{
		Message:   "verification code sent",
		Challenge: handle,
	})
}

// ConfirmOTP consumes the pending challenge. For enrollment this commits the
// voter and returns a bearer; for login it opens a face-pending session.
func (h *AuthHandler) ConfirmOTP(w http.ResponseWriter, r *http.Request) {
	var req domain.ConfirmOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.svc.ConfirmOTP(r.Context(), req.Phone, req.Code)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthEnvelope{
		State:   result.State,
		Bearer:  result.Bearer,
		Session: result.Session,
	})
}

// ConfirmFace finalises a login by matching a fresh capture against the
// stored reference. A non-match leaves the session face-pending.
func (h *AuthHandler) ConfirmFace(w http.ResponseWriter, r *http.Request) {
	var req domain.ConfirmFaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.svc.ConfirmFace(r.Context(), req.Phone, req.FaceImage)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthEnvelope{
		State:   result.State,
		Bearer:  result.Bearer,
		Session: result.Session,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if claims.SessionID == "" {
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "logged out"})
		return
	}
	if err := h.svc.Logout(r.Context(), claims.SessionID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "logged out"})
}

// AdminLogin is a plain credential check, deliberately outside the
// OTP-plus-face flow. It issues an admin-role bearer bound to no voter.
func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.AdminLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.svc.AdminLogin(r.Context(), req.Username, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthEnvelope{State: result.State, Bearer: result.Bearer})
}
