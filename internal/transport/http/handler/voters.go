package handler

import (
	"net/http"

	"github.com/evote-api/internal/application/auth"
	"github.com/evote-api/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
)

// VoterHandler serves the enrolled voter roll and stored portraits.
type VoterHandler struct {
	svc auth.Service
}

func NewVoterHandler(svc auth.Service) *VoterHandler { return &VoterHandler{svc: svc} }

// Me returns the authenticated voter's own record.
func (h *VoterHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok || claims.VoterID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	v, err := h.svc.Voter(r.Context(), claims.VoterID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// List returns the full voter roll. Admin only.
func (h *VoterHandler) List(w http.ResponseWriter, r *http.Request) {
	voters, err := h.svc.ListVoters(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, VotersEnvelope{Total: len(voters), Data: voters})
}

func (h *VoterHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Voter(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Portrait streams the stored enrollment image.
func (h *VoterHandler) Portrait(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := h.svc.Portrait(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
