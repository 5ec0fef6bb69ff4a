package handler

import (
	"encoding/json"
	"net/http"

	"github.com/evote-api/internal/application/election"
	"github.com/evote-api/internal/domain"
	"github.com/evote-api/internal/pkg/validate"
	"github.com/evote-api/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
)

// ElectionHandler handles election lifecycle, candidacy and voting endpoints.
type ElectionHandler struct {
	svc election.Service
}

func NewElectionHandler(svc election.Service) *ElectionHandler {
	return &ElectionHandler{svc: svc}
}

// Active returns the currently running election with its candidates.
func (h *ElectionHandler) Active(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.Active(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	candidates, err := h.svc.Candidates(r.Context(), e.ElectionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"election":   e,
		"candidates": candidates,
	})
}

func (h *ElectionHandler) List(w http.ResponseWriter, r *http.Request) {
	elections, err := h.svc.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": elections})
}

func (h *ElectionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req domain.StartElectionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	e, err := h.svc.Start(r.Context(), req.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (h *ElectionHandler) Close(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.Close(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *ElectionHandler) AddCandidate(w http.ResponseWriter, r *http.Request) {
	var req domain.AddCandidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := h.svc.AddCandidate(r.Context(), req.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// CastVote records the authenticated voter's choice in the active election.
// The voter identity comes from the bearer token, never the request body.
func (h *ElectionHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok || claims.VoterID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.CastVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	v, err := h.svc.CastVote(r.Context(), chi.URLParam(r, "id"), claims.VoterID, req.CandidateID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// MyVote reports whether and how the authenticated voter voted in an election.
func (h *ElectionHandler) MyVote(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok || claims.VoterID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	v, err := h.svc.VoteOf(r.Context(), chi.URLParam(r, "id"), claims.VoterID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *ElectionHandler) Tally(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.Tally(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tally": entries})
}

// Results summarises the most recently closed election. Public by design:
// outcomes are published, individual ballots are not.
func (h *ElectionHandler) Results(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Results(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
