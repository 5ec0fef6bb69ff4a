package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/evote-api/internal/domain"
	jwtinfra "github.com/evote-api/internal/infrastructure/jwt"
	"github.com/stretchr/testify/assert"
)

type fakeSessionStore struct {
	sessions map[string]*domain.Session
}

func (f *fakeSessionStore) Get(_ context.Context, sessionID string) (*domain.Session, error) {
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session not found: %w", domain.ErrNotFound)
	}
	return s, nil
}

func sessionRequest(sessionID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := context.WithValue(req.Context(), ClaimsKey, &jwtinfra.Claims{
		VoterID: "v1", Role: domain.RoleVoter, SessionID: sessionID,
	})
	return req.WithContext(ctx)
}

func TestActiveSession_AuthenticatedSessionPasses(t *testing.T) {
	store := &fakeSessionStore{sessions: map[string]*domain.Session{
		"s1": {SessionID: "s1", State: domain.SessionAuthenticated, Enable: true},
	}}
	rr := httptest.NewRecorder()
	ActiveSession(store)(http.HandlerFunc(okHandler)).ServeHTTP(rr, sessionRequest("s1"))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestActiveSession_LoggedOutBearerRejected(t *testing.T) {
	// Logout flips enable=false; the still-valid JWT must stop working.
	store := &fakeSessionStore{sessions: map[string]*domain.Session{
		"s1": {SessionID: "s1", State: domain.SessionAuthenticated, Enable: false},
	}}
	rr := httptest.NewRecorder()
	ActiveSession(store)(http.HandlerFunc(okHandler)).ServeHTTP(rr, sessionRequest("s1"))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestActiveSession_FacePendingSessionRejected(t *testing.T) {
	store := &fakeSessionStore{sessions: map[string]*domain.Session{
		"s1": {SessionID: "s1", State: domain.SessionFacePending, Enable: true},
	}}
	rr := httptest.NewRecorder()
	ActiveSession(store)(http.HandlerFunc(okHandler)).ServeHTTP(rr, sessionRequest("s1"))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestActiveSession_UnknownSessionRejected(t *testing.T) {
	store := &fakeSessionStore{sessions: map[string]*domain.Session{}}
	rr := httptest.NewRecorder()
	ActiveSession(store)(http.HandlerFunc(okHandler)).ServeHTTP(rr, sessionRequest("gone"))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestActiveSession_AdminBearerNotSessionBound(t *testing.T) {
	store := &fakeSessionStore{sessions: map[string]*domain.Session{}}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := context.WithValue(req.Context(), ClaimsKey, &jwtinfra.Claims{Role: domain.RoleAdmin})
	rr := httptest.NewRecorder()
	ActiveSession(store)(http.HandlerFunc(okHandler)).ServeHTTP(rr, req.WithContext(ctx))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestActiveSession_NoClaimsRejected(t *testing.T) {
	store := &fakeSessionStore{sessions: map[string]*domain.Session{}}
	rr := httptest.NewRecorder()
	ActiveSession(store)(http.HandlerFunc(okHandler)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
