package middleware

import (
	"context"
	"net/http"

	"github.com/evote-api/internal/domain"
)

// SessionStore is the minimal session lookup the middleware requires.
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
}

// ActiveSession returns middleware that checks the bearer's session row is
// still enabled and authenticated. This is what makes logout real: the JWT
// stays cryptographically valid until expiry, but the session it is bound to
// does not. Admin bearers carry no session id and pass through.
func ActiveSession(store SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			if claims.SessionID == "" {
				next.ServeHTTP(w, r)
				return
			}
			sess, err := store.Get(r.Context(), claims.SessionID)
			if err != nil || !sess.Enable || sess.State != domain.SessionAuthenticated {
				http.Error(w, `{"error":"session is no longer active"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
