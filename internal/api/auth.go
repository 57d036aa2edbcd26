package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/ignite/outreach/internal/pkg/httputil"
)

type ctxKey int

const ownerKey ctxKey = iota

// Authenticator maps a bearer token to an owner ID.
type Authenticator interface {
	OwnerForToken(ctx context.Context, token string) (string, error)
}

// StaticTokens is a fixed token-to-owner map, loaded from config. Good
// enough for API-key style auth; swap in a real token store without
// touching the handlers.
type StaticTokens map[string]string

func (t StaticTokens) OwnerForToken(_ context.Context, token string) (string, error) {
	owner, ok := t[token]
	if !ok {
		return "", ErrBadToken
	}
	return owner, nil
}

// ErrBadToken is returned for unknown or empty bearer tokens.
var ErrBadToken = &authError{"invalid token"}

type authError struct{ msg string }

func (e *authError) Error() string { return e.msg }

// requireAuth rejects requests without a valid bearer token and stores
// the resolved owner ID on the request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			httputil.Error(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		owner, err := s.auth.OwnerForToken(r.Context(), token)
		if err != nil {
			httputil.Error(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey, owner)))
	})
}

// ownerID returns the authenticated owner for the request. Only valid
// below requireAuth.
func ownerID(r *http.Request) string {
	owner, _ := r.Context().Value(ownerKey).(string)
	return owner
}
