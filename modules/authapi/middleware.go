package authapi

import (
	"net/http"
	"strings"

	"github.com/dmitrymomot/authd/svc/auth"
)

// requireAuth validates the bearer access token and stores the resolved
// identity in the request context.
func (m *Module) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			m.respondError(w, r, auth.ErrTokenInvalid)
			return
		}

		identity, err := m.tokens.VerifyAccess(r.Context(), token)
		if err != nil {
			m.respondError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.SetIdentityToContext(r.Context(), identity)))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
