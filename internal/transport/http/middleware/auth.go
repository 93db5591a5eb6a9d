package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/checkcalendar-api/internal/domain"
)

type contextKey string

const PrincipalKey contextKey = "principal"

// Authenticator turns a bearer token into the identity it was issued for.
type Authenticator interface {
	Authenticate(token string) (*domain.Principal, error)
}

// Auth returns middleware that validates the Bearer token and injects the principal into context.
// A missing or malformed header is 401; a token that fails verification is 403.
func Auth(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeChallenge(w, "Authentication required")
				return
			}
			p, err := authn.Authenticate(tokenStr)
			if err != nil {
				writeJSONError(w, http.StatusForbidden, "Invalid or expired session")
				return
			}
			ctx := context.WithValue(r.Context(), PrincipalKey, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// PrincipalFromContext extracts the authenticated principal from the request context.
func PrincipalFromContext(ctx context.Context) (*domain.Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(*domain.Principal)
	return p, ok
}
