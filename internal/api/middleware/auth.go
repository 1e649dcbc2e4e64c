package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/cloo-solutions/finknow/internal/api"
	"github.com/cloo-solutions/finknow/internal/domain"
)

type contextKey string

const PrincipalKey contextKey = "principal"

// AuthValidator resolves a bearer token to the principal it authenticates.
type AuthValidator interface {
	ValidateAPIKey(ctx context.Context, token string) (string, error)
}

// StaticKey accepts exactly one configured token.
type StaticKey struct {
	Key       string
	Principal string
}

func (s StaticKey) ValidateAPIKey(ctx context.Context, token string) (string, error) {
	if s.Key == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.Key)) != 1 {
		return "", domain.ErrInvalidAPIKey
	}
	if s.Principal == "" {
		return "api-key", nil
	}
	return s.Principal, nil
}

func APIKeyAuth(validator AuthValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				api.Error(w, http.StatusUnauthorized, "invalid authorization format")
				return
			}

			principal, err := validator.ValidateAPIKey(r.Context(), token)
			if err != nil {
				api.Error(w, http.StatusUnauthorized, "invalid api key")
				return
			}

			setLoggedPrincipal(r.Context(), principal)
			ctx := context.WithValue(r.Context(), PrincipalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetPrincipal(ctx context.Context) string {
	principal, _ := ctx.Value(PrincipalKey).(string)
	return principal
}
