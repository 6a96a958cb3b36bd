package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/polyshop/auth-service/internal/token"
)

const (
	authHeader   = "Authorization"
	bearerScheme = "Bearer "
)

// requireAuth verifies the bearer token and checks its session row is still
// live. A signed token whose session has been revoked server-side is refused
// even though the signature still verifies.
func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		claims, err := a.issuer.Verify(raw)
		if err != nil {
			switch {
			case errors.Is(err, token.ErrExpired):
				writeError(w, r, http.StatusUnauthorized, "token expired")
			default:
				writeError(w, r, http.StatusUnauthorized, "invalid token")
			}
			return
		}

		if !a.tokens.IsAccessValid(r.Context(), claims.ID) {
			writeError(w, r, http.StatusUnauthorized, "session revoked")
			return
		}

		next.ServeHTTP(w, r.WithContext(token.ContextWithClaims(r.Context(), claims)))
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearerScheme)) {
		return "", errors.New("invalid authorization scheme")
	}
	raw := strings.TrimSpace(header[len(bearerScheme):])
	if raw == "" {
		return "", errors.New("missing bearer token")
	}
	return raw, nil
}
