// ABOUTME: HTTP middleware extracting the bearer identity on protected routes
// ABOUTME: Public /api/auth/ paths pass through untouched

package auth

import (
	"net/http"
	"strings"
)

// publicPrefix marks the endpoints that work without a credential.
const publicPrefix = "/api/auth/"

// extractBearerToken pulls the token out of an Authorization header.
// Returns the token and an error message (empty on success).
func extractBearerToken(header string) (string, string) {
	if header == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// Middleware verifies the bearer token on every request outside the
// public prefix and attaches the resulting Identity to the request
// context. No database lookups happen here; the token is self-contained.
func (t *Tokens) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, publicPrefix) {
			next.ServeHTTP(w, r)
			return
		}

		token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
		if errMsg != "" {
			http.Error(w, `{"error":"`+errMsg+`"}`, http.StatusUnauthorized)
			return
		}

		claims, err := t.Verify(token)
		if err != nil {
			http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
			return
		}

		ctx := WithIdentity(r.Context(), Identity{
			TenantID: claims.TenantID,
			UserID:   claims.UserID,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
