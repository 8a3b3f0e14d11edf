package httpapi

import (
	"net/http"
	"strings"

	"sekret.org/internal/identity"
)

// Paths served without a bearer token.
var publicPaths = map[string]bool{
	"/":             true,
	"/healthz":      true,
	"/readyz":       true,
	"/metrics":      true,
	"/openapi.yaml": true,
	"/v1/info":      true,
}

// withAuth verifies the Authorization header and stashes the caller identity
// in the request context. Probe and metadata endpoints stay open.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="sekret"`)
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}
		ident, err := a.verifier.ParseAndValidate(token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="sekret", error="invalid_token"`)
			writeError(w, r, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(identity.ContextWith(r.Context(), ident)))
	})
}

func extractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errAuthMissing
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errAuthMalformed
	}
	return strings.TrimSpace(token), nil
}

var (
	errAuthMissing   = authError("authorization header is required")
	errAuthMalformed = authError("authorization header must be of the form 'Bearer <token>'")
)

type authError string

func (e authError) Error() string { return string(e) }
