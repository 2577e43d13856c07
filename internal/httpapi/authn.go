package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"forkful.app/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/healthz",
	"/readyz",
	"/metrics",
	"/v1/info",
	"/v1/auth/register",
	"/v1/auth/login",
	"/v1/auth/refresh",
	"/v1/auth/logout",
	"/v1/internal/ratelimit/cleanup",
	"/",
}

// withAuth verifies the bearer token on every non-public route and stores the
// identity in the request context. Verification is stateless; no store call.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Page routes are the gatekeeper's concern; bearer verification
		// happens on the API calls the pages make.
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) || a.isPageRoute(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="forkful"`)
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		identity, err := a.opts.Auth.VerifyAccessToken(token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="forkful", error="invalid_token"`)
			writeAuthError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), identity)))
	})
}

// RequireRole guards a handler behind an explicit role allow-list.
func RequireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="forkful"`)
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if err := auth.RequireRole(identity, roles...); err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="forkful", error="insufficient_scope"`)
				writeAuthError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
