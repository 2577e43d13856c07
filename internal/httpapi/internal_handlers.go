package httpapi

import (
	"crypto/subtle"
	"net/http"

	"go.uber.org/zap"
)

const internalTokenHeader = "X-Internal-Token"

// handleRateLimitCleanup is hit by an external scheduler (cron) to sweep
// expired rate-limit windows. Authorized by a shared secret, compared in
// constant time; it never depends on user auth.
func (a *API) handleRateLimitCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if a.opts.CleanupToken == "" || !constantTimeEqual(r.Header.Get(internalTokenHeader), a.opts.CleanupToken) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if a.opts.Limiter == nil {
		writeJSON(w, http.StatusOK, map[string]any{"deleted": 0})
		return
	}
	n, err := a.opts.Limiter.CleanupExpired(r.Context())
	if err != nil {
		a.opts.Logger.Error("rate limit cleanup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
}

func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
