package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"forkful.app/internal/auth"
	"forkful.app/internal/ratelimit"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken      string     `json:"access_token"`
	RefreshToken     string     `json:"refresh_token"`
	AccessExpiresAt  time.Time  `json:"access_expires_at"`
	RefreshExpiresAt time.Time  `json:"refresh_expires_at"`
	User             *auth.User `json:"user,omitempty"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !a.allowAttempt(w, r, actionRegister, ratelimit.ClientIP(r)) {
		return
	}
	pair, user, err := a.opts.Auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	a.setSessionCookie(w, pair)
	writeJSON(w, http.StatusCreated, tokenResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		User:             user,
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// Keyed by caller address and claimed email together, so one address
	// cannot spray many accounts and one account cannot be locked out by a
	// single hostile address alone.
	if !a.allowAttempt(w, r, actionLogin, ratelimit.ClientIP(r)+"|"+req.Email) {
		return
	}
	pair, user, err := a.opts.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	a.setSessionCookie(w, pair)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		User:             user,
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	raw := a.refreshTokenFromRequest(r)
	if raw == "" {
		writeAuthError(w, auth.ErrInvalidToken)
		return
	}
	pair, err := a.opts.Auth.Refresh(r.Context(), raw)
	if err != nil {
		if errors.Is(err, auth.ErrTokenReuse) {
			a.clearSessionCookie(w)
		}
		writeAuthError(w, err)
		return
	}
	a.setSessionCookie(w, pair)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	raw := a.refreshTokenFromRequest(r)
	if raw != "" {
		if err := a.opts.Auth.Logout(r.Context(), raw); err != nil {
			writeAuthError(w, err)
			return
		}
	}
	a.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, identity)
}

// allowAttempt runs the persisted limiter for an action and writes the 429
// when the allowance is spent. Returns false when the caller must stop.
func (a *API) allowAttempt(w http.ResponseWriter, r *http.Request, action, subjectKey string) bool {
	if a.opts.Limiter == nil {
		return true
	}
	err := a.opts.Limiter.CheckAndIncrement(r.Context(), subjectKey, action)
	if err == nil {
		return true
	}
	if errors.Is(err, ratelimit.ErrRateLimited) {
		if window, ok := a.opts.Limiter.Window(action); ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
		}
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return false
	}
	a.opts.Logger.Error("rate limiter failure", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
	return false
}

// refreshTokenFromRequest prefers the JSON body and falls back to the
// session cookie set at login, so both API clients and browsers work.
func (a *API) refreshTokenFromRequest(r *http.Request) string {
	var req refreshRequest
	if err := decodeJSON(r, &req); err == nil && req.RefreshToken != "" {
		return req.RefreshToken
	}
	if c, err := r.Cookie(a.opts.SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

func (a *API) setSessionCookie(w http.ResponseWriter, pair auth.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.opts.SessionCookie,
		Value:    pair.RefreshToken,
		Path:     "/",
		Expires:  pair.RefreshExpiresAt,
		HttpOnly: true,
		Secure:   a.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *API) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.opts.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
