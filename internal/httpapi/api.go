package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"forkful.app/internal/auth"
	"forkful.app/internal/obs"
	"forkful.app/internal/ratelimit"
)

// Rate-limited action names. Each must have a policy in configuration.
const (
	actionLogin    = "login"
	actionRegister = "register"
	actionPlanner  = "planner"
)

// ReadyProbe pings the backing database for /readyz.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Planner is the meal-plan generation collaborator. The API only guards it
// (auth + rate limit); generation itself lives outside this service core.
type Planner interface {
	GeneratePlan(ctx context.Context, userID string, req json.RawMessage) (json.RawMessage, error)
}

// Options wires the API's collaborators.
type Options struct {
	Auth    *auth.Service
	Limiter *ratelimit.Limiter
	Ready   ReadyProbe
	Logger  *zap.Logger
	Planner Planner
	Version string

	SessionCookie string
	CookieSecure  bool

	PagePrefixes []string
	LoginPath    string

	CleanupToken string
}

// API is the HTTP layer.
type API struct {
	mux  *http.ServeMux
	opts Options
}

func New(opts Options) *API {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.SessionCookie == "" {
		opts.SessionCookie = "forkful_session"
	}
	if opts.LoginPath == "" {
		opts.LoginPath = "/login"
	}
	a := &API{
		mux:  http.NewServeMux(),
		opts: opts,
	}

	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReady)
	a.mux.HandleFunc("/v1/info", a.handleInfo)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/me", a.handleMe)

	a.mux.HandleFunc("/v1/admin/users/", a.handleAdminUsers)
	a.mux.HandleFunc("/v1/plan", a.handlePlanGenerate)
	a.mux.HandleFunc("/v1/internal/ratelimit/cleanup", a.handleRateLimitCleanup)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain around the mux. The gatekeeper runs
// before routing; bearer authentication runs inside it, per request.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = a.gatekeeper(h)
	h = obs.Instrument(h)
	h = SecurityHeaders(h)
	h = RequestID(h)
	h = Logging(a.opts.Logger, h)
	return h
}

// --- Handlers ---

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "forkful-api",
		"version": a.opts.Version,
	})
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := a.opts.Ready.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "forkful-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.opts.Version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

// writeAuthError maps a core error onto its HTTP shape with the generic,
// non-enumerating message the taxonomy prescribes.
func writeAuthError(w http.ResponseWriter, err error) {
	writeError(w, auth.StatusCode(err), auth.PublicMessage(err))
}

func decodeJSON(r *http.Request, v any) error {
	defer func() { _, _ = io.Copy(io.Discard, r.Body) }()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
