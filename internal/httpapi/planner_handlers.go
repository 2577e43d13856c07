package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"forkful.app/internal/auth"
)

// handlePlanGenerate guards the AI-assisted planner: verified identity, then
// the persisted per-user allowance, then delegation. Generation itself is a
// collaborator behind the Planner interface.
func (a *API) handlePlanGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !a.allowAttempt(w, r, actionPlanner, identity.UserID) {
		return
	}
	if a.opts.Planner == nil {
		writeError(w, http.StatusServiceUnavailable, "planner unavailable")
		return
	}

	var req json.RawMessage
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	plan, err := a.opts.Planner.GeneratePlan(r.Context(), identity.UserID, req)
	if err != nil {
		a.opts.Logger.Error("plan generation failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "plan generation failed")
		return
	}
	writeJSON(w, http.StatusOK, json.RawMessage(plan))
}
