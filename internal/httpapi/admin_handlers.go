package httpapi

import (
	"net/http"
	"strings"

	"forkful.app/internal/auth"
)

type roleChangeRequest struct {
	Role string `json:"role"`
}

// handleAdminUsers routes /v1/admin/users/{id}/role. Admin-only.
func (a *API) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !auth.CanManageUsers(identity) {
		writeAuthError(w, auth.ErrForbidden)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/admin/users/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[1] != "role" || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, http.MethodPut)
		return
	}

	var req roleChangeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	role, ok := auth.ParseRole(req.Role)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown role")
		return
	}

	user, err := a.opts.Auth.SetUserRole(r.Context(), parts[0], role)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
