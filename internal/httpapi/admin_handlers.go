package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"modelgate.org/internal/auth"
	"modelgate.org/internal/ids"
	"modelgate.org/internal/stream"
)

func (a *API) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireRole(w, r, auth.RoleAdmin); !ok {
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	limit, offset := listParams(r, 50)
	users, err := a.sessions.Users().List(r.Context(), limit, offset)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	items := make([]userResponse, 0, len(users))
	for _, u := range users {
		items = append(items, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleAdminUserResource(w http.ResponseWriter, r *http.Request) {
	admin, ok := a.requireRole(w, r, auth.RoleAdmin)
	if !ok {
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/v1/admin/users/")
	action := ""
	if i := strings.IndexByte(path, '/'); i >= 0 {
		path, action = path[:i], path[i+1:]
	}
	if !ids.Valid(path) {
		writeError(w, r, http.StatusNotFound, "user not found")
		return
	}

	switch action {
	case "disable":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		if path == admin.UserID {
			writeError(w, r, http.StatusBadRequest, "cannot disable your own account")
			return
		}
		if err := a.sessions.Users().SetEnabled(r.Context(), path, false); err != nil {
			handleAuthError(w, r, err)
			return
		}
		// Disabling closes every open session immediately.
		if err := a.sessions.RevokeAllSessions(r.Context(), path); err != nil {
			handleAuthError(w, r, err)
			return
		}
		if a.events != nil {
			a.events.Publish(stream.SecurityEvent{Type: stream.EventUserDisabled, UserID: path})
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "disabled"})
	case "enable":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		if err := a.sessions.Users().SetEnabled(r.Context(), path, true); err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "enabled"})
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleAdminTargets(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireRole(w, r, auth.RoleAdmin); !ok {
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	limit, offset := listParams(r, 50)
	targets, err := a.targets.ListAll(r.Context(), limit, offset)
	if err != nil {
		handleTargetError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": emptyIfNil(targets)})
}

func (a *API) handleAdminSweep(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireRole(w, r, auth.RoleAdmin); !ok {
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	removed, err := a.sessions.SweepSessions(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func listParams(r *http.Request, defaultLimit int) (limit, offset int) {
	limit = defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
