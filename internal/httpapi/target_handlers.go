package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"modelgate.org/internal/ids"
	"modelgate.org/internal/target"
)

type createTargetRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Provider    string         `json:"provider"`
	Config      map[string]any `json:"config"`
}

type updateTargetRequest struct {
	Name        *string        `json:"name"`
	Description *string        `json:"description"`
	Config      map[string]any `json:"config"`
}

type deleteTargetsRequest struct {
	IDs []string `json:"ids"`
}

func (a *API) handleTargetsCollection(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.requireUser(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		targets, err := a.targets.List(r.Context(), principal.UserID)
		if err != nil {
			handleTargetError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": emptyIfNil(targets)})
	case http.MethodPost:
		var req createTargetRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		created, err := a.targets.Create(r.Context(), principal.UserID, target.CreateInput{
			Name:        req.Name,
			Description: req.Description,
			Provider:    req.Provider,
			Config:      req.Config,
		})
		if err != nil {
			handleTargetError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	case http.MethodDelete:
		var req deleteTargetsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		n, err := a.targets.Delete(r.Context(), principal.UserID, req.IDs)
		if err != nil {
			handleTargetError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost, http.MethodDelete)
	}
}

func (a *API) handleTargetResource(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.requireUser(w, r)
	if !ok {
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/v1/targets/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if strings.HasSuffix(path, "/test") {
		id := strings.TrimSuffix(strings.TrimSuffix(path, "/test"), "/")
		if !ids.Valid(id) {
			writeError(w, r, http.StatusNotFound, "target not found")
			return
		}
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		tested, err := a.targets.TestConnection(r.Context(), principal.UserID, id)
		if err != nil {
			handleTargetError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, tested)
		return
	}

	if strings.Contains(path, "/") || !ids.Valid(path) {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		t, err := a.targets.Get(r.Context(), principal.UserID, path)
		if err != nil {
			handleTargetError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	case http.MethodPatch:
		var req updateTargetRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		updated, err := a.targets.Update(r.Context(), principal.UserID, path, target.UpdateInput{
			Name:        req.Name,
			Description: req.Description,
			Config:      req.Config,
		})
		if err != nil {
			handleTargetError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	case http.MethodDelete:
		n, err := a.targets.Delete(r.Context(), principal.UserID, []string{path})
		if err != nil {
			handleTargetError(w, r, err)
			return
		}
		if n == 0 {
			writeError(w, r, http.StatusNotFound, "target not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func handleTargetError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, target.ErrInvalidConfig), errors.Is(err, target.ErrUnknownProvider):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, target.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, "target name already in use")
	case errors.Is(err, target.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "target not found")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
