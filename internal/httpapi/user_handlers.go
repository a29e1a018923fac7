package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"anonpress.org/internal/audit"
	"anonpress.org/internal/auth"
	"anonpress.org/internal/obs"
)

type createUserRequest struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Roles    []string `json:"roles"`
}

type updateUserRequest struct {
	Password *string  `json:"password"`
	Roles    []string `json:"roles"`
}

// requireUsersManage checks the administration permission for the calling
// principal. A missing principal is unauthenticated, not forbidden.
func (a *API) requireUsersManage(w http.ResponseWriter, r *http.Request) bool {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return false
	}
	if !a.resolver.Allowed(principal.Roles, auth.PermUsersManage) {
		obs.ObservePermissionDenied()
		writeError(w, r, http.StatusForbidden, "permission denied: "+auth.PermUsersManage)
		return false
	}
	return true
}

func (a *API) handleUsersCollection(w http.ResponseWriter, r *http.Request) {
	if a.users == nil {
		writeError(w, r, http.StatusServiceUnavailable, "user administration disabled")
		return
	}
	if !a.requireUsersManage(w, r) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.listUsers(w, r)
	case http.MethodPost:
		a.createUser(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	if a.users == nil {
		writeError(w, r, http.StatusServiceUnavailable, "user administration disabled")
		return
	}
	if !a.requireUsersManage(w, r) {
		return
	}
	username := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	if username == "" || strings.Contains(username, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.getUser(w, r, username)
	case http.MethodPut:
		a.updateUser(w, r, username)
	case http.MethodDelete:
		a.deleteUser(w, r, username)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.users.List(r.Context())
	if err != nil {
		handleUserError(w, r, err)
		return
	}
	if users == nil {
		users = []*auth.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": users})
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	u, err := a.users.Create(r.Context(), req.Username, req.Password, req.Roles)
	if err != nil {
		handleUserError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "users.create", map[string]any{
		"username": u.Username,
		"roles":    u.Roles,
	})
	w.Header().Set("Location", "/v1/users/"+u.Username)
	writeJSON(w, http.StatusCreated, u)
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request, username string) {
	u, err := a.users.Get(r.Context(), username)
	if err != nil {
		handleUserError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) updateUser(w http.ResponseWriter, r *http.Request, username string) {
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Password == nil && req.Roles == nil {
		writeError(w, r, http.StatusBadRequest, "update payload is empty")
		return
	}
	u, err := a.users.Update(r.Context(), username, auth.UserUpdate{
		Password: req.Password,
		Roles:    req.Roles,
	})
	if err != nil {
		handleUserError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "users.update", map[string]any{
		"username": u.Username,
		"roles":    u.Roles,
	})
	writeJSON(w, http.StatusOK, u)
}

func (a *API) deleteUser(w http.ResponseWriter, r *http.Request, username string) {
	if err := a.users.Delete(r.Context(), username); err != nil {
		handleUserError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "users.delete", map[string]any{
		"username": username,
	})
	w.WriteHeader(http.StatusNoContent)
}

func handleUserError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, auth.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrInvalidInput), errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
