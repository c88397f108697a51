package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/erazemk/concesionaria/internal/model"
	"github.com/erazemk/concesionaria/internal/store"
)

// UsersHandler handles account administration (admin only).
type UsersHandler struct {
	DB *sql.DB
}

type updateRoleRequest struct {
	Role string `json:"rol" validate:"required,oneof=admin manager seller"`
}

// List handles GET /usuario.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := store.ListUsers(r.Context(), h.DB)
	if err != nil {
		slog.Error("failed to list users", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	if users == nil {
		users = []model.User{}
	}
	jsonResponse(w, http.StatusOK, users)
}

// UpdateRole handles PUT /usuario/{id}/rol.
func (h *UsersHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req updateRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	err = store.UpdateUserRole(r.Context(), h.DB, id, req.Role)
	if errors.Is(err, store.ErrUserNotFound) {
		jsonError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		slog.Error("failed to update user role", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to update user")
		return
	}

	// Open tokens still carry the old role.
	if err := store.EndUserSessions(r.Context(), h.DB, id, time.Now()); err != nil {
		slog.Error("failed to end user sessions", "error", err)
		jsonError(w, http.StatusInternalServerError, "role updated, but open sessions could not be ended")
		return
	}

	user, _ := store.GetUser(r.Context(), h.DB, id)
	slog.Info("user role updated", "user", GetClaims(r.Context()).Email, "target_user", user.Email, "new_role", req.Role)
	jsonResponse(w, http.StatusOK, user)
}

// Delete handles DELETE /usuario/{id}.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	claims := GetClaims(r.Context())
	if claims.UserID == id {
		jsonError(w, http.StatusBadRequest, "cannot delete yourself")
		return
	}

	target, err := store.GetUser(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get user", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to delete user")
		return
	}
	if target == nil || target.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "user not found")
		return
	}

	if err := store.DeleteUser(r.Context(), h.DB, id); err != nil {
		slog.Error("failed to delete user", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to delete user")
		return
	}

	if err := store.EndUserSessions(r.Context(), h.DB, id, time.Now()); err != nil {
		slog.Error("failed to end user sessions", "error", err)
		jsonError(w, http.StatusInternalServerError, "user deleted, but open sessions could not be ended")
		return
	}

	slog.Info("user deleted", "user", claims.Email, "deleted_user", target.Email)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "user deleted"})
}
