package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/roboanalyzer-hub/internal/model"
	"github.com/sakif/roboanalyzer-hub/internal/service"
)

// AdminHandler serves /api/admin. Every route is mounted behind
// auth.RequireAdmin.
type AdminHandler struct {
	svc    *service.AdminService
	logger *slog.Logger
}

func NewAdminHandler(svc *service.AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{svc: svc, logger: logger}
}

type changeRoleRequest struct {
	UserID string     `json:"userId"`
	Role   model.Role `json:"role"`
}

type bulkDeleteRequest struct {
	UserIDs []string `json:"userIds"`
}

// usersResponse carries "success" like the other admin-panel reads; the
// dashboard checks it before rendering.
type usersResponse struct {
	Success bool         `json:"success"`
	Users   []model.User `json:"users"`
}

// HandleListUsers → GET /api/admin/users
func (h *AdminHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.ListUsers(r.Context())
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, usersResponse{Success: true, Users: users})
}

// HandleRecentUsers → GET /api/admin/recent-users
func (h *AdminHandler) HandleRecentUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.RecentUsers(r.Context())
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, usersResponse{Success: true, Users: users})
}

// HandleChangeRole → PUT /api/admin/users/role
func (h *AdminHandler) HandleChangeRole(w http.ResponseWriter, r *http.Request) {
	admin, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req changeRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	user, err := h.svc.ChangeRole(r.Context(), admin, req.UserID, req.Role)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{Message: "User role updated successfully", User: user})
}

// HandleDeleteUser → DELETE /api/admin/users/{userId}
func (h *AdminHandler) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	admin, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteUser(r.Context(), admin, chi.URLParam(r, "userId")); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "User deleted successfully")
}

// HandleBulkDelete → DELETE /api/admin/users/bulk
func (h *AdminHandler) HandleBulkDelete(w http.ResponseWriter, r *http.Request) {
	admin, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req bulkDeleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	n, err := h.svc.BulkDelete(r.Context(), admin, req.UserIDs)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"message":      fmt.Sprintf("%d users deleted successfully", n),
		"deletedCount": n,
	})
}

// HandleHealth → GET /api/admin/health
func (h *AdminHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "health": h.svc.Health(r.Context())})
}
