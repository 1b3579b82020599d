package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/gptkong/ip-quality-dashboard/internal/auth"
	"github.com/gptkong/ip-quality-dashboard/internal/model"
	"github.com/gptkong/ip-quality-dashboard/internal/util"
)

// AdminStore is the persistence the admin endpoints need. *database.DB
// satisfies it.
type AdminStore interface {
	ListUsers(ctx context.Context) ([]model.User, error)
	CreateUser(ctx context.Context, username, password, role string) error
	DeleteUser(ctx context.Context, username string) error
	ListAuditLog(ctx context.Context, limit, offset int) ([]model.AuditEntry, int, error)
}

type AdminHandler struct {
	store      AdminStore
	sessionMgr *auth.SessionManager
	audit      AuditLog
	log        *zap.Logger
}

func NewAdminHandler(store AdminStore, sm *auth.SessionManager, audit AuditLog, log *zap.Logger) *AdminHandler {
	return &AdminHandler{store: store, sessionMgr: sm, audit: audit, log: log}
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		h.log.Error("list users failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	if req.Role != "admin" && req.Role != "editor" {
		req.Role = "editor"
	}

	if err := h.store.CreateUser(r.Context(), req.Username, req.Password, req.Role); err != nil {
		h.log.Error("create user failed", zap.String("username", req.Username), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	actor, _ := h.sessionMgr.GetUsername(r)
	_ = h.audit.LogAudit(r.Context(), model.AuditEntry{
		Username:  actor,
		Action:    "create_user",
		Detail:    fmt.Sprintf("created user=%s role=%s", req.Username, req.Role),
		IPAddress: util.ClientIP(r),
	})

	writeJSON(w, http.StatusCreated, map[string]any{"success": true})
}

func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "username")
	actor, _ := h.sessionMgr.GetUsername(r)

	if target == actor {
		writeError(w, http.StatusBadRequest, "cannot delete yourself")
		return
	}

	if err := h.store.DeleteUser(r.Context(), target); err != nil {
		h.log.Error("delete user failed", zap.String("username", target), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete user")
		return
	}

	_ = h.audit.LogAudit(r.Context(), model.AuditEntry{
		Username:  actor,
		Action:    "delete_user",
		Detail:    fmt.Sprintf("deleted user=%s", target),
		IPAddress: util.ClientIP(r),
	})

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *AdminHandler) AuditLog(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit := 50
	offset := (page - 1) * limit

	entries, total, err := h.store.ListAuditLog(r.Context(), limit, offset)
	if err != nil {
		h.log.Error("list audit log failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if entries == nil {
		entries = []model.AuditEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries":    entries,
		"page":       page,
		"total":      total,
		"totalPages": (total + limit - 1) / limit,
	})
}
