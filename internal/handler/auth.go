package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/gptkong/ip-quality-dashboard/internal/auth"
	"github.com/gptkong/ip-quality-dashboard/internal/model"
	"github.com/gptkong/ip-quality-dashboard/internal/util"
)

// UserStore is the account persistence the auth handlers need. *database.DB
// satisfies it.
type UserStore interface {
	HasUsers(ctx context.Context) (bool, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	AuthenticateUser(ctx context.Context, username, password string) (*model.User, error)
	CreateUser(ctx context.Context, username, password, role string) error
	CreateLDAPUser(ctx context.Context, username, role string) error
}

type AuthHandler struct {
	users      UserStore
	sessionMgr *auth.SessionManager
	ldap       *auth.LDAPClient
	audit      AuditLog
	log        *zap.Logger
}

func NewAuthHandler(users UserStore, sm *auth.SessionManager, ldap *auth.LDAPClient, audit AuditLog, log *zap.Logger) *AuthHandler {
	return &AuthHandler{users: users, sessionMgr: sm, ldap: ldap, audit: audit, log: log}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	var user *model.User
	var authMethod string

	// LDAP first when enabled; group membership decides the role.
	if h.ldap != nil {
		result, err := h.ldap.Authenticate(req.Username, req.Password)
		if err == nil && result != nil {
			role, allowed := h.ldap.ResolveRole(result.Groups)
			if !allowed {
				writeError(w, http.StatusForbidden, "access denied: not in an authorized group")
				return
			}
			_ = h.users.CreateLDAPUser(r.Context(), result.Username, role)
			user, _ = h.users.GetUserByUsername(r.Context(), result.Username)
			authMethod = "ldap"
		}
	}

	// Local fallback. With LDAP enabled only the local admin may bypass it.
	if user == nil {
		u, err := h.users.AuthenticateUser(r.Context(), req.Username, req.Password)
		if err == nil && u != nil {
			if h.ldap != nil && u.Role != "admin" {
				writeError(w, http.StatusForbidden, "local login is disabled, use LDAP credentials")
				return
			}
			user = u
			authMethod = "local"
		}
	}

	if user == nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	csrfToken := h.sessionMgr.CreateSession(w, r, user.Username)

	_ = h.audit.LogAudit(r.Context(), model.AuditEntry{
		Username:  user.Username,
		Action:    "login",
		Detail:    fmt.Sprintf("auth=%s", authMethod),
		IPAddress: util.ClientIP(r),
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"username":  user.Username,
		"role":      user.Role,
		"csrfToken": csrfToken,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	username, _ := h.sessionMgr.GetUsername(r)

	h.sessionMgr.DestroySession(w, r)

	if username != "" {
		_ = h.audit.LogAudit(r.Context(), model.AuditEntry{
			Username:  username,
			Action:    "logout",
			IPAddress: util.ClientIP(r),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Me reports the current session for the frontend to restore login state.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	username, csrfToken, ok := h.sessionMgr.GetSessionInfo(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	user, _ := h.users.GetUserByUsername(r.Context(), username)
	role := ""
	if user != nil {
		role = user.Role
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"username":  username,
		"role":      role,
		"csrfToken": csrfToken,
	})
}

type setupRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// Setup creates the first admin account. Once any user exists the endpoint
// disappears.
func (h *AuthHandler) Setup(w http.ResponseWriter, r *http.Request) {
	hasUsers, err := h.users.HasUsers(r.Context())
	if err != nil {
		h.log.Error("setup check failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if hasUsers {
		writeError(w, http.StatusNotFound, "setup already completed")
		return
	}

	var req setupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}
	if len(req.Password) < 6 {
		writeError(w, http.StatusBadRequest, "password must be at least 6 characters")
		return
	}
	if req.Password != req.ConfirmPassword {
		writeError(w, http.StatusBadRequest, "passwords do not match")
		return
	}

	if err := h.users.CreateUser(r.Context(), req.Username, req.Password, "admin"); err != nil {
		h.log.Error("setup create user failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"success": true})
}

// SetupStatus lets the frontend decide whether to show the first-run page.
func (h *AuthHandler) SetupStatus(w http.ResponseWriter, r *http.Request) {
	hasUsers, err := h.users.HasUsers(r.Context())
	if err != nil {
		h.log.Error("setup check failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"needsSetup": !hasUsers})
}
