package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/gptkong/ip-quality-dashboard/internal/auth"
	"github.com/gptkong/ip-quality-dashboard/internal/model"
	"github.com/gptkong/ip-quality-dashboard/internal/service"
	"github.com/gptkong/ip-quality-dashboard/internal/util"
)

type RemarkHandler struct {
	svc        *service.Service
	sessionMgr *auth.SessionManager
	audit      AuditLog
	maxLen     int
	log        *zap.Logger
}

func NewRemarkHandler(svc *service.Service, sm *auth.SessionManager, audit AuditLog, maxLen int, log *zap.Logger) *RemarkHandler {
	return &RemarkHandler{svc: svc, sessionMgr: sm, audit: audit, maxLen: maxLen, log: log}
}

type remarkRequest struct {
	Remark *string `json:"remark"`
}

// Update sets or clears a server's remark. Null and empty string both clear.
// Length is capped at the boundary; the cap counts runes, not bytes.
func (h *RemarkHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req remarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	remark := req.Remark
	if remark != nil {
		if *remark == "" {
			remark = nil
		} else if n := len([]rune(*remark)); n > h.maxLen {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("remark must be at most %d characters", h.maxLen))
			return
		}
	}

	if err := h.svc.UpdateRemark(r.Context(), id, remark); err != nil {
		if errors.Is(err, service.ErrServerNotFound) {
			writeError(w, http.StatusNotFound, "server not found")
			return
		}
		h.log.Error("update remark failed", zap.String("server_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	username, _ := h.sessionMgr.GetUsername(r)
	_ = h.audit.LogAudit(r.Context(), model.AuditEntry{
		Username:  username,
		Action:    "update_remark",
		ServerID:  id,
		IPAddress: util.ClientIP(r),
	})

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
