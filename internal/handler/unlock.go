package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/gptkong/ip-quality-dashboard/internal/model"
	"github.com/gptkong/ip-quality-dashboard/internal/service"
	"github.com/gptkong/ip-quality-dashboard/internal/util"
)

type UnlockHandler struct {
	svc   *service.Service
	audit AuditLog
	log   *zap.Logger
}

func NewUnlockHandler(svc *service.Service, audit AuditLog, log *zap.Logger) *UnlockHandler {
	return &UnlockHandler{svc: svc, audit: audit, log: log}
}

type unlockRequest struct {
	Content string `json:"content"`
}

// Submit ingests raw unlock-tool output for one server.
func (h *UnlockHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req unlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	result, err := h.svc.SubmitUnlock(r.Context(), id, req.Content)
	if err != nil {
		if errors.Is(err, service.ErrNoPlatformData) {
			writeError(w, http.StatusBadRequest, "no platform data found in content")
			return
		}
		h.log.Error("unlock submit failed", zap.String("server_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	_ = h.audit.LogAudit(r.Context(), model.AuditEntry{
		Username:  "api",
		Action:    "submit_unlock",
		ServerID:  id,
		IPAddress: util.ClientIP(r),
	})

	count := len(result.Platforms) + len(result.IPv6Platforms)
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "platformCount": count})
}

// Get returns the latest unlock record, or the full history with
// ?history=true.
func (h *UnlockHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if r.URL.Query().Get("history") == "true" {
		records, err := h.svc.UnlockHistory(r.Context(), id)
		if err != nil {
			h.log.Error("unlock history failed", zap.String("server_id", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if records == nil {
			records = []model.PlatformUnlockRecord{}
		}
		writeJSON(w, http.StatusOK, records)
		return
	}

	rec, err := h.svc.LatestUnlock(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrServerNotFound) {
			writeError(w, http.StatusNotFound, "no platform unlock data")
			return
		}
		h.log.Error("latest unlock failed", zap.String("server_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
