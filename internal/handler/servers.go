package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/gptkong/ip-quality-dashboard/internal/model"
	"github.com/gptkong/ip-quality-dashboard/internal/service"
	"github.com/gptkong/ip-quality-dashboard/internal/util"
)

// AuditLog is the audit sink handlers write to. *database.DB satisfies it.
type AuditLog interface {
	LogAudit(ctx context.Context, entry model.AuditEntry) error
}

type ServerHandler struct {
	svc   *service.Service
	audit AuditLog
	log   *zap.Logger
}

func NewServerHandler(svc *service.Service, audit AuditLog, log *zap.Logger) *ServerHandler {
	return &ServerHandler{svc: svc, audit: audit, log: log}
}

type submitRequest struct {
	ServerID string          `json:"serverId"`
	Data     json.RawMessage `json:"data"`
}

// Submit ingests one detection report. The payload validates in full or not
// at all; nothing is written on rejection.
func (h *ServerHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ServerID == "" {
		writeError(w, http.StatusBadRequest, "serverId is required")
		return
	}

	_, err := h.svc.SubmitDetection(r.Context(), req.ServerID, req.Data)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":   "invalid detection data",
				"details": verr.Details,
			})
			return
		}
		h.log.Error("detection submit failed", zap.String("server_id", req.ServerID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	_ = h.audit.LogAudit(r.Context(), model.AuditEntry{
		Username:  "api",
		Action:    "submit_detection",
		ServerID:  req.ServerID,
		IPAddress: util.ClientIP(r),
	})

	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "id": req.ServerID})
}

func (h *ServerHandler) List(w http.ResponseWriter, r *http.Request) {
	servers, err := h.svc.ListServers(r.Context())
	if err != nil {
		h.log.Error("list servers failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if servers == nil {
		servers = []model.ServerWithData{}
	}
	writeJSON(w, http.StatusOK, servers)
}

func (h *ServerHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	srv, err := h.svc.GetServer(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrServerNotFound) {
			writeError(w, http.StatusNotFound, "server not found")
			return
		}
		h.log.Error("get server failed", zap.String("server_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, srv)
}

func (h *ServerHandler) History(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	records, err := h.svc.History(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrServerNotFound) {
			writeError(w, http.StatusNotFound, "server not found")
			return
		}
		h.log.Error("list history failed", zap.String("server_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if records == nil {
		records = []model.DetectionRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}
