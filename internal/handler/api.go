package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/PipeOpsHQ/livehook/internal/capture"
	"github.com/PipeOpsHQ/livehook/internal/models"
	"github.com/PipeOpsHQ/livehook/internal/store"
)

// ListRequests serves GET /api/requests/{endpointID}?page&limit.
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	endpointID := chi.URLParam(r, "id")
	page := positiveInt(r.URL.Query().Get("page"), 1)
	limit := positiveInt(r.URL.Query().Get("limit"), h.defaultLimit)
	if limit > h.maxLimit {
		limit = h.maxLimit
	}

	reqs, total, err := h.Store.ListRequests(r.Context(), endpointID, page, limit)
	if err != nil {
		h.log.Error("failed to list requests", zap.String("endpoint", endpointID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch requests")
		return
	}

	writeJSON(w, http.StatusOK, models.RequestPage{
		Requests:      reqs,
		CurrentPage:   page,
		TotalPages:    (total + limit - 1) / limit,
		TotalRequests: total,
	})
}

// GetRequest serves GET /api/requests/{endpointID}/{requestID}, letting a
// viewer fetch the record behind a broadcast id.
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	endpointID := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(chi.URLParam(r, "requestID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "Request not found")
		return
	}

	req, err := h.Store.GetRequest(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && req.EndpointID != endpointID) {
		writeError(w, http.StatusNotFound, "Request not found")
		return
	}
	if err != nil {
		h.log.Error("failed to get request", zap.Int64("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch request")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// DeleteRequest serves DELETE /api/requests/{requestID}.
func (h *Handler) DeleteRequest(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "Request not found")
		return
	}

	deleted, err := h.Store.DeleteRequest(r.Context(), id)
	if err != nil {
		h.log.Error("failed to delete request", zap.Int64("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to delete request")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Request not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GetConfig returns the stored config, or the defaults when none was saved.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	endpointID := chi.URLParam(r, "endpointID")
	cfg, err := h.Store.GetConfig(r.Context(), endpointID)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusOK, models.DefaultConfig(endpointID))
		return
	}
	if err != nil {
		h.log.Error("failed to get config", zap.String("endpoint", endpointID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch config")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// SaveConfig merges the posted fields into the endpoint's config.
func (h *Handler) SaveConfig(w http.ResponseWriter, r *http.Request) {
	endpointID := chi.URLParam(r, "endpointID")

	var patch models.ConfigPatch
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid config: "+err.Error())
		return
	}
	if patch.Status != nil && !capture.ValidStatus(*patch.Status) {
		writeError(w, http.StatusBadRequest, "Invalid config: status must be between 200 and 999")
		return
	}
	if patch.Delay != nil && (*patch.Delay < 0 || int64(*patch.Delay) > capture.MaxDelayMillis) {
		writeError(w, http.StatusBadRequest, "Invalid config: delay out of range")
		return
	}

	cfg, err := h.Store.UpsertConfig(r.Context(), endpointID, patch)
	if err != nil {
		h.log.Error("failed to save config", zap.String("endpoint", endpointID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to save config")
		return
	}
	h.log.Info("endpoint config saved", zap.String("endpoint", endpointID))
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		h.log.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// positiveInt parses s, falling back to def for anything that is not a
// positive integer.
func positiveInt(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return def
	}
	return n
}
