package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/PipeOpsHQ/livehook/internal/store"
)

// Headers that belong to the original hop or no longer describe the stored
// body, which is kept decompressed.
var skipReplayHeaders = map[string]struct{}{
	"Host":              {},
	"Content-Length":    {},
	"Connection":        {},
	"Content-Encoding":  {},
	"Transfer-Encoding": {},
}

// ReplayRequest re-sends a stored request to its endpoint, which captures it
// again as a new record.
func (h *Handler) ReplayRequest(w http.ResponseWriter, r *http.Request) {
	if h.publicURL == "" {
		writeError(w, http.StatusServiceUnavailable, "Replay target not configured")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "Request not found")
		return
	}
	reqData, err := h.Store.GetRequest(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Request not found")
		return
	}
	if err != nil {
		h.log.Error("failed to load request for replay", zap.Int64("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch request")
		return
	}

	targetURL := h.publicURL + reqData.URL

	newReq, err := http.NewRequestWithContext(r.Context(), reqData.Method, targetURL, strings.NewReader(reqData.RawBody))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create replay request")
		return
	}
	for k, v := range reqData.Headers {
		if _, skip := skipReplayHeaders[http.CanonicalHeaderKey(k)]; skip {
			continue
		}
		newReq.Header.Set(k, v)
	}

	resp, err := h.replayClient.Do(newReq)
	if err != nil {
		h.log.Warn("replay failed", zap.Int64("id", id), zap.String("target", targetURL), zap.Error(err))
		writeError(w, http.StatusBadGateway, "Failed to replay request")
		return
	}
	defer resp.Body.Close()

	h.log.Info("request replayed", zap.Int64("id", id), zap.Int("status", resp.StatusCode))
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"status":  resp.StatusCode,
	})
}
