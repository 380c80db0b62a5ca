package handler

import (
	"errors"
	"io"
	"net/http"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/PipeOpsHQ/livehook/internal/capture"
	"github.com/PipeOpsHQ/livehook/internal/models"
)

var (
	endpointPattern   = regexp.MustCompile(`(?s)^/([A-Za-z0-9_-]+)(.*)$`)
	endpointIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// First path segments that never name an endpoint.
var reservedSegments = map[string]struct{}{
	"favicon.ico": {},
	"view":        {},
	"events":      {},
	"api":         {},
}

// CaptureWebhook records any request to /<endpointID>/... and answers with
// the endpoint's synthetic response.
func (h *Handler) CaptureWebhook(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	first, _, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	if _, reserved := reservedSegments[first]; reserved {
		http.NotFound(w, r)
		return
	}
	m := endpointPattern.FindStringSubmatch(path)
	if m == nil {
		http.NotFound(w, r)
		return
	}
	endpointID, rest := m[1], m[2]

	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Request Entity Too Large", http.StatusRequestEntityTooLarge)
			return
		}
		h.log.Warn("failed to read request body", zap.String("endpoint", endpointID), zap.Error(err))
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	rec, err := h.Pipeline.Process(r.Context(), capture.Inbound{
		EndpointID: endpointID,
		Method:     r.Method,
		Path:       rest,
		URL:        r.URL.RequestURI(),
		Host:       r.Host,
		Header:     r.Header,
		Query:      r.URL.Query(),
		Body:       body,
		IP:         h.ips.ClientIP(r),
	})
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if r.Context().Err() != nil {
		return // sender went away during the delay
	}
	writeSynthetic(w, rec.Response)
}

// writeSynthetic sends exactly what the stored snapshot says. Write errors
// mean the sender is gone and are ignored.
func writeSynthetic(w http.ResponseWriter, resp models.ResponseSnapshot) {
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.Status)
	_, _ = io.WriteString(w, resp.Body)
}
