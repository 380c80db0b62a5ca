package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/PipeOpsHQ/livehook/internal/hub"
)

// Events streams captured requests for one endpoint. Server-sent events are
// the default; a WebSocket upgrade request gets the same feed over
// WebSocket.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	endpointID := chi.URLParam(r, "endpointID")
	if endpointID == "" {
		writeError(w, http.StatusBadRequest, "missing endpoint ID")
		return
	}
	if websocket.IsWebSocketUpgrade(r) {
		h.WebSocket(w, r, endpointID)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sub := h.Hub.Subscribe(endpointID)
	defer sub.Unsubscribe()

	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sub.Done():
			return
		case msg := <-sub.Messages():
			var err error
			switch msg.Kind {
			case hub.KindHeartbeat:
				_, err = fmt.Fprint(w, ": heartbeat\n\n")
			default:
				// json.Marshal output has no raw newlines, so one data line suffices
				_, err = fmt.Fprintf(w, "data: %s\n\n", msg.Data)
			}
			if err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
