package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/PipeOpsHQ/livehook/internal/hub"
)

const wsWriteWait = 10 * time.Second

// WebSocket serves the event stream over an upgraded connection. Events are
// text frames carrying the record JSON; heartbeats are ping frames.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request, endpointID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.String("endpoint", endpointID), zap.Error(err))
		return
	}
	defer conn.Close()

	sub := h.Hub.Subscribe(endpointID)
	defer sub.Unsubscribe()

	// Viewers only listen; reading is how a close is noticed.
	go func() {
		defer sub.Unsubscribe()
		conn.SetReadLimit(512)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.log.Debug("websocket read failed", zap.String("endpoint", endpointID), zap.Error(err))
				}
				return
			}
		}
	}()

	for {
		select {
		case <-sub.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteWait))
			return
		case msg := <-sub.Messages():
			var err error
			if msg.Kind == hub.KindHeartbeat {
				err = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
			} else {
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				err = conn.WriteMessage(websocket.TextMessage, msg.Data)
			}
			if err != nil {
				return
			}
		}
	}
}
