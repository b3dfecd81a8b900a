// internal/handler/websocket_handler.go
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mems-service/internal/model"
	"mems-service/internal/utils"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// WebSocketHandler streams mirror events to connected clients
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	eventBus *EventBus
	logger   *utils.ServiceLogger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(eventBus *EventBus, logger *zap.Logger) *WebSocketHandler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// The service binds to loopback for a single operator
			return true
		},
	}

	return &WebSocketHandler{
		upgrader: upgrader,
		eventBus: eventBus,
		logger:   utils.NewServiceLogger(logger, "websocket-handler"),
	}
}

// HandleEvents upgrades the connection and streams every mirror event as a
// JSON message until the client disconnects
func (h *WebSocketHandler) HandleEvents(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	subscriberID, events := h.eventBus.Subscribe()
	h.logger.Info("Event WebSocket client connected",
		zap.String("subscriber_id", subscriberID.String()),
		zap.String("remote_addr", c.Request.RemoteAddr),
	)

	go h.writeLoop(conn, events, subscriberID)
	h.readLoop(conn, subscriberID)
}

// writeLoop pushes events and keepalive pings to the client
func (h *WebSocketHandler) writeLoop(conn *websocket.Conn, events <-chan model.MirrorEvent, subscriberID uuid.UUID) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case event, ok := <-events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteJSON(event); err != nil {
				h.logger.Warn("Failed to write event to WebSocket client",
					zap.String("subscriber_id", subscriberID.String()),
					zap.Error(err),
				)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop consumes client frames until the connection drops, then detaches
// the subscriber
func (h *WebSocketHandler) readLoop(conn *websocket.Conn, subscriberID uuid.UUID) {
	defer func() {
		h.eventBus.Unsubscribe(subscriberID)
		conn.Close()
		h.logger.Info("Event WebSocket client disconnected",
			zap.String("subscriber_id", subscriberID.String()),
		)
	}()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		// Clients do not send commands over this socket; frames are
		// drained only to service control messages
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("WebSocket read error",
					zap.String("subscriber_id", subscriberID.String()),
					zap.Error(err),
				)
			}
			return
		}
	}
}
