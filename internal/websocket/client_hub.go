package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/huziichuk/bcs-broker/internal/lifecycle"
	"github.com/huziichuk/bcs-broker/internal/logger"
	"github.com/huziichuk/bcs-broker/internal/models"
	"github.com/huziichuk/bcs-broker/internal/registry"
)

// ClientHandler serves the /queue/{job_id} WebSocket endpoint: a client
// subscribes to one job's events and otherwise sits idle.
type ClientHandler struct {
	reg   *registry.Registry
	coord *lifecycle.Coordinator
}

func NewClientHandler(reg *registry.Registry, coord *lifecycle.Coordinator) *ClientHandler {
	return &ClientHandler{reg: reg, coord: coord}
}

// RegisterRoutes mounts the client endpoint on a gin router group.
func (h *ClientHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/queue/:job_id", h.Handle)
}

// Handle upgrades the connection, rejects unknown jobs, and otherwise joins
// the job's subscriber set until the client disconnects.
func (h *ClientHandler) Handle(c *gin.Context) {
	jobID := c.Param("job_id")
	log := logger.WebSocket()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("client upgrade failed")
		return
	}

	sub, sessionID, position, ok := h.reg.Subscribe(jobID)
	if !ok {
		h.sendOnce(conn, models.NewErrorMessage(models.ReasonUnknownJob))
		_ = conn.Close()
		return
	}

	done := make(chan struct{})
	go h.writePump(conn, sub.Send, done)

	if data, err := json.Marshal(models.NewQueuePosition(position)); err == nil {
		select {
		case sub.Send <- data:
		default:
		}
	}

	h.readPump(conn, jobID, sessionID, sub, done)
}

// readPump discards every inbound client frame (the channel is kept open so
// the client can detect teardown and errors) and exits on disconnect.
func (h *ClientHandler) readPump(conn *websocket.Conn, jobID, sessionID string, sub *registry.Subscriber, done chan struct{}) {
	defer func() {
		close(done)
		_ = conn.Close()
		h.handleDisconnect(jobID, sessionID, sub)
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *ClientHandler) handleDisconnect(jobID, sessionID string, sub *registry.Subscriber) {
	if h.reg.Unsubscribe(jobID, sessionID, sub) {
		h.coord.StopSession(sessionID)
	}
}

func (h *ClientHandler) writePump(conn *websocket.Conn, send chan []byte, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case msg, ok := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (h *ClientHandler) sendOnce(conn *websocket.Conn, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.TextMessage, data)
}
