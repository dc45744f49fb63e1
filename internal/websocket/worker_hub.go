// Package websocket holds the broker's two gorilla/websocket endpoints: the
// worker signalling socket at /worker and the per-job client signalling
// socket at /queue/{job_id}. Connection plumbing (upgrade, ping/pong
// keepalive, read/write deadlines, buffered send channel drained by a
// dedicated write pump) follows the shape of the teacher's agent WebSocket
// handler; the state each connection mutates lives in the registry, behind
// its single exclusive lock, rather than in a second channel-actor hub.
package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/huziichuk/bcs-broker/internal/logger"
	"github.com/huziichuk/bcs-broker/internal/models"
	"github.com/huziichuk/bcs-broker/internal/notify"
	"github.com/huziichuk/bcs-broker/internal/registry"
	"github.com/huziichuk/bcs-broker/internal/scheduler"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WorkerHandler serves the /worker WebSocket endpoint.
type WorkerHandler struct {
	reg          *registry.Registry
	notifier     *notify.Notifier
	scheduler    *scheduler.Scheduler
	helloTimeout time.Duration
}

func NewWorkerHandler(reg *registry.Registry, notifier *notify.Notifier, sched *scheduler.Scheduler, helloTimeout time.Duration) *WorkerHandler {
	return &WorkerHandler{reg: reg, notifier: notifier, scheduler: sched, helloTimeout: helloTimeout}
}

// RegisterRoutes mounts the worker endpoint on a gin router group.
func (h *WorkerHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/worker", h.Handle)
}

// Handle upgrades the connection, performs the bounded hello handshake,
// registers the worker, and spawns its read/write pumps.
func (h *WorkerHandler) Handle(c *gin.Context) {
	log := logger.WebSocket()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("worker upgrade failed")
		return
	}

	workerID := h.awaitHello(conn)

	send := make(chan []byte, 32)
	worker := h.reg.RegisterWorker(workerID, send, time.Now())

	ack := models.NewHelloAck(workerID)
	if data, err := json.Marshal(ack); err == nil {
		select {
		case send <- data:
		default:
		}
	}

	done := make(chan struct{})
	go h.writePump(conn, worker.ID, send, done)

	h.scheduler.Run()

	h.readPump(conn, worker.ID, done)
}

// awaitHello waits up to helloTimeout for a hello frame carrying a
// caller-supplied worker id; on timeout, read error, or any other message it
// falls back to a broker-assigned random id. Runs synchronously on the
// caller's goroutine: gorilla/websocket permits only one reader on a
// connection at a time, and readPump starts reading the instant Handle
// returns, so a second goroutine racing this read would violate that.
func (h *WorkerHandler) awaitHello(conn *websocket.Conn) string {
	_ = conn.SetReadDeadline(time.Now().Add(h.helloTimeout))
	var env models.WorkerEnvelope
	if err := conn.ReadJSON(&env); err == nil && env.Type == models.WorkerMsgHello && env.WorkerID != "" {
		return env.WorkerID
	}
	return uuid.New().String()
}

// readPump reads subsequent frames from a worker and dispatches them by
// type. It exits (and triggers disconnect handling) on any read error.
func (h *WorkerHandler) readPump(conn *websocket.Conn, workerID string, done chan struct{}) {
	defer func() {
		close(done)
		_ = conn.Close()
		h.handleDisconnect(workerID)
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var env models.WorkerEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}

		switch env.Type {
		case models.WorkerMsgAnswer:
			h.handleAnswer(env)
		case models.WorkerMsgDone:
			h.handleDone(env)
		case models.WorkerMsgBusy:
			h.handleBusy(env)
		default:
			logger.WebSocket().Warn().Str("worker_id", workerID).Str("type", env.Type).Msg("unknown worker message type")
		}
	}
}

func (h *WorkerHandler) handleAnswer(env models.WorkerEnvelope) {
	if _, ok := h.reg.WorkerAnswer(env.JobID); ok {
		h.notifier.Notify(env.JobID, models.NewAnswer(env.SDP))
	}
}

func (h *WorkerHandler) handleDone(env models.WorkerEnvelope) {
	if _, ok := h.reg.WorkerDone(env.JobID); ok {
		h.notifier.Notify(env.JobID, models.NewDone())
	}
	h.scheduler.Run()
}

func (h *WorkerHandler) handleBusy(env models.WorkerEnvelope) {
	h.reg.WorkerBusy(env.JobID)
	h.scheduler.Run()
}

// handleDisconnect resets every non-terminal job the worker held, notifies
// their subscribers, and re-runs the scheduler.
func (h *WorkerHandler) handleDisconnect(workerID string) {
	jobs := h.reg.DisconnectWorker(workerID)
	for _, j := range jobs {
		h.notifier.Notify(j.ID, models.NewErrorMessage(models.ReasonWorkerDisconnected))
	}
	h.notifier.BroadcastPositions()
	h.scheduler.Run()
}

// writePump drains a worker's outbound channel onto the wire and sends
// periodic pings; it exits when the channel is closed or a write fails.
func (h *WorkerHandler) writePump(conn *websocket.Conn, workerID string, send chan []byte, done chan struct{}) {
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
