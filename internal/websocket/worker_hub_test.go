package websocket

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/huziichuk/bcs-broker/internal/models"
	"github.com/huziichuk/bcs-broker/internal/notify"
	"github.com/huziichuk/bcs-broker/internal/registry"
	"github.com/huziichuk/bcs-broker/internal/scheduler"
)

func newWorkerTestServer(t *testing.T) (*httptest.Server, *registry.Registry, *scheduler.Scheduler) {
	gin.SetMode(gin.TestMode)
	reg := registry.New()
	n := notify.New(reg)
	sched := scheduler.New(reg, n)

	router := gin.New()
	NewWorkerHandler(reg, n, sched, 200*time.Millisecond).RegisterRoutes(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, reg, sched
}

func dialWS(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial(%s): %v", path, err)
	}
	return conn
}

func TestWorkerHandler_HelloHandshakeAssignsRequestedID(t *testing.T) {
	srv, reg, _ := newWorkerTestServer(t)
	conn := dialWS(t, srv, "/worker")
	defer conn.Close()

	if err := conn.WriteJSON(models.WorkerEnvelope{Type: models.WorkerMsgHello, WorkerID: "worker-42"}); err != nil {
		t.Fatalf("WriteJSON(hello): %v", err)
	}

	var ack models.HelloAckMessage
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("ReadJSON(ack): %v", err)
	}
	if ack.Type != models.WorkerMsgHelloAck || ack.WorkerID != "worker-42" {
		t.Fatalf("ack = %+v; want hello_ack for worker-42", ack)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if reg.WorkerCount() == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("worker never registered")
}

func TestWorkerHandler_HelloTimeoutFallsBackToRandomID(t *testing.T) {
	srv, reg, _ := newWorkerTestServer(t)
	conn := dialWS(t, srv, "/worker")
	defer conn.Close()

	// Never send a hello frame; the handler should fall back after its
	// configured timeout and still register the worker.
	var ack models.HelloAckMessage
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("ReadJSON(ack): %v", err)
	}
	if ack.Type != models.WorkerMsgHelloAck || ack.WorkerID == "" {
		t.Fatalf("ack = %+v; want a hello_ack with a fallback id", ack)
	}
	if reg.WorkerCount() != 1 {
		t.Fatalf("WorkerCount() = %d; want 1", reg.WorkerCount())
	}
}

func TestWorkerHandler_AnswerNotifiesSubscriber(t *testing.T) {
	srv, reg, sched := newWorkerTestServer(t)
	conn := dialWS(t, srv, "/worker")
	defer conn.Close()

	if err := conn.WriteJSON(models.WorkerEnvelope{Type: models.WorkerMsgHello, WorkerID: "worker-1"}); err != nil {
		t.Fatalf("WriteJSON(hello): %v", err)
	}
	var ack models.HelloAckMessage
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("ReadJSON(ack): %v", err)
	}

	now := time.Now()
	s := reg.CreateSession("a.mp4", nil, nil, now)
	job := reg.EnqueueJob(s, models.OfferPayload{SDP: "offer-sdp"}, now)

	sub, _, _, ok := reg.Subscribe(job.ID)
	if !ok {
		t.Fatal("Subscribe failed")
	}

	// The handler only triggers the scheduler on its own lifecycle events
	// (worker registration, done/busy, disconnect); a job enqueued directly
	// against the registry needs an explicit nudge here.
	sched.Run()

	// Drain the offer that run pushed onto the worker's socket.
	var offer models.OfferMessage
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&offer); err != nil {
		t.Fatalf("ReadJSON(offer): %v", err)
	}
	if offer.JobID != job.ID {
		t.Fatalf("offer.JobID = %q; want %q", offer.JobID, job.ID)
	}

	// The dispatch itself already notified the subscriber: assigned, then
	// queue_position -1. The answer must come after those.
	for _, want := range []string{`"type":"assigned"`, `"type":"queue_position","position":-1`} {
		select {
		case data := <-sub.Send:
			if !strings.Contains(string(data), want) {
				t.Fatalf("subscriber message = %s; want it to contain %s", data, want)
			}
		default:
			t.Fatalf("subscriber never received %s before the answer", want)
		}
	}

	if err := conn.WriteJSON(models.WorkerEnvelope{Type: models.WorkerMsgAnswer, JobID: job.ID, SDP: "answer-sdp"}); err != nil {
		t.Fatalf("WriteJSON(answer): %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case data := <-sub.Send:
			if !strings.Contains(string(data), "answer-sdp") {
				t.Fatalf("subscriber message = %s; want it to contain the answer SDP", data)
			}
			return
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatal("subscriber never received the answer notification")
}
