package websocket

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/huziichuk/bcs-broker/internal/lifecycle"
	"github.com/huziichuk/bcs-broker/internal/models"
	"github.com/huziichuk/bcs-broker/internal/notify"
	"github.com/huziichuk/bcs-broker/internal/registry"
)

func newClientTestServer(t *testing.T) (*httptest.Server, *registry.Registry) {
	gin.SetMode(gin.TestMode)
	reg := registry.New()
	n := notify.New(reg)
	coord := lifecycle.New(reg, n)

	router := gin.New()
	NewClientHandler(reg, coord).RegisterRoutes(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, reg
}

func TestClientHandler_RejectsUnknownJob(t *testing.T) {
	srv, _ := newClientTestServer(t)
	conn := dialWS(t, srv, "/queue/does-not-exist")
	defer conn.Close()

	var msg models.ErrorMessage
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg.Type != models.ClientMsgError || msg.Reason != models.ReasonUnknownJob {
		t.Fatalf("msg = %+v; want unknown_job error", msg)
	}
}

func TestClientHandler_ReceivesInitialPosition(t *testing.T) {
	srv, reg := newClientTestServer(t)

	now := time.Now()
	s := reg.CreateSession("a.mp4", nil, nil, now)
	job := reg.EnqueueJob(s, models.OfferPayload{}, now)

	conn := dialWS(t, srv, "/queue/"+job.ID)
	defer conn.Close()

	var msg models.QueuePositionMessage
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg.Type != models.ClientMsgQueuePosition || msg.Position != 0 {
		t.Fatalf("msg = %+v; want queue_position 0", msg)
	}
}

func TestClientHandler_DisconnectStopsUnassignedJobAfterLastSubscriber(t *testing.T) {
	srv, reg := newClientTestServer(t)

	now := time.Now()
	s := reg.CreateSession("a.mp4", nil, nil, now)
	job := reg.EnqueueJob(s, models.OfferPayload{}, now)

	conn := dialWS(t, srv, "/queue/"+job.ID)

	var msg models.QueuePositionMessage
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := reg.GetJob(job.ID); !ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job was not stopped after its only subscriber disconnected")
}
