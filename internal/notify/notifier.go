// Package notify fans JSON-framed broker events out to the subscriber set
// of a job, pruning sockets that fail to receive.
package notify

import (
	"encoding/json"

	"github.com/huziichuk/bcs-broker/internal/logger"
	"github.com/huziichuk/bcs-broker/internal/models"
	"github.com/huziichuk/bcs-broker/internal/registry"
)

// Notifier delivers messages to a job's subscribers. Delivery is
// best-effort: no acknowledgement, no retry, no ordering guarantee across
// different sockets — only within a single socket's own send order.
type Notifier struct {
	reg *registry.Registry
}

func New(reg *registry.Registry) *Notifier {
	return &Notifier{reg: reg}
}

// Notify delivers msg (marshaled to JSON) to every socket currently
// subscribed to jobID. Sockets whose send buffer is full are treated as
// dead and dropped from the subscription set.
func (n *Notifier) Notify(jobID string, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Notifier().Error().Err(err).Str("job_id", jobID).Msg("failed to marshal notification")
		return
	}

	for _, sub := range n.reg.Subscribers(jobID) {
		select {
		case sub.Send <- data:
		default:
			if n.reg.DropSubscriber(jobID, sub) {
				logger.Notifier().Warn().Str("job_id", jobID).Msg("dropping unresponsive subscriber")
			}
		}
	}
}

// BroadcastPositions sends a queue_position update to every job currently
// sitting in the queue, refreshing every subscriber's view after an
// enqueue, dispatch, or requeue changes the queue's membership or order.
func (n *Notifier) BroadcastPositions() {
	for _, jobID := range n.reg.QueuedJobIDs() {
		pos := n.reg.QueuePosition(jobID)
		n.Notify(jobID, models.NewQueuePosition(pos))
	}
}
