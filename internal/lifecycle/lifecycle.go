// Package lifecycle implements stop propagation: tearing down a session's
// jobs when the last subscriber for that session disappears.
package lifecycle

import (
	"encoding/json"

	"github.com/huziichuk/bcs-broker/internal/logger"
	"github.com/huziichuk/bcs-broker/internal/models"
	"github.com/huziichuk/bcs-broker/internal/notify"
	"github.com/huziichuk/bcs-broker/internal/registry"
)

// Coordinator runs the stop_job / stop_session logic from the broker's
// lifecycle design.
type Coordinator struct {
	reg      *registry.Registry
	notifier *notify.Notifier
}

func New(reg *registry.Registry, notifier *notify.Notifier) *Coordinator {
	return &Coordinator{reg: reg, notifier: notifier}
}

// StopJob tears down a single job: a no-op for unknown/terminal jobs, a
// silent removal for a queued-unassigned job, or a best-effort `stop`
// message to the owning worker otherwise.
func (c *Coordinator) StopJob(jobID string) {
	outcome, worker, _ := c.reg.StopJob(jobID)

	switch outcome {
	case registry.StopNoop:
		return
	case registry.StopRemovedFromQueue:
		c.notifier.BroadcastPositions()
		return
	case registry.StopNotifyWorker:
		if worker == nil {
			return
		}
		j, ok := c.reg.GetJob(jobID)
		sessionID := ""
		if ok {
			sessionID = j.SessionID
		}
		msg := models.NewStopMessage(jobID, sessionID)
		data, err := json.Marshal(msg)
		if err != nil {
			logger.WebSocket().Error().Err(err).Str("job_id", jobID).Msg("failed to encode stop message")
			return
		}
		select {
		case worker.Send <- data:
		default:
			logger.WebSocket().Warn().
				Str("job_id", jobID).
				Str("worker_id", worker.ID).
				Msg("stop message send failed, worker's own disconnect handler will catch it")
		}
	}
}

// StopSession stops every non-terminal job belonging to a session. Called
// when the session's last client subscriber disconnects.
func (c *Coordinator) StopSession(sessionID string) {
	for _, jobID := range c.reg.NonTerminalJobsForSession(sessionID) {
		c.StopJob(jobID)
	}
}
