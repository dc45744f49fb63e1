// Package scheduler implements the broker's assignment loop: deciding which
// queued job goes to which worker, under the locked-decision /
// unlocked-communication split required by the concurrency model.
package scheduler

import (
	"encoding/json"

	"github.com/huziichuk/bcs-broker/internal/logger"
	"github.com/huziichuk/bcs-broker/internal/models"
	"github.com/huziichuk/bcs-broker/internal/notify"
	"github.com/huziichuk/bcs-broker/internal/registry"
)

// Scheduler wires the registry's decision phase to the notifier's
// communication phase.
type Scheduler struct {
	reg      *registry.Registry
	notifier *notify.Notifier
}

func New(reg *registry.Registry, notifier *notify.Notifier) *Scheduler {
	return &Scheduler{reg: reg, notifier: notifier}
}

// Run is invoked whenever the set of free workers or the queue membership
// changes: after enqueue, worker connect, worker done/busy, or worker
// disconnect. It repeatedly asks the registry for the next assignment,
// performs the corresponding send outside any lock, and rolls back on
// failure, until no further assignment can be made — then refreshes every
// remaining queued subscriber's position.
func (s *Scheduler) Run() {
	for {
		dispatch, ok := s.reg.TryAssign()
		if !ok {
			break
		}

		offer := models.NewOfferMessage(dispatch.Job)
		data, err := json.Marshal(offer)
		if err != nil {
			logger.Scheduler().Error().Err(err).Str("job_id", dispatch.Job.ID).Msg("failed to encode offer")
			s.reg.RollbackAssignment(dispatch.Job.ID, dispatch.Worker.ID)
			continue
		}

		if !trySend(dispatch.Worker.Send, data) {
			logger.Scheduler().Warn().
				Str("job_id", dispatch.Job.ID).
				Str("worker_id", dispatch.Worker.ID).
				Msg("dispatch send failed, declaring worker broken")
			s.reg.RollbackAssignment(dispatch.Job.ID, dispatch.Worker.ID)
			orphaned := s.reg.DisconnectWorker(dispatch.Worker.ID)
			s.notifyDisconnected(orphaned)
			continue
		}

		logger.Scheduler().Info().
			Str("job_id", dispatch.Job.ID).
			Str("worker_id", dispatch.Worker.ID).
			Str("session_id", dispatch.Job.SessionID).
			Msg("job dispatched")

		s.notifier.Notify(dispatch.Job.ID, models.NewAssigned(dispatch.Worker.ID))
		s.notifier.Notify(dispatch.Job.ID, models.NewQueuePosition(-1))
	}

	s.notifier.BroadcastPositions()
}

// notifyDisconnected sends the standard worker_disconnected error to every
// job a broken worker was holding, shared with the worker endpoint's own
// disconnect handling.
func (s *Scheduler) notifyDisconnected(jobs []*models.Job) {
	for _, j := range jobs {
		s.notifier.Notify(j.ID, models.NewErrorMessage(models.ReasonWorkerDisconnected))
	}
}

// trySend performs a non-blocking send on a worker's outbound channel,
// treating a full buffer as an authoritative signal that the worker is
// broken — mirroring the "slow client" eviction idiom used for client
// subscriber sockets.
func trySend(ch chan []byte, data []byte) bool {
	select {
	case ch <- data:
		return true
	default:
		return false
	}
}
