// Package registry holds the broker's shared mutable state — sessions,
// jobs, workers, client subscriptions, and session reference counts — behind
// a single exclusive lock, per the serialization discipline in the broker's
// concurrency model: every mutation happens under the lock, and no network
// I/O ever happens while it is held.
package registry

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/huziichuk/bcs-broker/internal/logger"
	"github.com/huziichuk/bcs-broker/internal/models"
)

// Subscriber is one client WebSocket listening for events about a single
// job id. Send is the channel its write pump drains; registry code never
// writes to a socket directly, only enqueues onto this channel.
type Subscriber struct {
	ID   string
	Send chan []byte
}

// Dispatch is a single scheduler decision: job j was marked assigned to
// worker w under the lock; the caller now owns sending the offer outside
// the lock.
type Dispatch struct {
	Job    *models.Job
	Worker *models.Worker
}

// Registry is the broker's entire shared state.
type Registry struct {
	mu sync.Mutex

	sessions map[string]*models.Session
	jobs     map[string]*models.Job
	queue    *Queue
	workers  map[string]*models.Worker

	subs           map[string]map[*Subscriber]bool // job id -> subscriber set
	sessionClients map[string]int                  // session id -> open subscriber count
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{
		sessions:       make(map[string]*models.Session),
		jobs:           make(map[string]*models.Job),
		queue:          newQueue(),
		workers:        make(map[string]*models.Worker),
		subs:           make(map[string]map[*Subscriber]bool),
		sessionClients: make(map[string]int),
	}
}

// ---- sessions ----

// CreateSession stores a new session, honoring a caller-supplied id if one
// was given on the request.
func (r *Registry) CreateSession(filename string, ammunition json.RawMessage, customID *string, now time.Time) *models.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.New().String()
	if customID != nil && *customID != "" {
		id = *customID
	}

	s := &models.Session{
		ID:           id,
		Filename:     filename,
		Ammunition:   ammunition,
		CreatedAt:    now,
		LastActivity: now,
	}
	r.sessions[id] = s
	return s
}

// GetSession looks up a session by id.
func (r *Registry) GetSession(id string) (*models.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// SessionCount returns the number of known sessions.
func (r *Registry) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// EvictExpiredSessions removes sessions whose last activity is older than
// ttl and which have no non-terminal jobs outstanding. It is the engine
// behind the optional TTL-eviction cron job; spec.md's minimum model never
// calls it (process-wide session lifetime).
func (r *Registry) EvictExpiredSessions(ttl time.Duration, now time.Time) int {
	if ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	busy := make(map[string]bool)
	for _, j := range r.jobs {
		if !j.State.Terminal() {
			busy[j.SessionID] = true
		}
	}

	evicted := 0
	for id, s := range r.sessions {
		if busy[id] {
			continue
		}
		if now.Sub(s.LastActivity) >= ttl {
			delete(r.sessions, id)
			evicted++
		}
	}
	return evicted
}

// ---- jobs / queue ----

// EnqueueJob snapshots the session and appends a new queued job to the tail
// of the queue. The caller is responsible for invoking the scheduler
// afterward — EnqueueJob itself only performs the registry mutation.
func (r *Registry) EnqueueJob(session *models.Session, payload models.OfferPayload, now time.Time) *models.Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	session.Touch(now)

	id := uuid.New().String()
	j := models.NewJob(id, session, payload, now)
	r.jobs[id] = j
	r.queue.Append(id)

	r.logState("enqueue")
	return j
}

// GetJob looks up a job by id.
func (r *Registry) GetJob(id string) (*models.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	return j, ok
}

// QueuePosition returns a job's 0-based queue index, or -1 if it is not
// queued (including when the id is unknown entirely).
func (r *Registry) QueuePosition(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queue.Position(id)
}

// QueueLength returns the number of jobs currently queued.
func (r *Registry) QueueLength() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queue.Len()
}

// JobsTotal returns the number of jobs currently tracked (any state).
func (r *Registry) JobsTotal() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// QueuedJobIDs returns a snapshot of the queue order, used by the notifier
// to broadcast positions.
func (r *Registry) QueuedJobIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queue.Snapshot()
}

// ---- workers ----

// RegisterWorker adds a worker to the registry, using the caller's send
// channel as its outbound buffer.
func (r *Registry) RegisterWorker(id string, send chan []byte, now time.Time) *models.Worker {
	r.mu.Lock()
	defer r.mu.Unlock()

	w := &models.Worker{ID: id, ConnectedAt: now, Send: send}
	r.workers[id] = w
	r.logState("worker_connect")
	return w
}

// WorkerCount returns the number of connected workers.
func (r *Registry) WorkerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workers)
}

// DisconnectWorker removes a worker and resets every non-terminal,
// non-stopping job it held back to queued at the head of the queue. It is
// idempotent: disconnecting an unknown id is a no-op. Returns the jobs that
// were reset, so the caller can notify their subscribers.
func (r *Registry) DisconnectWorker(id string) []*models.Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.workers[id]; !ok {
		return nil
	}
	delete(r.workers, id)

	var affected []*models.Job
	for _, j := range r.jobs {
		if j.WorkerID != id {
			continue
		}
		if j.State == models.JobDone || j.State == models.JobStopping {
			continue
		}
		affected = append(affected, j)
	}
	sort.Slice(affected, func(i, k int) bool { return affected[i].CreatedAt.Before(affected[k].CreatedAt) })

	for i := len(affected) - 1; i >= 0; i-- {
		j := affected[i]
		j.Requeue()
		r.queue.PushHead(j.ID)
	}

	r.logState("worker_disconnect")
	return affected
}

// ---- scheduler decision phase ----

// TryAssign attempts a single assignment: it walks the queue in stable FIFO
// order (the §9 resolution of the rotation open question — jobs that cannot
// currently be placed are left exactly where they are, never reordered) and
// assigns the first dispatchable job to the first eligible worker,
// preferring a worker already affine to the job's session over any free
// worker. It mutates state as if the dispatch will succeed; the caller must
// either confirm it (nothing further to do) or call RollbackAssignment if
// the outbound send fails.
func (r *Registry) TryAssign() (*Dispatch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	free := make([]*models.Worker, 0)
	bySession := make(map[string]*models.Worker)
	for _, w := range r.workers {
		if w.CurrentSession == "" {
			free = append(free, w)
		} else {
			bySession[w.CurrentSession] = w
		}
	}
	// Deterministic order among free workers keeps tests reproducible even
	// though the spec leaves the tie-break unspecified.
	sort.Slice(free, func(i, k int) bool { return free[i].ID < free[k].ID })

	ids := r.queue.Snapshot()
	for _, id := range ids {
		j, ok := r.jobs[id]
		if !ok {
			r.queue.Remove(id)
			continue
		}
		if j.Inflight || j.State.Terminal() || j.State == models.JobStopping {
			r.queue.Remove(id)
			continue
		}

		var chosen *models.Worker
		if w, ok := bySession[j.SessionID]; ok {
			chosen = w
		} else if len(free) > 0 {
			chosen = free[0]
			free = free[1:]
		}
		if chosen == nil {
			continue
		}

		j.Inflight = true
		j.State = models.JobAssigned
		j.WorkerID = chosen.ID
		chosen.JobsCount++
		if chosen.CurrentSession == "" {
			chosen.CurrentSession = j.SessionID
		}
		r.queue.Remove(id)

		r.logState("assign")
		return &Dispatch{Job: j, Worker: chosen}, true
	}

	return nil, false
}

// RollbackAssignment undoes the optimistic mutation TryAssign made for a
// job whose outbound send failed, requeueing it at the head.
func (r *Registry) RollbackAssignment(jobID, workerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.workers[workerID]; ok {
		if w.JobsCount > 0 {
			w.JobsCount--
		}
		if w.JobsCount == 0 {
			w.CurrentSession = ""
		}
	}
	if j, ok := r.jobs[jobID]; ok {
		j.Requeue()
		r.queue.PushHead(jobID)
	}
	r.logState("rollback")
}

// ---- worker-originated transitions ----

// WorkerAnswer transitions a job to answered.
func (r *Registry) WorkerAnswer(jobID string) (*models.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return nil, false
	}
	j.State = models.JobAnswered
	return j, true
}

// WorkerDone removes a completed job and releases its worker's slot.
func (r *Registry) WorkerDone(jobID string) (*models.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return nil, false
	}
	delete(r.jobs, jobID)
	r.releaseWorkerSlot(j.WorkerID)
	r.logState("done")
	return j, true
}

// WorkerBusy requeues a job the worker refused, at the head of the queue.
func (r *Registry) WorkerBusy(jobID string) (*models.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return nil, false
	}
	workerID := j.WorkerID
	j.Requeue()
	r.queue.PushHead(jobID)
	r.releaseWorkerSlot(workerID)
	r.logState("busy")
	return j, true
}

// releaseWorkerSlot decrements a worker's outstanding job count, clamped at
// zero, and clears its session affinity once it reaches zero. Caller must
// hold the lock.
func (r *Registry) releaseWorkerSlot(workerID string) {
	w, ok := r.workers[workerID]
	if !ok {
		return
	}
	if w.JobsCount > 0 {
		w.JobsCount--
	}
	if w.JobsCount == 0 {
		w.CurrentSession = ""
	}
}

// ---- stop propagation ----

// StopJobOutcome tells the caller what, if anything, must be communicated
// outside the lock after StopJob runs.
type StopJobOutcome int

const (
	StopNoop StopJobOutcome = iota
	StopRemovedFromQueue
	StopNotifyWorker
)

// StopJob implements the three-way branch from the broker's stop
// propagation design: unknown/terminal jobs are no-ops, a queued+unassigned
// job is simply deleted, and anything else is marked stopping so its worker
// can be told to tear down outside the lock.
func (r *Registry) StopJob(jobID string) (outcome StopJobOutcome, worker *models.Worker, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[jobID]
	if !ok {
		return StopNoop, nil, ""
	}
	if j.State == models.JobQueued && j.WorkerID == "" {
		delete(r.jobs, jobID)
		r.queue.Remove(jobID)
		return StopRemovedFromQueue, nil, j.SessionID
	}
	if j.State == models.JobStopping || j.State == models.JobDone {
		return StopNoop, nil, ""
	}

	j.State = models.JobStopping
	sessionID = j.SessionID
	if w, ok := r.workers[j.WorkerID]; ok {
		worker = w
	}
	return StopNotifyWorker, worker, sessionID
}

// NonTerminalJobsForSession returns every non-terminal job id for a session,
// used by stop_session to fan out StopJob calls outside the lock.
func (r *Registry) NonTerminalJobsForSession(sessionID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, j := range r.jobs {
		if j.SessionID == sessionID && !j.State.Terminal() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// ---- client subscriptions ----

// Subscribe adds a client subscriber to a job's set and bumps the session's
// reference count. Returns ok=false if the job is unknown.
func (r *Registry) Subscribe(jobID string) (sub *Subscriber, sessionID string, position int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, exists := r.jobs[jobID]
	if !exists {
		return nil, "", 0, false
	}

	sub = &Subscriber{ID: uuid.New().String(), Send: make(chan []byte, 16)}
	if r.subs[jobID] == nil {
		r.subs[jobID] = make(map[*Subscriber]bool)
	}
	r.subs[jobID][sub] = true
	r.sessionClients[j.SessionID]++

	return sub, j.SessionID, r.queue.Position(jobID), true
}

// Unsubscribe removes a subscriber from a job's set and decrements the
// session's reference count. needStop is true when the count just hit zero
// and the caller must invoke stop_session outside the lock.
func (r *Registry) Unsubscribe(jobID, sessionID string, sub *Subscriber) (needStop bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if set, ok := r.subs[jobID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(r.subs, jobID)
		}
	}

	if n, ok := r.sessionClients[sessionID]; ok {
		n--
		if n <= 0 {
			delete(r.sessionClients, sessionID)
			return true
		}
		r.sessionClients[sessionID] = n
	}
	return false
}

// Subscribers returns a snapshot of a job's current subscriber set.
func (r *Registry) Subscribers(jobID string) []*Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.subs[jobID]
	if !ok {
		return nil
	}
	out := make([]*Subscriber, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}

// DropSubscriber removes a dead subscriber socket from a job's set, closing
// its Send channel exactly once, and reports whether it actually did so.
// Membership is checked and the channel closed under the same lock so two
// goroutines racing to drop the same unresponsive subscriber (e.g. a
// scheduler run and an offer-submission request notifying the same job at
// once) can't both close an already-closed channel.
func (r *Registry) DropSubscriber(jobID string, sub *Subscriber) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.subs[jobID]
	if !ok {
		return false
	}
	if _, present := set[sub]; !present {
		return false
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(r.subs, jobID)
	}
	close(sub.Send)
	return true
}

// logState emits a debug-level snapshot of the shared state, mirroring the
// original service's state-dump-on-every-mutation behavior. Free in
// production: zerolog skips building the event when debug is disabled.
func (r *Registry) logState(where string) {
	logger.Registry().Debug().
		Str("where", where).
		Int("jobs", len(r.jobs)).
		Int("queue", r.queue.Len()).
		Int("workers", len(r.workers)).
		Msg("state snapshot")
}
