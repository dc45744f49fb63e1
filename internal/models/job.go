package models

import (
	"encoding/json"
	"time"
)

// JobState is one of the five states in the job state machine described in
// the broker's data model: queued, assigned, answered, stopping, done.
type JobState string

const (
	JobQueued   JobState = "queued"
	JobAssigned JobState = "assigned"
	JobAnswered JobState = "answered"
	JobStopping JobState = "stopping"
	JobDone     JobState = "done"
)

// Terminal reports whether no further transitions leave this state.
func (s JobState) Terminal() bool {
	return s == JobDone
}

// OfferPayload is the opaque SDP offer carried by a job, snapshotted at
// creation time from the client's submitted offer.
type OfferPayload struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
}

// Job is one WebRTC offer/answer round tied to a session, processed by
// exactly one worker. Filename and Ammunition are copied from the owning
// session at creation time so later session mutation never affects an
// in-flight job.
type Job struct {
	ID         string
	SessionID  string
	Filename   string
	Ammunition json.RawMessage
	Payload    OfferPayload
	CreatedAt  time.Time

	WorkerID string // empty when unassigned
	Inflight bool   // has been dispatched in the current scheduler cycle
	State    JobState
}

// NewJob builds a freshly queued job snapshotting the given session.
func NewJob(id string, session *Session, payload OfferPayload, now time.Time) *Job {
	return &Job{
		ID:         id,
		SessionID:  session.ID,
		Filename:   session.Filename,
		Ammunition: session.Ammunition,
		Payload:    payload,
		CreatedAt:  now,
		State:      JobQueued,
	}
}

// Requeue resets a job to queued/unassigned, as happens when a worker
// disconnects, rejects a job as busy, or a dispatch send fails.
func (j *Job) Requeue() {
	j.WorkerID = ""
	j.Inflight = false
	j.State = JobQueued
}
