package models

import "encoding/json"

// Worker-bound message types (broker -> worker).
const (
	WorkerMsgHelloAck = "hello_ack"
	WorkerMsgOffer    = "offer"
	WorkerMsgStop     = "stop"
)

// Worker-originated message types (worker -> broker).
const (
	WorkerMsgHello  = "hello"
	WorkerMsgAnswer = "answer"
	WorkerMsgDone   = "done"
	WorkerMsgBusy   = "busy"
)

// Client-bound message types (broker -> client subscriber).
const (
	ClientMsgQueuePosition = "queue_position"
	ClientMsgAssigned      = "assigned"
	ClientMsgAnswer        = "answer"
	ClientMsgDone          = "done"
	ClientMsgError         = "error"
)

// Error reasons used in WebSocket `error` frames. HTTP error bodies use the
// separate uppercase codes in the apperrors package.
const (
	ReasonUnknownJob         = "unknown_job"
	ReasonWorkerDisconnected = "worker_disconnected"
)

// WorkerEnvelope is a generic inbound frame from a worker socket; Type
// selects how the remaining fields are interpreted.
type WorkerEnvelope struct {
	Type      string `json:"type"`
	WorkerID  string `json:"worker_id,omitempty"`
	JobID     string `json:"job_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	SDP       string `json:"sdp,omitempty"`
}

// HelloAckMessage acknowledges a worker's hello (or the broker-assigned id,
// if none was supplied) and is always the first frame a worker receives.
type HelloAckMessage struct {
	Type     string `json:"type"`
	WorkerID string `json:"worker_id"`
}

func NewHelloAck(workerID string) HelloAckMessage {
	return HelloAckMessage{Type: WorkerMsgHelloAck, WorkerID: workerID}
}

// OfferMessage is sent to the worker chosen to handle a job.
type OfferMessage struct {
	Type       string          `json:"type"`
	JobID      string          `json:"job_id"`
	SessionID  string          `json:"session_id"`
	Filename   string          `json:"filename"`
	Ammunition json.RawMessage `json:"ammunition"`
	Payload    OfferPayload    `json:"payload"`
}

func NewOfferMessage(j *Job) OfferMessage {
	return OfferMessage{
		Type:       WorkerMsgOffer,
		JobID:      j.ID,
		SessionID:  j.SessionID,
		Filename:   j.Filename,
		Ammunition: j.Ammunition,
		Payload:    j.Payload,
	}
}

// StopMessage asks a worker to tear down a job it was handling.
type StopMessage struct {
	Type      string `json:"type"`
	JobID     string `json:"job_id"`
	SessionID string `json:"session_id"`
}

func NewStopMessage(jobID, sessionID string) StopMessage {
	return StopMessage{Type: WorkerMsgStop, JobID: jobID, SessionID: sessionID}
}

// QueuePositionMessage reports a job's 0-based queue index, or -1 if the job
// is not (or no longer) queued.
type QueuePositionMessage struct {
	Type     string `json:"type"`
	Position int    `json:"position"`
}

func NewQueuePosition(position int) QueuePositionMessage {
	return QueuePositionMessage{Type: ClientMsgQueuePosition, Position: position}
}

// AssignedMessage tells subscribers which worker picked up their job.
type AssignedMessage struct {
	Type     string `json:"type"`
	WorkerID string `json:"worker_id"`
}

func NewAssigned(workerID string) AssignedMessage {
	return AssignedMessage{Type: ClientMsgAssigned, WorkerID: workerID}
}

// AnswerMessage relays the worker's SDP answer to subscribers.
type AnswerMessage struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

func NewAnswer(sdp string) AnswerMessage {
	return AnswerMessage{Type: ClientMsgAnswer, SDP: sdp}
}

// DoneMessage tells subscribers the job finished.
type DoneMessage struct {
	Type string `json:"type"`
}

func NewDone() DoneMessage {
	return DoneMessage{Type: ClientMsgDone}
}

// ErrorMessage carries a failure reason to subscribers or a rejected
// connecting client.
type ErrorMessage struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func NewErrorMessage(reason string) ErrorMessage {
	return ErrorMessage{Type: ClientMsgError, Reason: reason}
}
