// Package models holds the broker's data model: sessions, jobs, workers, and
// the JSON envelopes exchanged over the worker and client WebSocket endpoints.
package models

import (
	"encoding/json"
	"time"
)

// Session is a logical client engagement with one video and one parameter
// bag; it may spawn many jobs over its lifetime.
type Session struct {
	ID           string
	Filename     string
	Ammunition   json.RawMessage
	CreatedAt    time.Time
	LastActivity time.Time
}

// Touch refreshes the session's last-activity timestamp, called whenever a
// new offer is submitted against it.
func (s *Session) Touch(now time.Time) {
	s.LastActivity = now
}

// CreateSessionRequest is the body of POST /session.
type CreateSessionRequest struct {
	Filename   string          `json:"filename" validate:"required"`
	Ammunition json.RawMessage `json:"ammunition" validate:"required"`
	// CustomID lets the caller pin the session identifier instead of
	// receiving a broker-generated one. Optional.
	CustomID *string `json:"custom_id,omitempty"`
}

// CreateSessionResponse is the body of a successful POST /session.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
	Filename  string `json:"filename"`
}

// OfferRequest is the body of POST /session/{id}/offer.
type OfferRequest struct {
	SDP  string `json:"sdp" validate:"required"`
	Type string `json:"type" validate:"required"`
}

// OfferResponse is the body of a successful offer submission.
type OfferResponse struct {
	JobID    string `json:"job_id"`
	Position int    `json:"position"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	OK          bool     `json:"ok"`
	Workers     int      `json:"workers"`
	QueueLength int      `json:"queue_length"`
	JobsTotal   int      `json:"jobs_total"`
	Sessions    int      `json:"sessions"`
	Videos      []string `json:"videos"`
}

// VideosResponse is the body of GET /videos.
type VideosResponse struct {
	Videos []string `json:"videos"`
}
