package models

import "time"

// Worker is one registered GPU worker connection. CurrentSession and
// JobsCount are maintained by the registry under its lock; the socket itself
// is owned by the worker's WebSocket handler goroutine, and the scheduler
// only enqueues frames on Send.
type Worker struct {
	ID             string
	CurrentSession string // empty when unaffined
	JobsCount      int
	ConnectedAt    time.Time

	// Send is a buffered channel the worker's write pump drains; the
	// scheduler and handlers enqueue outbound frames here rather than
	// writing to the socket directly, so writes are serialized per
	// connection.
	Send chan []byte
}
