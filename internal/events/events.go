// Package events provides an event system for worker pool lifecycle notifications.
package events

import (
	"fmt"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	// EventWorkerReady is emitted when a worker first blocks waiting for a message
	EventWorkerReady EventType = "worker_ready"
	// EventWorkerStopped is emitted when a worker goroutine exits
	EventWorkerStopped EventType = "worker_stopped"
	// EventJobPanicked is emitted when a job panics and the worker recovers
	EventJobPanicked EventType = "job_panicked"
	// EventJobExited is emitted when a job ends its goroutine with
	// runtime.Goexit and the worker resumes on a new goroutine
	EventJobExited EventType = "job_exited"
	// EventPoolShutdown is emitted once every worker of a pool has been joined
	EventPoolShutdown EventType = "pool_shutdown"
)

// NoWorker is the WorkerID of events that belong to the pool as a whole
const NoWorker = -1

// Event represents a worker or pool event
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	WorkerID  int       `json:"worker_id"`
	Data      EventData `json:"data,omitempty"`
}

// EventData contains event-specific data
type EventData struct {
	Error   string `json:"error,omitempty"`
	Workers int    `json:"workers,omitempty"`
}

// NewWorkerReadyEvent creates a worker ready event
func NewWorkerReadyEvent(workerID int) Event {
	return Event{
		Type:      EventWorkerReady,
		Timestamp: time.Now(),
		WorkerID:  workerID,
	}
}

// NewWorkerStoppedEvent creates a worker stopped event
func NewWorkerStoppedEvent(workerID int) Event {
	return Event{
		Type:      EventWorkerStopped,
		Timestamp: time.Now(),
		WorkerID:  workerID,
	}
}

// NewJobPanickedEvent creates a job panicked event
func NewJobPanickedEvent(workerID int, recovered any) Event {
	return Event{
		Type:      EventJobPanicked,
		Timestamp: time.Now(),
		WorkerID:  workerID,
		Data: EventData{
			Error: formatRecovered(recovered),
		},
	}
}

// NewJobExitedEvent creates a job exited event
func NewJobExitedEvent(workerID int) Event {
	return Event{
		Type:      EventJobExited,
		Timestamp: time.Now(),
		WorkerID:  workerID,
		Data: EventData{
			Error: "job exited via runtime.Goexit",
		},
	}
}

// NewPoolShutdownEvent creates a pool shutdown event
func NewPoolShutdownEvent(workers int) Event {
	return Event{
		Type:      EventPoolShutdown,
		Timestamp: time.Now(),
		WorkerID:  NoWorker,
		Data: EventData{
			Workers: workers,
		},
	}
}

func formatRecovered(recovered any) string {
	switch v := recovered.(type) {
	case nil:
		return ""
	case error:
		return v.Error()
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
