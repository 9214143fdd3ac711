package resolution

import "time"

// JobState is the lifecycle state of a resolution job
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// Terminal reports whether no further transition can happen
func (s JobState) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// EventType names a job event
type EventType string

const (
	EventStateChanged   EventType = "state_changed"
	EventHopStarted     EventType = "hop_started"
	EventHopCompleted   EventType = "hop_completed"
	EventQueryCompleted EventType = "query_completed"
	EventQueryFailed    EventType = "query_failed"
)

// Event describes a step of a running job. Fields not relevant to the type are zero.
type Event struct {
	Type        EventType     `json:"type"`
	JobID       string        `json:"job_id"`
	EntityType  string        `json:"entity_type,omitempty"`
	State       JobState      `json:"state,omitempty"`
	Hop         int           `json:"hop,omitempty"`
	Queries     int           `json:"queries,omitempty"` // queries built for the hop
	Hits        int           `json:"hits,omitempty"`    // new documents of a hop, or documents a query returned
	Collection  string        `json:"collection,omitempty"`
	Query       int           `json:"query,omitempty"`
	Termination string        `json:"termination,omitempty"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration_ns,omitempty"`
	Time        time.Time     `json:"time"`
}

// Observer receives job events. Events are delivered synchronously from the
// hop loop, in order; implementations must return quickly.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Event)

// OnEvent calls f
func (f ObserverFunc) OnEvent(e Event) { f(e) }
