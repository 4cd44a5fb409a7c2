// Package events defines the observation event payloads exchanged with the
// chat-platform gateway. The gateway publishes one of three event types per
// message, selected by the `event_type` Kafka header.
package events

import "time"

// Event type header values.
const (
	TypeObservationStarted   = "observation.started"
	TypeObservationHeartbeat = "observation.heartbeat"
	TypeObservationEnded     = "observation.ended"
)

// ObservationStarted is emitted when a subject is first seen in an activity.
type ObservationStarted struct {
	SubjectID int64     `json:"subject_id"`
	Activity  string    `json:"activity"`
	StartedAt time.Time `json:"started_at"`
	Label     string    `json:"label"`
}

// ObservationHeartbeat is emitted on periodic re-observation of an unchanged
// activity. StartedAt carries the original start so the journal extends the
// existing session instead of opening a new one.
type ObservationHeartbeat struct {
	SubjectID int64     `json:"subject_id"`
	Activity  string    `json:"activity"`
	StartedAt time.Time `json:"started_at"`
	SeenAt    time.Time `json:"seen_at"`
	Label     string    `json:"label"`
}

// ObservationEnded is emitted when an activity is reported as finished.
// StartedAt may be absent when the gateway never saw the activity begin.
type ObservationEnded struct {
	SubjectID int64      `json:"subject_id"`
	Activity  string     `json:"activity"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   time.Time  `json:"ended_at"`
	Label     string     `json:"label"`
}
