// Package events provides the in-process publish/subscribe event router.
package events

import (
	"time"
)

// Category represents different event categories
type Category string

const (
	AssessmentCompleted Category = "assessment.completed"
	ModeChanged         Category = "watchdog.mode_changed"
	EmergencyDeclared   Category = "watchdog.emergency"
	JobCompleted        Category = "job.completed"
	JobFailed           Category = "job.failed"
	MaintenanceDone     Category = "maintenance.completed"
	BackupDone          Category = "backup.completed"
	ErrorOccurred       Category = "error.occurred"
)

// Priority indicates how urgently consumers should treat an event
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Event represents an immutable system notification.
// Events are created at publish time and never mutated afterwards.
type Event struct {
	ID        string                 `json:"id"`
	Category  Category               `json:"category"`
	SubjectID string                 `json:"subjectId,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Priority  Priority               `json:"priority"`
}

// Handler is the unified callback shape for all subscribers.
// A non-nil error (or a panic) counts as a failed delivery for that
// subscriber only; sibling subscribers still receive the event.
type Handler func(event *Event) error

// Subscription is the handle returned by Subscribe, used for removal.
type Subscription struct {
	ID       string
	Category Category
}

// Stats reports router counters and current state
type Stats struct {
	EventsProcessed uint64 `json:"events_processed"`
	EventsFailed    uint64 `json:"events_failed"`
	Subscribers     int    `json:"subscribers"`
	QueueDepth      int    `json:"queue_depth"`
	Running         bool   `json:"running"`
}
