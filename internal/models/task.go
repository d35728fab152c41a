// -----------------------------------------------------------------------
// Task Status - versioned pipeline work records per meeting
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"time"
)

// TaskType identifies a pipeline stage. The set is closed: routing a status
// update for a type outside this set is a configuration error, never retried.
type TaskType string

const (
	TaskTypeTranscribe        TaskType = "transcribe"
	TaskTypeDiarize           TaskType = "diarize"
	TaskTypeProcessAgenda     TaskType = "processAgenda"
	TaskTypeSummarize         TaskType = "summarize"
	TaskTypeFixTranscript     TaskType = "fixTranscript"
	TaskTypeHumanReview       TaskType = "humanReview"
	TaskTypeGenerateHighlight TaskType = "generateHighlight"
)

// AllTaskTypes returns every registered pipeline stage
func AllTaskTypes() []TaskType {
	return []TaskType{
		TaskTypeTranscribe,
		TaskTypeDiarize,
		TaskTypeProcessAgenda,
		TaskTypeSummarize,
		TaskTypeFixTranscript,
		TaskTypeHumanReview,
		TaskTypeGenerateHighlight,
	}
}

// ParseTaskType validates a task type string against the closed set
func ParseTaskType(s string) (TaskType, error) {
	t := TaskType(s)
	for _, known := range AllTaskTypes() {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown task type: %q", s)
}

// EndpointGroup maps a task type to the external service family that executes
// it. Transcription and diarization run on dedicated media services; the rest
// run on the shared processing service.
func (t TaskType) EndpointGroup() string {
	switch t {
	case TaskTypeTranscribe, TaskTypeFixTranscript:
		return "transcription"
	case TaskTypeDiarize:
		return "diarization"
	default:
		return "processing"
	}
}

// TaskState represents the lifecycle state of a task.
// Transitions only move forward:
//
//	pending --(dispatch accepted)--> running
//	pending --(dispatch failed)----> failed
//	running --(callback: success)--> succeeded   [terminal]
//	running --(callback: failure)--> failed      [terminal]
//
// No transition leaves a terminal state; reprocessing always creates a new
// version rather than reopening a finished task.
type TaskState string

const (
	TaskStatePending   TaskState = "pending"
	TaskStateRunning   TaskState = "running"
	TaskStateSucceeded TaskState = "succeeded"
	TaskStateFailed    TaskState = "failed"
)

// IsTerminal returns true when no further transitions are allowed
func (s TaskState) IsTerminal() bool {
	return s == TaskStateSucceeded || s == TaskStateFailed
}

// CanTransitionTo reports whether moving to next is a legal forward transition
func (s TaskState) CanTransitionTo(next TaskState) bool {
	switch s {
	case TaskStatePending:
		return next == TaskStateRunning || next == TaskStateFailed
	case TaskStateRunning:
		return next == TaskStateSucceeded || next == TaskStateFailed
	default:
		return false
	}
}

// DeleteGraceWindow protects freshly-updated tasks from deletion. A task may
// not be removed while its UpdatedAt is within this window, which covers both
// in-flight work and just-completed results an operator may be looking at.
const DeleteGraceWindow = 10 * time.Minute

// TaskStatus is one versioned unit of pipeline work for a meeting.
// Exactly one row exists per (meeting, task type, version); versions are
// assigned by the dispatcher and never mutated afterward.
type TaskStatus struct {
	ID             string    `json:"id"`
	Type           TaskType  `json:"type"`
	Status         TaskState `json:"status"`
	Version        int       `json:"version"`
	CityID         string    `json:"city_id"`
	MeetingID      string    `json:"meeting_id"`
	RequestPayload string    `json:"request_payload,omitempty"` // Free-form dispatch parameters (JSON)
	ResultSummary  string    `json:"result_summary,omitempty"`  // Free-form completion summary (JSON)
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CanDelete reports whether the delete grace window has elapsed at now.
// Callers must re-check this at the moment of deletion, not only when the
// task was loaded for display.
func (t *TaskStatus) CanDelete(now time.Time) bool {
	return now.Sub(t.UpdatedAt) >= DeleteGraceWindow
}

// Validate checks structural invariants before persistence
func (t *TaskStatus) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task ID is required")
	}
	if _, err := ParseTaskType(string(t.Type)); err != nil {
		return err
	}
	if t.MeetingID == "" {
		return fmt.Errorf("task meeting ID is required")
	}
	if t.CityID == "" {
		return fmt.Errorf("task city ID is required")
	}
	if t.Version < 1 {
		return fmt.Errorf("task version must be positive, got %d", t.Version)
	}
	return nil
}

// TaskAuditFilter narrows the operator-facing version audit view
type TaskAuditFilter struct {
	TaskTypes  []TaskType
	CityIDs    []string
	DateFrom   time.Time
	DateTo     time.Time
	VersionMin int
	VersionMax int
}

// TaskAuditGroup is one city's slice of the version audit view
type TaskAuditGroup struct {
	CityID string        `json:"city_id"`
	Tasks  []*TaskStatus `json:"tasks"`
}
