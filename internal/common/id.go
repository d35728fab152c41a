package common

import (
	"github.com/google/uuid"
)

// NewTaskID generates a unique task status ID with the "task_" prefix
// Format: task_<uuid>
func NewTaskID() string {
	return "task_" + uuid.New().String()
}

// NewRequestID generates a unique external job request ID with the "req_"
// prefix. The ID doubles as the webhook callback path segment, so it must be
// unguessable.
// Format: req_<uuid>
func NewRequestID() string {
	return "req_" + uuid.New().String()
}
