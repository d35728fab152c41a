package models

import (
	"fmt"
	"time"
)

// JobRequest links a TaskStatus to one outbound third-party job. The ID is
// the webhook callback path segment, so it is generated unguessable and is
// the only routing key an external service ever sees.
//
// At most one unfinished request exists per (meeting, task type): dispatching
// again deletes the prior unfinished request first, so a very late callback
// for a superseded request resolves to nothing and is absorbed as a 404.
type JobRequest struct {
	ID            string    `json:"id"`
	TaskStatusID  string    `json:"task_status_id"`
	MeetingID     string    `json:"meeting_id"`
	CityID        string    `json:"city_id"`
	Type          TaskType  `json:"type"`
	ExternalJobID string    `json:"external_job_id,omitempty"` // Assigned once the provider accepts the job
	Status        TaskState `json:"status"`                    // Mirror of the owning task's status
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Validate checks structural invariants before persistence
func (r *JobRequest) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("request ID is required")
	}
	if r.TaskStatusID == "" {
		return fmt.Errorf("request task status ID is required")
	}
	if r.MeetingID == "" {
		return fmt.Errorf("request meeting ID is required")
	}
	if _, err := ParseTaskType(string(r.Type)); err != nil {
		return err
	}
	return nil
}
