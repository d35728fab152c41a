package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/agora/internal/interfaces"
	"github.com/ternarybob/agora/internal/models"
)

// RequestStorage implements SQLite storage for external job requests
type RequestStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewRequestStorage creates a new request storage instance
func NewRequestStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.RequestStorage {
	return &RequestStorage{
		db:     db,
		logger: logger,
	}
}

// SaveRequest creates or updates a request row
func (s *RequestStorage) SaveRequest(ctx context.Context, request *models.JobRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := request.Validate(); err != nil {
		return err
	}

	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO job_requests (
			id, task_status_id, meeting_id, city_id, type,
			external_job_id, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			external_job_id = excluded.external_job_id,
			status = excluded.status,
			updated_at = excluded.updated_at`,
		request.ID, request.TaskStatusID, request.MeetingID, request.CityID,
		string(request.Type), nullString(request.ExternalJobID),
		string(request.Status), request.CreatedAt.Unix(), request.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save request %s: %w", request.ID, err)
	}
	return nil
}

// GetRequest returns a request by ID, or nil when it does not exist. A nil
// result for an inbound callback means the request was superseded or never
// existed; the caller absorbs it as a 404 no-op.
func (s *RequestStorage) GetRequest(ctx context.Context, id string) (*models.JobRequest, error) {
	row := s.db.DB().QueryRowContext(ctx, `
		SELECT id, task_status_id, meeting_id, city_id, type,
		       external_job_id, status, created_at, updated_at
		FROM job_requests WHERE id = ?`, id)

	var request models.JobRequest
	var taskType, status string
	var externalJobID sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(&request.ID, &request.TaskStatusID, &request.MeetingID,
		&request.CityID, &taskType, &externalJobID, &status, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get request %s: %w", id, err)
	}

	request.Type = models.TaskType(taskType)
	request.Status = models.TaskState(status)
	request.ExternalJobID = externalJobID.String
	request.CreatedAt = time.Unix(createdAt, 0)
	request.UpdatedAt = time.Unix(updatedAt, 0)
	return &request, nil
}

// DeleteUnfinished removes non-terminal requests for (meeting, type),
// superseding them before a new dispatch. Late callbacks for removed
// requests resolve to nothing and are ignored.
func (s *RequestStorage) DeleteUnfinished(ctx context.Context, meetingID string, taskType models.TaskType) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.DB().ExecContext(ctx,
		`DELETE FROM job_requests WHERE meeting_id = ? AND type = ? AND status IN (?, ?)`,
		meetingID, string(taskType),
		string(models.TaskStatePending), string(models.TaskStateRunning))
	if err != nil {
		return 0, fmt.Errorf("failed to delete unfinished requests: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(affected), nil
}

// UpdateStatus updates the mirrored status and, when provided, the external
// job identifier assigned by the provider
func (s *RequestStorage) UpdateStatus(ctx context.Context, id string, status models.TaskState, externalJobID string) error {
	_, err := s.db.DB().ExecContext(ctx, `
		UPDATE job_requests SET
			status = ?,
			external_job_id = CASE WHEN ? = '' THEN external_job_id ELSE ? END,
			updated_at = ?
		WHERE id = ?`,
		string(status), externalJobID, externalJobID, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update request %s: %w", id, err)
	}
	return nil
}
