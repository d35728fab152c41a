package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/agora/internal/interfaces"
	"github.com/ternarybob/agora/internal/models"
)

// TaskStorage implements SQLite storage for versioned task status rows
type TaskStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewTaskStorage creates a new task storage instance
func NewTaskStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.TaskStorage {
	return &TaskStorage{
		db:     db,
		logger: logger,
	}
}

// CreateAtNextVersion inserts the task at (max version)+1 for its
// (meeting, type) pair. The read and insert run inside one transaction under
// the storage mutex, so concurrent dispatches for the same pair always
// observe a gap-free, strictly increasing version sequence.
func (s *TaskStorage) CreateAtNextVersion(ctx context.Context, task *models.TaskStatus) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var next int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM task_statuses WHERE meeting_id = ? AND type = ?`,
		task.MeetingID, string(task.Type),
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to compute next version: %w", err)
	}

	task.Version = next
	if err := task.Validate(); err != nil {
		return 0, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO task_statuses (
			id, type, status, version, city_id, meeting_id,
			request_payload, result_summary, error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, string(task.Type), string(task.Status), task.Version,
		task.CityID, task.MeetingID,
		nullString(task.RequestPayload), nullString(task.ResultSummary), nullString(task.Error),
		task.CreatedAt.Unix(), task.UpdatedAt.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit task insert: %w", err)
	}

	return next, nil
}

// GetTask returns a task by ID, or nil when it does not exist
func (s *TaskStorage) GetTask(ctx context.Context, id string) (*models.TaskStatus, error) {
	row := s.db.DB().QueryRowContext(ctx, selectTaskSQL+` WHERE id = ?`, id)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	return task, nil
}

// ListByMeeting returns all task rows for a meeting, newest version first
func (s *TaskStorage) ListByMeeting(ctx context.Context, meetingID string) ([]*models.TaskStatus, error) {
	rows, err := s.db.DB().QueryContext(ctx,
		selectTaskSQL+` WHERE meeting_id = ? ORDER BY type, version DESC`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks for meeting %s: %w", meetingID, err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// HighestVersion returns the current version for (meeting, type), 0 when none
func (s *TaskStorage) HighestVersion(ctx context.Context, meetingID string, taskType models.TaskType) (int, error) {
	var version int
	err := s.db.DB().QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM task_statuses WHERE meeting_id = ? AND type = ?`,
		meetingID, string(taskType),
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get highest version: %w", err)
	}
	return version, nil
}

// ListAudit returns tasks matching the operator audit filter
func (s *TaskStorage) ListAudit(ctx context.Context, filter *models.TaskAuditFilter) ([]*models.TaskStatus, error) {
	var where []string
	var args []interface{}

	if filter != nil {
		if len(filter.TaskTypes) > 0 {
			placeholders := make([]string, len(filter.TaskTypes))
			for i, t := range filter.TaskTypes {
				placeholders[i] = "?"
				args = append(args, string(t))
			}
			where = append(where, fmt.Sprintf("type IN (%s)", strings.Join(placeholders, ",")))
		}
		if len(filter.CityIDs) > 0 {
			placeholders := make([]string, len(filter.CityIDs))
			for i, c := range filter.CityIDs {
				placeholders[i] = "?"
				args = append(args, c)
			}
			where = append(where, fmt.Sprintf("city_id IN (%s)", strings.Join(placeholders, ",")))
		}
		if !filter.DateFrom.IsZero() {
			where = append(where, "created_at >= ?")
			args = append(args, filter.DateFrom.Unix())
		}
		if !filter.DateTo.IsZero() {
			where = append(where, "created_at <= ?")
			args = append(args, filter.DateTo.Unix())
		}
		if filter.VersionMin > 0 {
			where = append(where, "version >= ?")
			args = append(args, filter.VersionMin)
		}
		if filter.VersionMax > 0 {
			where = append(where, "version <= ?")
			args = append(args, filter.VersionMax)
		}
	}

	query := selectTaskSQL
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY city_id, created_at DESC"

	rows, err := s.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// transitionSources maps a target state to the states it may be entered from
func transitionSources(to models.TaskState) []models.TaskState {
	switch to {
	case models.TaskStateRunning:
		return []models.TaskState{models.TaskStatePending}
	case models.TaskStateSucceeded:
		return []models.TaskState{models.TaskStateRunning}
	case models.TaskStateFailed:
		return []models.TaskState{models.TaskStatePending, models.TaskStateRunning}
	default:
		return nil
	}
}

// Transition conditionally moves the task to the target state. The WHERE
// clause carries the allowed source states, so a duplicate callback that
// races this update simply matches zero rows.
func (s *TaskStorage) Transition(ctx context.Context, id string, to models.TaskState, resultSummary, errMsg string) (bool, error) {
	sources := transitionSources(to)
	if len(sources) == 0 {
		return false, fmt.Errorf("invalid target state: %s", to)
	}

	placeholders := make([]string, len(sources))
	args := []interface{}{
		string(to),
		resultSummary, resultSummary,
		errMsg, errMsg,
		time.Now().Unix(),
		id,
	}
	for i, st := range sources {
		placeholders[i] = "?"
		args = append(args, string(st))
	}

	query := fmt.Sprintf(`
		UPDATE task_statuses SET
			status = ?,
			result_summary = CASE WHEN ? = '' THEN result_summary ELSE ? END,
			error = CASE WHEN ? = '' THEN error ELSE ? END,
			updated_at = ?
		WHERE id = ? AND status IN (%s)`, strings.Join(placeholders, ","))

	result, err := s.db.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to transition task %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

// Delete removes the task only when updated_at is at or before cutoff. The
// guard lives in the statement itself so a concurrent update wins the race.
func (s *TaskStorage) Delete(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	result, err := s.db.DB().ExecContext(ctx,
		`DELETE FROM task_statuses WHERE id = ? AND updated_at <= ?`,
		id, cutoff.Unix())
	if err != nil {
		return false, fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

// CountByState returns task counts grouped by status
func (s *TaskStorage) CountByState(ctx context.Context) (map[models.TaskState]int, error) {
	rows, err := s.db.DB().QueryContext(ctx,
		`SELECT status, COUNT(*) FROM task_statuses GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.TaskState]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan task count: %w", err)
		}
		counts[models.TaskState(status)] = count
	}
	return counts, rows.Err()
}

// MeetingIDsWithSucceeded returns distinct meetings having a succeeded task
// of the given type
func (s *TaskStorage) MeetingIDsWithSucceeded(ctx context.Context, taskType models.TaskType) ([]string, error) {
	rows, err := s.db.DB().QueryContext(ctx,
		`SELECT DISTINCT meeting_id FROM task_statuses WHERE type = ? AND status = ?`,
		string(taskType), string(models.TaskStateSucceeded))
	if err != nil {
		return nil, fmt.Errorf("failed to list succeeded meetings: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan meeting ID: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LatestSucceeded returns the newest succeeded task of the given type for a
// meeting, or nil when none exists
func (s *TaskStorage) LatestSucceeded(ctx context.Context, meetingID string, taskType models.TaskType) (*models.TaskStatus, error) {
	row := s.db.DB().QueryRowContext(ctx,
		selectTaskSQL+` WHERE meeting_id = ? AND type = ? AND status = ? ORDER BY version DESC LIMIT 1`,
		meetingID, string(taskType), string(models.TaskStateSucceeded))
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest succeeded task: %w", err)
	}
	return task, nil
}

const selectTaskSQL = `
	SELECT id, type, status, version, city_id, meeting_id,
	       request_payload, result_summary, error, created_at, updated_at
	FROM task_statuses`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*models.TaskStatus, error) {
	var task models.TaskStatus
	var taskType, status string
	var payload, summary, errMsg sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(&task.ID, &taskType, &status, &task.Version, &task.CityID,
		&task.MeetingID, &payload, &summary, &errMsg, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	task.Type = models.TaskType(taskType)
	task.Status = models.TaskState(status)
	task.RequestPayload = payload.String
	task.ResultSummary = summary.String
	task.Error = errMsg.String
	task.CreatedAt = time.Unix(createdAt, 0)
	task.UpdatedAt = time.Unix(updatedAt, 0)
	return &task, nil
}

func scanTasks(rows *sql.Rows) ([]*models.TaskStatus, error) {
	var tasks []*models.TaskStatus
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
