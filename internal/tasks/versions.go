package tasks

import (
	"context"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/agora/internal/interfaces"
	"github.com/ternarybob/agora/internal/models"
)

// VersionManager serves the operator-facing version views: per-meeting
// status listings, the cross-city audit, and guarded deletion.
type VersionManager struct {
	storage interfaces.TaskStorage
	logger  arbor.ILogger
}

// NewVersionManager creates a version manager over the task store
func NewVersionManager(storage interfaces.TaskStorage, logger arbor.ILogger) *VersionManager {
	return &VersionManager{
		storage: storage,
		logger:  logger,
	}
}

// ListByMeeting returns every task version recorded for the meeting
func (v *VersionManager) ListByMeeting(ctx context.Context, meetingID string) ([]*models.TaskStatus, error) {
	return v.storage.ListByMeeting(ctx, meetingID)
}

// GetTask returns the task or ErrTaskNotFound
func (v *VersionManager) GetTask(ctx context.Context, id string) (*models.TaskStatus, error) {
	task, err := v.storage.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, ErrTaskNotFound
	}
	return task, nil
}

// HighestVersion returns the latest assigned version for the meeting and
// type, zero when none exists
func (v *VersionManager) HighestVersion(ctx context.Context, meetingID string, taskType models.TaskType) (int, error) {
	return v.storage.HighestVersion(ctx, meetingID, taskType)
}

// AuditByCity returns the filtered audit view grouped by city, cities
// sorted by ID and tasks within a city ordered as the store returns them
// (newest first).
func (v *VersionManager) AuditByCity(ctx context.Context, filter *models.TaskAuditFilter) ([]*models.TaskAuditGroup, error) {
	tasks, err := v.storage.ListAudit(ctx, filter)
	if err != nil {
		return nil, err
	}

	byCity := make(map[string][]*models.TaskStatus)
	for _, task := range tasks {
		byCity[task.CityID] = append(byCity[task.CityID], task)
	}

	cityIDs := make([]string, 0, len(byCity))
	for cityID := range byCity {
		cityIDs = append(cityIDs, cityID)
	}
	sort.Strings(cityIDs)

	groups := make([]*models.TaskAuditGroup, 0, len(cityIDs))
	for _, cityID := range cityIDs {
		groups = append(groups, &models.TaskAuditGroup{
			CityID: cityID,
			Tasks:  byCity[cityID],
		})
	}

	return groups, nil
}

// CanDelete reports whether the task's grace window has elapsed at now.
// A view-time convenience only; DeleteTask re-checks inside the store.
func (v *VersionManager) CanDelete(ctx context.Context, id string, now time.Time) (bool, error) {
	task, err := v.GetTask(ctx, id)
	if err != nil {
		return false, err
	}
	return task.CanDelete(now), nil
}

// DeleteTask removes the task if and only if it was last updated before the
// grace window. The window check runs inside the delete statement, so a
// callback landing between lookup and delete still protects the row.
func (v *VersionManager) DeleteTask(ctx context.Context, id string, now time.Time) error {
	task, err := v.GetTask(ctx, id)
	if err != nil {
		return err
	}

	deleted, err := v.storage.Delete(ctx, id, now.Add(-models.DeleteGraceWindow))
	if err != nil {
		return err
	}
	if !deleted {
		// The row existed a moment ago, so the guard refused it.
		return ErrDeleteGuard
	}

	v.logger.Info().
		Str("task_id", id).
		Str("meeting_id", task.MeetingID).
		Str("task_type", string(task.Type)).
		Int("version", task.Version).
		Msg("Task deleted")

	return nil
}
