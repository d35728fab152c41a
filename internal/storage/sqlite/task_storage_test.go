package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/agora/internal/common"
	"github.com/ternarybob/agora/internal/interfaces"
	"github.com/ternarybob/agora/internal/models"
)

// setupTaskTestDB creates a test database and returns cleanup function
func setupTaskTestDB(t *testing.T) (*SQLiteDB, func()) {
	tempDir := t.TempDir()
	dbPath := tempDir + "/test.db"

	config := &common.SQLiteConfig{
		Path:          dbPath,
		CacheSizeMB:   10,
		WALMode:       false,
		BusyTimeoutMS: 5000,
	}

	logger := arbor.NewLogger()
	db, err := NewSQLiteDB(logger, config)
	require.NoError(t, err)

	cleanup := func() {
		db.Close()
	}

	return db, cleanup
}

func newTestTask(meetingID string, taskType models.TaskType) *models.TaskStatus {
	now := time.Now().UTC()
	return &models.TaskStatus{
		ID:        common.NewTaskID(),
		Type:      taskType,
		Status:    models.TaskStatePending,
		CityID:    "city-1",
		MeetingID: meetingID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestTaskStorage_CreateAtNextVersion(t *testing.T) {
	db, cleanup := setupTaskTestDB(t)
	defer cleanup()

	storage := NewTaskStorage(db, arbor.NewLogger())
	ctx := context.Background()

	// First task for a (meeting, type) pair gets version 1
	first := newTestTask("meeting-1", models.TaskTypeTranscribe)
	version, err := storage.CreateAtNextVersion(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	// Next task for the same pair gets version 2
	second := newTestTask("meeting-1", models.TaskTypeTranscribe)
	version, err = storage.CreateAtNextVersion(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	// Different type starts its own sequence
	other := newTestTask("meeting-1", models.TaskTypeDiarize)
	version, err = storage.CreateAtNextVersion(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	// Different meeting starts its own sequence
	elsewhere := newTestTask("meeting-2", models.TaskTypeTranscribe)
	version, err = storage.CreateAtNextVersion(ctx, elsewhere)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestTaskStorage_CreateAtNextVersion_Concurrent(t *testing.T) {
	db, cleanup := setupTaskTestDB(t)
	defer cleanup()

	storage := NewTaskStorage(db, arbor.NewLogger())
	ctx := context.Background()

	const workers = 10
	var wg sync.WaitGroup
	versions := make(chan int, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task := newTestTask("meeting-1", models.TaskTypeTranscribe)
			version, err := storage.CreateAtNextVersion(ctx, task)
			assert.NoError(t, err)
			versions <- version
		}()
	}
	wg.Wait()
	close(versions)

	// All versions assigned are unique and cover 1..workers with no gaps
	seen := make(map[int]bool)
	for v := range versions {
		assert.False(t, seen[v], "version %d assigned twice", v)
		seen[v] = true
	}
	for v := 1; v <= workers; v++ {
		assert.True(t, seen[v], "version %d missing", v)
	}

	highest, err := storage.HighestVersion(ctx, "meeting-1", models.TaskTypeTranscribe)
	require.NoError(t, err)
	assert.Equal(t, workers, highest)
}

func TestTaskStorage_Transition(t *testing.T) {
	db, cleanup := setupTaskTestDB(t)
	defer cleanup()

	storage := NewTaskStorage(db, arbor.NewLogger())
	ctx := context.Background()

	task := newTestTask("meeting-1", models.TaskTypeTranscribe)
	_, err := storage.CreateAtNextVersion(ctx, task)
	require.NoError(t, err)

	// pending -> running
	applied, err := storage.Transition(ctx, task.ID, models.TaskStateRunning, "", "")
	require.NoError(t, err)
	assert.True(t, applied)

	// running -> succeeded, recording the summary
	applied, err = storage.Transition(ctx, task.ID, models.TaskStateSucceeded, `{"segments":3}`, "")
	require.NoError(t, err)
	assert.True(t, applied)

	stored, err := storage.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.TaskStateSucceeded, stored.Status)
	assert.Equal(t, `{"segments":3}`, stored.ResultSummary)

	// Duplicate terminal callback matches zero rows
	applied, err = storage.Transition(ctx, task.ID, models.TaskStateSucceeded, `{"segments":99}`, "")
	require.NoError(t, err)
	assert.False(t, applied)

	// Terminal states never reopen
	applied, err = storage.Transition(ctx, task.ID, models.TaskStateFailed, "", "boom")
	require.NoError(t, err)
	assert.False(t, applied)

	// First result survived the rejected updates
	stored, err = storage.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStateSucceeded, stored.Status)
	assert.Equal(t, `{"segments":3}`, stored.ResultSummary)
}

func TestTaskStorage_Transition_PendingToFailed(t *testing.T) {
	db, cleanup := setupTaskTestDB(t)
	defer cleanup()

	storage := NewTaskStorage(db, arbor.NewLogger())
	ctx := context.Background()

	task := newTestTask("meeting-1", models.TaskTypeSummarize)
	_, err := storage.CreateAtNextVersion(ctx, task)
	require.NoError(t, err)

	// Dispatch failure moves pending straight to failed
	applied, err := storage.Transition(ctx, task.ID, models.TaskStateFailed, "", "connection refused")
	require.NoError(t, err)
	assert.True(t, applied)

	stored, err := storage.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStateFailed, stored.Status)
	assert.Equal(t, "connection refused", stored.Error)

	// pending -> succeeded is never legal
	fresh := newTestTask("meeting-1", models.TaskTypeSummarize)
	_, err = storage.CreateAtNextVersion(ctx, fresh)
	require.NoError(t, err)

	applied, err = storage.Transition(ctx, fresh.ID, models.TaskStateSucceeded, "", "")
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestTaskStorage_DeleteGuard(t *testing.T) {
	db, cleanup := setupTaskTestDB(t)
	defer cleanup()

	storage := NewTaskStorage(db, arbor.NewLogger())
	ctx := context.Background()

	task := newTestTask("meeting-1", models.TaskTypeTranscribe)
	_, err := storage.CreateAtNextVersion(ctx, task)
	require.NoError(t, err)

	// Cutoff in the past: the row is too fresh, nothing deleted
	deleted, err := storage.Delete(ctx, task.ID, time.Now().Add(-models.DeleteGraceWindow))
	require.NoError(t, err)
	assert.False(t, deleted)

	stored, err := storage.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored)

	// Cutoff after the row's updated_at: delete goes through
	deleted, err = storage.Delete(ctx, task.ID, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, deleted)

	stored, err = storage.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)

	// Deleting a missing row reports false, not an error
	deleted, err = storage.Delete(ctx, task.ID, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestTaskStorage_ListAudit(t *testing.T) {
	db, cleanup := setupTaskTestDB(t)
	defer cleanup()

	storage := NewTaskStorage(db, arbor.NewLogger())
	ctx := context.Background()

	taskA := newTestTask("meeting-1", models.TaskTypeTranscribe)
	taskA.CityID = "athens"
	_, err := storage.CreateAtNextVersion(ctx, taskA)
	require.NoError(t, err)

	taskB := newTestTask("meeting-2", models.TaskTypeSummarize)
	taskB.CityID = "patras"
	_, err = storage.CreateAtNextVersion(ctx, taskB)
	require.NoError(t, err)

	// No filter returns everything
	all, err := storage.ListAudit(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// Filter by type
	filtered, err := storage.ListAudit(ctx, &models.TaskAuditFilter{
		TaskTypes: []models.TaskType{models.TaskTypeTranscribe},
	})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, taskA.ID, filtered[0].ID)

	// Filter by city
	filtered, err = storage.ListAudit(ctx, &models.TaskAuditFilter{
		CityIDs: []string{"patras"},
	})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, taskB.ID, filtered[0].ID)

	// Version floor above everything matches nothing
	filtered, err = storage.ListAudit(ctx, &models.TaskAuditFilter{VersionMin: 2})
	require.NoError(t, err)
	assert.Empty(t, filtered)
}

func TestTaskStorage_MeetingIDsWithSucceeded(t *testing.T) {
	db, cleanup := setupTaskTestDB(t)
	defer cleanup()

	storage := NewTaskStorage(db, arbor.NewLogger())
	ctx := context.Background()

	succeeded := newTestTask("meeting-1", models.TaskTypeTranscribe)
	_, err := storage.CreateAtNextVersion(ctx, succeeded)
	require.NoError(t, err)
	mustTransition(t, storage, succeeded.ID, models.TaskStateRunning)
	mustTransition(t, storage, succeeded.ID, models.TaskStateSucceeded)

	pending := newTestTask("meeting-2", models.TaskTypeTranscribe)
	_, err = storage.CreateAtNextVersion(ctx, pending)
	require.NoError(t, err)

	ids, err := storage.MeetingIDsWithSucceeded(ctx, models.TaskTypeTranscribe)
	require.NoError(t, err)
	assert.Equal(t, []string{"meeting-1"}, ids)

	latest, err := storage.LatestSucceeded(ctx, "meeting-1", models.TaskTypeTranscribe)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, succeeded.ID, latest.ID)

	latest, err = storage.LatestSucceeded(ctx, "meeting-2", models.TaskTypeTranscribe)
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func mustTransition(t *testing.T, storage interfaces.TaskStorage, id string, to models.TaskState) {
	t.Helper()
	applied, err := storage.Transition(context.Background(), id, to, "", "")
	require.NoError(t, err)
	require.True(t, applied)
}
