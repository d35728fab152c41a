package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/agora/internal/common"
	"github.com/ternarybob/agora/internal/interfaces"
	"github.com/ternarybob/agora/internal/models"
	"github.com/ternarybob/agora/internal/storage"
)

// newTestStorage opens a throwaway storage manager backed by temp dirs
func newTestStorage(t *testing.T) interfaces.StorageManager {
	t.Helper()

	tempDir := t.TempDir()
	config := common.NewDefaultConfig()
	config.Storage.SQLite.Path = tempDir + "/test.db"
	config.Storage.SQLite.WALMode = false
	config.Storage.Badger.Path = tempDir + "/pollstate"

	manager, err := storage.NewStorageManager(arbor.NewLogger(), config)
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	return manager
}

// seedMeeting stores a city and meeting pair and returns the meeting
func seedMeeting(t *testing.T, manager interfaces.StorageManager, meetingID string) *models.Meeting {
	t.Helper()
	ctx := context.Background()

	city := &models.City{
		ID:        "city-1",
		Name:      "Testopolis",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, manager.MeetingStorage().SaveCity(ctx, city))

	meeting := &models.Meeting{
		ID:        meetingID,
		CityID:    city.ID,
		Name:      "Regular council session",
		Date:      time.Now().UTC(),
		MediaURL:  "https://media.example.com/" + meetingID + ".mp4",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, manager.MeetingStorage().SaveMeeting(ctx, meeting))

	return meeting
}

// seedRunningTask creates a running task with a linked request, mimicking a
// completed dispatch
func seedRunningTask(t *testing.T, manager interfaces.StorageManager, meetingID string, taskType models.TaskType) (*models.TaskStatus, *models.JobRequest) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	task := &models.TaskStatus{
		ID:        common.NewTaskID(),
		Type:      taskType,
		Status:    models.TaskStatePending,
		CityID:    "city-1",
		MeetingID: meetingID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := manager.TaskStorage().CreateAtNextVersion(ctx, task)
	require.NoError(t, err)

	applied, err := manager.TaskStorage().Transition(ctx, task.ID, models.TaskStateRunning, "", "")
	require.NoError(t, err)
	require.True(t, applied)
	task.Status = models.TaskStateRunning

	request := &models.JobRequest{
		ID:            common.NewRequestID(),
		TaskStatusID:  task.ID,
		MeetingID:     meetingID,
		CityID:        "city-1",
		Type:          taskType,
		ExternalJobID: "job-ext-1",
		Status:        models.TaskStateRunning,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, manager.RequestStorage().SaveRequest(ctx, request))

	return task, request
}
