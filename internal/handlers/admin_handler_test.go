package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/agora/internal/common"
	"github.com/ternarybob/agora/internal/interfaces"
	"github.com/ternarybob/agora/internal/models"
	"github.com/ternarybob/agora/internal/services/polling"
	"github.com/ternarybob/agora/internal/services/reviews"
	"github.com/ternarybob/agora/internal/tasks"
)

func newAdminHandler(t *testing.T, manager interfaces.StorageManager) *AdminHandler {
	t.Helper()
	logger := arbor.NewLogger()

	versions := tasks.NewVersionManager(manager.TaskStorage(), logger)
	reviewsSvc := reviews.NewService(manager, logger)
	pollConfig := &common.PollingConfig{
		MinInterval:   common.Duration(6 * time.Hour),
		MaxInterval:   common.Duration(14 * 24 * time.Hour),
		Multiplier:    2.0,
		RecencyWindow: common.Duration(90 * 24 * time.Hour),
		RateLimit:     common.Duration(time.Nanosecond),
	}
	pollingSvc := polling.NewService(manager, emptyRegistry{}, pollConfig, logger)
	return NewAdminHandler(versions, reviewsSvc, pollingSvc)
}

func seedAuditTask(t *testing.T, manager interfaces.StorageManager, cityID, meetingID string, taskType models.TaskType) *models.TaskStatus {
	t.Helper()
	now := time.Now().UTC()
	task := &models.TaskStatus{
		ID:        common.NewTaskID(),
		Type:      taskType,
		Status:    models.TaskStateSucceeded,
		CityID:    cityID,
		MeetingID: meetingID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := manager.TaskStorage().CreateAtNextVersion(context.Background(), task)
	require.NoError(t, err)
	return task
}

type auditResponse struct {
	Cities []struct {
		CityID string               `json:"city_id"`
		Tasks  []*models.TaskStatus `json:"tasks"`
	} `json:"cities"`
	Count int `json:"count"`
}

func auditQuery(t *testing.T, handler *AdminHandler, query string) (*httptest.ResponseRecorder, auditResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.TasksAuditHandler(rec, httptest.NewRequest("GET", "/admin/tasks"+query, nil))
	var body auditResponse
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestAdminHandler_TasksAudit_Filters(t *testing.T) {
	manager := newTestStorage(t)
	handler := newAdminHandler(t, manager)

	seedAuditTask(t, manager, "athens", "meeting-a", models.TaskTypeTranscribe)
	seedAuditTask(t, manager, "athens", "meeting-a", models.TaskTypeTranscribe) // version 2
	seedAuditTask(t, manager, "athens", "meeting-a", models.TaskTypeSummarize)
	seedAuditTask(t, manager, "patras", "meeting-p", models.TaskTypeTranscribe)

	// Unfiltered: both cities
	rec, body := auditQuery(t, handler, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, body.Count)

	// taskTypes narrows across cities
	rec, body = auditQuery(t, handler, "?taskTypes=summarize")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "athens", body.Cities[0].CityID)
	require.Len(t, body.Cities[0].Tasks, 1)
	assert.Equal(t, models.TaskTypeSummarize, body.Cities[0].Tasks[0].Type)

	// cityId narrows to one group
	rec, body = auditQuery(t, handler, "?cityId=patras")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "patras", body.Cities[0].CityID)

	// versionMin keeps only reprocessed rows
	rec, body = auditQuery(t, handler, "?versionMin=2")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, body.Count)
	require.Len(t, body.Cities[0].Tasks, 1)
	assert.Equal(t, 2, body.Cities[0].Tasks[0].Version)

	// dateFrom in the future excludes everything
	rec, body = auditQuery(t, handler, "?dateFrom=2099-01-01")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, body.Count)

	// Invalid values are rejected
	rec, _ = auditQuery(t, handler, "?taskTypes=encode")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = auditQuery(t, handler, "?versionMax=two")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func seedReviewedMeeting(t *testing.T, manager interfaces.StorageManager, meetingID, reviewer string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, manager.MeetingStorage().SaveMeeting(ctx, &models.Meeting{
		ID: meetingID, CityID: "city-1", Name: "Session", Date: now, CreatedAt: now,
	}))
	seedAuditTask(t, manager, "city-1", meetingID, models.TaskTypeTranscribe)
	if reviewer != "" {
		task := &models.TaskStatus{
			ID:            common.NewTaskID(),
			Type:          models.TaskTypeHumanReview,
			Status:        models.TaskStateSucceeded,
			CityID:        "city-1",
			MeetingID:     meetingID,
			ResultSummary: `{"reviewedBy":"` + reviewer + `","reviewSeconds":600}`,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		_, err := manager.TaskStorage().CreateAtNextVersion(ctx, task)
		require.NoError(t, err)
	}
}

func TestAdminHandler_Reviews_Filters(t *testing.T) {
	manager := newTestStorage(t)
	handler := newAdminHandler(t, manager)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, manager.MeetingStorage().SaveCity(ctx, &models.City{
		ID: "city-1", Name: "Testopolis", CreatedAt: now,
	}))

	// One reviewed by maria, one awaiting review
	seedReviewedMeeting(t, manager, "meeting-r", "maria")
	seedReviewedMeeting(t, manager, "meeting-n", "")

	get := func(query string) (*httptest.ResponseRecorder, *models.ReviewOverview) {
		rec := httptest.NewRecorder()
		handler.ReviewsHandler(rec, httptest.NewRequest("GET", "/admin/reviews"+query, nil))
		var overview models.ReviewOverview
		if rec.Code == http.StatusOK {
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &overview))
		}
		return rec, &overview
	}

	rec, overview := get("")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, overview.Completed)
	assert.Equal(t, 1, overview.NeedsAttention)

	rec, overview = get("?show=needsReview")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, overview.Meetings, 1)
	assert.Equal(t, "meeting-n", overview.Meetings[0].MeetingID)

	rec, overview = get("?reviewerId=maria")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, overview.Meetings, 1)
	assert.Equal(t, "meeting-r", overview.Meetings[0].MeetingID)

	rec, overview = get("?reviewerId=nikos")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, overview.Meetings)

	rec, overview = get("?last30Days=true")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, overview.Meetings, 2)

	rec, _ = get("?show=everything")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = get("?last30Days=maybe")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
