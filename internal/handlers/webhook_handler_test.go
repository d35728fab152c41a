package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/agora/internal/common"
	"github.com/ternarybob/agora/internal/interfaces"
	"github.com/ternarybob/agora/internal/models"
	"github.com/ternarybob/agora/internal/storage"
	"github.com/ternarybob/agora/internal/tasks"
)

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

// seedRunningReviewTask stores a meeting with one running humanReview task
// and its linked request, returning the request ID used in webhook paths
func seedRunningReviewTask(t *testing.T, manager interfaces.StorageManager) string {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, manager.MeetingStorage().SaveCity(ctx, &models.City{
		ID: "city-1", Name: "Testopolis", CreatedAt: now,
	}))
	require.NoError(t, manager.MeetingStorage().SaveMeeting(ctx, &models.Meeting{
		ID: "meeting-1", CityID: "city-1", Name: "Session", Date: now, CreatedAt: now,
	}))

	task := &models.TaskStatus{
		ID:        common.NewTaskID(),
		Type:      models.TaskTypeHumanReview,
		Status:    models.TaskStatePending,
		CityID:    "city-1",
		MeetingID: "meeting-1",
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := manager.TaskStorage().CreateAtNextVersion(ctx, task)
	require.NoError(t, err)

	applied, err := manager.TaskStorage().Transition(ctx, task.ID, models.TaskStateRunning, "", "")
	require.NoError(t, err)
	require.True(t, applied)

	request := &models.JobRequest{
		ID:           common.NewRequestID(),
		TaskStatusID: task.ID,
		MeetingID:    "meeting-1",
		CityID:       "city-1",
		Type:         models.TaskTypeHumanReview,
		Status:       models.TaskStateRunning,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, manager.RequestStorage().SaveRequest(ctx, request))

	return request.ID
}

func newWebhookHandler(t *testing.T, manager interfaces.StorageManager, secret string) *WebhookHandler {
	t.Helper()
	logger := arbor.NewLogger()
	ingestor := tasks.NewIngestor(manager, tasks.NewRegistry(manager, logger), logger)
	return NewWebhookHandler(ingestor, manager.RequestStorage(), secret)
}

const reviewCallback = `{"jobId":"job-1","status":"completed","data":{"reviewedBy":"maria","reviewSeconds":600}}`

func TestWebhookHandler_AppliesCallback(t *testing.T) {
	manager := newTestStorage(t)
	requestID := seedRunningReviewTask(t, manager)
	handler := newWebhookHandler(t, manager, "")

	req := httptest.NewRequest("POST", "/tasks/processing/"+requestID, strings.NewReader(reviewCallback))
	rec := httptest.NewRecorder()
	handler.CallbackHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"applied":true`)
	assert.Contains(t, rec.Body.String(), `"succeeded"`)
}

func TestWebhookHandler_DuplicateDeliveryReturns200(t *testing.T) {
	manager := newTestStorage(t)
	requestID := seedRunningReviewTask(t, manager)
	handler := newWebhookHandler(t, manager, "")

	first := httptest.NewRecorder()
	handler.CallbackHandler(first, httptest.NewRequest("POST", "/tasks/processing/"+requestID, strings.NewReader(reviewCallback)))
	require.Equal(t, http.StatusOK, first.Code)

	// Retried delivery: still 200, marked not applied
	second := httptest.NewRecorder()
	handler.CallbackHandler(second, httptest.NewRequest("POST", "/tasks/processing/"+requestID, strings.NewReader(reviewCallback)))
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Contains(t, second.Body.String(), `"applied":false`)
}

func TestWebhookHandler_UnknownRequestIs404(t *testing.T) {
	manager := newTestStorage(t)
	handler := newWebhookHandler(t, manager, "")

	req := httptest.NewRequest("POST", "/tasks/processing/req_missing", strings.NewReader(reviewCallback))
	rec := httptest.NewRecorder()
	handler.CallbackHandler(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookHandler_MalformedPayloadIs400(t *testing.T) {
	manager := newTestStorage(t)
	requestID := seedRunningReviewTask(t, manager)
	handler := newWebhookHandler(t, manager, "")

	req := httptest.NewRequest("POST", "/tasks/processing/"+requestID, strings.NewReader(`{"status":"completed"}`))
	rec := httptest.NewRecorder()
	handler.CallbackHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookHandler_UnknownGroupIs404(t *testing.T) {
	manager := newTestStorage(t)
	handler := newWebhookHandler(t, manager, "")

	req := httptest.NewRequest("POST", "/tasks/rendering/req_1", strings.NewReader(reviewCallback))
	rec := httptest.NewRecorder()
	handler.CallbackHandler(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookHandler_SecretEnforced(t *testing.T) {
	manager := newTestStorage(t)
	requestID := seedRunningReviewTask(t, manager)
	handler := newWebhookHandler(t, manager, "hush")

	// Missing secret rejected
	rec := httptest.NewRecorder()
	handler.CallbackHandler(rec, httptest.NewRequest("POST", "/tasks/processing/"+requestID, strings.NewReader(reviewCallback)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Wrong secret rejected
	req := httptest.NewRequest("POST", "/tasks/processing/"+requestID, strings.NewReader(reviewCallback))
	req.Header.Set("X-Webhook-Secret", "wrong")
	rec = httptest.NewRecorder()
	handler.CallbackHandler(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Correct secret accepted
	req = httptest.NewRequest("POST", "/tasks/processing/"+requestID, strings.NewReader(reviewCallback))
	req.Header.Set("X-Webhook-Secret", "hush")
	rec = httptest.NewRecorder()
	handler.CallbackHandler(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookHandler_GetRequestState(t *testing.T) {
	manager := newTestStorage(t)
	requestID := seedRunningReviewTask(t, manager)
	handler := newWebhookHandler(t, manager, "hush")

	// GET needs no secret; it exposes only the request mirror
	req := httptest.NewRequest("GET", "/tasks/processing/"+requestID, nil)
	rec := httptest.NewRecorder()
	handler.CallbackHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"running"`)
}
