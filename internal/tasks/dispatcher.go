// -----------------------------------------------------------------------
// Dispatcher - creates versioned task rows and submits jobs to external
// AI services
// -----------------------------------------------------------------------

package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/agora/internal/common"
	"github.com/ternarybob/agora/internal/interfaces"
	"github.com/ternarybob/agora/internal/models"
)

// dispatchRequest is the job submission body sent to the external service
type dispatchRequest struct {
	MediaURL    string          `json:"mediaUrl"`
	TaskType    string          `json:"taskType"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	CallbackURL string          `json:"callbackUrl"`
}

// dispatchResponse is the acceptance body returned by the external service
type dispatchResponse struct {
	JobID string `json:"jobId"`
}

// Dispatcher owns the outbound half of the task lifecycle. Each dispatch
// supersedes any unfinished request for the same meeting and type, creates
// the task at the next version, and hands the external service a callback
// URL keyed by an unguessable request ID.
type Dispatcher struct {
	storage    interfaces.StorageManager
	config     *common.Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     arbor.ILogger
}

// NewDispatcher creates a dispatcher using the configured endpoints
func NewDispatcher(storage interfaces.StorageManager, config *common.Config, httpClient *http.Client, logger arbor.ILogger) *Dispatcher {
	every := config.Tasks.DispatchRate.Std()
	if every <= 0 {
		every = time.Second
	}
	return &Dispatcher{
		storage:    storage,
		config:     config,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Every(every), 1),
		logger:     logger,
	}
}

// Dispatch creates a new pending task for the meeting at the next version
// and submits the job to the matching external service. On acceptance the
// task moves to running; on submission failure it moves straight to failed
// and the error is returned wrapped in ErrExternalService.
func (d *Dispatcher) Dispatch(ctx context.Context, meetingID string, taskType models.TaskType, parameters json.RawMessage) (*models.TaskStatus, error) {
	meeting, err := d.storage.MeetingStorage().GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if meeting == nil {
		return nil, ErrMeetingNotFound
	}

	endpoint := d.config.TaskEndpoint(taskType.EndpointGroup())
	if endpoint == "" {
		return nil, fmt.Errorf("%w: no endpoint configured for %s tasks", ErrExternalService, taskType)
	}

	superseded, err := d.storage.RequestStorage().DeleteUnfinished(ctx, meetingID, taskType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if superseded > 0 {
		d.logger.Info().
			Str("meeting_id", meetingID).
			Str("task_type", string(taskType)).
			Int("superseded", superseded).
			Msg("Superseded unfinished requests before dispatch")
	}

	now := time.Now().UTC()
	task := &models.TaskStatus{
		ID:             common.NewTaskID(),
		Type:           taskType,
		Status:         models.TaskStatePending,
		CityID:         meeting.CityID,
		MeetingID:      meetingID,
		RequestPayload: string(parameters),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	version, err := d.storage.TaskStorage().CreateAtNextVersion(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	task.Version = version

	request := &models.JobRequest{
		ID:           common.NewRequestID(),
		TaskStatusID: task.ID,
		MeetingID:    meetingID,
		CityID:       meeting.CityID,
		Type:         taskType,
		Status:       models.TaskStatePending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := d.storage.RequestStorage().SaveRequest(ctx, request); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	jobID, err := d.submit(ctx, endpoint, meeting, task, request, parameters)
	if err != nil {
		d.markFailed(ctx, task, request, err)
		return task, fmt.Errorf("%w: %v", ErrExternalService, err)
	}

	if _, err := d.storage.TaskStorage().Transition(ctx, task.ID, models.TaskStateRunning, "", ""); err != nil {
		return task, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	task.Status = models.TaskStateRunning

	if err := d.storage.RequestStorage().UpdateStatus(ctx, request.ID, models.TaskStateRunning, jobID); err != nil {
		return task, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	d.logger.Info().
		Str("task_id", task.ID).
		Str("meeting_id", meetingID).
		Str("task_type", string(taskType)).
		Int("version", task.Version).
		Str("job_id", jobID).
		Msg("Task dispatched")

	return task, nil
}

func (d *Dispatcher) submit(ctx context.Context, endpoint string, meeting *models.Meeting, task *models.TaskStatus, request *models.JobRequest, parameters json.RawMessage) (string, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return "", err
	}

	callbackURL := fmt.Sprintf("%s/tasks/%s/%s",
		d.config.Server.PublicBaseURL, task.Type.EndpointGroup(), request.ID)

	body, err := json.Marshal(dispatchRequest{
		MediaURL:    meeting.MediaURL,
		TaskType:    string(task.Type),
		Parameters:  parameters,
		CallbackURL: callbackURL,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode dispatch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("service returned status %d", resp.StatusCode)
	}

	var accepted dispatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		return "", fmt.Errorf("failed to decode dispatch response: %w", err)
	}

	return accepted.JobID, nil
}

// markFailed records a submission failure on both the task row and the
// request mirror. Persistence errors here are logged, not returned; the
// submission error is the one the caller needs.
func (d *Dispatcher) markFailed(ctx context.Context, task *models.TaskStatus, request *models.JobRequest, cause error) {
	if _, err := d.storage.TaskStorage().Transition(ctx, task.ID, models.TaskStateFailed, "", cause.Error()); err != nil {
		d.logger.Warn().Err(err).Str("task_id", task.ID).Msg("Failed to record dispatch failure on task")
	}
	task.Status = models.TaskStateFailed
	task.Error = cause.Error()

	if err := d.storage.RequestStorage().UpdateStatus(ctx, request.ID, models.TaskStateFailed, ""); err != nil {
		d.logger.Warn().Err(err).Str("request_id", request.ID).Msg("Failed to record dispatch failure on request")
	}
}
