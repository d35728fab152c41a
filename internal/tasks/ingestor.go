// -----------------------------------------------------------------------
// Ingestor - applies external service callbacks to task rows
// -----------------------------------------------------------------------

package tasks

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/agora/internal/interfaces"
	"github.com/ternarybob/agora/internal/models"
)

// IngestResult reports what a callback did. Applied is false when the task
// was already terminal and the callback was absorbed as a no-op.
type IngestResult struct {
	TaskStatusID string           `json:"task_status_id"`
	Status       models.TaskState `json:"status"`
	Applied      bool             `json:"applied"`
}

// Ingestor owns the inbound half of the task lifecycle. Callbacks are
// serialized per request ID so concurrent duplicate deliveries cannot
// interleave their side-effect writes; across different requests the
// conditional transition in storage is the only guard needed.
type Ingestor struct {
	storage  interfaces.StorageManager
	registry *Registry
	logger   arbor.ILogger

	locks sync.Map // request ID -> *sync.Mutex
}

// NewIngestor creates an ingestor over the given handler registry
func NewIngestor(storage interfaces.StorageManager, registry *Registry, logger arbor.ILogger) *Ingestor {
	return &Ingestor{
		storage:  storage,
		registry: registry,
		logger:   logger,
	}
}

// Ingest resolves the callback's request ID, validates and applies the
// payload through the task type's handler, and transitions the task to its
// terminal state. Duplicate deliveries after the first terminal transition
// return Applied=false with no writes.
func (i *Ingestor) Ingest(ctx context.Context, requestID string, payload []byte) (*IngestResult, error) {
	mu := i.lockFor(requestID)
	mu.Lock()
	defer mu.Unlock()

	request, err := i.storage.RequestStorage().GetRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if request == nil {
		return nil, ErrUnknownRequest
	}

	task, err := i.storage.TaskStorage().GetTask(ctx, request.TaskStatusID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if task == nil {
		return nil, ErrTaskNotFound
	}

	return i.apply(ctx, task, requestID, payload)
}

// IngestDirect applies an operator-submitted payload straight to a task by
// its ID. Used for stages that complete in-house (human review, manual
// transcript fixes) where no external service calls back.
func (i *Ingestor) IngestDirect(ctx context.Context, taskID string, payload []byte) (*IngestResult, error) {
	mu := i.lockFor(taskID)
	mu.Lock()
	defer mu.Unlock()

	task, err := i.storage.TaskStorage().GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if task == nil {
		return nil, ErrTaskNotFound
	}

	return i.apply(ctx, task, "", payload)
}

func (i *Ingestor) apply(ctx context.Context, task *models.TaskStatus, requestID string, payload []byte) (*IngestResult, error) {
	if task.Status.IsTerminal() {
		i.logger.Debug().
			Str("request_id", requestID).
			Str("task_id", task.ID).
			Str("status", string(task.Status)).
			Msg("Callback for terminal task absorbed")
		return &IngestResult{TaskStatusID: task.ID, Status: task.Status, Applied: false}, nil
	}

	if task.Status == models.TaskStatePending {
		// A callback can only exist for a job the provider accepted, so a
		// still-pending task lost its running transition after submission.
		// Recover it here; otherwise the terminal transition below could
		// never apply.
		if _, err := i.storage.TaskStorage().Transition(ctx, task.ID, models.TaskStateRunning, "", ""); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		task.Status = models.TaskStateRunning
	}

	handler, err := i.registry.HandlerFor(task.Type)
	if err != nil {
		return nil, err
	}
	if err := handler.Validate(payload); err != nil {
		return nil, err
	}

	result, err := handler.Apply(ctx, task, payload)
	if err != nil {
		return nil, err
	}

	applied, err := i.storage.TaskStorage().Transition(ctx, task.ID, result.Outcome, result.Summary, result.Error)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !applied {
		// Lost the race against another delivery; the winner already
		// moved the task to a terminal state.
		current, err := i.storage.TaskStorage().GetTask(ctx, task.ID)
		if err != nil || current == nil {
			return &IngestResult{TaskStatusID: task.ID, Status: task.Status, Applied: false}, nil
		}
		return &IngestResult{TaskStatusID: task.ID, Status: current.Status, Applied: false}, nil
	}

	if requestID != "" {
		if err := i.storage.RequestStorage().UpdateStatus(ctx, requestID, result.Outcome, result.JobID); err != nil {
			i.logger.Warn().Err(err).Str("request_id", requestID).Msg("Failed to mirror callback status onto request")
		}
	}

	i.logger.Info().
		Str("task_id", task.ID).
		Str("meeting_id", task.MeetingID).
		Str("task_type", string(task.Type)).
		Str("outcome", string(result.Outcome)).
		Msg("Callback applied")

	return &IngestResult{TaskStatusID: task.ID, Status: result.Outcome, Applied: true}, nil
}

func (i *Ingestor) lockFor(requestID string) *sync.Mutex {
	v, _ := i.locks.LoadOrStore(requestID, &sync.Mutex{})
	return v.(*sync.Mutex)
}
