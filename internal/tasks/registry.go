// -----------------------------------------------------------------------
// Task Type Registry - maps each pipeline stage to its update handler
// -----------------------------------------------------------------------

package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/agora/internal/interfaces"
	"github.com/ternarybob/agora/internal/models"
)

// validate is shared by all handlers for struct-tag payload validation
var validate = validator.New()

// newRowID generates an unprefixed row identifier for handler-created
// domain rows
func newRowID() string {
	return uuid.New().String()
}

// CallbackPayload is the common envelope of every completion callback.
// Transcription-style services report results under "data", diarization
// under "output"; handlers parse the half they own.
type CallbackPayload struct {
	JobID  string          `json:"jobId" validate:"required"`
	Status string          `json:"status" validate:"required,oneof=completed failed"`
	Error  string          `json:"error,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Output json.RawMessage `json:"output,omitempty"`
}

// Outcome maps the provider-reported status onto the task state machine
func (p *CallbackPayload) Outcome() models.TaskState {
	if p.Status == "completed" {
		return models.TaskStateSucceeded
	}
	return models.TaskStateFailed
}

// parseEnvelope decodes and validates the common callback envelope
func parseEnvelope(payload []byte) (*CallbackPayload, error) {
	var envelope CallbackPayload
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}
	if err := validate.Struct(&envelope); err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}
	return &envelope, nil
}

// ApplyResult reports the outcome of a handler's domain side effects
type ApplyResult struct {
	Outcome models.TaskState
	JobID   string
	Summary string // JSON result summary stored on the task
	Error   string // Provider-reported error for failed outcomes
}

// Handler validates and applies one task type's status updates. Apply
// persists the type's domain data (transcript rows, diarization segments,
// agenda subjects, ...) and reports the terminal outcome; it never touches
// task status itself - the ingestor owns the transition.
type Handler interface {
	Type() models.TaskType
	Validate(payload []byte) error
	Apply(ctx context.Context, task *models.TaskStatus, payload []byte) (*ApplyResult, error)
}

// Registry is the closed mapping from task type to handler. The
// orchestration core never special-cases a task type by name outside it;
// adding a stage means registering one handler here.
type Registry struct {
	handlers map[models.TaskType]Handler
	logger   arbor.ILogger
}

// NewRegistry creates a registry with all seven pipeline stages registered
func NewRegistry(storage interfaces.StorageManager, logger arbor.ILogger) *Registry {
	r := &Registry{
		handlers: make(map[models.TaskType]Handler),
		logger:   logger,
	}

	r.register(NewTranscribeHandler(storage.TranscriptStorage(), logger))
	r.register(NewDiarizeHandler(storage.TranscriptStorage(), logger))
	r.register(NewProcessAgendaHandler(storage.MeetingStorage(), logger))
	r.register(NewSummarizeHandler(storage.MeetingStorage(), logger))
	r.register(NewFixTranscriptHandler(storage.TranscriptStorage(), logger))
	r.register(NewHumanReviewHandler(logger))
	r.register(NewGenerateHighlightHandler(logger))

	return r
}

func (r *Registry) register(h Handler) {
	if _, exists := r.handlers[h.Type()]; exists {
		panic(fmt.Sprintf("duplicate task handler registration: %s", h.Type()))
	}
	r.handlers[h.Type()] = h
}

// HandlerFor returns the handler for a task type. An unregistered type is a
// configuration error surfaced as ErrUnknownTaskType, never retried.
func (r *Registry) HandlerFor(taskType models.TaskType) (Handler, error) {
	handler, ok := r.handlers[taskType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTaskType, taskType)
	}
	return handler, nil
}
