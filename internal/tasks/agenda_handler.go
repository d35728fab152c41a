package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/agora/internal/interfaces"
	"github.com/ternarybob/agora/internal/models"
)

type agendaData struct {
	Subjects []agendaSubject `json:"subjects" validate:"required,dive"`
}

type agendaSubject struct {
	Title   string `json:"title" validate:"required"`
	Ordinal int    `json:"ordinal"`
}

// ProcessAgendaHandler applies agenda extraction callbacks: the list of
// subjects discussed in the meeting
type ProcessAgendaHandler struct {
	meetings interfaces.MeetingStorage
	logger   arbor.ILogger
}

// NewProcessAgendaHandler creates the processAgenda stage handler
func NewProcessAgendaHandler(meetings interfaces.MeetingStorage, logger arbor.ILogger) *ProcessAgendaHandler {
	return &ProcessAgendaHandler{
		meetings: meetings,
		logger:   logger,
	}
}

func (h *ProcessAgendaHandler) Type() models.TaskType {
	return models.TaskTypeProcessAgenda
}

func (h *ProcessAgendaHandler) Validate(payload []byte) error {
	envelope, err := parseEnvelope(payload)
	if err != nil {
		return err
	}
	if envelope.Status != "completed" {
		return nil
	}
	_, err = parseAgendaData(envelope)
	return err
}

func (h *ProcessAgendaHandler) Apply(ctx context.Context, task *models.TaskStatus, payload []byte) (*ApplyResult, error) {
	envelope, err := parseEnvelope(payload)
	if err != nil {
		return nil, err
	}

	if envelope.Status != "completed" {
		return &ApplyResult{
			Outcome: models.TaskStateFailed,
			JobID:   envelope.JobID,
			Error:   envelope.Error,
		}, nil
	}

	data, err := parseAgendaData(envelope)
	if err != nil {
		return nil, err
	}

	subjects := make([]*models.AgendaSubject, 0, len(data.Subjects))
	for i, sub := range data.Subjects {
		ordinal := sub.Ordinal
		if ordinal == 0 {
			ordinal = i + 1
		}
		subjects = append(subjects, &models.AgendaSubject{
			MeetingID: task.MeetingID,
			Title:     sub.Title,
			Ordinal:   ordinal,
		})
	}

	if err := h.meetings.ReplaceSubjects(ctx, task.MeetingID, subjects); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	summary, _ := json.Marshal(map[string]int{"subjects": len(subjects)})

	return &ApplyResult{
		Outcome: models.TaskStateSucceeded,
		JobID:   envelope.JobID,
		Summary: string(summary),
	}, nil
}

func parseAgendaData(envelope *CallbackPayload) (*agendaData, error) {
	if len(envelope.Data) == 0 {
		return nil, &ValidationError{Reason: "missing data"}
	}
	var data agendaData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("malformed data: %v", err)}
	}
	if err := validate.Struct(&data); err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}
	return &data, nil
}
