package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/agora/internal/interfaces"
	"github.com/ternarybob/agora/internal/models"
)

type summaryData struct {
	Summary string `json:"summary" validate:"required"`
}

// SummarizeHandler applies meeting summary callbacks
type SummarizeHandler struct {
	meetings interfaces.MeetingStorage
	logger   arbor.ILogger
}

// NewSummarizeHandler creates the summarize stage handler
func NewSummarizeHandler(meetings interfaces.MeetingStorage, logger arbor.ILogger) *SummarizeHandler {
	return &SummarizeHandler{
		meetings: meetings,
		logger:   logger,
	}
}

func (h *SummarizeHandler) Type() models.TaskType {
	return models.TaskTypeSummarize
}

func (h *SummarizeHandler) Validate(payload []byte) error {
	envelope, err := parseEnvelope(payload)
	if err != nil {
		return err
	}
	if envelope.Status != "completed" {
		return nil
	}
	_, err = parseSummaryData(envelope)
	return err
}

func (h *SummarizeHandler) Apply(ctx context.Context, task *models.TaskStatus, payload []byte) (*ApplyResult, error) {
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

	data, err := parseSummaryData(envelope)
	if err != nil {
		return nil, err
	}

	if err := h.meetings.SaveSummary(ctx, &models.Summary{
		MeetingID: task.MeetingID,
		Text:      data.Summary,
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	summary, _ := json.Marshal(map[string]int{"summary_chars": len(data.Summary)})

	return &ApplyResult{
		Outcome: models.TaskStateSucceeded,
		JobID:   envelope.JobID,
		Summary: string(summary),
	}, nil
}

func parseSummaryData(envelope *CallbackPayload) (*summaryData, error) {
	if len(envelope.Data) == 0 {
		return nil, &ValidationError{Reason: "missing data"}
	}
	var data summaryData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("malformed data: %v", err)}
	}
	if err := validate.Struct(&data); err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}
	return &data, nil
}
