package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/agora/internal/models"
)

type reviewData struct {
	ReviewedBy    string  `json:"reviewedBy" validate:"required"`
	ReviewSeconds float64 `json:"reviewSeconds" validate:"gte=0"`
}

// HumanReviewHandler records completed manual review sessions. Review
// outcomes live entirely in the task row; the corrections themselves
// arrive through the fixTranscript stage.
type HumanReviewHandler struct {
	logger arbor.ILogger
}

// NewHumanReviewHandler creates the humanReview stage handler
func NewHumanReviewHandler(logger arbor.ILogger) *HumanReviewHandler {
	return &HumanReviewHandler{logger: logger}
}

func (h *HumanReviewHandler) Type() models.TaskType {
	return models.TaskTypeHumanReview
}

func (h *HumanReviewHandler) Validate(payload []byte) error {
	envelope, err := parseEnvelope(payload)
	if err != nil {
		return err
	}
	if envelope.Status != "completed" {
		return nil
	}
	_, err = parseReviewData(envelope)
	return err
}

func (h *HumanReviewHandler) Apply(ctx context.Context, task *models.TaskStatus, payload []byte) (*ApplyResult, error) {
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

	data, err := parseReviewData(envelope)
	if err != nil {
		return nil, err
	}

	summary, _ := json.Marshal(map[string]interface{}{
		"reviewedBy":    data.ReviewedBy,
		"reviewSeconds": data.ReviewSeconds,
	})

	return &ApplyResult{
		Outcome: models.TaskStateSucceeded,
		JobID:   envelope.JobID,
		Summary: string(summary),
	}, nil
}

func parseReviewData(envelope *CallbackPayload) (*reviewData, error) {
	if len(envelope.Data) == 0 {
		return nil, &ValidationError{Reason: "missing data"}
	}
	var data reviewData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("malformed data: %v", err)}
	}
	if err := validate.Struct(&data); err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}
	return &data, nil
}
