package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/agora/internal/models"
)

type highlightData struct {
	HighlightURL string `json:"highlightUrl" validate:"required,url"`
	Duration     float64 `json:"duration" validate:"gte=0"`
}

// GenerateHighlightHandler records rendered highlight clips. The clip is
// hosted by the processing service; only its location is kept here.
type GenerateHighlightHandler struct {
	logger arbor.ILogger
}

// NewGenerateHighlightHandler creates the generateHighlight stage handler
func NewGenerateHighlightHandler(logger arbor.ILogger) *GenerateHighlightHandler {
	return &GenerateHighlightHandler{logger: logger}
}

func (h *GenerateHighlightHandler) Type() models.TaskType {
	return models.TaskTypeGenerateHighlight
}

func (h *GenerateHighlightHandler) Validate(payload []byte) error {
	envelope, err := parseEnvelope(payload)
	if err != nil {
		return err
	}
	if envelope.Status != "completed" {
		return nil
	}
	_, err = parseHighlightData(envelope)
	return err
}

func (h *GenerateHighlightHandler) Apply(ctx context.Context, task *models.TaskStatus, payload []byte) (*ApplyResult, error) {
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

	data, err := parseHighlightData(envelope)
	if err != nil {
		return nil, err
	}

	summary, _ := json.Marshal(map[string]interface{}{
		"highlightUrl": data.HighlightURL,
		"duration":     data.Duration,
	})

	return &ApplyResult{
		Outcome: models.TaskStateSucceeded,
		JobID:   envelope.JobID,
		Summary: string(summary),
	}, nil
}

func parseHighlightData(envelope *CallbackPayload) (*highlightData, error) {
	if len(envelope.Data) == 0 {
		return nil, &ValidationError{Reason: "missing data"}
	}
	var data highlightData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("malformed data: %v", err)}
	}
	if err := validate.Struct(&data); err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}
	return &data, nil
}
