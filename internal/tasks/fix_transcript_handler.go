package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/agora/internal/interfaces"
	"github.com/ternarybob/agora/internal/models"
)

type correctionData struct {
	Corrections []correctionEntry `json:"corrections" validate:"required,min=1,dive"`
}

type correctionEntry struct {
	UtteranceID string `json:"utteranceId" validate:"required"`
	Text        string `json:"text" validate:"required"`
}

// FixTranscriptHandler applies automated transcript correction callbacks.
// Corrections that match the stored text are skipped so repeated deliveries
// do not inflate edit counts.
type FixTranscriptHandler struct {
	transcripts interfaces.TranscriptStorage
	logger      arbor.ILogger
}

// NewFixTranscriptHandler creates the fixTranscript stage handler
func NewFixTranscriptHandler(transcripts interfaces.TranscriptStorage, logger arbor.ILogger) *FixTranscriptHandler {
	return &FixTranscriptHandler{
		transcripts: transcripts,
		logger:      logger,
	}
}

func (h *FixTranscriptHandler) Type() models.TaskType {
	return models.TaskTypeFixTranscript
}

func (h *FixTranscriptHandler) Validate(payload []byte) error {
	envelope, err := parseEnvelope(payload)
	if err != nil {
		return err
	}
	if envelope.Status != "completed" {
		return nil
	}
	_, err = parseCorrectionData(envelope)
	return err
}

func (h *FixTranscriptHandler) Apply(ctx context.Context, task *models.TaskStatus, payload []byte) (*ApplyResult, error) {
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

	data, err := parseCorrectionData(envelope)
	if err != nil {
		return nil, err
	}

	corrections := make([]models.UtteranceCorrection, 0, len(data.Corrections))
	for _, c := range data.Corrections {
		corrections = append(corrections, models.UtteranceCorrection{
			UtteranceID: c.UtteranceID,
			Text:        c.Text,
		})
	}

	applied, err := h.transcripts.ApplyCorrections(ctx, task.MeetingID, corrections)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	h.logger.Debug().
		Str("meeting_id", task.MeetingID).
		Int("received", len(corrections)).
		Int("applied", applied).
		Msg("Transcript corrections applied")

	summary, _ := json.Marshal(map[string]int{
		"received":  len(corrections),
		"corrected": applied,
	})

	return &ApplyResult{
		Outcome: models.TaskStateSucceeded,
		JobID:   envelope.JobID,
		Summary: string(summary),
	}, nil
}

func parseCorrectionData(envelope *CallbackPayload) (*correctionData, error) {
	if len(envelope.Data) == 0 {
		return nil, &ValidationError{Reason: "missing data"}
	}
	var data correctionData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("malformed data: %v", err)}
	}
	if err := validate.Struct(&data); err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}
	return &data, nil
}
